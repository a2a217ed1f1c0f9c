package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/cost-reconciler/internal/domain/entity"
)

func newIngestionService(f *fixture) IngestionService {
	return NewIngestionService(&mockProjectRepo{s: f.store}, &mockTradeRepo{s: f.store},
		&mockEstimateRepo{s: f.store}, &mockInvoiceRepo{s: f.store}, &mockTxManager{},
		entity.DefaultTotalTolerance, &mockLogger{})
}

func TestIngestionService_CreateProjectAndTrade(t *testing.T) {
	f := newFixture()
	svc := newIngestionService(f)
	ctx := context.Background()

	project, err := svc.CreateProject(ctx, "Riverside duplex")
	require.NoError(t, err)
	assert.NotZero(t, project.ID)

	_, err = svc.CreateProject(ctx, "  ")
	assert.ErrorIs(t, err, ErrValidation)

	trade := &entity.Trade{
		ProjectID: project.ID,
		Name:      "Framing",
		LineItems: []*entity.EstimateLineItem{
			{Description: "Wall framing", Quantity: decimal.NewFromInt(1), LaborCostEst: decimal.NewFromInt(800)},
		},
	}
	require.NoError(t, svc.CreateTrade(ctx, trade))
	assert.NotZero(t, trade.ID)
	assert.NotZero(t, trade.LineItems[0].ID)

	bad := &entity.Trade{
		ProjectID: project.ID,
		Name:      "Roofing",
		LineItems: []*entity.EstimateLineItem{
			{Description: "Shingles", MaterialCostEst: decimal.NewFromInt(-1)},
		},
	}
	assert.ErrorIs(t, svc.CreateTrade(ctx, bad), ErrValidation)

	orphan := &entity.Trade{ProjectID: 999, Name: "Orphan"}
	assert.ErrorIs(t, svc.CreateTrade(ctx, orphan), ErrNotFound)
}

func TestIngestionService_IngestInvoice(t *testing.T) {
	f := newFixture()
	svc := newIngestionService(f)
	ctx := context.Background()
	tradeID := int64(1)

	invoice := &entity.Invoice{
		ProjectID:     1,
		TradeID:       &tradeID,
		InvoiceNumber: "INV-7",
		SupplierName:  "Sparks Ltd",
		LineItems: []*entity.InvoiceLineItem{
			{
				Description: "Outlets",
				Quantity:    decimal.NewFromInt(3),
				UnitPrice:   decimal.RequireFromString("33.33"),
				TotalPrice:  decimal.RequireFromString("100.00"),
			},
		},
	}
	require.NoError(t, svc.IngestInvoice(ctx, invoice))
	assert.Equal(t, entity.InvoiceStatusPending, invoice.Status)
	assert.NotZero(t, invoice.LineItems[0].ID)

	mismatched := &entity.Invoice{
		ProjectID: 1,
		LineItems: []*entity.InvoiceLineItem{
			{
				Description: "Outlets",
				Quantity:    decimal.NewFromInt(3),
				UnitPrice:   decimal.RequireFromString("33.33"),
				TotalPrice:  decimal.RequireFromString("100.02"),
			},
		},
	}
	assert.ErrorIs(t, svc.IngestInvoice(ctx, mismatched), ErrValidation)

	otherTrade := int64(3)
	foreign := &entity.Invoice{
		ProjectID: 1,
		TradeID:   &otherTrade,
		LineItems: []*entity.InvoiceLineItem{invoiceLine(0, "Pipe", 10)},
	}
	assert.ErrorIs(t, svc.IngestInvoice(ctx, foreign), ErrValidation)
}

func TestIngestionService_UpdateInvoiceStatus(t *testing.T) {
	f := newFixture()
	f.addInvoice(100, entity.InvoiceStatusPending, invoiceLine(10, "Outlets", 180))
	svc := newIngestionService(f)
	ctx := context.Background()

	require.NoError(t, svc.UpdateInvoiceStatus(ctx, 100, entity.InvoiceStatusPaid))
	assert.Equal(t, entity.InvoiceStatusPaid, f.store.invoices[100].Status)

	assert.ErrorIs(t, svc.UpdateInvoiceStatus(ctx, 100, "ARCHIVED"), ErrValidation)
	assert.ErrorIs(t, svc.UpdateInvoiceStatus(ctx, 999, entity.InvoiceStatusPaid), ErrNotFound)
}

func TestIngestionService_DeleteEstimateKeepsInvoiceLine(t *testing.T) {
	f := newFixture()
	f.addInvoice(100, entity.InvoiceStatusApproved, invoiceLine(10, "Outlets", 180))
	ctx := context.Background()
	_, err := f.mappings.AssignManual(ctx, 10, 1)
	require.NoError(t, err)

	svc := newIngestionService(f)
	require.NoError(t, svc.DeleteEstimateLineItem(ctx, 1))

	assert.Empty(t, f.store.mappingSnapshot())
	assert.Contains(t, f.store.lineItems, int64(10))
	assert.ErrorIs(t, svc.DeleteEstimateLineItem(ctx, 1), ErrNotFound)
}

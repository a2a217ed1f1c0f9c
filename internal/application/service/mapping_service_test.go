package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/cost-reconciler/internal/domain/entity"
)

func TestMappingService_AssignManual(t *testing.T) {
	f := newFixture()
	f.addInvoice(100, entity.InvoiceStatusApproved, invoiceLine(10, "Misc electrical parts", 90))

	mapping, err := f.mappings.AssignManual(context.Background(), 10, 1)
	require.NoError(t, err)

	assert.Equal(t, 1.0, mapping.Confidence)
	assert.Equal(t, entity.MatchMethodManual, mapping.Method)
	assert.Equal(t, map[int64]int64{10: 1}, f.store.mappingSnapshot())

	require.Len(t, f.store.corrections, 1)
	c := f.store.corrections[0]
	assert.Equal(t, int64(1), c.ProjectID)
	assert.Equal(t, entity.CorrectionFieldDescription, c.OriginalField)
	assert.Equal(t, "Misc electrical parts", c.OriginalValue)
	assert.Equal(t, "1", c.CorrectedValue)

	// reassigning replaces and appends
	_, err = f.mappings.AssignManual(context.Background(), 10, 2)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{10: 2}, f.store.mappingSnapshot())
	assert.Len(t, f.store.corrections, 2)
}

func TestMappingService_AssignManualErrors(t *testing.T) {
	f := newFixture()
	f.addInvoice(100, entity.InvoiceStatusApproved, invoiceLine(10, "Copper pipe", 500))

	tests := []struct {
		name       string
		lineItemID int64
		estimateID int64
		wantErr    error
	}{
		{"unknown line item", 99, 1, ErrNotFound},
		{"unknown estimate", 10, 99, ErrNotFound},
		{"estimate of another project", 10, 3, ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.mappings.AssignManual(context.Background(), tt.lineItemID, tt.estimateID)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Empty(t, f.store.mappingSnapshot())
	assert.Empty(t, f.store.corrections)
}

func TestMappingService_UpsertValidates(t *testing.T) {
	f := newFixture()

	err := f.mappings.UpsertMapping(context.Background(), &entity.Mapping{
		InvoiceLineItemID: 10, EstimateLineItemID: 1, Confidence: 1.2, Method: entity.MatchMethodLogic,
	})
	assert.ErrorIs(t, err, ErrValidation)

	err = f.mappings.UpsertMapping(context.Background(), &entity.Mapping{
		InvoiceLineItemID: 10, EstimateLineItemID: 1, Confidence: 0.8, Method: "heuristic",
	})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 0, f.locker.locks)
}

func TestMappingService_ClearAndList(t *testing.T) {
	f := newFixture()
	f.addInvoice(100, entity.InvoiceStatusApproved,
		invoiceLine(10, "Install electrical outlets", 165),
		invoiceLine(11, "Copper pipe supply", 500))

	ctx := context.Background()
	require.NoError(t, f.mappings.UpsertMapping(ctx, &entity.Mapping{
		InvoiceLineItemID: 10, EstimateLineItemID: 1, Confidence: 0.9, Method: entity.MatchMethodLogic,
	}))
	require.NoError(t, f.mappings.UpsertMapping(ctx, &entity.Mapping{
		InvoiceLineItemID: 11, EstimateLineItemID: 2, Confidence: 0.8, Method: entity.MatchMethodLLM,
	}))

	views, err := f.mappings.GetMappingsForInvoice(ctx, 100)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "Electrical", views[0].TradeName)
	assert.Equal(t, "Plumbing", views[1].TradeName)

	require.NoError(t, f.mappings.ClearMapping(ctx, 10))
	require.NoError(t, f.mappings.ClearMapping(ctx, 10), "clearing twice is not an error")

	views, err = f.mappings.GetMappingsForInvoice(ctx, 100)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, int64(11), views[0].InvoiceLineItemID)

	assert.ErrorIs(t, f.mappings.ClearMapping(ctx, 99), ErrNotFound)
	_, err = f.mappings.GetMappingsForInvoice(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMappingService_ApplyMatch(t *testing.T) {
	tests := []struct {
		name        string
		current     *entity.Mapping
		replace     bool
		wantApplied bool
		wantMethod  entity.MatchMethod
		wantEst     int64
	}{
		{name: "unmapped", wantApplied: true, wantMethod: entity.MatchMethodLogic, wantEst: 1},
		{
			name:       "existing mapping kept without replace",
			current:    &entity.Mapping{InvoiceLineItemID: 10, EstimateLineItemID: 2, Confidence: 0.8, Method: entity.MatchMethodLLM},
			wantMethod: entity.MatchMethodLLM,
			wantEst:    2,
		},
		{
			name:        "existing mapping replaced",
			current:     &entity.Mapping{InvoiceLineItemID: 10, EstimateLineItemID: 2, Confidence: 0.8, Method: entity.MatchMethodLLM},
			replace:     true,
			wantApplied: true,
			wantMethod:  entity.MatchMethodLogic,
			wantEst:     1,
		},
		{
			name:       "manual mapping never replaced",
			current:    &entity.Mapping{InvoiceLineItemID: 10, EstimateLineItemID: 2, Confidence: 1, Method: entity.MatchMethodManual},
			replace:    true,
			wantMethod: entity.MatchMethodManual,
			wantEst:    2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.addInvoice(100, entity.InvoiceStatusApproved, invoiceLine(10, "Install electrical outlets", 165))
			if tt.current != nil {
				f.store.mappings[10] = tt.current
			}

			applied, err := f.mappings.ApplyMatch(context.Background(), &entity.Mapping{
				InvoiceLineItemID: 10, EstimateLineItemID: 1, Confidence: 0.9, Method: entity.MatchMethodLogic,
			}, tt.replace)
			require.NoError(t, err)

			assert.Equal(t, tt.wantApplied, applied)
			assert.Equal(t, tt.wantMethod, f.store.mappings[10].Method)
			assert.Equal(t, tt.wantEst, f.store.mappings[10].EstimateLineItemID)
			assert.Equal(t, 1, f.locker.locks)
		})
	}
}

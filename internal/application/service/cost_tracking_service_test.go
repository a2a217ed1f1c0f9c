package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/cost-reconciler/internal/domain/entity"
)

func newCostTrackingService(f *fixture) CostTrackingService {
	return NewCostTrackingService(&mockProjectRepo{s: f.store}, &mockTradeRepo{s: f.store},
		&mockInvoiceRepo{s: f.store}, &mockTxManager{}, &mockLogger{})
}

func TestCostTrackingService_ElectricalScenario(t *testing.T) {
	f := newFixture()
	f.addInvoice(100, entity.InvoiceStatusApproved, invoiceLine(10, "Electrical outlets", 180))
	ctx := context.Background()
	require.NoError(t, f.mappings.UpsertMapping(ctx, &entity.Mapping{
		InvoiceLineItemID: 10, EstimateLineItemID: 1, Confidence: 0.9, Method: entity.MatchMethodLogic,
	}))

	resp, err := newCostTrackingService(f).ComputeProjectCostTracking(ctx, 1)
	require.NoError(t, err)

	require.Len(t, resp.Trades, 2)
	electrical := resp.Trades[0]
	assert.Equal(t, "Electrical", electrical.Name)
	assert.Equal(t, 165.0, electrical.EstimatedTotal)
	assert.Equal(t, 180.0, electrical.ActualSpent)
	assert.Equal(t, 15.0, electrical.Variance)
	assert.Equal(t, 9.09, electrical.VariancePercent)
	assert.Equal(t, 109.09, electrical.PercentSpent)
	assert.Equal(t, 0.0, electrical.RemainingBudget)
	assert.Equal(t, entity.BudgetStatusOverBudget, electrical.Status)
	require.Len(t, electrical.LineItems, 1)
	assert.Equal(t, 165.0, electrical.LineItems[0].TotalEstimate)
	assert.Equal(t, 100.0, electrical.LineItems[0].PercentComplete)

	plumbing := resp.Trades[1]
	assert.Equal(t, entity.BudgetStatusUnderBudget, plumbing.Status)
	assert.Equal(t, 500.0, plumbing.RemainingBudget)

	assert.Equal(t, 665.0, resp.Summary.TotalEstimated)
	assert.Equal(t, 180.0, resp.Summary.TotalActual)
	assert.Equal(t, -485.0, resp.Summary.TotalVariance)
	assert.Equal(t, 485.0, resp.Summary.TotalRemaining)
	assert.Equal(t, 27.07, resp.Summary.PercentComplete)
	assert.Equal(t, 1, resp.Summary.TradesOverBudget)
	assert.Equal(t, 1, resp.Summary.TradesUnderBudget)
}

func TestCostTrackingService_StatusChangeWithoutMappingChange(t *testing.T) {
	f := newFixture()
	f.addInvoice(100, entity.InvoiceStatusPending, invoiceLine(10, "Electrical outlets", 180))
	ctx := context.Background()
	require.NoError(t, f.mappings.UpsertMapping(ctx, &entity.Mapping{
		InvoiceLineItemID: 10, EstimateLineItemID: 1, Confidence: 0.9, Method: entity.MatchMethodLogic,
	}))
	svc := newCostTrackingService(f)

	pending, err := svc.ComputeProjectCostTracking(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, pending.Trades[0].ActualSpent)

	f.store.invoices[100].Status = entity.InvoiceStatusApproved

	approved, err := svc.ComputeProjectCostTracking(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 180.0, approved.Trades[0].ActualSpent)
}

func TestCostTrackingService_NotFound(t *testing.T) {
	f := newFixture()

	_, err := newCostTrackingService(f).ComputeProjectCostTracking(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCostTrackingResponse_JSONShape(t *testing.T) {
	f := newFixture()
	resp, err := newCostTrackingService(f).ComputeProjectCostTracking(context.Background(), 1)
	require.NoError(t, err)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var shape struct {
		Trades []map[string]interface{} `json:"trades"`
		Summary map[string]interface{}  `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(raw, &shape))

	require.NotEmpty(t, shape.Trades)
	for _, key := range []string{"id", "name", "description", "sortOrder", "lineItems", "actualSpent",
		"estimatedTotal", "remainingBudget", "percentSpent", "variance", "variancePercent", "status"} {
		assert.Contains(t, shape.Trades[0], key)
	}
	lineItems := shape.Trades[0]["lineItems"].([]interface{})
	require.NotEmpty(t, lineItems)
	for _, key := range []string{"id", "description", "quantity", "unit", "materialCostEst", "laborCostEst",
		"equipmentCostEst", "markupPercent", "overheadPercent", "totalEstimate", "actualSpent", "percentComplete"} {
		assert.Contains(t, lineItems[0], key)
	}
	for _, key := range []string{"totalEstimated", "totalActual", "totalVariance", "variancePercent",
		"totalRemaining", "tradesOnBudget", "tradesOverBudget", "tradesUnderBudget", "percentComplete"} {
		assert.Contains(t, shape.Summary, key)
	}
	assert.NotContains(t, shape.Summary, "tradesNoEstimate")
}

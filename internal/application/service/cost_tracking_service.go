package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/garyjia/cost-reconciler/internal/application/port"
	"github.com/garyjia/cost-reconciler/internal/domain/entity"
	"github.com/garyjia/cost-reconciler/internal/domain/reconcile"
)

// LineItemCost is one estimate line item in the cost-tracking response
type LineItemCost struct {
	ID               int64   `json:"id"`
	Description      string  `json:"description"`
	Quantity         float64 `json:"quantity"`
	Unit             string  `json:"unit"`
	MaterialCostEst  float64 `json:"materialCostEst"`
	LaborCostEst     float64 `json:"laborCostEst"`
	EquipmentCostEst float64 `json:"equipmentCostEst"`
	MarkupPercent    float64 `json:"markupPercent"`
	OverheadPercent  float64 `json:"overheadPercent"`
	TotalEstimate    float64 `json:"totalEstimate"`
	ActualSpent      float64 `json:"actualSpent"`
	PercentComplete  float64 `json:"percentComplete"`
}

// TradeCost is one trade in the cost-tracking response
type TradeCost struct {
	ID              int64               `json:"id"`
	Name            string              `json:"name"`
	Description     string              `json:"description"`
	SortOrder       int                 `json:"sortOrder"`
	LineItems       []LineItemCost      `json:"lineItems"`
	ActualSpent     float64             `json:"actualSpent"`
	EstimatedTotal  float64             `json:"estimatedTotal"`
	RemainingBudget float64             `json:"remainingBudget"`
	PercentSpent    float64             `json:"percentSpent"`
	Variance        float64             `json:"variance"`
	VariancePercent float64             `json:"variancePercent"`
	Status          entity.BudgetStatus `json:"status"`
}

// CostSummary is the project-level total of the cost-tracking response
type CostSummary struct {
	TotalEstimated    float64 `json:"totalEstimated"`
	TotalActual       float64 `json:"totalActual"`
	TotalVariance     float64 `json:"totalVariance"`
	VariancePercent   float64 `json:"variancePercent"`
	TotalRemaining    float64 `json:"totalRemaining"`
	TradesOnBudget    int     `json:"tradesOnBudget"`
	TradesOverBudget  int     `json:"tradesOverBudget"`
	TradesUnderBudget int     `json:"tradesUnderBudget"`
	PercentComplete   float64 `json:"percentComplete"`
}

// CostTrackingResponse is the estimate-vs-actual view of a project
type CostTrackingResponse struct {
	Trades  []TradeCost `json:"trades"`
	Summary CostSummary `json:"summary"`
}

// CostTrackingService computes estimate-vs-actual figures on demand
type CostTrackingService interface {
	ComputeProjectCostTracking(ctx context.Context, projectID int64) (*CostTrackingResponse, error)
}

type costTrackingServiceImpl struct {
	projectRepo port.ProjectRepository
	tradeRepo   port.TradeRepository
	invoiceRepo port.InvoiceRepository
	txManager   port.TransactionManager
	logger      Logger
}

// NewCostTrackingService creates a new CostTrackingService
func NewCostTrackingService(
	projectRepo port.ProjectRepository,
	tradeRepo port.TradeRepository,
	invoiceRepo port.InvoiceRepository,
	txManager port.TransactionManager,
	logger Logger,
) CostTrackingService {
	return &costTrackingServiceImpl{
		projectRepo: projectRepo,
		tradeRepo:   tradeRepo,
		invoiceRepo: invoiceRepo,
		txManager:   txManager,
		logger:      logger,
	}
}

// ComputeProjectCostTracking reads the estimate tree and mapped actuals in one
// transaction so it never sees a half-committed change, then aggregates them.
// Results are not cached.
func (s *costTrackingServiceImpl) ComputeProjectCostTracking(ctx context.Context, projectID int64) (*CostTrackingResponse, error) {
	var trades []*entity.Trade
	var actuals []*entity.ActualLine

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		project, err := s.projectRepo.GetByID(txCtx, projectID)
		if err != nil {
			return fmt.Errorf("get project: %w", err)
		}
		if project == nil {
			return fmt.Errorf("%w: project %d", ErrNotFound, projectID)
		}

		trades, err = s.tradeRepo.ListByProject(txCtx, projectID)
		if err != nil {
			return fmt.Errorf("list trades: %w", err)
		}

		actuals, err = s.invoiceRepo.ListMappedActuals(txCtx, projectID)
		if err != nil {
			return fmt.Errorf("list actuals: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to compute cost tracking", "error", err, "project_id", projectID)
		return nil, err
	}

	return toCostTrackingResponse(reconcile.Compute(trades, actuals)), nil
}

// money rounds half away from zero to 2 decimals for presentation
func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func toCostTrackingResponse(tracking *reconcile.ProjectCostTracking) *CostTrackingResponse {
	resp := &CostTrackingResponse{
		Trades: make([]TradeCost, 0, len(tracking.Trades)),
	}

	for _, ts := range tracking.Trades {
		tc := TradeCost{
			ID:              ts.Trade.ID,
			Name:            ts.Trade.Name,
			Description:     ts.Trade.Description,
			SortOrder:       ts.Trade.SortOrder,
			LineItems:       make([]LineItemCost, 0, len(ts.LineItems)),
			ActualSpent:     money(ts.ActualSpent),
			EstimatedTotal:  money(ts.EstimatedTotal),
			RemainingBudget: money(ts.RemainingBudget),
			PercentSpent:    money(ts.PercentSpent),
			Variance:        money(ts.Variance),
			VariancePercent: money(ts.VariancePercent),
			Status:          ts.Status,
		}
		for _, li := range ts.LineItems {
			e := li.Estimate
			tc.LineItems = append(tc.LineItems, LineItemCost{
				ID:               e.ID,
				Description:      e.Description,
				Quantity:         e.Quantity.InexactFloat64(),
				Unit:             e.Unit,
				MaterialCostEst:  money(e.MaterialCostEst),
				LaborCostEst:     money(e.LaborCostEst),
				EquipmentCostEst: money(e.EquipmentCostEst),
				MarkupPercent:    money(e.MarkupPercent),
				OverheadPercent:  money(e.OverheadPercent),
				TotalEstimate:    money(li.EstimateTotal),
				ActualSpent:      money(li.ActualSpent),
				PercentComplete:  money(li.PercentComplete),
			})
		}
		resp.Trades = append(resp.Trades, tc)
	}

	sum := tracking.Summary
	resp.Summary = CostSummary{
		TotalEstimated:    money(sum.TotalEstimated),
		TotalActual:       money(sum.TotalActual),
		TotalVariance:     money(sum.TotalVariance),
		VariancePercent:   money(sum.VariancePercent),
		TotalRemaining:    money(sum.TotalRemaining),
		TradesOnBudget:    sum.TradesOnBudget,
		TradesOverBudget:  sum.TradesOverBudget,
		TradesUnderBudget: sum.TradesUnderBudget,
		PercentComplete:   money(sum.PercentComplete),
	}

	return resp
}

// Package reconcile compares actual spend against the estimate tree of a project.
package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/garyjia/cost-reconciler/internal/domain/entity"
)

var (
	hundred = decimal.NewFromInt(100)

	// OnBudgetBand is the absolute variance percentage still considered on budget
	OnBudgetBand = decimal.NewFromInt(5)
)

// LineItemSummary is the actual spend against one estimate line item
type LineItemSummary struct {
	Estimate        *entity.EstimateLineItem
	EstimateTotal   decimal.Decimal
	ActualSpent     decimal.Decimal
	PercentComplete decimal.Decimal // clamped to 100
}

// TradeSummary aggregates the line items of one trade
type TradeSummary struct {
	Trade           *entity.Trade
	LineItems       []LineItemSummary
	EstimatedTotal  decimal.Decimal
	ActualSpent     decimal.Decimal
	RemainingBudget decimal.Decimal
	PercentSpent    decimal.Decimal // not clamped
	Variance        decimal.Decimal
	VariancePercent decimal.Decimal
	Status          entity.BudgetStatus
}

// ProjectSummary aggregates all trades of a project
type ProjectSummary struct {
	TotalEstimated    decimal.Decimal
	TotalActual       decimal.Decimal
	TotalVariance     decimal.Decimal
	VariancePercent   decimal.Decimal
	TotalRemaining    decimal.Decimal
	PercentComplete   decimal.Decimal
	TradesOnBudget    int
	TradesOverBudget  int
	TradesUnderBudget int
	TradesNoEstimate  int
}

// ProjectCostTracking is the full estimate-vs-actual view of a project
type ProjectCostTracking struct {
	Trades  []TradeSummary
	Summary ProjectSummary
}

// Compute walks the trade tree and sums mapped actuals against it. Only lines
// whose invoice status counts toward actual spend contribute; lines mapped to an
// estimate line item outside trades are ignored. Trade order is preserved.
func Compute(trades []*entity.Trade, actuals []*entity.ActualLine) *ProjectCostTracking {
	spent := make(map[int64]decimal.Decimal)
	for _, a := range actuals {
		if !a.InvoiceStatus.CountsTowardActual() {
			continue
		}
		spent[a.EstimateLineItemID] = spent[a.EstimateLineItemID].Add(a.TotalPrice)
	}

	result := &ProjectCostTracking{Trades: make([]TradeSummary, 0, len(trades))}
	summary := &result.Summary

	for _, trade := range trades {
		ts := summarizeTrade(trade, spent)
		result.Trades = append(result.Trades, ts)

		summary.TotalEstimated = summary.TotalEstimated.Add(ts.EstimatedTotal)
		summary.TotalActual = summary.TotalActual.Add(ts.ActualSpent)

		switch ts.Status {
		case entity.BudgetStatusOnBudget:
			summary.TradesOnBudget++
		case entity.BudgetStatusOverBudget:
			summary.TradesOverBudget++
		case entity.BudgetStatusUnderBudget:
			summary.TradesUnderBudget++
		case entity.BudgetStatusNoEstimate:
			summary.TradesNoEstimate++
		}
	}

	summary.TotalVariance = summary.TotalActual.Sub(summary.TotalEstimated)
	summary.VariancePercent = percentOf(summary.TotalVariance, summary.TotalEstimated)
	summary.TotalRemaining = remaining(summary.TotalEstimated, summary.TotalActual)
	summary.PercentComplete = percentOf(summary.TotalActual, summary.TotalEstimated)

	return result
}

func summarizeTrade(trade *entity.Trade, spent map[int64]decimal.Decimal) TradeSummary {
	ts := TradeSummary{
		Trade:     trade,
		LineItems: make([]LineItemSummary, 0, len(trade.LineItems)),
	}

	for _, li := range trade.LineItems {
		total := li.EstimateTotal()
		actual := spent[li.ID]

		complete := percentOf(actual, total)
		if complete.GreaterThan(hundred) {
			complete = hundred
		}

		ts.LineItems = append(ts.LineItems, LineItemSummary{
			Estimate:        li,
			EstimateTotal:   total,
			ActualSpent:     actual,
			PercentComplete: complete,
		})
		ts.EstimatedTotal = ts.EstimatedTotal.Add(total)
		ts.ActualSpent = ts.ActualSpent.Add(actual)
	}

	ts.Variance = ts.ActualSpent.Sub(ts.EstimatedTotal)
	ts.VariancePercent = percentOf(ts.Variance, ts.EstimatedTotal)
	ts.PercentSpent = percentOf(ts.ActualSpent, ts.EstimatedTotal)
	ts.RemainingBudget = remaining(ts.EstimatedTotal, ts.ActualSpent)
	ts.Status = ClassifyBudget(ts.EstimatedTotal, ts.ActualSpent)

	return ts
}

// ClassifyBudget derives the budget status from an estimate and actual spend.
// The checks run in order: no estimate, within the on-budget band, over, under.
func ClassifyBudget(estimate, actual decimal.Decimal) entity.BudgetStatus {
	if estimate.IsZero() {
		return entity.BudgetStatusNoEstimate
	}
	variance := actual.Sub(estimate)
	if percentOf(variance, estimate).Abs().LessThanOrEqual(OnBudgetBand) {
		return entity.BudgetStatusOnBudget
	}
	if variance.IsPositive() {
		return entity.BudgetStatusOverBudget
	}
	return entity.BudgetStatusUnderBudget
}

// percentOf returns part/whole*100, or 0 when whole is 0
func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).Div(whole)
}

func remaining(estimate, actual decimal.Decimal) decimal.Decimal {
	return decimal.Max(estimate.Sub(actual), decimal.Zero)
}

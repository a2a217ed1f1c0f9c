package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Project is a construction project owning trades and invoices
type Project struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Trade is a cost category (Electrical, Plumbing, ...) within a project.
// LineItems keeps display order; totals do not depend on it.
type Trade struct {
	ID          int64               `json:"id"`
	ProjectID   int64               `json:"project_id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	SortOrder   int                 `json:"sort_order"`
	LineItems   []*EstimateLineItem `json:"line_items"`
	CreatedAt   time.Time           `json:"created_at"`
}

// EstimateTotal sums the estimate totals of the trade's line items
func (t *Trade) EstimateTotal() decimal.Decimal {
	total := decimal.Zero
	for _, li := range t.LineItems {
		total = total.Add(li.EstimateTotal())
	}
	return total
}

// EstimateLineItem is a budgeted unit of work
type EstimateLineItem struct {
	ID               int64           `json:"id"`
	TradeID          int64           `json:"trade_id"`
	Description      string          `json:"description"`
	Quantity         decimal.Decimal `json:"quantity"`
	Unit             string          `json:"unit"`
	MaterialCostEst  decimal.Decimal `json:"material_cost_est"`
	LaborCostEst     decimal.Decimal `json:"labor_cost_est"`
	EquipmentCostEst decimal.Decimal `json:"equipment_cost_est"`
	MarkupPercent    decimal.Decimal `json:"markup_percent"`
	OverheadPercent  decimal.Decimal `json:"overhead_percent"`
	SortOrder        int             `json:"sort_order"`
	CreatedAt        time.Time       `json:"created_at"`

	// Read projection, populated by project-wide listings
	ProjectID int64  `json:"project_id,omitempty"`
	TradeName string `json:"trade_name,omitempty"`
}

// Subtotal returns material + labor + equipment
func (e *EstimateLineItem) Subtotal() decimal.Decimal {
	return e.MaterialCostEst.Add(e.LaborCostEst).Add(e.EquipmentCostEst)
}

// EstimateTotal applies the line item's own markup and overhead to its subtotal:
// (material+labor+equipment) * (1 + markup/100 + overhead/100)
func (e *EstimateLineItem) EstimateTotal() decimal.Decimal {
	factor := decimal.NewFromInt(1).
		Add(e.MarkupPercent.Div(hundred)).
		Add(e.OverheadPercent.Div(hundred))
	return e.Subtotal().Mul(factor)
}

// Validate checks that every cost component is non-negative
func (e *EstimateLineItem) Validate() error {
	if strings.TrimSpace(e.Description) == "" {
		return fmt.Errorf("%w: estimate line item description is required", ErrInvalid)
	}
	fields := []struct {
		name  string
		value decimal.Decimal
	}{
		{"quantity", e.Quantity},
		{"material_cost_est", e.MaterialCostEst},
		{"labor_cost_est", e.LaborCostEst},
		{"equipment_cost_est", e.EquipmentCostEst},
		{"markup_percent", e.MarkupPercent},
		{"overhead_percent", e.OverheadPercent},
	}
	for _, f := range fields {
		if f.value.IsNegative() {
			return fmt.Errorf("%w: %s must be >= 0, got %s", ErrInvalid, f.name, f.value)
		}
	}
	return nil
}

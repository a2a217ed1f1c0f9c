package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultTotalTolerance is the accepted gap between totalPrice and quantity*unitPrice
var DefaultTotalTolerance = decimal.RequireFromString("0.01")

// Invoice is a supplier invoice billed against a project
type Invoice struct {
	ID            int64              `json:"id"`
	ProjectID     int64              `json:"project_id"`
	TradeID       *int64             `json:"trade_id,omitempty"` // trade the invoice was imported under, if known
	InvoiceNumber string             `json:"invoice_number"`
	SupplierName  string             `json:"supplier_name"`
	InvoiceDate   *time.Time         `json:"invoice_date,omitempty"`
	Status        InvoiceStatus      `json:"status"`
	LineItems     []*InvoiceLineItem `json:"line_items"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Validate checks the invoice header and all of its line items
func (i *Invoice) Validate(tolerance decimal.Decimal) error {
	if !i.Status.Valid() {
		return fmt.Errorf("%w: unknown invoice status %q", ErrInvalid, i.Status)
	}
	if len(i.LineItems) == 0 {
		return fmt.Errorf("%w: invoice has no line items", ErrInvalid)
	}
	for idx, li := range i.LineItems {
		if err := li.Validate(tolerance); err != nil {
			return fmt.Errorf("line item %d: %w", idx, err)
		}
	}
	return nil
}

// InvoiceLineItem is one billed charge on an invoice
type InvoiceLineItem struct {
	ID          int64           `json:"id"`
	InvoiceID   int64           `json:"invoice_id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	CreatedAt   time.Time       `json:"created_at"`

	// Read projection, populated by project-wide listings
	ProjectID     int64         `json:"project_id,omitempty"`
	ImportTradeID *int64        `json:"import_trade_id,omitempty"`
	InvoiceStatus InvoiceStatus `json:"invoice_status,omitempty"`
	Mapping       *Mapping      `json:"mapping,omitempty"`
}

// CheckTotal verifies totalPrice == quantity*unitPrice within tolerance
func (li *InvoiceLineItem) CheckTotal(tolerance decimal.Decimal) error {
	expected := li.Quantity.Mul(li.UnitPrice)
	if li.TotalPrice.Sub(expected).Abs().GreaterThan(tolerance) {
		return fmt.Errorf("%w: total_price %s does not match quantity*unit_price %s",
			ErrInvalid, li.TotalPrice.StringFixed(2), expected.StringFixed(2))
	}
	return nil
}

// Validate checks description, non-negative amounts and the total tolerance
func (li *InvoiceLineItem) Validate(tolerance decimal.Decimal) error {
	if strings.TrimSpace(li.Description) == "" {
		return fmt.Errorf("%w: invoice line item description is required", ErrInvalid)
	}
	if li.Quantity.IsNegative() || li.UnitPrice.IsNegative() || li.TotalPrice.IsNegative() {
		return fmt.Errorf("%w: invoice line item amounts must be >= 0", ErrInvalid)
	}
	return li.CheckTotal(tolerance)
}

// ActualLine is a mapped invoice line item as seen by the reconciliation aggregator
type ActualLine struct {
	InvoiceLineItemID  int64
	InvoiceID          int64
	EstimateLineItemID int64
	TotalPrice         decimal.Decimal
	InvoiceStatus      InvoiceStatus
}

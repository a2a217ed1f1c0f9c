package entity

import (
	"fmt"
	"time"
)

// Mapping associates one invoice line item with one estimate line item.
// At most one mapping exists per invoice line item.
type Mapping struct {
	InvoiceLineItemID  int64       `json:"invoice_line_item_id"`
	EstimateLineItemID int64       `json:"estimate_line_item_id"`
	Confidence         float64     `json:"confidence"`
	Method             MatchMethod `json:"method"`
	Reasoning          string      `json:"reasoning,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// Validate checks the confidence range and method
func (m *Mapping) Validate() error {
	if m.InvoiceLineItemID <= 0 || m.EstimateLineItemID <= 0 {
		return fmt.Errorf("%w: mapping requires both line item ids", ErrInvalid)
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0.0 and 1.0, got %.2f", ErrInvalid, m.Confidence)
	}
	if !m.Method.Valid() {
		return fmt.Errorf("%w: unknown match method %q", ErrInvalid, m.Method)
	}
	return nil
}

// MappingView is a mapping joined with its estimate line item's trade, for display
type MappingView struct {
	Mapping
	InvoiceID           int64  `json:"invoice_id"`
	InvoiceDescription  string `json:"invoice_description"`
	EstimateDescription string `json:"estimate_description"`
	TradeID             int64  `json:"trade_id"`
	TradeName           string `json:"trade_name"`
}

// MatchResult is the matcher's verdict for one invoice line item
type MatchResult struct {
	InvoiceLineID int64       `json:"invoiceLineId"`
	EstimateID    int64       `json:"estimateId"`
	Confidence    float64     `json:"confidence"`
	Method        MatchMethod `json:"method"`
	Reasoning     string      `json:"reasoning,omitempty"`
}

// MatchCorrection is an append-only record of a user correcting a match
type MatchCorrection struct {
	ID                int64     `json:"id"`
	ProjectID         int64     `json:"project_id"`
	InvoiceLineItemID int64     `json:"invoice_line_item_id"`
	OriginalField     string    `json:"original_field"`
	OriginalValue     string    `json:"original_value"`
	CorrectedValue    string    `json:"corrected_value"`
	CreatedAt         time.Time `json:"created_at"`
}

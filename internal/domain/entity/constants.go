package entity

// InvoiceStatus is the approval state of a supplier invoice
type InvoiceStatus string

// Invoice status constants
const (
	InvoiceStatusPending  InvoiceStatus = "PENDING"
	InvoiceStatusApproved InvoiceStatus = "APPROVED"
	InvoiceStatusPaid     InvoiceStatus = "PAID"
	InvoiceStatusRejected InvoiceStatus = "REJECTED"
	InvoiceStatusDisputed InvoiceStatus = "DISPUTED"
)

// Valid reports whether s is a known invoice status
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusApproved, InvoiceStatusPaid,
		InvoiceStatusRejected, InvoiceStatusDisputed:
		return true
	}
	return false
}

// CountsTowardActual reports whether line items of an invoice in this status
// contribute to actual spend. Only APPROVED and PAID invoices do.
func (s InvoiceStatus) CountsTowardActual() bool {
	return s == InvoiceStatusApproved || s == InvoiceStatusPaid
}

// AutoMatchable reports whether background matching picks up line items of an
// invoice in this status. Rejected and disputed invoices are left alone.
func (s InvoiceStatus) AutoMatchable() bool {
	return s == InvoiceStatusPending || s.CountsTowardActual()
}

// AutoMatchableStatuses lists every status for which AutoMatchable is true
func AutoMatchableStatuses() []InvoiceStatus {
	return []InvoiceStatus{InvoiceStatusPending, InvoiceStatusApproved, InvoiceStatusPaid}
}

// MatchMethod records how a mapping was produced
type MatchMethod string

// Match method constants (wire values consumed by the UI)
const (
	MatchMethodLogic  MatchMethod = "logic"  // heuristic stage
	MatchMethodLLM    MatchMethod = "llm"    // assisted classification
	MatchMethodManual MatchMethod = "manual" // user override
)

// Valid reports whether m is a known match method
func (m MatchMethod) Valid() bool {
	return m == MatchMethodLogic || m == MatchMethodLLM || m == MatchMethodManual
}

// BudgetStatus classifies actual spend against the estimate
type BudgetStatus string

// Budget status constants
const (
	BudgetStatusNoEstimate  BudgetStatus = "no_estimate"
	BudgetStatusOnBudget    BudgetStatus = "on_budget"
	BudgetStatusOverBudget  BudgetStatus = "over_budget"
	BudgetStatusUnderBudget BudgetStatus = "under_budget"
)

// Correction log field names
const (
	CorrectionFieldDescription = "description"
)

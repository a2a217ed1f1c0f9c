package port

import (
	"context"

	"github.com/garyjia/cost-reconciler/internal/domain/entity"
)

// ProjectRepository defines persistence operations for Project
type ProjectRepository interface {
	Create(ctx context.Context, project *entity.Project) error
	GetByID(ctx context.Context, id int64) (*entity.Project, error)

	// ListWithUnmappedLineItems returns ids of projects that have at least one
	// unmapped invoice line item on a PENDING, APPROVED or PAID invoice
	ListWithUnmappedLineItems(ctx context.Context) ([]int64, error)
}

// TradeRepository defines persistence operations for Trade
type TradeRepository interface {
	// Create inserts the trade and its line items
	Create(ctx context.Context, trade *entity.Trade) error
	GetByID(ctx context.Context, id int64) (*entity.Trade, error)

	// ListByProject returns the project's trades ordered by sort order, each with its line items
	ListByProject(ctx context.Context, projectID int64) ([]*entity.Trade, error)
}

// EstimateRepository defines persistence operations for EstimateLineItem
type EstimateRepository interface {
	// GetByID returns the line item with its project and trade name projection
	GetByID(ctx context.Context, id int64) (*entity.EstimateLineItem, error)

	// ListByProject returns every estimate line item of the project across all trades
	ListByProject(ctx context.Context, projectID int64) ([]*entity.EstimateLineItem, error)

	// Delete removes the line item; mappings referencing it are removed by cascade
	Delete(ctx context.Context, id int64) error
}

// InvoiceRepository defines persistence operations for Invoice and InvoiceLineItem
type InvoiceRepository interface {
	// Create inserts the invoice and its line items
	Create(ctx context.Context, invoice *entity.Invoice) error
	GetByID(ctx context.Context, id int64) (*entity.Invoice, error)
	UpdateStatus(ctx context.Context, id int64, status entity.InvoiceStatus) error

	// GetLineItem returns one line item with its project projection and mapping
	GetLineItem(ctx context.Context, id int64) (*entity.InvoiceLineItem, error)

	// ListLineItemsByProject returns line items of the project, optionally only unmapped ones
	ListLineItemsByProject(ctx context.Context, projectID int64, unmappedOnly bool) ([]*entity.InvoiceLineItem, error)

	// GetLineItemsByIDs returns the requested line items that belong to the project
	GetLineItemsByIDs(ctx context.Context, projectID int64, ids []int64) ([]*entity.InvoiceLineItem, error)

	// ListMappedActuals returns every mapped line item of the project regardless of invoice status
	ListMappedActuals(ctx context.Context, projectID int64) ([]*entity.ActualLine, error)
}

// MappingRepository defines persistence operations for Mapping
type MappingRepository interface {
	// Upsert atomically replaces or inserts the mapping of one invoice line item
	Upsert(ctx context.Context, mapping *entity.Mapping) error
	Delete(ctx context.Context, invoiceLineItemID int64) error
	GetByInvoiceLineItemID(ctx context.Context, invoiceLineItemID int64) (*entity.Mapping, error)
	ListViewsByInvoice(ctx context.Context, invoiceID int64) ([]*entity.MappingView, error)
}

// CorrectionRepository is the append-only log of manual match corrections
type CorrectionRepository interface {
	Append(ctx context.Context, correction *entity.MatchCorrection) error
	ListByProject(ctx context.Context, projectID int64) ([]*entity.MatchCorrection, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

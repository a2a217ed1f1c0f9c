package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/cost-reconciler/internal/application/port"
	"github.com/garyjia/cost-reconciler/internal/domain/entity"
	"github.com/garyjia/cost-reconciler/internal/infrastructure/persistence/sqlite"
)

// MappingRepository implements port.MappingRepository over line_item_mappings,
// whose primary key is the invoice line item id
type MappingRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMappingRepository creates a new mapping repository
func NewMappingRepository(db *sql.DB, logger *zap.Logger) port.MappingRepository {
	return &MappingRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert replaces or inserts the mapping in one statement; created_at of a
// replaced mapping is kept
func (r *MappingRepository) Upsert(ctx context.Context, m *entity.Mapping) error {
	now := time.Now()
	query := `
		INSERT INTO line_item_mappings (
			invoice_line_item_id, estimate_line_item_id, confidence, method, reasoning, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(invoice_line_item_id) DO UPDATE SET
			estimate_line_item_id = excluded.estimate_line_item_id,
			confidence = excluded.confidence,
			method = excluded.method,
			reasoning = excluded.reasoning,
			updated_at = excluded.updated_at
	`

	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		m.InvoiceLineItemID,
		m.EstimateLineItemID,
		m.Confidence,
		m.Method,
		m.Reasoning,
		now,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to upsert mapping",
			zap.Int64("invoice_line_item_id", m.InvoiceLineItemID),
			zap.Int64("estimate_line_item_id", m.EstimateLineItemID),
			zap.Error(err))
		return fmt.Errorf("failed to upsert mapping: %w", err)
	}

	m.UpdatedAt = now
	return nil
}

// Delete removes the mapping of an invoice line item
func (r *MappingRepository) Delete(ctx context.Context, invoiceLineItemID int64) error {
	_, err := r.getExecutor(ctx).ExecContext(ctx,
		`DELETE FROM line_item_mappings WHERE invoice_line_item_id = ?`, invoiceLineItemID)
	if err != nil {
		r.logger.Error("Failed to delete mapping", zap.Int64("invoice_line_item_id", invoiceLineItemID), zap.Error(err))
		return fmt.Errorf("failed to delete mapping: %w", err)
	}
	return nil
}

// GetByInvoiceLineItemID retrieves a mapping; it returns nil, nil when the item is unmapped
func (r *MappingRepository) GetByInvoiceLineItemID(ctx context.Context, invoiceLineItemID int64) (*entity.Mapping, error) {
	var m entity.Mapping
	err := r.getExecutor(ctx).QueryRowContext(ctx, `
		SELECT invoice_line_item_id, estimate_line_item_id, confidence, method, reasoning, created_at, updated_at
		FROM line_item_mappings WHERE invoice_line_item_id = ?`, invoiceLineItemID,
	).Scan(
		&m.InvoiceLineItemID,
		&m.EstimateLineItemID,
		&m.Confidence,
		&m.Method,
		&m.Reasoning,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get mapping", zap.Int64("invoice_line_item_id", invoiceLineItemID), zap.Error(err))
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}

	return &m, nil
}

// ListViewsByInvoice retrieves the invoice's mappings joined with estimate line item and trade
func (r *MappingRepository) ListViewsByInvoice(ctx context.Context, invoiceID int64) ([]*entity.MappingView, error) {
	rows, err := r.getExecutor(ctx).QueryContext(ctx, `
		SELECT
			m.invoice_line_item_id, m.estimate_line_item_id, m.confidence, m.method, m.reasoning,
			m.created_at, m.updated_at,
			li.invoice_id, li.description, e.description, t.id, t.name
		FROM line_item_mappings m
		JOIN invoice_line_items li ON li.id = m.invoice_line_item_id
		JOIN estimate_line_items e ON e.id = m.estimate_line_item_id
		JOIN trades t ON t.id = e.trade_id
		WHERE li.invoice_id = ?
		ORDER BY li.id`, invoiceID)
	if err != nil {
		r.logger.Error("Failed to list mappings", zap.Int64("invoice_id", invoiceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	defer rows.Close()

	views := []*entity.MappingView{}
	for rows.Next() {
		var v entity.MappingView
		if err := rows.Scan(
			&v.InvoiceLineItemID,
			&v.EstimateLineItemID,
			&v.Confidence,
			&v.Method,
			&v.Reasoning,
			&v.CreatedAt,
			&v.UpdatedAt,
			&v.InvoiceID,
			&v.InvoiceDescription,
			&v.EstimateDescription,
			&v.TradeID,
			&v.TradeName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		views = append(views, &v)
	}

	return views, rows.Err()
}

// getExecutor returns appropriate executor based on context
func (r *MappingRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.Conn(ctx, r.db)
}

// Verify interface compliance
var _ port.MappingRepository = (*MappingRepository)(nil)

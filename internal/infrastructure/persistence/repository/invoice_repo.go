package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/cost-reconciler/internal/application/port"
	"github.com/garyjia/cost-reconciler/internal/domain/entity"
	"github.com/garyjia/cost-reconciler/internal/infrastructure/persistence/sqlite"
)

// lineItemQuery selects invoice line items with their invoice projection and
// current mapping, if any
const lineItemQuery = `
	SELECT
		li.id, li.invoice_id, li.description, li.quantity, li.unit_price, li.total_price, li.created_at,
		i.project_id, i.trade_id, i.status,
		m.estimate_line_item_id, m.confidence, m.method, m.reasoning, m.created_at, m.updated_at
	FROM invoice_line_items li
	JOIN invoices i ON i.id = li.invoice_id
	LEFT JOIN line_item_mappings m ON m.invoice_line_item_id = li.id
`

func scanLineItem(s rowScanner) (*entity.InvoiceLineItem, error) {
	var li entity.InvoiceLineItem
	var tradeID, estimateID sql.NullInt64
	var confidence sql.NullFloat64
	var method, reasoning sql.NullString
	var mappedAt, remappedAt sql.NullTime

	err := s.Scan(
		&li.ID,
		&li.InvoiceID,
		&li.Description,
		&li.Quantity,
		&li.UnitPrice,
		&li.TotalPrice,
		&li.CreatedAt,
		&li.ProjectID,
		&tradeID,
		&li.InvoiceStatus,
		&estimateID,
		&confidence,
		&method,
		&reasoning,
		&mappedAt,
		&remappedAt,
	)
	if err != nil {
		return nil, err
	}

	if tradeID.Valid {
		li.ImportTradeID = &tradeID.Int64
	}
	if estimateID.Valid {
		li.Mapping = &entity.Mapping{
			InvoiceLineItemID:  li.ID,
			EstimateLineItemID: estimateID.Int64,
			Confidence:         confidence.Float64,
			Method:             entity.MatchMethod(method.String),
			Reasoning:          reasoning.String,
			CreatedAt:          mappedAt.Time,
			UpdatedAt:          remappedAt.Time,
		}
	}

	return &li, nil
}

// InvoiceRepository implements port.InvoiceRepository
type InvoiceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *sql.DB, logger *zap.Logger) port.InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts an invoice and its line items
func (r *InvoiceRepository) Create(ctx context.Context, invoice *entity.Invoice) error {
	now := time.Now()
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = now
	}
	if invoice.UpdatedAt.IsZero() {
		invoice.UpdatedAt = invoice.CreatedAt
	}

	exec := r.getExecutor(ctx)
	result, err := exec.ExecContext(ctx, `
		INSERT INTO invoices (
			project_id, trade_id, invoice_number, supplier_name, invoice_date, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ProjectID,
		invoice.TradeID,
		invoice.InvoiceNumber,
		invoice.SupplierName,
		invoice.InvoiceDate,
		invoice.Status,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create invoice", zap.Int64("project_id", invoice.ProjectID), zap.Error(err))
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	if invoice.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	for _, li := range invoice.LineItems {
		if li.CreatedAt.IsZero() {
			li.CreatedAt = now
		}
		li.InvoiceID = invoice.ID
		li.ProjectID = invoice.ProjectID
		li.ImportTradeID = invoice.TradeID
		li.InvoiceStatus = invoice.Status

		result, err := exec.ExecContext(ctx, `
			INSERT INTO invoice_line_items (invoice_id, description, quantity, unit_price, total_price, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			li.InvoiceID, li.Description, li.Quantity, li.UnitPrice, li.TotalPrice, li.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to create invoice line item", zap.Int64("invoice_id", invoice.ID), zap.Error(err))
			return fmt.Errorf("failed to create invoice line item: %w", err)
		}
		if li.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
	}

	return nil
}

// GetByID retrieves an invoice with its line items; it returns nil, nil when none exists
func (r *InvoiceRepository) GetByID(ctx context.Context, id int64) (*entity.Invoice, error) {
	var inv entity.Invoice
	var tradeID sql.NullInt64
	var invoiceDate sql.NullTime

	err := r.getExecutor(ctx).QueryRowContext(ctx, `
		SELECT id, project_id, trade_id, invoice_number, supplier_name, invoice_date, status, created_at, updated_at
		FROM invoices WHERE id = ?`, id,
	).Scan(
		&inv.ID,
		&inv.ProjectID,
		&tradeID,
		&inv.InvoiceNumber,
		&inv.SupplierName,
		&invoiceDate,
		&inv.Status,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get invoice by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	if tradeID.Valid {
		inv.TradeID = &tradeID.Int64
	}
	if invoiceDate.Valid {
		inv.InvoiceDate = &invoiceDate.Time
	}

	inv.LineItems, err = r.queryLineItems(ctx, lineItemQuery+` WHERE li.invoice_id = ? ORDER BY li.id`, id)
	if err != nil {
		return nil, err
	}

	return &inv, nil
}

// UpdateStatus changes an invoice's status
func (r *InvoiceRepository) UpdateStatus(ctx context.Context, id int64, status entity.InvoiceStatus) error {
	_, err := r.getExecutor(ctx).ExecContext(ctx,
		`UPDATE invoices SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), id,
	)
	if err != nil {
		r.logger.Error("Failed to update invoice status", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to update invoice status: %w", err)
	}
	return nil
}

// GetLineItem retrieves one invoice line item; it returns nil, nil when none exists
func (r *InvoiceRepository) GetLineItem(ctx context.Context, id int64) (*entity.InvoiceLineItem, error) {
	li, err := scanLineItem(r.getExecutor(ctx).QueryRowContext(ctx, lineItemQuery+` WHERE li.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get invoice line item", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get invoice line item: %w", err)
	}
	return li, nil
}

// ListLineItemsByProject retrieves the project's invoice line items ordered by id
func (r *InvoiceRepository) ListLineItemsByProject(ctx context.Context, projectID int64, unmappedOnly bool) ([]*entity.InvoiceLineItem, error) {
	query := lineItemQuery + ` WHERE i.project_id = ?`
	if unmappedOnly {
		query += ` AND m.invoice_line_item_id IS NULL`
	}
	query += ` ORDER BY li.id`

	return r.queryLineItems(ctx, query, projectID)
}

// GetLineItemsByIDs retrieves the requested line items that belong to the project
func (r *InvoiceRepository) GetLineItemsByIDs(ctx context.Context, projectID int64, ids []int64) ([]*entity.InvoiceLineItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, projectID)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	query := lineItemQuery + ` WHERE i.project_id = ? AND li.id IN (` + placeholders + `) ORDER BY li.id`
	return r.queryLineItems(ctx, query, args...)
}

// ListMappedActuals retrieves every mapped line item of the project with its invoice status
func (r *InvoiceRepository) ListMappedActuals(ctx context.Context, projectID int64) ([]*entity.ActualLine, error) {
	rows, err := r.getExecutor(ctx).QueryContext(ctx, `
		SELECT li.id, li.invoice_id, m.estimate_line_item_id, li.total_price, i.status
		FROM line_item_mappings m
		JOIN invoice_line_items li ON li.id = m.invoice_line_item_id
		JOIN invoices i ON i.id = li.invoice_id
		WHERE i.project_id = ?
		ORDER BY li.id`, projectID)
	if err != nil {
		r.logger.Error("Failed to list mapped actuals", zap.Int64("project_id", projectID), zap.Error(err))
		return nil, fmt.Errorf("failed to list mapped actuals: %w", err)
	}
	defer rows.Close()

	var lines []*entity.ActualLine
	for rows.Next() {
		var a entity.ActualLine
		if err := rows.Scan(&a.InvoiceLineItemID, &a.InvoiceID, &a.EstimateLineItemID, &a.TotalPrice, &a.InvoiceStatus); err != nil {
			return nil, fmt.Errorf("failed to scan mapped actual: %w", err)
		}
		lines = append(lines, &a)
	}

	return lines, rows.Err()
}

func (r *InvoiceRepository) queryLineItems(ctx context.Context, query string, args ...interface{}) ([]*entity.InvoiceLineItem, error) {
	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query invoice line items", zap.Error(err))
		return nil, fmt.Errorf("failed to query invoice line items: %w", err)
	}
	defer rows.Close()

	items := []*entity.InvoiceLineItem{}
	for rows.Next() {
		li, err := scanLineItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice line item: %w", err)
		}
		items = append(items, li)
	}

	return items, rows.Err()
}

// getExecutor returns appropriate executor based on context
func (r *InvoiceRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.Conn(ctx, r.db)
}

// Verify interface compliance
var _ port.InvoiceRepository = (*InvoiceRepository)(nil)

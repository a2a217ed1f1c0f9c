package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/cost-reconciler/internal/application/port"
	"github.com/garyjia/cost-reconciler/internal/domain/entity"
	"github.com/garyjia/cost-reconciler/internal/infrastructure/persistence/sqlite"
)

// estimateColumns selects an estimate line item with its project and trade name
const estimateColumns = `
	e.id, e.trade_id, e.description, e.quantity, e.unit,
	e.material_cost_est, e.labor_cost_est, e.equipment_cost_est,
	e.markup_percent, e.overhead_percent, e.sort_order, e.created_at,
	t.project_id, t.name
`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEstimate(s rowScanner) (*entity.EstimateLineItem, error) {
	var e entity.EstimateLineItem
	err := s.Scan(
		&e.ID,
		&e.TradeID,
		&e.Description,
		&e.Quantity,
		&e.Unit,
		&e.MaterialCostEst,
		&e.LaborCostEst,
		&e.EquipmentCostEst,
		&e.MarkupPercent,
		&e.OverheadPercent,
		&e.SortOrder,
		&e.CreatedAt,
		&e.ProjectID,
		&e.TradeName,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// EstimateRepository implements port.EstimateRepository
type EstimateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEstimateRepository creates a new estimate line item repository
func NewEstimateRepository(db *sql.DB, logger *zap.Logger) port.EstimateRepository {
	return &EstimateRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves an estimate line item by ID; it returns nil, nil when none exists
func (r *EstimateRepository) GetByID(ctx context.Context, id int64) (*entity.EstimateLineItem, error) {
	query := `SELECT ` + estimateColumns + `
		FROM estimate_line_items e
		JOIN trades t ON t.id = e.trade_id
		WHERE e.id = ?`

	est, err := scanEstimate(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get estimate line item by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get estimate line item: %w", err)
	}

	return est, nil
}

// ListByProject retrieves every estimate line item of a project in display order
func (r *EstimateRepository) ListByProject(ctx context.Context, projectID int64) ([]*entity.EstimateLineItem, error) {
	query := `SELECT ` + estimateColumns + `
		FROM estimate_line_items e
		JOIN trades t ON t.id = e.trade_id
		WHERE t.project_id = ?
		ORDER BY t.sort_order, t.id, e.sort_order, e.id`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, projectID)
	if err != nil {
		r.logger.Error("Failed to list estimate line items", zap.Int64("project_id", projectID), zap.Error(err))
		return nil, fmt.Errorf("failed to list estimate line items: %w", err)
	}
	defer rows.Close()

	var items []*entity.EstimateLineItem
	for rows.Next() {
		est, err := scanEstimate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan estimate line item: %w", err)
		}
		items = append(items, est)
	}

	return items, rows.Err()
}

// Delete removes an estimate line item. Mappings referencing it are removed by
// ON DELETE CASCADE, leaving the invoice line items unmapped.
func (r *EstimateRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.getExecutor(ctx).ExecContext(ctx, `DELETE FROM estimate_line_items WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete estimate line item", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete estimate line item: %w", err)
	}
	return nil
}

// getExecutor returns appropriate executor based on context
func (r *EstimateRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.Conn(ctx, r.db)
}

// Verify interface compliance
var _ port.EstimateRepository = (*EstimateRepository)(nil)

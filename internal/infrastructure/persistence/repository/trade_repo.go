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

// TradeRepository implements port.TradeRepository
type TradeRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTradeRepository creates a new trade repository
func NewTradeRepository(db *sql.DB, logger *zap.Logger) port.TradeRepository {
	return &TradeRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a trade and its estimate line items. Callers wrap it in a
// transaction so a failed line item leaves no partial trade behind.
func (r *TradeRepository) Create(ctx context.Context, trade *entity.Trade) error {
	now := time.Now()
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = now
	}

	exec := r.getExecutor(ctx)
	result, err := exec.ExecContext(ctx, `
		INSERT INTO trades (project_id, name, description, sort_order, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		trade.ProjectID, trade.Name, trade.Description, trade.SortOrder, trade.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create trade", zap.Int64("project_id", trade.ProjectID), zap.Error(err))
		return fmt.Errorf("failed to create trade: %w", err)
	}

	trade.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	query := `
		INSERT INTO estimate_line_items (
			trade_id, description, quantity, unit, material_cost_est, labor_cost_est,
			equipment_cost_est, markup_percent, overhead_percent, sort_order, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i, li := range trade.LineItems {
		if li.CreatedAt.IsZero() {
			li.CreatedAt = now
		}
		if li.SortOrder == 0 {
			li.SortOrder = i
		}
		li.TradeID = trade.ID
		li.ProjectID = trade.ProjectID
		li.TradeName = trade.Name

		result, err := exec.ExecContext(ctx, query,
			li.TradeID,
			li.Description,
			li.Quantity,
			li.Unit,
			li.MaterialCostEst,
			li.LaborCostEst,
			li.EquipmentCostEst,
			li.MarkupPercent,
			li.OverheadPercent,
			li.SortOrder,
			li.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to create estimate line item", zap.Int64("trade_id", trade.ID), zap.Error(err))
			return fmt.Errorf("failed to create estimate line item: %w", err)
		}
		if li.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
	}

	return nil
}

// GetByID retrieves a trade header by ID; it returns nil, nil when none exists
func (r *TradeRepository) GetByID(ctx context.Context, id int64) (*entity.Trade, error) {
	var t entity.Trade
	err := r.getExecutor(ctx).QueryRowContext(ctx, `
		SELECT id, project_id, name, description, sort_order, created_at
		FROM trades WHERE id = ?`, id,
	).Scan(&t.ID, &t.ProjectID, &t.Name, &t.Description, &t.SortOrder, &t.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get trade by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}

	return &t, nil
}

// ListByProject retrieves the project's trades in display order with their line items
func (r *TradeRepository) ListByProject(ctx context.Context, projectID int64) ([]*entity.Trade, error) {
	exec := r.getExecutor(ctx)

	rows, err := exec.QueryContext(ctx, `
		SELECT id, project_id, name, description, sort_order, created_at
		FROM trades
		WHERE project_id = ?
		ORDER BY sort_order, id`, projectID)
	if err != nil {
		r.logger.Error("Failed to list trades", zap.Int64("project_id", projectID), zap.Error(err))
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}

	var trades []*entity.Trade
	byID := make(map[int64]*entity.Trade)
	for rows.Next() {
		var t entity.Trade
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Description, &t.SortOrder, &t.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.LineItems = []*entity.EstimateLineItem{}
		trades = append(trades, &t)
		byID[t.ID] = &t
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	itemRows, err := exec.QueryContext(ctx, `SELECT `+estimateColumns+`
		FROM estimate_line_items e
		JOIN trades t ON t.id = e.trade_id
		WHERE t.project_id = ?
		ORDER BY e.sort_order, e.id`, projectID)
	if err != nil {
		r.logger.Error("Failed to list estimate line items", zap.Int64("project_id", projectID), zap.Error(err))
		return nil, fmt.Errorf("failed to list estimate line items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		est, err := scanEstimate(itemRows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan estimate line item: %w", err)
		}
		if t, ok := byID[est.TradeID]; ok {
			t.LineItems = append(t.LineItems, est)
		}
	}

	return trades, itemRows.Err()
}

// getExecutor returns appropriate executor based on context
func (r *TradeRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.Conn(ctx, r.db)
}

// Verify interface compliance
var _ port.TradeRepository = (*TradeRepository)(nil)

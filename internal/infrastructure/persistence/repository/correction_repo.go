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

// CorrectionRepository implements port.CorrectionRepository. The log is
// append-only: there is no update or delete.
type CorrectionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCorrectionRepository creates a new correction log repository
func NewCorrectionRepository(db *sql.DB, logger *zap.Logger) port.CorrectionRepository {
	return &CorrectionRepository{
		db:     db,
		logger: logger,
	}
}

// Append records a correction
func (r *CorrectionRepository) Append(ctx context.Context, c *entity.MatchCorrection) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	result, err := r.getExecutor(ctx).ExecContext(ctx, `
		INSERT INTO match_corrections (
			project_id, invoice_line_item_id, original_field, original_value, corrected_value, created_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ProjectID, c.InvoiceLineItemID, c.OriginalField, c.OriginalValue, c.CorrectedValue, c.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to append correction", zap.Int64("invoice_line_item_id", c.InvoiceLineItemID), zap.Error(err))
		return fmt.Errorf("failed to append correction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	c.ID = id
	return nil
}

// ListByProject retrieves a project's corrections oldest first
func (r *CorrectionRepository) ListByProject(ctx context.Context, projectID int64) ([]*entity.MatchCorrection, error) {
	rows, err := r.getExecutor(ctx).QueryContext(ctx, `
		SELECT id, project_id, invoice_line_item_id, original_field, original_value, corrected_value, created_at
		FROM match_corrections
		WHERE project_id = ?
		ORDER BY id`, projectID)
	if err != nil {
		r.logger.Error("Failed to list corrections", zap.Int64("project_id", projectID), zap.Error(err))
		return nil, fmt.Errorf("failed to list corrections: %w", err)
	}
	defer rows.Close()

	var corrections []*entity.MatchCorrection
	for rows.Next() {
		var c entity.MatchCorrection
		if err := rows.Scan(
			&c.ID,
			&c.ProjectID,
			&c.InvoiceLineItemID,
			&c.OriginalField,
			&c.OriginalValue,
			&c.CorrectedValue,
			&c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan correction: %w", err)
		}
		corrections = append(corrections, &c)
	}

	return corrections, rows.Err()
}

// getExecutor returns appropriate executor based on context
func (r *CorrectionRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.Conn(ctx, r.db)
}

// Verify interface compliance
var _ port.CorrectionRepository = (*CorrectionRepository)(nil)

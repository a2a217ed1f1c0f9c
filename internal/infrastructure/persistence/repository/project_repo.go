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

// ProjectRepository implements port.ProjectRepository
type ProjectRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(db *sql.DB, logger *zap.Logger) port.ProjectRepository {
	return &ProjectRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new project
func (r *ProjectRepository) Create(ctx context.Context, project *entity.Project) error {
	if project.CreatedAt.IsZero() {
		project.CreatedAt = time.Now()
	}

	result, err := r.getExecutor(ctx).ExecContext(ctx,
		`INSERT INTO projects (name, created_at) VALUES (?, ?)`,
		project.Name, project.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create project", zap.Error(err))
		return fmt.Errorf("failed to create project: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	project.ID = id
	return nil
}

// GetByID retrieves a project by ID; it returns nil, nil when none exists
func (r *ProjectRepository) GetByID(ctx context.Context, id int64) (*entity.Project, error) {
	var project entity.Project
	err := r.getExecutor(ctx).QueryRowContext(ctx,
		`SELECT id, name, created_at FROM projects WHERE id = ?`, id,
	).Scan(&project.ID, &project.Name, &project.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get project by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return &project, nil
}

// ListWithUnmappedLineItems returns projects with unmapped line items on auto-matchable invoices
func (r *ProjectRepository) ListWithUnmappedLineItems(ctx context.Context) ([]int64, error) {
	statuses := entity.AutoMatchableStatuses()
	args := make([]interface{}, 0, len(statuses))
	for _, st := range statuses {
		args = append(args, st)
	}

	query := `
		SELECT DISTINCT i.project_id
		FROM invoice_line_items li
		JOIN invoices i ON i.id = li.invoice_id
		LEFT JOIN line_item_mappings m ON m.invoice_line_item_id = li.id
		WHERE m.invoice_line_item_id IS NULL
			AND i.status IN (` + strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",") + `)
		ORDER BY i.project_id
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list projects with unmapped line items", zap.Error(err))
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan project id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// getExecutor returns appropriate executor based on context
func (r *ProjectRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.Conn(ctx, r.db)
}

// Verify interface compliance
var _ port.ProjectRepository = (*ProjectRepository)(nil)

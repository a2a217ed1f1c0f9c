package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ErrSchemaTooNew is returned when the database was migrated by a newer binary
var ErrSchemaTooNew = errors.New("database schema is newer than this binary")

// Migration is one numbered schema change, loaded from NNN_name.sql
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrator applies pending migrations and records them in schema_migrations
type Migrator struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMigrator creates a new migrator
func NewMigrator(db *sql.DB, logger *zap.Logger) *Migrator {
	return &Migrator{
		db:     db,
		logger: logger,
	}
}

// MigrateDir applies the pending migrations found in a directory
func (m *Migrator) MigrateDir(ctx context.Context, dir string) (int, error) {
	m.logger.Info("Loading migrations from directory", zap.String("dir", dir))
	return m.Migrate(ctx, os.DirFS(dir))
}

// Migrate applies the pending migrations of fsys in version order, each in
// its own transaction, and returns how many it applied
func (m *Migrator) Migrate(ctx context.Context, fsys fs.FS) (int, error) {
	if _, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	available, err := LoadMigrations(fsys)
	if err != nil {
		return 0, err
	}

	current, err := m.Version(ctx)
	if err != nil {
		return 0, err
	}
	if n := len(available); n > 0 && current > available[n-1].Version {
		return 0, fmt.Errorf("%w: database at version %d, newest known %d",
			ErrSchemaTooNew, current, available[n-1].Version)
	}

	applied := 0
	for _, mig := range available {
		if mig.Version <= current {
			continue
		}
		m.logger.Info("Applying migration", zap.Int("version", mig.Version), zap.String("name", mig.Name))
		if err := m.apply(ctx, mig); err != nil {
			return applied, fmt.Errorf("failed to apply migration %d: %w", mig.Version, err)
		}
		applied++
	}

	m.logger.Info("Database migrations completed",
		zap.Int("applied", applied),
		zap.Int("available", len(available)))
	return applied, nil
}

// Version returns the highest applied migration version, 0 for a fresh database
func (m *Migrator) Version(ctx context.Context) (int, error) {
	var version sql.NullInt64
	if err := m.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(version.Int64), nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, mig.Version, mig.Name); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}

// LoadMigrations reads every .sql file at the root of fsys. File names must
// start with a unique version number, e.g. 001_initial_schema.sql.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		filename := entry.Name()
		if entry.IsDir() || path.Ext(filename) != ".sql" {
			continue
		}

		prefix, name, _ := strings.Cut(strings.TrimSuffix(filename, ".sql"), "_")
		version, err := strconv.Atoi(prefix)
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("invalid migration filename %q", filename)
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations %q and %q share version %d", other, filename, version)
		}
		seen[version] = filename

		content, err := fs.ReadFile(fsys, filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", filename, err)
		}
		migrations = append(migrations, Migration{Version: version, Name: name, SQL: string(content)})
	}

	slices.SortFunc(migrations, func(a, b Migration) int { return a.Version - b.Version })
	return migrations, nil
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Config holds database configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DB is an open reconciliation database
type DB struct {
	*sql.DB
	path   string
	logger *zap.Logger
}

// DSN builds the connection string. Every pooled connection gets WAL mode, a
// busy timeout and foreign key enforcement; the mapping cascades need the last.
func DSN(path string) string {
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
}

// Open opens or creates the database file, creating its directory first
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*DB, error) {
	if cfg.Path == "" {
		return nil, errors.New("database path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", DSN(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := checkConnection(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	logger.Info("Database connection established",
		zap.String("path", cfg.Path),
		zap.Int("max_open_conns", cfg.MaxOpenConns))
	return &DB{DB: sqlDB, path: cfg.Path, logger: logger}, nil
}

func checkConnection(ctx context.Context, db *sql.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	var enforced int
	if err := db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&enforced); err != nil {
		return fmt.Errorf("failed to read foreign_keys pragma: %w", err)
	}
	if enforced != 1 {
		return errors.New("sqlite foreign keys are not enforced")
	}
	return nil
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// Close closes the connection pool
func (db *DB) Close() error {
	db.logger.Info("Closing database connection", zap.String("path", db.path))
	return db.DB.Close()
}

// IsBusy reports whether err is SQLite refusing a lock another connection holds
func IsBusy(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}

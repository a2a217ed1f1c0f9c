package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/cost-reconciler/internal/application/port"
	"github.com/garyjia/cost-reconciler/pkg/database"
)

type txKey struct{}

// Default busy retry policy. SQLite allows one writer; a batch commit and an
// HTTP assignment can meet past the busy timeout.
const (
	DefaultBusyRetries = 3
	DefaultBusyBackoff = 25 * time.Millisecond
)

// TxManager implements port.TransactionManager over one connection pool.
// Nested calls and every repository statement join the transaction carried
// by the context.
type TxManager struct {
	db      *sql.DB
	logger  *zap.Logger
	retries int
	backoff time.Duration
}

// NewTxManager creates a transaction manager with the default busy retry policy
func NewTxManager(db *sql.DB, logger *zap.Logger) *TxManager {
	return &TxManager{
		db:      db,
		logger:  logger,
		retries: DefaultBusyRetries,
		backoff: DefaultBusyBackoff,
	}
}

// WithBusyRetry overrides how often a transaction failing with SQLITE_BUSY is
// rerun and the initial backoff, which doubles per attempt
func (m *TxManager) WithBusyRetry(retries int, backoff time.Duration) *TxManager {
	m.retries = retries
	m.backoff = backoff
	return m
}

// WithTransaction runs fn in a transaction. An enclosing transaction is
// joined instead; only the outermost call commits or retries.
func (m *TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if extractTx(ctx) != nil {
		return fn(ctx)
	}

	for attempt := 0; ; attempt++ {
		err := m.run(ctx, fn)
		if err == nil || !database.IsBusy(err) || attempt >= m.retries {
			return err
		}

		wait := m.backoff << attempt
		m.logger.Warn("Database busy, retrying transaction",
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return err
		case <-time.After(wait):
		}
	}
}

func (m *TxManager) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			m.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				m.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func extractTx(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

// Executor is the statement surface shared by *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Conn returns the transaction on ctx, or db outside one
func Conn(ctx context.Context, db *sql.DB) Executor {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return db
}

var _ port.TransactionManager = (*TxManager)(nil)

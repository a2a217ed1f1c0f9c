package container

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/cost-reconciler/internal/application/port"
	"github.com/garyjia/cost-reconciler/internal/application/service"
	"github.com/garyjia/cost-reconciler/internal/config"
	"github.com/garyjia/cost-reconciler/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/cost-reconciler/internal/infrastructure/worker"
)

// Container manages all application dependencies and lifecycle.
// Components start in dependency order and close in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Infrastructure
	sqlDB        *sql.DB
	db           *sqlite.TxManager
	repositories *RepositoryBundle
	locks        *LockBundle
	classifier   port.Classifier

	// Application
	services *ServiceBundle
	workers  *worker.WorkerManager

	// Lifecycle
	mu     sync.Mutex
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Project    port.ProjectRepository
	Trade      port.TradeRepository
	Estimate   port.EstimateRepository
	Invoice    port.InvoiceRepository
	Mapping    port.MappingRepository
	Correction port.CorrectionRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Matching     service.MatchingService
	Mapping      service.MappingService
	CostTracking service.CostTrackingService
	Ingestion    service.IngestionService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
	Workers    []worker.Status            `json:"workers,omitempty"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components. Workers are started only when
// startWorkers is set, so one-shot CLI commands can share the wiring.
func (c *Container) Start(ctx context.Context, startWorkers bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization")

	dbBundle, err := ProvideDatabase(ctx, &c.config.Database, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.sqlDB = dbBundle.SqlDB
	c.db = dbBundle.TransactionMgr

	if c.repositories, err = ProvideRepositories(c.sqlDB, c.logger); err != nil {
		return c.abort(fmt.Errorf("failed to initialize repositories: %w", err))
	}
	c.logger.Info("Database initialized", zap.String("path", c.config.Database.Path))

	if c.locks, err = ProvideLocker(ctx, &c.config.Lock, c.logger); err != nil {
		return c.abort(fmt.Errorf("failed to initialize item locker: %w", err))
	}

	if c.classifier, err = ProvideClassifier(&c.config.OpenAI, c.logger); err != nil {
		return c.abort(fmt.Errorf("failed to initialize classifier: %w", err))
	}

	c.services, err = ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Locker:     c.locks.Locker,
		Classifier: c.classifier,
		Matching:   &c.config.Matching,
		Logger:     c.logger,
	})
	if err != nil {
		return c.abort(fmt.Errorf("failed to initialize services: %w", err))
	}
	c.logger.Info("Services initialized", zap.Bool("classifier_enabled", c.classifier != nil))

	c.workers = ProvideWorkers(&c.config.Worker, c.repositories, c.services, c.logger)
	if startWorkers {
		if err := c.workers.StartAll(ctx); err != nil {
			return c.abort(fmt.Errorf("failed to start workers: %w", err))
		}
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// abort releases what Start opened so far
func (c *Container) abort(err error) error {
	if c.locks != nil {
		_ = c.locks.Close()
	}
	if c.sqlDB != nil {
		_ = c.sqlDB.Close()
	}
	return err
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}

	if c.locks != nil {
		if err := c.locks.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close locker: %w", err))
		}
	}

	if c.sqlDB != nil {
		if err := c.sqlDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if err := errors.Join(errs...); err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	switch {
	case c.sqlDB == nil:
		status.Components["database"] = ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	default:
		if err := c.sqlDB.PingContext(ctx); err != nil {
			status.Components["database"] = ComponentHealth{Healthy: false, Message: fmt.Sprintf("ping failed: %v", err)}
			status.Overall = false
		} else {
			status.Components["database"] = ComponentHealth{Healthy: true}
		}
	}

	if c.classifier != nil {
		status.Components["classifier"] = ComponentHealth{Healthy: true}
	} else {
		status.Components["classifier"] = ComponentHealth{Healthy: true, Message: "disabled, heuristic-only"}
	}

	if c.workers != nil {
		status.Workers = c.workers.Statuses()
	}

	return status
}

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns the repository bundle.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Services returns the service bundle.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Classifier returns the configured classifier, nil when disabled.
func (c *Container) Classifier() port.Classifier {
	return c.classifier
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// Logger returns the logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the service.Logger interface.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

// NewServiceLogger adapts logger to the key/value Logger used by services and handlers.
func NewServiceLogger(logger *zap.Logger) service.Logger {
	return &zapLoggerAdapter{logger: logger.WithOptions(zap.AddCallerSkip(1))}
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields. Errors keep
// zap's error encoding.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, ok := keysAndValues[i+1].(error); ok {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}

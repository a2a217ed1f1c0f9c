package container

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/cost-reconciler/internal/application/port"
	"github.com/garyjia/cost-reconciler/internal/application/service"
	"github.com/garyjia/cost-reconciler/internal/config"
	"github.com/garyjia/cost-reconciler/internal/infrastructure/external/openai"
	"github.com/garyjia/cost-reconciler/internal/infrastructure/lock"
	"github.com/garyjia/cost-reconciler/internal/infrastructure/persistence/repository"
	"github.com/garyjia/cost-reconciler/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/cost-reconciler/internal/infrastructure/worker"
	"github.com/garyjia/cost-reconciler/internal/matching"
	"github.com/garyjia/cost-reconciler/migrations"
	"github.com/garyjia/cost-reconciler/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	SqlDB          *sql.DB
	TransactionMgr *sqlite.TxManager
}

// LockBundle holds the item locker and its cleanup.
type LockBundle struct {
	Locker port.ItemLocker
	Close  func() error
}

// ProvideDatabase opens the SQLite database and applies pending migrations,
// from MigrationsDir when set or the embedded set otherwise.
func ProvideDatabase(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.Open(ctx, database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator := database.NewMigrator(db.DB, logger)
	if cfg.MigrationsDir != "" {
		_, err = migrator.MigrateDir(ctx, cfg.MigrationsDir)
	} else {
		_, err = migrator.Migrate(ctx, migrations.FS)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		SqlDB:          db.DB,
		TransactionMgr: sqlite.NewTxManager(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Project:    repository.NewProjectRepository(sqlDB, logger),
		Trade:      repository.NewTradeRepository(sqlDB, logger),
		Estimate:   repository.NewEstimateRepository(sqlDB, logger),
		Invoice:    repository.NewInvoiceRepository(sqlDB, logger),
		Mapping:    repository.NewMappingRepository(sqlDB, logger),
		Correction: repository.NewCorrectionRepository(sqlDB, logger),
	}, nil
}

// ProvideLocker creates the per-item locker selected by lock.backend.
func ProvideLocker(ctx context.Context, cfg *config.LockConfig, logger *zap.Logger) (*LockBundle, error) {
	switch cfg.Backend {
	case config.LockBackendRedis:
		rl, err := lock.NewRedisLocker(ctx, lock.RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.KeyPrefix,
			TTL:       cfg.TTL,
		}, logger)
		if err != nil {
			return nil, err
		}
		return &LockBundle{Locker: rl, Close: rl.Close}, nil
	case config.LockBackendMemory, "":
		return &LockBundle{Locker: lock.NewKeyedLocker(), Close: func() error { return nil }}, nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.Backend)
	}
}

// ProvideClassifier creates the OpenAI classifier. It returns a nil
// port.Classifier when no API key is configured.
func ProvideClassifier(cfg *config.OpenAIConfig, logger *zap.Logger) (port.Classifier, error) {
	if !cfg.Enabled() {
		logger.Info("OpenAI API key not set, matching runs heuristic-only")
		return nil, nil
	}

	prompts, err := openai.LoadPrompts(cfg.PromptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}

	logger.Info("OpenAI classifier initialized", zap.String("model", cfg.Model))
	return openai.NewClassifier(openai.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
	}, prompts, logger), nil
}

// ServiceDeps holds dependencies for service creation.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Locker     port.ItemLocker
	Classifier port.Classifier
	Matching   *config.MatchingConfig
	Logger     *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}

	tolerance, err := deps.Matching.Tolerance()
	if err != nil {
		return nil, err
	}

	thresholds := deps.Matching.Thresholds()
	if err := thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid matcher thresholds: %w", err)
	}

	log := NewServiceLogger(deps.Logger)
	repos := deps.Repos

	mappings := service.NewMappingService(
		repos.Mapping, repos.Invoice, repos.Estimate, repos.Correction,
		deps.TxManager, deps.Locker, log,
	)

	matcher := matching.NewMatcher(thresholds, deps.Classifier, deps.Matching.ItemTimeout)

	return &ServiceBundle{
		Mapping: mappings,
		Matching: service.NewMatchingService(
			matcher, repos.Project, repos.Invoice, repos.Estimate, repos.Correction,
			mappings, deps.Matching.BatchSize, log,
		),
		CostTracking: service.NewCostTrackingService(
			repos.Project, repos.Trade, repos.Invoice, deps.TxManager, log,
		),
		Ingestion: service.NewIngestionService(
			repos.Project, repos.Trade, repos.Estimate, repos.Invoice,
			deps.TxManager, tolerance, log,
		),
	}, nil
}

// ProvideWorkers registers the auto-matching worker when enabled.
func ProvideWorkers(cfg *config.WorkerConfig, repos *RepositoryBundle, services *ServiceBundle, logger *zap.Logger) *worker.WorkerManager {
	manager := worker.NewWorkerManager(logger)
	if !cfg.Enabled {
		return manager
	}

	manager.Register(worker.NewMatchingWorker(
		worker.MatchingWorkerConfig{
			Interval:            cfg.Interval,
			RunTimeout:          cfg.RunTimeout,
			RetryUnmatchedAfter: cfg.RetryUnmatchedAfter,
		},
		repos.Project,
		services.Matching,
		logger,
	))
	return manager
}

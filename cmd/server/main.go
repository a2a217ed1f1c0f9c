package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/cost-reconciler/internal/config"
	"github.com/garyjia/cost-reconciler/internal/container"
	httpapi "github.com/garyjia/cost-reconciler/internal/interfaces/http"
	"github.com/garyjia/cost-reconciler/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file (empty for defaults and env only)")
	flag.Parse()

	if *configPath != "" {
		if _, err := os.Stat(*configPath); os.IsNotExist(err) {
			*configPath = ""
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    "cost-reconciler",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Logger.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.NewContainer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create container", zap.Error(err))
	}
	if err := c.Start(ctx, cfg.Worker.Enabled); err != nil {
		logger.Fatal("Failed to start container", zap.Error(err))
	}
	defer c.Close()

	logger.Info("Starting cost reconciliation server",
		zap.Int("port", cfg.Server.Port),
		zap.Bool("classifier_enabled", cfg.OpenAI.Enabled()),
		zap.Bool("worker_enabled", cfg.Worker.Enabled),
		zap.String("lock_backend", cfg.Lock.Backend))

	services := c.Services()
	server := httpapi.NewServer(
		httpapi.ServerConfig{
			Host:            cfg.Server.Host,
			Port:            cfg.Server.Port,
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		},
		httpapi.Services{
			Matching:     services.Matching,
			Mapping:      services.Mapping,
			CostTracking: services.CostTracking,
			Ingestion:    services.Ingestion,
		},
		func(ctx context.Context) (bool, interface{}) {
			h := c.Health(ctx)
			return h.Overall, h
		},
		container.NewServiceLogger(logger),
	)

	if err := server.Start(ctx); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		return
	}

	logger.Info("Server exited successfully")
}

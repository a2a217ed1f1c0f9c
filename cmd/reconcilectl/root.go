package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/cost-reconciler/internal/config"
	"github.com/garyjia/cost-reconciler/internal/container"
	"github.com/garyjia/cost-reconciler/pkg/utils"
)

var (
	flagConfig  string
	flagProject int64
	flagJSON    bool
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:           "reconcilectl",
	Short:         "Estimate-to-invoice reconciliation tools",
	Long:          "Run batch matching, inspect cost tracking and try the classifier against the reconciliation database.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the main entry point called from main.go.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "YAML config file (defaults and env when empty)")
	rootCmd.PersistentFlags().Int64VarP(&flagProject, "project", "p", 0, "Project ID")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Print raw JSON")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log to stderr")
}

// openContainer wires the same components as the server, without workers
func openContainer(ctx context.Context) (*container.Container, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	if flagVerbose {
		if logger, err = utils.NewLogger(utils.LoggerConfig{Level: "debug", OutputPath: "stderr", Format: "console"}); err != nil {
			return nil, err
		}
	}

	c, err := container.NewContainer(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx, false); err != nil {
		return nil, err
	}
	return c, nil
}

func requireProject() error {
	if flagProject <= 0 {
		return fmt.Errorf("--project is required")
	}
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

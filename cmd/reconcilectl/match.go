package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/garyjia/cost-reconciler/internal/application/service"
	"github.com/garyjia/cost-reconciler/internal/infrastructure/worker"
)

var (
	flagItems   []int64
	flagRematch bool
	flagAll     bool
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match unmapped invoice line items of a project",
	RunE:  runMatch,
}

func init() {
	matchCmd.Flags().Int64SliceVar(&flagItems, "items", nil, "Restrict to these invoice line item IDs")
	matchCmd.Flags().BoolVar(&flagRematch, "rematch", false, "Replace existing logic/llm mappings")
	matchCmd.Flags().BoolVar(&flagAll, "all", false, "Match every project with unmapped line items")
	rootCmd.AddCommand(matchCmd)
}

func runMatch(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	if !flagAll {
		if err := requireProject(); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	c, err := openContainer(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if flagAll {
		w := worker.NewMatchingWorker(worker.DefaultMatchingWorkerConfig(), c.Repositories().Project, c.Services().Matching, c.Logger())
		if err := w.RunOnce(ctx); err != nil {
			return err
		}
		status := w.Status()
		fmt.Fprintf(out, "\n  Auto-matching pass finished (%d failures)\n", status.Failures)
		return nil
	}

	result, err := c.Services().Matching.MatchAll(ctx, service.MatchRequest{
		ProjectID:          flagProject,
		InvoiceLineItemIDs: flagItems,
		Rematch:            flagRematch,
	})
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(out, result)
	}

	d := result.ProcessingDetails
	fmt.Fprintln(out)
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("MATCHING  Project %d", flagProject)))
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Line items     %d (%d invoices)\n", result.TotalLineItems, result.TotalInvoices)
	fmt.Fprintf(out, "  Matched        %s\n", goodStyle.Render(fmt.Sprintf("%d", result.MatchedItems)))
	fmt.Fprintf(out, "  Unmatched      %s\n", warnStyle.Render(fmt.Sprintf("%d", result.UnmatchedItems)))
	fmt.Fprintf(out, "  Avg confidence %.2f\n", result.AverageConfidence)
	fmt.Fprintf(out, "  Logic / LLM    %d / %d (attempts %d, failures %d)\n", d.LogicMatches, d.LLMMatches, d.LLMAttempts, d.LLMFailures)
	fmt.Fprintf(out, "  Patterns used  %d\n", d.PatternsUsed)
	fmt.Fprintf(out, "  Time           %dms (%.1f items/s)\n", d.ProcessingTimeMs, d.ThroughputItemsPerSecond)
	for _, e := range result.Errors {
		fmt.Fprintln(out, badStyle.Render(fmt.Sprintf("  line %d: %s", e.InvoiceLineID, e.Error)))
	}
	if result.Error != "" {
		fmt.Fprintln(out, badStyle.Render("  " + result.Error))
	}
	fmt.Fprintln(out)
	return nil
}

package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/garyjia/cost-reconciler/internal/domain/entity"
	"github.com/garyjia/cost-reconciler/internal/matching"
)

var (
	flagDescription string
	flagAmount      string
)

var classifyCmd = &cobra.Command{
	Use:   "test-classifier",
	Short: "Score a description against a project's estimate and ask the classifier",
	RunE:  runClassify,
}

func init() {
	classifyCmd.Flags().StringVar(&flagDescription, "description", "", "Invoice line description")
	classifyCmd.Flags().StringVar(&flagAmount, "amount", "0", "Invoice line total")
	_ = classifyCmd.MarkFlagRequired("description")
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	if err := requireProject(); err != nil {
		return err
	}
	amount, err := decimal.NewFromString(flagAmount)
	if err != nil {
		return fmt.Errorf("invalid --amount: %w", err)
	}

	ctx := cmd.Context()
	c, err := openContainer(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	candidates, err := c.Repositories().Estimate.ListByProject(ctx, flagProject)
	if err != nil {
		return err
	}

	cfg := c.Config().Matching
	m := matching.NewMatcher(cfg.Thresholds(), c.Classifier(), cfg.ItemTimeout)
	ev := m.Evaluate(&entity.InvoiceLineItem{Description: flagDescription, TotalPrice: amount}, candidates, nil)

	fmt.Fprintln(out)
	fmt.Fprintln(out, titleStyle.Render("HEURISTIC SHORTLIST"))
	for i, sc := range ev.Shortlist(cfg.ShortlistSize) {
		fmt.Fprintf(out, "  %d. [%d] %-36s score %.3f  text %.3f  mismatch %.2f\n",
			i, sc.Estimate.ID, truncate(sc.Estimate.Description, 36), sc.Score, sc.TextScore, sc.AmountMismatch)
	}
	fmt.Fprintln(out)

	if c.Classifier() == nil {
		fmt.Fprintln(out, warnStyle.Render("  Classifier disabled (no OpenAI API key)"))
		return nil
	}
	if ev.Top() == nil {
		fmt.Fprintln(out, warnStyle.Render("  No candidates to classify"))
		return nil
	}

	result, err := m.Assist(ctx, ev)
	if err != nil {
		fmt.Fprintln(out, badStyle.Render("  Classifier failed: " + err.Error()))
		return nil
	}

	if flagJSON {
		return printJSON(out, result)
	}
	if result.CandidateIndex < 0 {
		fmt.Fprintf(out, "  Classifier found no fit (confidence %.2f): %s\n", result.Confidence, result.Reasoning)
	} else {
		pick := ev.Ranked[result.CandidateIndex]
		fmt.Fprintf(out, "  Classifier picked %d. %s (confidence %.2f)\n  %s\n",
			result.CandidateIndex, pick.Estimate.Description, result.Confidence, dimStyle.Render(result.Reasoning))
	}
	fmt.Fprintln(out)
	return nil
}

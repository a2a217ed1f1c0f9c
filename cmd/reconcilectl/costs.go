package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/garyjia/cost-reconciler/internal/domain/entity"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3AA99F"))
	headStyle  = lipgloss.NewStyle().Bold(true)
	goodStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#879A39"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#DA702C"))
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#D14D41"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6F6E69"))
)

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Estimate vs actual spend per trade",
	RunE:  runCosts,
}

func init() {
	rootCmd.AddCommand(costsCmd)
}

func runCosts(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	if err := requireProject(); err != nil {
		return err
	}

	c, err := openContainer(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	resp, err := c.Services().CostTracking.ComputeProjectCostTracking(cmd.Context(), flagProject)
	if err != nil {
		return err
	}

	if flagJSON {
		return printJSON(out, resp)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("COST TRACKING  Project %d", flagProject)))
	fmt.Fprintln(out)

	if len(resp.Trades) == 0 {
		fmt.Fprintln(out, "  No trades found.")
		return nil
	}

	fmt.Fprintln(out, headStyle.Render(fmt.Sprintf("  %-24s %12s %12s %12s %9s  %s", "Trade", "Estimate", "Actual", "Variance", "Var %", "Status")))
	fmt.Fprintln(out, dimStyle.Render("  " + strings.Repeat("-", 84)))
	for _, t := range resp.Trades {
		fmt.Fprintf(out, "  %-24s %12.2f %12.2f %12.2f %8.2f%%  %s\n",
			truncate(t.Name, 24), t.EstimatedTotal, t.ActualSpent, t.Variance, t.VariancePercent, renderStatus(t.Status))
	}
	fmt.Fprintln(out, dimStyle.Render("  " + strings.Repeat("-", 84)))

	s := resp.Summary
	fmt.Fprintf(out, "  %-24s %12.2f %12.2f %12.2f %8.2f%%\n", "TOTAL", s.TotalEstimated, s.TotalActual, s.TotalVariance, s.VariancePercent)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Remaining %.2f  Complete %.2f%%  On %d  Over %d  Under %d\n",
		s.TotalRemaining, s.PercentComplete, s.TradesOnBudget, s.TradesOverBudget, s.TradesUnderBudget)
	fmt.Fprintln(out)
	return nil
}

func renderStatus(status entity.BudgetStatus) string {
	switch status {
	case entity.BudgetStatusOverBudget:
		return badStyle.Render(string(status))
	case entity.BudgetStatusUnderBudget:
		return goodStyle.Render(string(status))
	case entity.BudgetStatusNoEstimate:
		return dimStyle.Render(string(status))
	default:
		return string(status)
	}
}

func truncate(s string, n int) string {
	if lipgloss.Width(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

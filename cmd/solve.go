package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/ethpandaops/viewgraph/pkg/engine"
	"github.com/ethpandaops/viewgraph/pkg/steiner"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	solveNoViews bool
	solveCompare bool
	solveTopK    int
)

//nolint:gochecknoglobals // Cobra commands are typically global
var solveCmd = &cobra.Command{
	Use:   "solve TABLE [TABLE...]",
	Short: "Find the cheapest join tree connecting tables",
	Long:  `Solves the join tree for the given tables, using promoted and materialized views as zero-cost shortcuts unless --no-views is set.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  withEngine(runSolve),
}

//nolint:gochecknoglobals // Cobra commands are typically global
var recommendCmd = &cobra.Command{
	Use:   "recommend TABLE [TABLE...]",
	Short: "Rank existing views by how many of the tables they cover",
	Args:  cobra.MinimumNArgs(1),
	RunE:  withEngine(runRecommend),
}

func init() {
	rootCmd.AddCommand(solveCmd)
	rootCmd.AddCommand(recommendCmd)

	solveCmd.Flags().BoolVar(&solveNoViews, "no-views", false, "join raw tables only")
	solveCmd.Flags().BoolVar(&solveCompare, "compare", false, "compare plans with and without views")
	solveCmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON")

	recommendCmd.Flags().IntVar(&solveTopK, "top", steiner.DefaultRecommendations, "number of views to show")
	recommendCmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON")
}

func runSolve(ctx context.Context, cmd *cobra.Command, app *engine.Service, args []string) error {
	out := cmd.OutOrStdout()

	if solveCompare {
		cmp, err := app.Solver().CompareSolutions(ctx, args)
		if err != nil {
			return err
		}

		if jsonOutput {
			return writeJSON(out, cmp)
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "PLAN\tCOST\tEDGES\tTABLES\tVIEWS")
		_, _ = fmt.Fprintf(w, "without views\t%.4f\t%d\t%s\t-\n",
			cmp.WithoutViews.Cost, cmp.WithoutViews.Edges, strings.Join(cmp.WithoutViews.Tables, ","))
		_, _ = fmt.Fprintf(w, "with views\t%.4f\t%d\t%s\t%s\n",
			cmp.WithViews.Cost, cmp.WithViews.Edges, strings.Join(cmp.WithViews.Tables, ","), joinOrDash(cmp.WithViews.Views))
		_ = w.Flush()

		_, _ = fmt.Fprintf(out, "\nSavings: %.4f (%.2f%%), %d tables avoided\n",
			cmp.Savings.CostReduction, cmp.Savings.CostReductionPct, cmp.Savings.TablesAvoided)

		return nil
	}

	sol, err := app.Solver().Solve(ctx, args, !solveNoViews)
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(out, sol)
	}

	_, _ = fmt.Fprintln(out, sol.Description)
	_, _ = fmt.Fprintf(out, "\nCost: %.4f  Nodes: %d  Edges: %d\n\n", sol.TotalCost, sol.TotalNodes, sol.TotalEdges)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FROM\tTO\tWEIGHT")

	for _, e := range sol.Edges {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.4f\n", e.From, e.To, e.Weight)
	}

	_ = w.Flush()

	for _, warning := range sol.Warnings {
		_, _ = fmt.Fprintf(out, "warning: %s\n", warning)
	}

	return nil
}

func runRecommend(ctx context.Context, cmd *cobra.Command, app *engine.Service, args []string) error {
	recs, err := app.Solver().RecommendViews(ctx, args, solveTopK)
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), recs)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VIEW\tSCORE\tCOVERS\tUSAGE")

	for _, r := range recs {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%d\n", r.View.Name, r.Score, strings.Join(r.Coverage, ","), r.View.UsageCount)
	}

	return w.Flush()
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}

	return strings.Join(items, ",")
}

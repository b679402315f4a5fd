package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/ethpandaops/viewgraph/pkg/advisor"
	"github.com/ethpandaops/viewgraph/pkg/catalog"
	"github.com/ethpandaops/viewgraph/pkg/engine"
	"github.com/ethpandaops/viewgraph/pkg/search"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var (
	viewsStatus string
	viewsDomain string
	adviseQuery string
)

// viewsCmd represents the views command group
//
//nolint:gochecknoglobals // Cobra commands are typically global
var viewsCmd = &cobra.Command{
	Use:   "views",
	Short: "Inspect and manage the view catalog",
}

//nolint:gochecknoglobals // Cobra commands are typically global
var (
	viewsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List views, most used first",
		Args:  cobra.NoArgs,
		RunE:  withEngine(runViewsList),
	}

	viewsShowCmd = &cobra.Command{
		Use:   "show NAME",
		Short: "Show a view with its lineage",
		Args:  cobra.ExactArgs(1),
		RunE:  withEngine(runViewsShow),
	}

	viewsRegisterCmd = &cobra.Command{
		Use:   "register FILE",
		Short: "Register a view from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE:  withEngine(runViewsRegister),
	}

	viewsUseCmd = &cobra.Command{
		Use:   "use NAME",
		Short: "Record one reuse of a view",
		Args:  cobra.ExactArgs(1),
		RunE:  withEngine(runViewsUse),
	}

	viewsPromoteCmd = &cobra.Command{
		Use:   "promote NAME",
		Short: "Promote a draft view",
		Args:  cobra.ExactArgs(1),
		RunE:  withEngine(runViewsPromote),
	}

	viewsArchiveCmd = &cobra.Command{
		Use:   "archive NAME",
		Short: "Archive a view",
		Args:  cobra.ExactArgs(1),
		RunE:  withEngine(runViewsArchive),
	}

	viewsSearchCmd = &cobra.Command{
		Use:   "search QUERY",
		Short: "Find views whose descriptions match a query",
		Args:  cobra.MinimumNArgs(1),
		RunE:  withEngine(runViewsSearch),
	}

	viewsStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show catalog statistics",
		Args:  cobra.NoArgs,
		RunE:  withEngine(runViewsStats),
	}

	viewsDAGCmd = &cobra.Command{
		Use:   "dag",
		Short: "Show the view lineage DAG by level",
		Args:  cobra.NoArgs,
		RunE:  withEngine(runViewsDAG),
	}

	adviseCmd = &cobra.Command{
		Use:   "advise TABLE [TABLE...]",
		Short: "Decide whether a query over tables should get a new view",
		Args:  cobra.MinimumNArgs(1),
		RunE:  withEngine(runAdvise),
	}
)

func init() {
	rootCmd.AddCommand(viewsCmd)
	rootCmd.AddCommand(adviseCmd)

	viewsCmd.AddCommand(viewsListCmd, viewsShowCmd, viewsRegisterCmd, viewsUseCmd,
		viewsPromoteCmd, viewsArchiveCmd, viewsSearchCmd, viewsStatsCmd, viewsDAGCmd)

	viewsListCmd.Flags().StringVar(&viewsStatus, "status", "", "only views in this status")
	viewsListCmd.Flags().StringVar(&viewsDomain, "domain", "", "only views in this domain")
	viewsSearchCmd.Flags().StringVar(&viewsDomain, "domain", "", "only views in this domain")
	adviseCmd.Flags().StringVar(&adviseQuery, "query", "", "the question the tables serve")

	for _, c := range []*cobra.Command{viewsListCmd, viewsShowCmd, viewsSearchCmd, viewsStatsCmd, viewsDAGCmd, adviseCmd} {
		c.Flags().BoolVar(&jsonOutput, "json", false, "print JSON")
	}
}

func runViewsList(ctx context.Context, cmd *cobra.Command, app *engine.Service, _ []string) error {
	views, err := app.Catalog().List(ctx, catalog.Filter{
		Status: catalog.Status(strings.ToUpper(viewsStatus)),
		Domain: catalog.Domain(viewsDomain),
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), views)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tLAYER\tDOMAIN\tSTATUS\tUSAGE\tTABLES")

	for _, v := range views {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			v.Name, v.Layer, v.Domain, v.Status, v.UsageCount, joinOrDash(v.BaseTables))
	}

	return w.Flush()
}

func runViewsShow(ctx context.Context, cmd *cobra.Command, app *engine.Service, args []string) error {
	lineage, err := app.Catalog().Lineage(ctx, args[0])
	if err != nil {
		return err
	}

	if lineage == nil {
		return fmt.Errorf("%w: %s", catalog.ErrViewNotFound, args[0])
	}

	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), lineage)
	}

	out := cmd.OutOrStdout()
	v := lineage.View

	_, _ = fmt.Fprintln(out, v.Summary())
	_, _ = fmt.Fprintf(out, "Status: %s  Usage: %d  Freshness: %s  Valid: %t\n", v.Status, v.UsageCount, v.FreshnessType, v.IsValid)
	_, _ = fmt.Fprintf(out, "Upstream: %s\n", joinOrDash(viewNames(lineage.Upstream)))
	_, _ = fmt.Fprintf(out, "Downstream: %s\n", joinOrDash(viewNames(lineage.Downstream)))
	_, _ = fmt.Fprintf(out, "Depth: %d\n", lineage.Depth)

	return nil
}

func runViewsRegister(ctx context.Context, cmd *cobra.Command, app *engine.Service, args []string) error {
	data, err := os.ReadFile(args[0]) //nolint:gosec // User-provided view file path
	if err != nil {
		return err
	}

	var v catalog.View
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", args[0], err)
	}

	created, err := app.Catalog().Register(ctx, &v)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (id %d, %s)\n", created.Name, created.ID, created.Status)

	return nil
}

func runViewsUse(ctx context.Context, cmd *cobra.Command, app *engine.Service, args []string) error {
	v, promoted, err := app.Catalog().IncrementUsage(ctx, args[0])
	if err != nil {
		return err
	}

	if v == nil {
		return fmt.Errorf("%w: %s", catalog.ErrViewNotFound, args[0])
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s used %d times (%s)\n", v.Name, v.UsageCount, v.Status)

	if promoted {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Promoted after reuse")
	}

	return nil
}

func runViewsPromote(ctx context.Context, cmd *cobra.Command, app *engine.Service, args []string) error {
	changed, err := app.Catalog().Promote(ctx, args[0])
	if err != nil {
		return err
	}

	if !changed {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s is not a draft, left unchanged\n", args[0])
		return nil
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Promoted %s\n", args[0])

	return nil
}

func runViewsArchive(ctx context.Context, cmd *cobra.Command, app *engine.Service, args []string) error {
	changed, err := app.Catalog().Archive(ctx, args[0])
	if err != nil {
		return err
	}

	if !changed {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s is already archived\n", args[0])
		return nil
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Archived %s\n", args[0])

	return nil
}

func runViewsSearch(ctx context.Context, cmd *cobra.Command, app *engine.Service, args []string) error {
	results, err := app.Index().Search(ctx, search.Query{
		Text:     strings.Join(args, " "),
		MinScore: app.Index().Config().MinScore,
		Domain:   catalog.Domain(viewsDomain),
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), results)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSCORE\tDOMAIN\tDESCRIPTION")

	for _, r := range results {
		_, _ = fmt.Fprintf(w, "%s\t%.3f\t%s\t%s\n", r.View.Name, r.Score, r.View.Domain, r.View.Description)
	}

	return w.Flush()
}

func runViewsStats(ctx context.Context, cmd *cobra.Command, app *engine.Service, _ []string) error {
	stats, err := app.Catalog().Statistics(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), stats)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Views: %d  Total usage: %d\n", stats.TotalViews, stats.TotalUsage)

	for _, status := range catalog.Statuses {
		if n := stats.ByStatus[status]; n > 0 {
			_, _ = fmt.Fprintf(out, "  %s: %d\n", status, n)
		}
	}

	if stats.MostUsed != nil {
		_, _ = fmt.Fprintf(out, "Most used: %s (%d)\n", stats.MostUsed.Name, stats.MostUsed.UsageCount)
	}

	return nil
}

func runViewsDAG(ctx context.Context, cmd *cobra.Command, app *engine.Service, _ []string) error {
	levels, err := app.Catalog().LineageLevels(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), levels)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Views: %d  Roots: %d  Levels: %d\n", levels.TotalViews, len(levels.Roots), levels.MaxLevel+1)

	for level := 0; level <= levels.MaxLevel; level++ {
		_, _ = fmt.Fprintf(out, "\nLevel %d:\n", level)

		for _, name := range levels.Levels[level] {
			_, _ = fmt.Fprintf(out, "  %s\n", name)
		}
	}

	return nil
}

func runAdvise(ctx context.Context, cmd *cobra.Command, app *engine.Service, args []string) error {
	decision, err := app.Advisor().ShouldCreateView(ctx, advisor.CreationRequest{
		Query:     adviseQuery,
		Terminals: args,
	})
	if err != nil {
		return err
	}

	optimal, err := app.Advisor().FindOptimalViews(ctx, adviseQuery, args)
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"decision":      decision,
			"optimal_views": optimal,
		})
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Create view: %t (confidence %.2f)\n%s\n", decision.ShouldCreate, decision.Confidence, decision.Reason)

	if decision.ExistingView != nil {
		_, _ = fmt.Fprintf(out, "Reuse: %s\n", decision.ExistingView.Name)
	}

	if len(optimal.Recommended) == 0 {
		return nil
	}

	_, _ = fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VIEW\tSCORE\tSEMANTIC\tSOURCE")

	for _, c := range optimal.Recommended {
		_, _ = fmt.Fprintf(w, "%s\t%.3f\t%.3f\t%s\n", c.View.Name, c.CombinedScore, c.SemanticScore, c.Source)
	}

	return w.Flush()
}

func viewNames(views []*catalog.View) []string {
	names := make([]string, 0, len(views))
	for _, v := range views {
		names = append(names, v.Name)
	}

	return names
}

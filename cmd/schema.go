package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/ethpandaops/viewgraph/pkg/engine"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var schemaDepth int

// schemaCmd represents the schema command group
//
//nolint:gochecknoglobals // Cobra commands are typically global
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect the schema join graph",
}

//nolint:gochecknoglobals // Cobra commands are typically global
var (
	schemaStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show schema graph statistics",
		Args:  cobra.NoArgs,
		RunE:  withEngine(runSchemaStats),
	}

	schemaTablesCmd = &cobra.Command{
		Use:   "tables",
		Short: "List tables with row counts and degree",
		Args:  cobra.NoArgs,
		RunE:  withEngine(runSchemaTables),
	}

	schemaPathCmd = &cobra.Command{
		Use:   "path FROM TO",
		Short: "Show the cheapest join path between two tables",
		Args:  cobra.ExactArgs(2),
		RunE:  withEngine(runSchemaPath),
	}

	schemaNeighborsCmd = &cobra.Command{
		Use:   "neighbors TABLE",
		Short: "List tables reachable within --depth joins",
		Args:  cobra.ExactArgs(1),
		RunE:  withEngine(runSchemaNeighbors),
	}
)

func init() {
	rootCmd.AddCommand(schemaCmd)
	schemaCmd.AddCommand(schemaStatsCmd, schemaTablesCmd, schemaPathCmd, schemaNeighborsCmd)

	schemaNeighborsCmd.Flags().IntVar(&schemaDepth, "depth", 2, "maximum number of joins")
	schemaStatsCmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON")
}

func runSchemaStats(_ context.Context, cmd *cobra.Command, app *engine.Service, _ []string) error {
	stats := app.Schema().Current().Statistics()

	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), stats)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(),
		"Tables: %d\nForeign keys: %d\nConnected: %t\nComponents: %d\nAverage degree: %.2f\nTotal rows: %d\n",
		stats.Tables, stats.ForeignKeys, stats.IsConnected, stats.Components, stats.AvgDegree, stats.TotalRows)

	return nil
}

func runSchemaTables(_ context.Context, cmd *cobra.Command, app *engine.Service, _ []string) error {
	g := app.Schema().Current()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TABLE\tROWS\tCOLUMNS\tFOREIGN KEYS")

	for _, t := range g.Tables() {
		keys, err := g.ForeignKeysOf(t.Name)
		if err != nil {
			return err
		}

		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", t.Name, t.RowCount, len(t.Columns), len(keys))
	}

	return w.Flush()
}

func runSchemaPath(_ context.Context, cmd *cobra.Command, app *engine.Service, args []string) error {
	g := app.Schema().Current()

	path, err := g.ShortestPath(args[0], args[1])
	if err != nil {
		return err
	}

	cost, err := g.JoinCost(args[0], args[1])
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\nCost: %.4f\n", strings.Join(path, " -> "), cost)

	return nil
}

func runSchemaNeighbors(_ context.Context, cmd *cobra.Command, app *engine.Service, args []string) error {
	tables, err := app.Schema().Current().ConnectedTables(args[0], schemaDepth)
	if err != nil {
		return err
	}

	for _, t := range tables {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), t)
	}

	return nil
}

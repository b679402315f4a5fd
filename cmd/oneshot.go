package cmd

import (
	"context"
	"encoding/json"
	"io"

	"github.com/ethpandaops/viewgraph/pkg/engine"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var jsonOutput bool

// openEngine builds the components for a one-shot command and loads the
// schema. Background services stay off.
func openEngine(cmd *cobra.Command) (*engine.Service, error) {
	cmd.SilenceUsage = true

	config, err := loadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	// one-shot commands stay quiet unless asked
	if err := applyLogLevel(cmd, logrus.ErrorLevel.String()); err != nil {
		return nil, err
	}

	config.Worker.Enabled = false
	config.Scheduler.Enabled = false
	config.API.Enabled = false

	app, err := engine.NewService(cmd.Context(), logger, config)
	if err != nil {
		return nil, err
	}

	if err := app.RefreshSchema(cmd.Context()); err != nil {
		_ = app.Stop()

		return nil, err
	}

	return app, nil
}

func withEngine(fn func(ctx context.Context, cmd *cobra.Command, app *engine.Service, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := openEngine(cmd)
		if err != nil {
			return err
		}

		defer func() { _ = app.Stop() }()

		return fn(cmd.Context(), cmd, app, args)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

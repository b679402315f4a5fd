// Package cmd contains the CLI commands for viewgraph
package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Global vars needed for cobra CLI
var (
	cfgFile string
	logger  *logrus.Logger
)

// rootCmd represents the base command
//
//nolint:gochecknoglobals // Cobra commands are typically global
var rootCmd = &cobra.Command{
	Use:   "viewgraph",
	Short: "View intelligence engine - plan joins and decide which views to reuse",
	Long: `viewgraph models a relational schema as a weighted join graph, finds the
cheapest way to connect the tables a query needs (using promoted views as
shortcuts), and keeps a catalog of reusable views with lifecycle, lineage and
semantic search.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error, fatal, panic); overrides the config file")

	// Initialize logger
	logger = logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

func initConfig() {
	if cfgFile == "" {
		cfgFile = "./config.yaml"
	}
}

// applyLogLevel sets the logger level from --log-level, falling back to the configured level
func applyLogLevel(cmd *cobra.Command, configured string) error {
	level := configured

	if flag, err := cmd.Flags().GetString("log-level"); err == nil && flag != "" {
		level = flag
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}

	logger.SetLevel(parsed)

	return nil
}

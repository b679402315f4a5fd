package cmd

import (
	"os"

	"github.com/creasty/defaults"
	"github.com/ethpandaops/viewgraph/pkg/engine"
	"gopkg.in/yaml.v3"
)

// loadConfig reads the engine configuration from path over the defaults
func loadConfig(path string) (*engine.Config, error) {
	config := &engine.Config{}

	if err := defaults.Set(config); err != nil {
		return nil, err
	}

	yamlFile, err := os.ReadFile(path) //nolint:gosec // User-provided config file path
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(yamlFile, config); err != nil {
		return nil, err
	}

	return config, nil
}

// Package engine wires the viewgraph components into a running service
package engine

import (
	"fmt"

	"github.com/ethpandaops/viewgraph/pkg/advisor"
	"github.com/ethpandaops/viewgraph/pkg/api"
	"github.com/ethpandaops/viewgraph/pkg/metadata"
	r "github.com/ethpandaops/viewgraph/pkg/redis"
	"github.com/ethpandaops/viewgraph/pkg/scheduler"
	"github.com/ethpandaops/viewgraph/pkg/search"
	"github.com/ethpandaops/viewgraph/pkg/steiner"
	"github.com/ethpandaops/viewgraph/pkg/worker"
	"github.com/sirupsen/logrus"
)

// Config represents the complete engine configuration
type Config struct {
	// Core settings
	Logging         string `yaml:"logging" default:"info"`
	MetricsAddr     string `yaml:"metricsAddr" default:":9091"`
	HealthCheckAddr string `yaml:"healthCheckAddr"`
	PProfAddr       string `yaml:"pprofAddr"`

	// Dependencies
	Redis    r.Config        `yaml:"redis"`
	Metadata metadata.Config `yaml:"metadata"`

	// Components
	Solver  steiner.Config `yaml:"solver"`
	Search  search.Config  `yaml:"search"`
	Advisor advisor.Config `yaml:"advisor"`

	// Services
	API       api.Config       `yaml:"api"`
	Worker    worker.Config    `yaml:"worker"`
	Scheduler scheduler.Config `yaml:"scheduler"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Logging); err != nil {
		return fmt.Errorf("invalid logging level: %w", err)
	}

	validators := []struct {
		name     string
		validate func() error
	}{
		{"redis", c.Redis.Validate},
		{"metadata", c.Metadata.Validate},
		{"solver", c.Solver.Validate},
		{"search", c.Search.Validate},
		{"advisor", c.Advisor.Validate},
		{"api", c.API.Validate},
		{"worker", c.Worker.Validate},
		{"scheduler", c.Scheduler.Validate},
	}

	for _, v := range validators {
		if err := v.validate(); err != nil {
			return fmt.Errorf("%s: %w", v.name, err)
		}
	}

	return nil
}

// Package scheduler periodically rebuilds the schema graph and re-indexes views
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrInvalidSchedule is returned when the refresh schedule does not parse
	ErrInvalidSchedule = errors.New("invalid schedule")
	// ErrInvalidJobTimeout is returned when the job timeout is not positive
	ErrInvalidJobTimeout = errors.New("jobTimeout must be positive")
)

// Config defines scheduler configuration
type Config struct {
	Enabled bool `yaml:"enabled" default:"true"`
	// Schedule is a standard cron expression or descriptor such as "@every 10m"
	Schedule   string        `yaml:"schedule" default:"@every 10m"`
	JobTimeout time.Duration `yaml:"jobTimeout" default:"5m"`
	// MinReindexGap skips a leader's re-index when any instance finished one more recently
	MinReindexGap time.Duration `yaml:"minReindexGap" default:"1m"`
}

// Validate checks if the scheduler configuration is valid
func (c *Config) Validate() error {
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidSchedule, c.Schedule, err)
	}

	if c.JobTimeout <= 0 {
		return ErrInvalidJobTimeout
	}

	return nil
}

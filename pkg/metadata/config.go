package metadata

import (
	"errors"
	"fmt"
)

// Supported metadata drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverFile     = "file"
)

var (
	// ErrUnknownDriver is returned when the configured driver is not supported
	ErrUnknownDriver = errors.New("unknown metadata driver")
	// ErrDSNRequired is returned when a database driver has no DSN
	ErrDSNRequired = errors.New("metadata DSN is required")
	// ErrPathRequired is returned when the file driver has no path
	ErrPathRequired = errors.New("metadata file path is required")
	// ErrInvalidColumnRef is returned for malformed table.column references in schema files
	ErrInvalidColumnRef = errors.New("invalid column reference")
)

// Config selects where table and foreign key metadata is read from
type Config struct {
	Driver string `yaml:"driver" default:"sqlite"`
	// DSN is the database connection string for the sqlite and postgres drivers
	DSN string `yaml:"dsn"`
	// Path is the YAML schema file for the file driver
	Path string `yaml:"path"`
	// Schema is the Postgres schema to introspect
	Schema string `yaml:"schema" default:"public"`
	// Exclude lists bookkeeping tables kept out of the join graph
	Exclude []string `yaml:"exclude"`
}

// Validate checks the metadata configuration
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverSQLite, DriverPostgres:
		if c.DSN == "" {
			return fmt.Errorf("%w for driver %s", ErrDSNRequired, c.Driver)
		}
	case DriverFile:
		if c.Path == "" {
			return ErrPathRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Driver)
	}

	return nil
}

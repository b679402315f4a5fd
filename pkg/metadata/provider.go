// Package metadata reads table and foreign key metadata from the analytical store
package metadata

import (
	"context"
	"fmt"

	"github.com/ethpandaops/viewgraph/pkg/schema"
)

// Provider reads schema metadata from a backing store
type Provider interface {
	Tables(ctx context.Context) ([]schema.Table, error)
	ForeignKeys(ctx context.Context) ([]schema.ForeignKey, error)
	Close() error
}

// NewProvider opens the provider selected by cfg.Driver
func NewProvider(cfg *Config) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Driver {
	case DriverSQLite:
		return NewSQLiteProvider(cfg.DSN)
	case DriverPostgres:
		return NewPostgresProvider(cfg.DSN, cfg.Schema)
	case DriverFile:
		return NewFileProvider(cfg.Path), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// Load reads all metadata from p and builds a schema graph. Tables named in
// exclude, and keys touching them, are left out.
func Load(ctx context.Context, p Provider, exclude ...string) (*schema.Graph, error) {
	tables, err := p.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read tables: %w", err)
	}

	keys, err := p.ForeignKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign keys: %w", err)
	}

	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}

	keptTables := make([]schema.Table, 0, len(tables))
	for _, t := range tables {
		if !skip[t.Name] {
			keptTables = append(keptTables, t)
		}
	}

	keptKeys := make([]schema.ForeignKey, 0, len(keys))
	for _, fk := range keys {
		if !skip[fk.FromTable] && !skip[fk.ToTable] {
			keptKeys = append(keptKeys, fk)
		}
	}

	return schema.Build(keptTables, keptKeys)
}

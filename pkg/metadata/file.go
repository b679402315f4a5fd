package metadata

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ethpandaops/viewgraph/pkg/schema"
	"gopkg.in/yaml.v3"
)

// FileProvider reads metadata declared in a YAML document:
//
//	tables:
//	  - name: transactions
//	    rowCount: 1000
//	    columns: [transaction_id, merchant_id]
//	foreignKeys:
//	  - from: transactions.merchant_id
//	    to: merchants.merchant_id
type FileProvider struct {
	path string
}

type fileDocument struct {
	Tables []struct {
		Name     string   `yaml:"name"`
		RowCount int64    `yaml:"rowCount"`
		Columns  []string `yaml:"columns"`
	} `yaml:"tables"`
	ForeignKeys []struct {
		From string `yaml:"from"`
		To   string `yaml:"to"`
	} `yaml:"foreignKeys"`
}

// NewFileProvider creates a provider for the YAML file at path
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// Tables returns the declared tables
func (p *FileProvider) Tables(_ context.Context) ([]schema.Table, error) {
	doc, err := p.read()
	if err != nil {
		return nil, err
	}

	tables := make([]schema.Table, 0, len(doc.Tables))
	for _, t := range doc.Tables {
		cols := t.Columns
		if cols == nil {
			cols = []string{}
		}

		tables = append(tables, schema.Table{Name: t.Name, RowCount: t.RowCount, Columns: cols})
	}

	return tables, nil
}

// ForeignKeys returns the declared foreign keys
func (p *FileProvider) ForeignKeys(_ context.Context) ([]schema.ForeignKey, error) {
	doc, err := p.read()
	if err != nil {
		return nil, err
	}

	keys := make([]schema.ForeignKey, 0, len(doc.ForeignKeys))
	for _, k := range doc.ForeignKeys {
		fromTable, fromColumn, err := splitColumnRef(k.From)
		if err != nil {
			return nil, err
		}

		toTable, toColumn, err := splitColumnRef(k.To)
		if err != nil {
			return nil, err
		}

		keys = append(keys, schema.ForeignKey{
			FromTable:  fromTable,
			FromColumn: fromColumn,
			ToTable:    toTable,
			ToColumn:   toColumn,
		})
	}

	return keys, nil
}

// Close is a no-op for files
func (p *FileProvider) Close() error {
	return nil
}

func (p *FileProvider) read() (*fileDocument, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}

	return &doc, nil
}

// splitColumnRef parses "table.column"; the column part is optional
func splitColumnRef(ref string) (table, column string, err error) {
	if ref == "" || strings.HasPrefix(ref, ".") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidColumnRef, ref)
	}

	if i := strings.LastIndex(ref, "."); i >= 0 {
		return ref[:i], ref[i+1:], nil
	}

	return ref, "", nil
}

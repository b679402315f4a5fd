package metadata

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ethpandaops/viewgraph/pkg/schema"
	"github.com/lib/pq"
)

const (
	postgresTablesQuery = `SELECT table_name FROM information_schema.tables
WHERE table_schema = $1 AND table_type = 'BASE TABLE'
ORDER BY table_name`

	postgresColumnsQuery = `SELECT table_name, column_name FROM information_schema.columns
WHERE table_schema = $1
ORDER BY table_name, ordinal_position`

	postgresForeignKeysQuery = `SELECT kcu.table_name, kcu.column_name, ccu.table_name, ccu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu
  ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1
ORDER BY kcu.table_name, kcu.column_name`
)

// PostgresProvider introspects one Postgres schema through information_schema
type PostgresProvider struct {
	db     *sql.DB
	schema string
}

// NewPostgresProvider opens a Postgres connection pool for dsn
func NewPostgresProvider(dsn, schemaName string) (*PostgresProvider, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}

	return NewPostgresProviderFromDB(db, schemaName), nil
}

// NewPostgresProviderFromDB wraps an already opened connection pool
func NewPostgresProviderFromDB(db *sql.DB, schemaName string) *PostgresProvider {
	if schemaName == "" {
		schemaName = "public"
	}

	return &PostgresProvider{db: db, schema: schemaName}
}

// Tables returns every base table of the schema with columns and exact row counts
func (p *PostgresProvider) Tables(ctx context.Context) ([]schema.Table, error) {
	names, err := p.queryStrings(ctx, postgresTablesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	columns, err := p.columns(ctx)
	if err != nil {
		return nil, err
	}

	tables := make([]schema.Table, 0, len(names))
	for _, name := range names {
		var count int64

		query := "SELECT COUNT(*) FROM " + pq.QuoteIdentifier(p.schema) + "." + pq.QuoteIdentifier(name)
		if err := p.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count rows of %s: %w", name, err)
		}

		cols := columns[name]
		if cols == nil {
			cols = []string{}
		}

		tables = append(tables, schema.Table{Name: name, RowCount: count, Columns: cols})
	}

	return tables, nil
}

// ForeignKeys returns the foreign key constraints declared in the schema
func (p *PostgresProvider) ForeignKeys(ctx context.Context) ([]schema.ForeignKey, error) {
	rows, err := p.db.QueryContext(ctx, postgresForeignKeysQuery, p.schema)
	if err != nil {
		return nil, fmt.Errorf("failed to list foreign keys: %w", err)
	}
	defer rows.Close()

	keys := make([]schema.ForeignKey, 0)
	for rows.Next() {
		var fk schema.ForeignKey
		if err := rows.Scan(&fk.FromTable, &fk.FromColumn, &fk.ToTable, &fk.ToColumn); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key: %w", err)
		}

		keys = append(keys, fk)
	}

	return keys, rows.Err()
}

// Close closes the connection pool
func (p *PostgresProvider) Close() error {
	return p.db.Close()
}

func (p *PostgresProvider) columns(ctx context.Context) (map[string][]string, error) {
	rows, err := p.db.QueryContext(ctx, postgresColumnsQuery, p.schema)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}

		out[table] = append(out[table], column)
	}

	return out, rows.Err()
}

func (p *PostgresProvider) queryStrings(ctx context.Context, query string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, query, p.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}

		out = append(out, s)
	}

	return out, rows.Err()
}

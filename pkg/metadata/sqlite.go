package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ethpandaops/viewgraph/pkg/schema"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// SQLiteProvider introspects a SQLite database through sqlite_master and PRAGMAs
type SQLiteProvider struct {
	db *sql.DB
}

// NewSQLiteProvider opens the SQLite database at dsn
func NewSQLiteProvider(dsn string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	return &SQLiteProvider{db: db}, nil
}

// NewSQLiteProviderFromDB wraps an already opened connection pool
func NewSQLiteProviderFromDB(db *sql.DB) *SQLiteProvider {
	return &SQLiteProvider{db: db}
}

// Tables returns every user table with its columns and exact row count
func (p *SQLiteProvider) Tables(ctx context.Context) ([]schema.Table, error) {
	names, err := p.tableNames(ctx)
	if err != nil {
		return nil, err
	}

	tables := make([]schema.Table, 0, len(names))
	for _, name := range names {
		cols, err := p.columns(ctx, name)
		if err != nil {
			return nil, err
		}

		var count int64
		if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteSQLite(name)).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count rows of %s: %w", name, err)
		}

		tables = append(tables, schema.Table{Name: name, RowCount: count, Columns: columnNames(cols)})
	}

	return tables, nil
}

// ForeignKeys returns the declared foreign keys of every user table
func (p *SQLiteProvider) ForeignKeys(ctx context.Context) ([]schema.ForeignKey, error) {
	names, err := p.tableNames(ctx)
	if err != nil {
		return nil, err
	}

	keys := make([]schema.ForeignKey, 0)
	for _, name := range names {
		tableKeys, err := p.foreignKeysOf(ctx, name)
		if err != nil {
			return nil, err
		}

		keys = append(keys, tableKeys...)
	}

	return keys, nil
}

// Close closes the connection pool
func (p *SQLiteProvider) Close() error {
	return p.db.Close()
}

func (p *SQLiteProvider) tableNames(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}

		names = append(names, name)
	}

	return names, rows.Err()
}

type sqliteColumn struct {
	name       string
	primaryKey int
}

func (p *SQLiteProvider) columns(ctx context.Context, table string) ([]sqliteColumn, error) {
	rows, err := p.db.QueryContext(ctx, "PRAGMA table_info("+quoteSQLite(table)+")")
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := make([]sqliteColumn, 0)
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, typ        string
			dflt             sql.NullString
		)

		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}

		cols = append(cols, sqliteColumn{name: name, primaryKey: pk})
	}

	return cols, rows.Err()
}

func (p *SQLiteProvider) foreignKeysOf(ctx context.Context, table string) ([]schema.ForeignKey, error) {
	rows, err := p.db.QueryContext(ctx, "PRAGMA foreign_key_list("+quoteSQLite(table)+")")
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign keys of %s: %w", table, err)
	}

	type rawKey struct {
		from, to string
		toCol    sql.NullString
	}

	raw := make([]rawKey, 0)
	for rows.Next() {
		var (
			id, seq                   int
			refTable, from            string
			to                        sql.NullString
			onUpdate, onDelete, match string
		)

		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			rows.Close()

			return nil, fmt.Errorf("failed to scan foreign key of %s: %w", table, err)
		}

		raw = append(raw, rawKey{from: from, to: refTable, toCol: to})
	}

	if err := rows.Close(); err != nil {
		return nil, err
	}

	keys := make([]schema.ForeignKey, 0, len(raw))
	for _, k := range raw {
		toColumn := k.toCol.String
		if !k.toCol.Valid || toColumn == "" {
			// REFERENCES t without a column targets the primary key of t
			toColumn, err = p.primaryKey(ctx, k.to)
			if err != nil {
				return nil, err
			}
		}

		keys = append(keys, schema.ForeignKey{
			FromTable:  table,
			FromColumn: k.from,
			ToTable:    k.to,
			ToColumn:   toColumn,
		})
	}

	return keys, nil
}

func (p *SQLiteProvider) primaryKey(ctx context.Context, table string) (string, error) {
	cols, err := p.columns(ctx, table)
	if err != nil {
		return "", err
	}

	for _, c := range cols {
		if c.primaryKey == 1 {
			return c.name, nil
		}
	}

	return "", nil
}

func columnNames(cols []sqliteColumn) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.name
	}

	return out
}

func quoteSQLite(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

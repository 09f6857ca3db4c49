package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcboeker/go-duckdb/v2"

	"github.com/receiptqa/receiptqa/internal/query"
)

// csvSampleRows matches the DuckDB sniffer's default sample size.
const csvSampleRows = 20480

// Store is a DuckDB database file. Every call runs on its own connection
// and idle connections are not kept.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("duckdb path is required")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	db.SetMaxIdleConns(0)
	return &Store{db: db}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DescribeSchema(ctx context.Context) (query.Schema, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return query.Schema{}, fmt.Errorf("open connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	rows, err := conn.QueryContext(ctx, `
SELECT c.table_name, c.column_name, c.data_type
FROM information_schema.columns c
JOIN information_schema.tables t
  ON t.table_catalog = c.table_catalog
 AND t.table_schema = c.table_schema
 AND t.table_name = c.table_name
WHERE c.table_schema = 'main'
  AND c.table_catalog = current_database()
  AND t.table_type = 'BASE TABLE'
ORDER BY c.table_name, c.ordinal_position`)
	if err != nil {
		return query.Schema{}, fmt.Errorf("query columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	schema := query.Schema{Tables: []query.Table{}}
	for rows.Next() {
		var tableName, columnName, dataType string
		if err := rows.Scan(&tableName, &columnName, &dataType); err != nil {
			return query.Schema{}, fmt.Errorf("scan column: %w", err)
		}
		last := len(schema.Tables) - 1
		if last < 0 || schema.Tables[last].Name != tableName {
			schema.Tables = append(schema.Tables, query.Table{Name: tableName})
			last++
		}
		schema.Tables[last].Columns = append(schema.Tables[last].Columns, query.Column{Name: columnName, Type: dataType})
	}
	if err := rows.Err(); err != nil {
		return query.Schema{}, fmt.Errorf("iterate columns: %w", err)
	}
	return schema, nil
}

func (s *Store) Execute(ctx context.Context, sqlText string) query.Result {
	result, err := s.execute(ctx, sqlText)
	if err != nil {
		return query.ExecutionError{Message: err.Error()}
	}
	return result
}

func (s *Store) execute(ctx context.Context, sqlText string) (result query.Rows, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("execute query: panic: %v", r)
		}
	}()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return query.Rows{}, fmt.Errorf("open connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Rows{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Rows{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Rows{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Rows{}, fmt.Errorf("iterate rows: %w", err)
	}

	return query.Rows{Columns: columns, Rows: resultRows}, nil
}

// LoadFile replaces table with the contents of a CSV or Parquet file and
// returns the loaded row count.
func (s *Store) LoadFile(ctx context.Context, table, path string) (int64, error) {
	reader := fmt.Sprintf("read_parquet(%s)", quoteString(path))
	if !strings.EqualFold(filepath.Ext(path), ".parquet") {
		var err error
		reader, err = csvReader(path)
		if err != nil {
			return 0, err
		}
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("open connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	createSQL := fmt.Sprintf(`CREATE OR REPLACE TABLE %s AS SELECT * FROM %s`, quoteIdent(table), reader)
	if _, err := conn.ExecContext(ctx, createSQL); err != nil {
		return 0, fmt.Errorf("load table %q from %q: %w", table, path, err)
	}

	var count int64
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+quoteIdent(table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count table %q: %w", table, err)
	}
	return count, nil
}

// csvReader builds a read_csv_auto call that keeps code-like columns as VARCHAR.
func csvReader(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open csv: %w", err)
	}
	defer func() { _ = file.Close() }()
	codes, err := query.CodeColumns(file, csvSampleRows)
	if err != nil {
		return "", fmt.Errorf("sniff csv %q: %w", path, err)
	}
	if len(codes) == 0 {
		return fmt.Sprintf("read_csv_auto(%s, header = true)", quoteString(path)), nil
	}
	types := make([]string, len(codes))
	for i, column := range codes {
		types[i] = quoteString(column) + ": 'VARCHAR'"
	}
	return fmt.Sprintf("read_csv_auto(%s, header = true, types = {%s})", quoteString(path), strings.Join(types, ", ")), nil
}

func (s *Store) RenameColumn(ctx context.Context, table, from, to string) error {
	renameSQL := fmt.Sprintf(`ALTER TABLE %s RENAME COLUMN %s TO %s`, quoteIdent(table), quoteIdent(from), quoteIdent(to))
	if _, err := s.db.ExecContext(ctx, renameSQL); err != nil {
		return fmt.Errorf("rename column %q.%q: %w", table, from, err)
	}
	return nil
}

func (s *Store) CreateIndex(ctx context.Context, table, column string) error {
	name := "idx_" + table + "_" + strings.ToLower(column)
	indexSQL := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (%s)`, quoteIdent(name), quoteIdent(table), quoteIdent(column))
	if _, err := s.db.ExecContext(ctx, indexSQL); err != nil {
		return fmt.Errorf("create index %q: %w", name, err)
	}
	return nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		case *big.Int:
			if typed.IsInt64() {
				normalized[i] = typed.Int64()
			} else {
				normalized[i] = typed.String()
			}
		case duckdb.Decimal:
			normalized[i] = typed.Float64()
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

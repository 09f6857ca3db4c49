package sqlite

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/receiptqa/receiptqa/internal/query"
)

const insertBatchSize = 500

// Store is a SQLite database file holding the receipts and items tables.
// Every call runs on its own connection.
type Store struct {
	db *sqlx.DB
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
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

type columnInfo struct {
	Name string `db:"name"`
	Type string `db:"type"`
}

func (s *Store) DescribeSchema(ctx context.Context) (query.Schema, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return query.Schema{}, fmt.Errorf("open connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	var tables []string
	if err := conn.SelectContext(ctx, &tables, `
SELECT name
FROM sqlite_master
WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
ORDER BY rowid`); err != nil {
		return query.Schema{}, fmt.Errorf("list tables: %w", err)
	}

	schema := query.Schema{Tables: make([]query.Table, 0, len(tables))}
	for _, tableName := range tables {
		var columns []columnInfo
		if err := conn.SelectContext(ctx, &columns, `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`, tableName); err != nil {
			return query.Schema{}, fmt.Errorf("describe table %q: %w", tableName, err)
		}
		table := query.Table{Name: tableName, Columns: make([]query.Column, 0, len(columns))}
		for _, column := range columns {
			table.Columns = append(table.Columns, query.Column{Name: column.Name, Type: column.Type})
		}
		schema.Tables = append(schema.Tables, table)
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

	conn, err := s.db.Connx(ctx)
	if err != nil {
		return query.Rows{}, fmt.Errorf("open connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	rows, err := conn.QueryxContext(ctx, sqlText)
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
		values, err := rows.SliceScan()
		if err != nil {
			return query.Rows{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Rows{}, fmt.Errorf("iterate rows: %w", err)
	}
	return query.Rows{Columns: columns, Rows: resultRows}, nil
}

// LoadFile replaces table with the rows of a CSV file. Column affinity is
// inferred per column: INTEGER, REAL, or TEXT. Code-like digit strings stay TEXT.
func (s *Store) LoadFile(ctx context.Context, table, path string) (int64, error) {
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return 0, fmt.Errorf("load table %q: parquet extracts require the duckdb store", table)
	}

	header, records, err := readCSV(path)
	if err != nil {
		return 0, fmt.Errorf("load table %q: %w", table, err)
	}
	types := inferColumnTypes(len(header), records)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin load tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+quoteIdent(table)); err != nil {
		return 0, fmt.Errorf("drop table %q: %w", table, err)
	}
	definitions := make([]string, len(header))
	for i, name := range header {
		definitions[i] = quoteIdent(name) + " " + types[i]
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE %s (%s)`, quoteIdent(table), strings.Join(definitions, ", "))); err != nil {
		return 0, fmt.Errorf("create table %q: %w", table, err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(header)), ", ")
	stmt, err := tx.PreparexContext(ctx, fmt.Sprintf(`INSERT INTO %s VALUES (%s)`, quoteIdent(table), placeholders))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, record := range records {
		if _, err := stmt.ExecContext(ctx, convertRecord(record, types)...); err != nil {
			return 0, fmt.Errorf("insert row %d into %q: %w", i+1, table, err)
		}
		if (i+1)%insertBatchSize == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit load of %q: %w", table, err)
	}
	return int64(len(records)), nil
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

func readCSV(path string) ([]string, [][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open csv: %w", err)
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("csv %q is empty", path)
		}
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	var records [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read csv record: %w", err)
		}
		if len(record) != len(header) {
			return nil, nil, fmt.Errorf("csv record %d has %d fields, want %d", len(records)+1, len(record), len(header))
		}
		records = append(records, record)
	}
	return header, records, nil
}

func inferColumnTypes(width int, records [][]string) []string {
	types := make([]string, width)
	for col := 0; col < width; col++ {
		isInt, isReal, seen := true, true, false
		for _, record := range records {
			value := strings.TrimSpace(record[col])
			if value == "" {
				continue
			}
			seen = true
			if query.IsCodeLike(value) {
				isInt, isReal = false, false
				break
			}
			if _, err := strconv.ParseInt(value, 10, 64); err != nil {
				isInt = false
			}
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				isReal = false
			}
			if !isInt && !isReal {
				break
			}
		}
		switch {
		case seen && isInt:
			types[col] = "INTEGER"
		case seen && isReal:
			types[col] = "REAL"
		default:
			types[col] = "TEXT"
		}
	}
	return types
}

func convertRecord(record []string, types []string) []any {
	args := make([]any, len(record))
	for i, raw := range record {
		value := strings.TrimSpace(raw)
		if value == "" {
			args[i] = nil
			continue
		}
		switch types[i] {
		case "INTEGER":
			parsed, _ := strconv.ParseInt(value, 10, 64)
			args[i] = parsed
		case "REAL":
			parsed, _ := strconv.ParseFloat(value, 64)
			args[i] = parsed
		default:
			args[i] = raw
		}
	}
	return args
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		case sql.RawBytes:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

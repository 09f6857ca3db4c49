package query

import (
	"context"
	"strings"
)

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Schema lists the tables of a store in the store's own ordering.
type Schema struct {
	Tables []Table `json:"tables"`
}

// Render formats the schema the way it is embedded into prompts.
func (s Schema) Render() string {
	blocks := make([]string, 0, len(s.Tables))
	for _, table := range s.Tables {
		var b strings.Builder
		b.WriteString("Tabela: ")
		b.WriteString(table.Name)
		b.WriteString("\nColunas:\n")
		for _, column := range table.Columns {
			b.WriteString("  - ")
			b.WriteString(column.Name)
			b.WriteString(" (")
			b.WriteString(column.Type)
			b.WriteString(")\n")
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n")
}

// Result is either Rows or ExecutionError.
type Result interface {
	isResult()
}

type Rows struct {
	Columns []string
	Rows    [][]any
}

func (Rows) isResult() {}

// Scalar reports the single cell of a one-row, one-column result.
func (r Rows) Scalar() (any, bool) {
	if len(r.Rows) != 1 || len(r.Columns) != 1 || len(r.Rows[0]) != 1 {
		return nil, false
	}
	return r.Rows[0][0], true
}

type ExecutionError struct {
	Message string
}

func (ExecutionError) isResult() {}

type SchemaReader interface {
	DescribeSchema(ctx context.Context) (Schema, error)
}

// Executor runs SQL. Execution faults are reported as ExecutionError values.
type Executor interface {
	Execute(ctx context.Context, sql string) Result
}

type Store interface {
	SchemaReader
	Executor
	Ping(ctx context.Context) error
	Close() error
}

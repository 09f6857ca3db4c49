package answer

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/receiptqa/receiptqa/internal/query"
)

// MaxContextRows bounds how many result rows are shown to the model.
const MaxContextRows = 10

// RenderContext formats a query result for the answer prompt.
func RenderContext(result query.Result) string {
	switch typed := result.(type) {
	case query.Rows:
		if value, ok := typed.Scalar(); ok {
			return "Resultado da consulta: " + formatCell(value)
		}
		if len(typed.Rows) > MaxContextRows {
			return fmt.Sprintf("Resultado da consulta (mostrando primeiras %d linhas de %d):\n%s",
				MaxContextRows, len(typed.Rows), renderTable(typed.Columns, typed.Rows[:MaxContextRows]))
		}
		return "Resultado da consulta:\n" + renderTable(typed.Columns, typed.Rows)
	case query.ExecutionError:
		return "Erro: " + typed.Message
	default:
		return "Erro: resultado desconhecido"
	}
}

func renderTable(columns []string, rows [][]any) string {
	var buf bytes.Buffer
	writer := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(writer, strings.Join(columns, "\t"))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = sanitizeCell(formatCell(value))
		}
		_, _ = fmt.Fprintln(writer, strings.Join(cells, "\t"))
	}
	_ = writer.Flush()
	return strings.TrimRight(buf.String(), "\n")
}

func formatCell(value any) string {
	switch typed := value.(type) {
	case nil:
		return "NULL"
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case time.Time:
		if typed.Hour() == 0 && typed.Minute() == 0 && typed.Second() == 0 && typed.Nanosecond() == 0 {
			return typed.Format(time.DateOnly)
		}
		return typed.Format(time.DateTime)
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprintf("%v", typed)
	}
}

// sanitizeCell keeps one table row on one line.
func sanitizeCell(value string) string {
	return strings.NewReplacer("\t", " ", "\n", " ", "\r", " ").Replace(value)
}

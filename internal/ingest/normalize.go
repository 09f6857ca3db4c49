package ingest

import (
	"path/filepath"
	"strings"
)

var columnNameReplacer = strings.NewReplacer(" ", "_", "Ç", "C", "Ã", "A", "Õ", "O")

// NormalizeColumnName rewrites an extract header into the column name used in
// prompts: spaces become underscores and Ç, Ã, Õ lose their diacritics.
func NormalizeColumnName(name string) string {
	return columnNameReplacer.Replace(name)
}

type extractKind struct {
	table  string
	suffix string
}

// matchesSuffix accepts the configured CSV suffix and its Parquet twin.
func matchesSuffix(fileName, suffix string) bool {
	stem := strings.TrimSuffix(suffix, filepath.Ext(suffix))
	lower := strings.ToLower(fileName)
	for _, ext := range []string{".csv", ".parquet"} {
		if strings.HasSuffix(lower, strings.ToLower(stem+ext)) {
			return true
		}
	}
	return false
}

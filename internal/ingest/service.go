package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/receiptqa/receiptqa/internal/observability"
	"github.com/receiptqa/receiptqa/internal/query"
	"github.com/receiptqa/receiptqa/internal/storage"
)

const (
	TableReceipts = "receipts"
	TableItems    = "items"

	// JoinColumn links items to their receipt and is indexed on both tables.
	JoinColumn = "CHAVE_DE_ACESSO"
)

// Loader is the write side of a query store.
type Loader interface {
	query.SchemaReader
	LoadFile(ctx context.Context, table, path string) (int64, error)
	RenameColumn(ctx context.Context, table, from, to string) error
	CreateIndex(ctx context.Context, table, column string) error
}

type Config struct {
	// ArchivePath is a local extract archive. Ignored when Objects is set.
	ArchivePath string
	// ArchiveKey is an object key, or a prefix ending in "/" to pick the newest archive.
	ArchiveKey   string
	UnzipDir     string
	HeaderSuffix string
	ItemsSuffix  string
}

type Service struct {
	Loader  Loader
	Objects storage.ObjectStore
	Logger  *slog.Logger
	Config  Config
}

type TableReport struct {
	Table   string   `json:"table"`
	File    string   `json:"file"`
	Rows    int64    `json:"rows"`
	Renamed []string `json:"renamed,omitempty"`
	Indexed bool     `json:"indexed"`
}

type Report struct {
	Archive  string        `json:"archive"`
	Tables   []TableReport `json:"tables"`
	Duration time.Duration `json:"duration"`
}

// Run fetches the extract archive, unzips it and replaces the receipts and
// items tables with its contents.
func (s *Service) Run(ctx context.Context) (Report, error) {
	if s.Loader == nil {
		return Report{}, fmt.Errorf("ingest loader is required")
	}
	start := time.Now()
	logger := s.logger()

	archive, err := s.resolveArchive(ctx)
	if err != nil {
		return Report{}, err
	}
	logger.InfoContext(ctx, "extract_archive_resolved", slog.String("archive", archive))

	files, err := Unzip(archive, s.Config.UnzipDir)
	if err != nil {
		return Report{}, err
	}
	selected, err := DetectExtracts(files, s.Config.HeaderSuffix, s.Config.ItemsSuffix)
	if err != nil {
		return Report{}, err
	}

	report := Report{Archive: archive, Tables: make([]TableReport, 0, len(selected))}
	for _, table := range []string{TableReceipts, TableItems} {
		tableReport, err := s.loadTable(ctx, table, selected[table])
		if err != nil {
			return Report{}, err
		}
		report.Tables = append(report.Tables, tableReport)
		logger.InfoContext(ctx, "extract_table_loaded",
			slog.String("table", table),
			slog.String("file", tableReport.File),
			slog.Int64("rows", tableReport.Rows),
			slog.Int("renamed_columns", len(tableReport.Renamed)),
		)
	}
	report.Duration = time.Since(start)
	return report, nil
}

func (s *Service) resolveArchive(ctx context.Context) (string, error) {
	if s.Objects != nil {
		dir := filepath.Join(s.Config.UnzipDir, ".archives")
		return FetchArchive(ctx, s.Objects, s.Config.ArchiveKey, dir)
	}
	archive := strings.TrimSpace(s.Config.ArchivePath)
	if archive == "" {
		return "", fmt.Errorf("extract archive path is required")
	}
	if _, err := os.Stat(archive); err != nil {
		return "", fmt.Errorf("extract archive %q: %w", archive, err)
	}
	return archive, nil
}

func (s *Service) loadTable(ctx context.Context, table, file string) (TableReport, error) {
	rows, err := s.Loader.LoadFile(ctx, table, file)
	if err != nil {
		return TableReport{}, err
	}
	observability.ObserveIngestRows(table, rows)

	report := TableReport{Table: table, File: filepath.Base(file), Rows: rows}
	columns, err := s.tableColumns(ctx, table)
	if err != nil {
		return TableReport{}, err
	}
	hasJoin := false
	for _, column := range columns {
		normalized := NormalizeColumnName(column)
		if normalized != column {
			if err := s.Loader.RenameColumn(ctx, table, column, normalized); err != nil {
				return TableReport{}, err
			}
			report.Renamed = append(report.Renamed, column+" -> "+normalized)
		}
		if normalized == JoinColumn {
			hasJoin = true
		}
	}
	if hasJoin {
		if err := s.Loader.CreateIndex(ctx, table, JoinColumn); err != nil {
			return TableReport{}, err
		}
		report.Indexed = true
	} else {
		s.logger().WarnContext(ctx, "extract_join_column_missing", slog.String("table", table), slog.String("column", JoinColumn))
	}
	return report, nil
}

func (s *Service) tableColumns(ctx context.Context, table string) ([]string, error) {
	schema, err := s.Loader.DescribeSchema(ctx)
	if err != nil {
		return nil, fmt.Errorf("describe loaded table %q: %w", table, err)
	}
	for _, candidate := range schema.Tables {
		if candidate.Name != table {
			continue
		}
		columns := make([]string, 0, len(candidate.Columns))
		for _, column := range candidate.Columns {
			columns = append(columns, column.Name)
		}
		return columns, nil
	}
	return nil, fmt.Errorf("loaded table %q not found in schema", table)
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s.Logger
}

// DetectExtracts picks exactly one header file and one items file from the
// unzipped archive.
func DetectExtracts(files []string, headerSuffix, itemsSuffix string) (map[string]string, error) {
	kinds := []extractKind{
		{table: TableReceipts, suffix: headerSuffix},
		{table: TableItems, suffix: itemsSuffix},
	}
	selected := make(map[string]string, len(kinds))
	for _, kind := range kinds {
		if strings.TrimSpace(kind.suffix) == "" {
			return nil, fmt.Errorf("suffix for table %q is required", kind.table)
		}
		for _, file := range files {
			if !matchesSuffix(filepath.Base(file), kind.suffix) {
				continue
			}
			if existing, ok := selected[kind.table]; ok {
				return nil, fmt.Errorf("ambiguous %s extract: %q and %q", kind.table, filepath.Base(existing), filepath.Base(file))
			}
			selected[kind.table] = file
		}
		if _, ok := selected[kind.table]; !ok {
			return nil, fmt.Errorf("no %s extract matching %q in archive", kind.table, kind.suffix)
		}
	}
	return selected, nil
}

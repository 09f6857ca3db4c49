package extracts

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"github.com/receiptqa/receiptqa/internal/storage"
)

// Result describes what one Publish call wrote.
type Result struct {
	ArchivePath string
	ArchiveKey  string
	Files       []string
	Receipts    int
	Items       int
}

type Publisher struct {
	cfg     Config
	log     *slog.Logger
	objects storage.ObjectStore
}

// NewPublisher builds a publisher. objects may be nil when cfg.Upload is false.
func NewPublisher(cfg Config, logger *slog.Logger, objects storage.ObjectStore) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Upload && objects == nil {
		return nil, fmt.Errorf("upload requested but no object store is configured")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Publisher{cfg: cfg, log: logger, objects: objects}, nil
}

// Publish writes the header and item extracts for the configured month, packs
// them into <YYYYMM>_NFs.zip and optionally uploads the archive.
func (p *Publisher) Publish(ctx context.Context) (Result, error) {
	if err := os.MkdirAll(p.cfg.OutDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}

	generator := NewGenerator(p.cfg.Seed, p.cfg.Period, p.cfg.IssuerCount, p.cfg.MaxItems)
	receipts := make([]Receipt, 0, p.cfg.Receipts)
	items := make([]Item, 0, p.cfg.Receipts*p.cfg.MaxItems)
	for i := 0; i < p.cfg.Receipts; i++ {
		receipt, lines := generator.Next()
		receipts = append(receipts, receipt)
		items = append(items, lines...)
	}

	prefix := p.cfg.Period.Format("200601") + "_NFs"
	headerPath := filepath.Join(p.cfg.OutDir, prefix+"_Cabecalho."+p.cfg.Format)
	itemsPath := filepath.Join(p.cfg.OutDir, prefix+"_Itens."+p.cfg.Format)
	if err := writeExtract(p.cfg.Format, headerPath, receiptHeader, receipts, receiptRecord); err != nil {
		return Result{}, err
	}
	if err := writeExtract(p.cfg.Format, itemsPath, itemHeader, items, itemRecord); err != nil {
		return Result{}, err
	}

	archiveName := storage.ExtractArchiveName(p.cfg.Period)
	archivePath := filepath.Join(p.cfg.OutDir, archiveName)
	if err := writeArchive(archivePath, headerPath, itemsPath); err != nil {
		return Result{}, err
	}
	result := Result{
		ArchivePath: archivePath,
		Files:       []string{headerPath, itemsPath},
		Receipts:    len(receipts),
		Items:       len(items),
	}
	p.log.Info("demo extract written",
		slog.String("archive", archivePath),
		slog.Int("receipts", result.Receipts),
		slog.Int("items", result.Items),
		slog.String("format", p.cfg.Format),
	)

	if !p.cfg.Upload {
		return result, nil
	}
	key, err := storage.BuildExtractKey(p.cfg.Period, archiveName)
	if err != nil {
		return Result{}, fmt.Errorf("build extract key: %w", err)
	}
	if err := p.upload(ctx, key, archivePath); err != nil {
		return Result{}, err
	}
	result.ArchiveKey = key
	p.log.Info("demo extract uploaded", slog.String("key", key))
	return result, nil
}

func writeExtract[T any](format, path string, header []string, rows []T, record func(T) []string) error {
	if format == FormatParquet {
		return writeParquet(path, rows)
	}
	records := make([][]string, 0, len(rows)+1)
	records = append(records, header)
	for _, row := range rows {
		records = append(records, record(row))
	}
	return writeCSV(path, records)
}

func (p *Publisher) upload(ctx context.Context, key, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = file.Close() }()
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}
	opts := storage.PutOptions{
		ContentType: "application/zip",
		Metadata:    map[string]string{storage.MetadataPeriod: p.cfg.Period.Format("2006-01")},
	}
	if _, err := p.objects.Put(ctx, key, file, info.Size(), opts); err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}
	return nil
}

func writeCSV(path string, records [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	writer := csv.NewWriter(file)
	if err := writer.WriteAll(records); err != nil {
		_ = file.Close()
		return fmt.Errorf("write csv: %w", err)
	}
	return file.Close()
}

func writeParquet[T any](path string, rows []T) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	writer := parquet.NewGenericWriter[T](file)
	if _, err := writer.Write(rows); err != nil {
		_ = file.Close()
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		_ = file.Close()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return file.Close()
}

func writeArchive(archivePath string, files ...string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	zw := zip.NewWriter(out)
	for _, path := range files {
		if err := addToArchive(zw, path); err != nil {
			_ = zw.Close()
			_ = out.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		return fmt.Errorf("close archive: %w", err)
	}
	return out.Close()
}

func addToArchive(zw *zip.Writer, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer func() { _ = in.Close() }()
	entry, err := zw.Create(filepath.Base(path))
	if err != nil {
		return fmt.Errorf("add %s to archive: %w", filepath.Base(path), err)
	}
	if _, err := io.Copy(entry, in); err != nil {
		return fmt.Errorf("copy %s into archive: %w", filepath.Base(path), err)
	}
	return nil
}

func receiptRecord(r Receipt) []string {
	return []string{
		r.ChaveDeAcesso, r.NaturezaOperacao, r.DataEmissao, r.RazaoSocial,
		r.UFEmitente, r.MunicipioEmitente, r.UFDestinatario, formatMoney(r.ValorNotaFiscal),
	}
}

func itemRecord(it Item) []string {
	return []string{
		it.ChaveDeAcesso, it.DataEmissao, strconv.FormatInt(it.NumeroProduto, 10), it.Descricao, it.CFOP,
		strconv.FormatFloat(it.Quantidade, 'f', -1, 64), it.Unidade, formatMoney(it.ValorUnitario), formatMoney(it.ValorTotal),
	}
}

func formatMoney(value float64) string {
	return strconv.FormatFloat(value, 'f', 2, 64)
}

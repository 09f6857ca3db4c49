package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/receiptqa/receiptqa/internal/app"
	"github.com/receiptqa/receiptqa/internal/config"
	"github.com/receiptqa/receiptqa/internal/observability"
)

func main() {
	archive := flag.String("archive", "", "local extract archive; overrides RECEIPTQA_EXTRACT_ARCHIVE_DIR/NAME")
	key := flag.String("key", "", "object key or prefix ending in / to fetch the archive from the object store")
	flag.Parse()

	cfg, err := config.LoadFromEnv("receiptqa-ingest")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := app.OpenStore(cfg)
	if err != nil {
		logger.Error("failed to open query store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	if *key != "" {
		cfg.ObjectStore.Enabled = true
		cfg.Extract.ArchiveKey = *key
	}
	objects, err := app.OpenObjectStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	service := app.NewIngest(cfg, store, objects, logger)
	if *archive != "" {
		service.Objects = nil
		service.Config.ArchivePath = *archive
	}
	report, err := service.Run(ctx)
	if err != nil {
		logger.Error("ingest failed", slog.Any("error", err))
		os.Exit(1)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(report)
}

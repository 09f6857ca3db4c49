package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/receiptqa/receiptqa/internal/app"
	"github.com/receiptqa/receiptqa/internal/config"
	"github.com/receiptqa/receiptqa/internal/demo/extracts"
	"github.com/receiptqa/receiptqa/internal/observability"
	"github.com/receiptqa/receiptqa/internal/storage"
)

func main() {
	baseCfg, err := config.LoadFromEnv("receiptqa-demo-extracts")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(baseCfg, os.Stdout)

	cfg, err := extracts.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		logger.Error("failed to load demo config", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var objects storage.ObjectStore
	if cfg.Upload {
		baseCfg.ObjectStore.Enabled = true
		objects, err = app.OpenObjectStore(ctx, baseCfg)
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
	}

	publisher, err := extracts.NewPublisher(cfg, logger, objects)
	if err != nil {
		logger.Error("failed to initialize demo publisher", slog.Any("error", err))
		os.Exit(1)
	}
	result, err := publisher.Publish(ctx)
	if err != nil {
		logger.Error("demo publish failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("demo extracts ready",
		slog.String("archive", result.ArchivePath),
		slog.String("key", result.ArchiveKey),
		slog.Int("receipts", result.Receipts),
		slog.Int("items", result.Items),
	)
}

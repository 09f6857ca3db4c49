package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/receiptqa/receiptqa/internal/app"
	"github.com/receiptqa/receiptqa/internal/config"
	"github.com/receiptqa/receiptqa/internal/mcpserver"
	"github.com/receiptqa/receiptqa/internal/observability"
)

func main() {
	cfg, err := config.LoadFromEnv("receiptqa-mcp")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	// stdout carries the MCP protocol.
	logger := observability.NewLogger(cfg, os.Stderr)

	store, err := app.OpenStore(cfg)
	if err != nil {
		logger.Error("failed to open query store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if cfg.Extract.LoadOnStart {
		objects, err := app.OpenObjectStore(ctx, cfg)
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		if _, err := app.NewIngest(cfg, store, objects, logger).Run(ctx); err != nil {
			logger.Error("ingest on start failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	mem, err := app.OpenMemory(ctx, cfg)
	if err != nil {
		logger.Error("failed to open memory store", slog.String("error", observability.Mask(err.Error())))
		os.Exit(1)
	}
	defer func() { _ = mem.Close() }()

	model, err := app.NewLLM(cfg)
	if err != nil {
		logger.Error("failed to initialize language model client", slog.Any("error", err))
		os.Exit(1)
	}

	s := mcpserver.New(mcpserver.Dependencies{
		Asker:  app.NewPipeline(cfg, store, model, mem, logger),
		Schema: store,
		Logger: logger,
	})
	logger.Info("serving mcp over stdio", slog.String("model", model.Model()))
	if err := server.ServeStdio(s); err != nil {
		logger.Error("mcp server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

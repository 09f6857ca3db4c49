package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/receiptqa/receiptqa/internal/api"
	"github.com/receiptqa/receiptqa/internal/app"
	"github.com/receiptqa/receiptqa/internal/auth"
	"github.com/receiptqa/receiptqa/internal/config"
	"github.com/receiptqa/receiptqa/internal/observability"
)

func main() {
	cfg, err := config.LoadFromEnv("receiptqa-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	store, err := app.OpenStore(cfg)
	if err != nil {
		logger.Error("failed to open query store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	objects, err := app.OpenObjectStore(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.Extract.LoadOnStart {
		report, err := app.NewIngest(cfg, store, objects, logger).Run(context.Background())
		if err != nil {
			logger.Error("failed to load extracts", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("extracts loaded",
			slog.String("archive", report.Archive),
			slog.String("duration", report.Duration.String()),
		)
	}

	mem, err := app.OpenMemory(context.Background(), cfg)
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

	deps := api.Dependencies{
		Logger: logger,
		Asker:  app.NewPipeline(cfg, store, model, mem, logger),
		Schema: store,
		Memory: mem,
		Readiness: api.CombineReadinessChecks(
			api.CheckStore(store),
			mem.HealthCheck,
			api.CheckObjectStore(objects),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("model", model.Model()),
			slog.String("store", cfg.Store.Path()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/receiptqa/receiptqa/internal/answer"
	"github.com/receiptqa/receiptqa/internal/config"
	"github.com/receiptqa/receiptqa/internal/ingest"
	"github.com/receiptqa/receiptqa/internal/llm"
	"github.com/receiptqa/receiptqa/internal/memory"
	memorypostgres "github.com/receiptqa/receiptqa/internal/memory/postgres"
	memoryredis "github.com/receiptqa/receiptqa/internal/memory/redis"
	"github.com/receiptqa/receiptqa/internal/migrations"
	"github.com/receiptqa/receiptqa/internal/nl2sql"
	"github.com/receiptqa/receiptqa/internal/pipeline"
	"github.com/receiptqa/receiptqa/internal/query"
	"github.com/receiptqa/receiptqa/internal/query/duckdb"
	"github.com/receiptqa/receiptqa/internal/query/sqlite"
	"github.com/receiptqa/receiptqa/internal/storage"
	s3store "github.com/receiptqa/receiptqa/internal/storage/s3"
)

// QueryStore is a store that can both answer questions and load extracts.
type QueryStore interface {
	query.Store
	ingest.Loader
}

func OpenStore(cfg config.Config) (QueryStore, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverDuckDB:
		store, err := duckdb.Open(cfg.Store.Path())
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoreDriverSQLite:
		store, err := sqlite.Open(cfg.Store.Path())
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

// OpenObjectStore returns nil when the object store is disabled.
func OpenObjectStore(ctx context.Context, cfg config.Config) (storage.ObjectStore, error) {
	if !cfg.ObjectStore.Enabled {
		return nil, nil
	}
	store, err := s3store.New(ctx, s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}
	return store, nil
}

// Memory is a memory store plus whatever must be released on shutdown.
type Memory struct {
	memory.Store
	HealthCheck func(ctx context.Context) error
	close       func() error
}

func (m *Memory) Close() error {
	if m.close == nil {
		return nil
	}
	return m.close()
}

func OpenMemory(ctx context.Context, cfg config.Config) (*Memory, error) {
	switch cfg.Memory.Backend {
	case config.MemoryBackendInMemory:
		store := memory.NewInMemory()
		store.MaxMessages = cfg.Memory.MaxMessages
		return &Memory{Store: store}, nil
	case config.MemoryBackendPostgres:
		db, err := memorypostgres.Open(ctx, memorypostgres.DBConfig{
			DSN:             cfg.Memory.PostgresDSN,
			MaxOpenConns:    cfg.Memory.MaxOpenConns,
			MaxIdleConns:    cfg.Memory.MaxOpenConns,
			ConnMaxLifetime: cfg.Memory.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		if err := prepareMemorySchema(ctx, db, cfg.Memory.AutoMigrate); err != nil {
			_ = db.Close()
			return nil, err
		}
		repo := memorypostgres.NewRepository(db)
		return &Memory{Store: repo, HealthCheck: repo.HealthCheck, close: db.Close}, nil
	case config.MemoryBackendRedis:
		store, err := memoryredis.Open(ctx, cfg.Memory.RedisURL, cfg.Memory.RedisKeyPrefix)
		if err != nil {
			return nil, err
		}
		store.MaxMessages = cfg.Memory.MaxMessages
		return &Memory{Store: store, close: store.Close}, nil
	default:
		return nil, fmt.Errorf("unsupported memory backend %q", cfg.Memory.Backend)
	}
}

// prepareMemorySchema applies pending migrations, or refuses to start on a
// stale schema when auto-migration is off.
func prepareMemorySchema(ctx context.Context, db *sql.DB, autoMigrate bool) error {
	runner := migrations.NewRunner()
	if autoMigrate {
		if _, err := runner.Up(ctx, db, 0); err != nil {
			return fmt.Errorf("migrate memory schema: %w", err)
		}
		return nil
	}
	pending, err := runner.Pending(ctx, db)
	if err != nil {
		return fmt.Errorf("check memory schema: %w", err)
	}
	if pending > 0 {
		return fmt.Errorf("memory schema has %d pending migration(s); run receiptqa-migrate", pending)
	}
	return nil
}

func NewLLM(cfg config.Config) (*llm.OpenAIClient, error) {
	return llm.NewOpenAIClient(llm.OpenAIConfig{
		BaseURL: cfg.AI.BaseURL,
		APIKey:  cfg.AI.APIKey,
		Model:   cfg.AI.Model,
		Timeout: cfg.AI.Timeout,
	})
}

func NewPipeline(cfg config.Config, store query.Store, model llm.Client, mem memory.Store, logger *slog.Logger) *pipeline.Service {
	dialect := "DuckDB"
	if cfg.Store.Driver == config.StoreDriverSQLite {
		dialect = "SQLite"
	}
	return &pipeline.Service{
		Schema:   store,
		Executor: store,
		SQL:      &nl2sql.Synthesizer{LLM: model, Temperature: cfg.AI.Temperature, Dialect: dialect},
		Answer:   &answer.Synthesizer{LLM: model, Temperature: cfg.AI.Temperature},
		Memory:   mem,
		Logger:   logger,
	}
}

func NewIngest(cfg config.Config, loader ingest.Loader, objects storage.ObjectStore, logger *slog.Logger) *ingest.Service {
	return &ingest.Service{
		Loader:  loader,
		Objects: objects,
		Logger:  logger,
		Config: ingest.Config{
			ArchivePath:  filepath.Join(cfg.Extract.ArchiveDir, cfg.Extract.ArchiveName),
			ArchiveKey:   cfg.Extract.ArchiveKey,
			UnzipDir:     cfg.Extract.UnzipDir,
			HeaderSuffix: cfg.Extract.HeaderSuffix,
			ItemsSuffix:  cfg.Extract.ItemsSuffix,
		},
	}
}

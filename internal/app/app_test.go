package app

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/receiptqa/receiptqa/internal/config"
	"github.com/receiptqa/receiptqa/internal/memory"
	"github.com/receiptqa/receiptqa/internal/nl2sql"
	"github.com/receiptqa/receiptqa/internal/query/duckdb"
	"github.com/receiptqa/receiptqa/internal/query/sqlite"
)

func TestOpenStoreByDriver(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"RECEIPTQA_STORE_DIR": t.TempDir()})
	store, err := OpenStore(cfg)
	if err != nil {
		t.Fatalf("OpenStore(duckdb) error = %v", err)
	}
	defer func() { _ = store.Close() }()
	if _, ok := store.(*duckdb.Store); !ok {
		t.Fatalf("store = %T", store)
	}

	cfg.Store.Driver = config.StoreDriverSQLite
	cfg.Store.Name = "receipts.db"
	lite, err := OpenStore(cfg)
	if err != nil {
		t.Fatalf("OpenStore(sqlite) error = %v", err)
	}
	defer func() { _ = lite.Close() }()
	if _, ok := lite.(*sqlite.Store); !ok {
		t.Fatalf("store = %T", lite)
	}
	if err := lite.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	cfg.Store.Driver = "oracle"
	if _, err := OpenStore(cfg); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}

func TestOpenObjectStoreDisabled(t *testing.T) {
	objects, err := OpenObjectStore(context.Background(), loadConfig(t, nil))
	if err != nil {
		t.Fatalf("OpenObjectStore() error = %v", err)
	}
	if objects != nil {
		t.Fatalf("objects = %#v, want nil when disabled", objects)
	}
}

func TestOpenMemoryInMemory(t *testing.T) {
	mem, err := OpenMemory(context.Background(), loadConfig(t, map[string]string{"RECEIPTQA_MEMORY_MAX_MESSAGES": "6"}))
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	defer func() { _ = mem.Close() }()
	store, ok := mem.Store.(*memory.InMemory)
	if !ok {
		t.Fatalf("store = %T", mem.Store)
	}
	if store.MaxMessages != 6 {
		t.Fatalf("MaxMessages = %d", store.MaxMessages)
	}

	cfg := loadConfig(t, nil)
	cfg.Memory.Backend = "dynamo"
	if _, err := OpenMemory(context.Background(), cfg); err == nil {
		t.Fatal("expected unsupported backend error")
	}
}

func TestNewPipelineUsesStoreDialect(t *testing.T) {
	cfg := loadConfig(t, nil)
	cfg.Store.Driver = config.StoreDriverSQLite
	service := NewPipeline(cfg, nil, nil, nil, nil)
	sql, ok := service.SQL.(*nl2sql.Synthesizer)
	if !ok {
		t.Fatalf("SQL = %T", service.SQL)
	}
	if sql.Dialect != "SQLite" || sql.Temperature != cfg.AI.Temperature {
		t.Fatalf("synthesizer = %#v", sql)
	}
}

func TestNewIngestUsesExtractConfig(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"RECEIPTQA_EXTRACT_ARCHIVE_DIR": "/srv/files"})
	service := NewIngest(cfg, nil, nil, nil)
	if service.Config.ArchivePath != filepath.Join("/srv/files", cfg.Extract.ArchiveName) {
		t.Fatalf("ArchivePath = %q", service.Config.ArchivePath)
	}
	if service.Config.HeaderSuffix != "_Cabecalho.csv" || service.Config.ItemsSuffix != "_Itens.csv" {
		t.Fatalf("Config = %#v", service.Config)
	}
}

func loadConfig(t *testing.T, env map[string]string) config.Config {
	t.Helper()
	cfg, err := config.Load("receiptqa-api", func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	})
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	return cfg
}

func TestPrepareMemorySchemaRefusesStaleSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS receiptqa_schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version, applied_at FROM receiptqa_schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version", "applied_at"}).AddRow(int64(1), time.Now()))

	err = prepareMemorySchema(context.Background(), db, false)
	if err == nil || !strings.Contains(err.Error(), "receiptqa-migrate") {
		t.Fatalf("prepareMemorySchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

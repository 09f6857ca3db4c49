package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	StoreDriverDuckDB = "duckdb"
	StoreDriverSQLite = "sqlite3"

	MemoryBackendInMemory = "memory"
	MemoryBackendPostgres = "postgres"
	MemoryBackendRedis    = "redis"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Store         StoreConfig
	Extract       ExtractConfig
	ObjectStore   ObjectStoreConfig
	AI            AIConfig
	Memory        MemoryConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type StoreConfig struct {
	Driver string
	Dir    string
	Name   string
}

// Path is the database file the store opens.
func (s StoreConfig) Path() string {
	return filepath.Join(s.Dir, s.Name)
}

type ExtractConfig struct {
	ArchiveDir   string
	ArchiveName  string
	ArchiveKey   string
	UnzipDir     string
	HeaderSuffix string
	ItemsSuffix  string
	LoadOnStart  bool
}

type ObjectStoreConfig struct {
	Enabled          bool
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type AIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type MemoryConfig struct {
	Backend         string
	PostgresDSN     string
	RedisURL        string
	RedisKeyPrefix  string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	// AutoMigrate applies pending memory schema migrations when the Postgres backend opens.
	AutoMigrate     bool
	// MaxMessages caps the history kept per client by the memory and redis backends. Zero disables the cap.
	MaxMessages     int
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

// LoadDotEnv loads the first .env style file found in the working directory.
// Variables already present in the process environment win.
func LoadDotEnv() {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err == nil {
			return
		}
	}
}

func LoadFromEnv(serviceName string) (Config, error) {
	LoadDotEnv()
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("RECEIPTQA_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid RECEIPTQA_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if path, ok := lookup("RECEIPTQA_CONFIG_FILE"); ok && strings.TrimSpace(path) != "" {
		if err := applyFile(strings.TrimSpace(path), &cfg); err != nil {
			return Config{}, err
		}
	}

	if key, ok := lookup("OPENAI_API_KEY"); ok {
		cfg.AI.APIKey = strings.TrimSpace(key)
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "RECEIPTQA_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "RECEIPTQA_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "RECEIPTQA_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "RECEIPTQA_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "RECEIPTQA_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "RECEIPTQA_STORE_DRIVER", &cfg.Store.Driver) },
		func() error { return applyString(lookup, "RECEIPTQA_STORE_DIR", &cfg.Store.Dir) },
		func() error { return applyString(lookup, "RECEIPTQA_STORE_NAME", &cfg.Store.Name) },
		func() error { return applyString(lookup, "RECEIPTQA_EXTRACT_ARCHIVE_DIR", &cfg.Extract.ArchiveDir) },
		func() error { return applyString(lookup, "RECEIPTQA_EXTRACT_ARCHIVE_NAME", &cfg.Extract.ArchiveName) },
		func() error { return applyString(lookup, "RECEIPTQA_EXTRACT_ARCHIVE_KEY", &cfg.Extract.ArchiveKey) },
		func() error { return applyString(lookup, "RECEIPTQA_EXTRACT_UNZIP_DIR", &cfg.Extract.UnzipDir) },
		func() error { return applyString(lookup, "RECEIPTQA_EXTRACT_HEADER_SUFFIX", &cfg.Extract.HeaderSuffix) },
		func() error { return applyString(lookup, "RECEIPTQA_EXTRACT_ITEMS_SUFFIX", &cfg.Extract.ItemsSuffix) },
		func() error { return applyBool(lookup, "RECEIPTQA_EXTRACT_LOAD_ON_START", &cfg.Extract.LoadOnStart) },
		func() error { return applyBool(lookup, "RECEIPTQA_OBJECTSTORE_ENABLED", &cfg.ObjectStore.Enabled) },
		func() error { return applyString(lookup, "RECEIPTQA_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "RECEIPTQA_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "RECEIPTQA_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "RECEIPTQA_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error { return applyString(lookup, "RECEIPTQA_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey) },
		func() error { return applyBool(lookup, "RECEIPTQA_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "RECEIPTQA_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "RECEIPTQA_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},
		func() error { return applyString(lookup, "RECEIPTQA_AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyString(lookup, "RECEIPTQA_AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "RECEIPTQA_AI_MODEL", &cfg.AI.Model) },
		func() error { return applyFloat(lookup, "RECEIPTQA_AI_TEMPERATURE", &cfg.AI.Temperature) },
		func() error { return applyDuration(lookup, "RECEIPTQA_AI_TIMEOUT", &cfg.AI.Timeout) },
		func() error { return applyString(lookup, "RECEIPTQA_MEMORY_BACKEND", &cfg.Memory.Backend) },
		func() error { return applyString(lookup, "RECEIPTQA_MEMORY_POSTGRES_DSN", &cfg.Memory.PostgresDSN) },
		func() error { return applyString(lookup, "RECEIPTQA_MEMORY_REDIS_URL", &cfg.Memory.RedisURL) },
		func() error { return applyString(lookup, "RECEIPTQA_MEMORY_REDIS_KEY_PREFIX", &cfg.Memory.RedisKeyPrefix) },
		func() error { return applyInt(lookup, "RECEIPTQA_MEMORY_MAX_OPEN_CONNS", &cfg.Memory.MaxOpenConns) },
		func() error {
			return applyDuration(lookup, "RECEIPTQA_MEMORY_CONN_MAX_LIFETIME", &cfg.Memory.ConnMaxLifetime)
		},
		func() error { return applyBool(lookup, "RECEIPTQA_MEMORY_AUTO_MIGRATE", &cfg.Memory.AutoMigrate) },
		func() error { return applyInt(lookup, "RECEIPTQA_MEMORY_MAX_MESSAGES", &cfg.Memory.MaxMessages) },
		func() error { return applyBool(lookup, "RECEIPTQA_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "RECEIPTQA_LOG_LEVEL", &cfg.Observability.LogLevel) },
		func() error { return applyBool(lookup, "RECEIPTQA_AUTH_REQUIRED", &cfg.Auth.Required) },
		func() error { return applyString(lookup, "RECEIPTQA_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	switch cfg.Store.Driver {
	case StoreDriverDuckDB, StoreDriverSQLite:
	default:
		return fmt.Errorf("invalid store driver: %q", cfg.Store.Driver)
	}
	if cfg.Store.Name == "" {
		return fmt.Errorf("store name is required")
	}
	switch cfg.Memory.Backend {
	case MemoryBackendInMemory:
	case MemoryBackendPostgres:
		if cfg.Memory.PostgresDSN == "" {
			return fmt.Errorf("memory postgres dsn is required for backend %q", cfg.Memory.Backend)
		}
	case MemoryBackendRedis:
		if cfg.Memory.RedisURL == "" {
			return fmt.Errorf("memory redis url is required for backend %q", cfg.Memory.Backend)
		}
	default:
		return fmt.Errorf("invalid memory backend: %q", cfg.Memory.Backend)
	}
	if cfg.Memory.MaxMessages < 0 {
		return fmt.Errorf("memory max messages must be >= 0, got %d", cfg.Memory.MaxMessages)
	}
	if cfg.AI.Temperature < 0 || cfg.AI.Temperature > 2 {
		return fmt.Errorf("ai temperature must be within [0, 2], got %v", cfg.AI.Temperature)
	}
	if cfg.AI.Timeout < 0 {
		return fmt.Errorf("ai timeout must be >= 0")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "receiptqa-api"},
		HTTP: HTTPConfig{
			Address:      ":5001",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		Store: StoreConfig{
			Driver: StoreDriverDuckDB,
			Dir:    "database",
			Name:   "receipts.duckdb",
		},
		Extract: ExtractConfig{
			ArchiveDir:   "data",
			ArchiveName:  "202401_NFs.zip",
			UnzipDir:     "data/unzip",
			HeaderSuffix: "_Cabecalho.csv",
			ItemsSuffix:  "_Itens.csv",
			LoadOnStart:  true,
		},
		ObjectStore: ObjectStoreConfig{
			Enabled:          false,
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "receiptqa",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			AutoCreateBucket: true,
		},
		AI: AIConfig{
			BaseURL:     "https://api.openai.com",
			Model:       "gpt-4o-mini",
			Temperature: 0.3,
			Timeout:     60 * time.Second,
		},
		Memory: MemoryConfig{
			Backend:         MemoryBackendInMemory,
			RedisKeyPrefix:  "receiptqa:memory",
			MaxOpenConns:    10,
			ConnMaxLifetime: 30 * time.Minute,
			AutoMigrate:     true,
			MaxMessages:     200,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":15001"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Extract.LoadOnStart = false
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
		cfg.Memory.AutoMigrate = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level, err := parseLogLevel(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = level
	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", raw)
	}
}

// fileConfig mirrors the config.yaml layout used by existing deployments
// (model/database/files) and adds the sections the service grew since.
type fileConfig struct {
	Model struct {
		Name        string   `yaml:"name"`
		BaseURL     string   `yaml:"base_url"`
		Temperature *float64 `yaml:"temperature"`
		Timeout     string   `yaml:"timeout"`
	} `yaml:"model"`
	Database struct {
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
		Name   string `yaml:"name"`
	} `yaml:"database"`
	Files struct {
		Zip         string `yaml:"zip"`
		ZipName     string `yaml:"zip_name"`
		ZipKey      string `yaml:"zip_key"`
		Unzip       string `yaml:"unzip"`
		LoadOnStart *bool  `yaml:"load_on_start"`
	} `yaml:"files"`
	HTTP struct {
		Address string `yaml:"address"`
	} `yaml:"http"`
	Memory struct {
		Backend     string `yaml:"backend"`
		PostgresDSN string `yaml:"postgres_dsn"`
		RedisURL    string `yaml:"redis_url"`
	} `yaml:"memory"`
	Log struct {
		Level string `yaml:"level"`
		JSON  *bool  `yaml:"json"`
	} `yaml:"log"`
}

func applyFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}

	setString(&cfg.AI.Model, file.Model.Name)
	setString(&cfg.AI.BaseURL, file.Model.BaseURL)
	if file.Model.Temperature != nil {
		cfg.AI.Temperature = *file.Model.Temperature
	}
	if strings.TrimSpace(file.Model.Timeout) != "" {
		timeout, err := time.ParseDuration(strings.TrimSpace(file.Model.Timeout))
		if err != nil {
			return fmt.Errorf("invalid model.timeout in %q: %w", path, err)
		}
		cfg.AI.Timeout = timeout
	}
	setString(&cfg.Store.Driver, file.Database.Driver)
	setString(&cfg.Store.Dir, file.Database.Path)
	setString(&cfg.Store.Name, file.Database.Name)
	setString(&cfg.Extract.ArchiveDir, file.Files.Zip)
	setString(&cfg.Extract.ArchiveName, file.Files.ZipName)
	setString(&cfg.Extract.ArchiveKey, file.Files.ZipKey)
	setString(&cfg.Extract.UnzipDir, file.Files.Unzip)
	if file.Files.LoadOnStart != nil {
		cfg.Extract.LoadOnStart = *file.Files.LoadOnStart
	}
	setString(&cfg.HTTP.Address, file.HTTP.Address)
	setString(&cfg.Memory.Backend, file.Memory.Backend)
	setString(&cfg.Memory.PostgresDSN, file.Memory.PostgresDSN)
	setString(&cfg.Memory.RedisURL, file.Memory.RedisURL)
	if strings.TrimSpace(file.Log.Level) != "" {
		level, err := parseLogLevel(file.Log.Level)
		if err != nil {
			return fmt.Errorf("invalid log.level in %q: %w", path, err)
		}
		cfg.Observability.LogLevel = level
	}
	if file.Log.JSON != nil {
		cfg.Observability.LogJSON = *file.Log.JSON
	}
	return nil
}

func setString(dst *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
}

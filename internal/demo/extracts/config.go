package extracts

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

type Config struct {
	Period      time.Time
	Receipts    int
	MaxItems    int
	Seed        int64
	OutDir      string
	Format      string
	Upload      bool
	IssuerCount int
}

func DefaultConfig() Config {
	return Config{
		Period:      time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Receipts:    500,
		MaxItems:    5,
		Seed:        time.Now().UTC().UnixNano(),
		OutDir:      "files",
		Format:      FormatCSV,
		IssuerCount: 40,
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if raw, ok := lookup("RECEIPTQA_DEMO_PERIOD"); ok && strings.TrimSpace(raw) != "" {
		period, err := time.Parse("200601", strings.TrimSpace(raw))
		if err != nil {
			return Config{}, fmt.Errorf("invalid RECEIPTQA_DEMO_PERIOD: want YYYYMM: %w", err)
		}
		cfg.Period = period.UTC()
	}
	if err := applyInt(lookup, "RECEIPTQA_DEMO_RECEIPTS", &cfg.Receipts); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "RECEIPTQA_DEMO_MAX_ITEMS", &cfg.MaxItems); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "RECEIPTQA_DEMO_ISSUERS", &cfg.IssuerCount); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "RECEIPTQA_DEMO_SEED", &cfg.Seed); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "RECEIPTQA_DEMO_OUT_DIR", &cfg.OutDir); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "RECEIPTQA_DEMO_FORMAT", &cfg.Format); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "RECEIPTQA_DEMO_UPLOAD", &cfg.Upload); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Receipts <= 0 {
		return fmt.Errorf("RECEIPTQA_DEMO_RECEIPTS must be > 0")
	}
	if c.MaxItems <= 0 {
		return fmt.Errorf("RECEIPTQA_DEMO_MAX_ITEMS must be > 0")
	}
	if c.IssuerCount <= 0 {
		return fmt.Errorf("RECEIPTQA_DEMO_ISSUERS must be > 0")
	}
	if strings.TrimSpace(c.OutDir) == "" {
		return fmt.Errorf("RECEIPTQA_DEMO_OUT_DIR is required")
	}
	switch c.Format {
	case FormatCSV, FormatParquet:
	default:
		return fmt.Errorf("RECEIPTQA_DEMO_FORMAT must be %q or %q", FormatCSV, FormatParquet)
	}
	return nil
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

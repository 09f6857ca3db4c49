package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/receiptqa/receiptqa/internal/cli/receiptqactl"
)

func main() {
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("RECEIPTQA_CLI_TIMEOUT")), 90*time.Second)
	options := receiptqactl.Options{
		BaseURL:  envOr("RECEIPTQA_API_URL", "http://localhost:5001"),
		APIKey:   strings.TrimSpace(os.Getenv("RECEIPTQA_API_KEY")),
		ClientID: strings.TrimSpace(os.Getenv("RECEIPTQA_CLIENT_ID")),
		Timeout:  timeout,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}

	code := receiptqactl.Run(context.Background(), os.Args[1:], options)
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid RECEIPTQA_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}

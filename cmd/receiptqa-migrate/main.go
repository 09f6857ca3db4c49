package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/receiptqa/receiptqa/internal/config"
	"github.com/receiptqa/receiptqa/internal/migrations"
	"github.com/receiptqa/receiptqa/internal/observability"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up|down|status")
	steps := flag.Int("steps", 0, "number of migration steps; 0 means all for up, 1 for down")
	flag.Parse()

	config.LoadDotEnv()
	cfg, err := config.Load("receiptqa-migrate", func(key string) (string, bool) {
		if key == "RECEIPTQA_MEMORY_BACKEND" {
			return config.MemoryBackendPostgres, true
		}
		return os.LookupEnv(key)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	db, err := sql.Open("pgx", cfg.Memory.PostgresDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database open error: %s\n", observability.Mask(err.Error()))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "database ping error: %s\n", observability.Mask(err.Error()))
		os.Exit(1)
	}

	runner := migrations.NewRunner()
	switch *direction {
	case "up":
		applied, err := runner.Up(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration up failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("applied %d migration(s)\n", applied)
	case "down":
		applied, err := runner.Down(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration down failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("rolled back %d migration(s)\n", applied)
	case "status":
		statuses, err := runner.Status(ctx, db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration status failed: %v\n", err)
			os.Exit(1)
		}
		for _, status := range statuses {
			state := "pending"
			if status.Applied {
				state = "applied " + status.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Printf("%06d_%s\t%s\n", status.Version, status.Name, state)
		}
	default:
		fmt.Fprintf(os.Stderr, "invalid direction: %s\n", *direction)
		os.Exit(1)
	}
}

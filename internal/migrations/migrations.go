package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

const migrationTable = "receiptqa_schema_migrations"

var fileNamePattern = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)

// Runner applies the embedded Postgres schema of the conversation memory store.
type Runner struct {
	fsys fs.FS
}

func NewRunner() *Runner {
	return &Runner{fsys: embeddedFS}
}

type migration struct {
	version int64
	name    string
	up      string
	down    string
}

type VersionStatus struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// Up applies pending migrations in version order. steps <= 0 applies all of them.
func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	known, applied, err := r.state(ctx, db)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, m := range known {
		if _, done := applied[m.version]; done {
			continue
		}
		if steps > 0 && count == steps {
			break
		}
		record := func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `INSERT INTO `+migrationTable+` (version, name) VALUES ($1, $2)`, m.version, m.name)
			return err
		}
		if err := apply(ctx, db, m.up, record); err != nil {
			return count, fmt.Errorf("apply migration %06d_%s: %w", m.version, m.name, err)
		}
		count++
	}
	return count, nil
}

// Down rolls back the newest applied migrations. steps <= 0 rolls back one.
func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	known, applied, err := r.state(ctx, db)
	if err != nil {
		return 0, err
	}
	byVersion := make(map[int64]migration, len(known))
	for _, m := range known {
		byVersion[m.version] = m
	}
	versions := make([]int64, 0, len(applied))
	for version := range applied {
		versions = append(versions, version)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })

	count := 0
	for _, version := range versions {
		if count == steps {
			break
		}
		m, ok := byVersion[version]
		if !ok {
			return count, fmt.Errorf("applied migration %d has no embedded source", version)
		}
		record := func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `DELETE FROM `+migrationTable+` WHERE version = $1`, m.version)
			return err
		}
		if err := apply(ctx, db, m.down, record); err != nil {
			return count, fmt.Errorf("roll back migration %06d_%s: %w", m.version, m.name, err)
		}
		count++
	}
	return count, nil
}

// Status lists every embedded migration and when it was applied.
func (r *Runner) Status(ctx context.Context, db *sql.DB) ([]VersionStatus, error) {
	known, applied, err := r.state(ctx, db)
	if err != nil {
		return nil, err
	}
	statuses := make([]VersionStatus, 0, len(known))
	for _, m := range known {
		appliedAt, done := applied[m.version]
		statuses = append(statuses, VersionStatus{Version: m.version, Name: m.name, Applied: done, AppliedAt: appliedAt})
	}
	return statuses, nil
}

// Pending counts migrations that Up would apply.
func (r *Runner) Pending(ctx context.Context, db *sql.DB) (int, error) {
	statuses, err := r.Status(ctx, db)
	if err != nil {
		return 0, err
	}
	pending := 0
	for _, status := range statuses {
		if !status.Applied {
			pending++
		}
	}
	return pending, nil
}

func (r *Runner) state(ctx context.Context, db *sql.DB) ([]migration, map[int64]time.Time, error) {
	known, err := loadMigrations(r.fsys)
	if err != nil {
		return nil, nil, err
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
	version BIGINT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return nil, nil, fmt.Errorf("ensure migration table: %w", err)
	}
	rows, err := db.QueryContext(ctx, `SELECT version, applied_at FROM `+migrationTable)
	if err != nil {
		return nil, nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	applied := map[int64]time.Time{}
	for rows.Next() {
		var (
			version   int64
			appliedAt time.Time
		)
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[version] = appliedAt
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return known, applied, nil
}

// apply runs script and its bookkeeping statement in one transaction.
func apply(ctx context.Context, db *sql.DB, script string, record func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("exec script: %w", err)
	}
	if err := record(tx); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func loadMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, "sql")
	if err != nil {
		return nil, fmt.Errorf("read migration dir: %w", err)
	}

	byVersion := map[int64]*migration{}
	for _, entry := range entries {
		match := fileNamePattern.FindStringSubmatch(entry.Name())
		if entry.IsDir() || match == nil {
			continue
		}
		version, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version of %q: %w", entry.Name(), err)
		}
		body, err := fs.ReadFile(fsys, "sql/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", entry.Name(), err)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &migration{version: version, name: match[2]}
			byVersion[version] = m
		}
		if m.name != match[2] {
			return nil, fmt.Errorf("migration %d is named both %q and %q", version, m.name, match[2])
		}
		if match[3] == "up" {
			m.up = string(body)
		} else {
			m.down = string(body)
		}
	}

	out := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		switch {
		case strings.TrimSpace(m.up) == "":
			return nil, fmt.Errorf("migration %d missing up SQL", m.version)
		case strings.TrimSpace(m.down) == "":
			return nil, fmt.Errorf("migration %d missing down SQL", m.version)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

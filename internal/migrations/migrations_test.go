package migrations

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestLoadMigrationsPairsFilesByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/000002_two.up.sql":   {Data: []byte("SELECT 2;")},
		"sql/000002_two.down.sql": {Data: []byte("SELECT -2;")},
		"sql/000001_one.up.sql":   {Data: []byte("SELECT 1;")},
		"sql/000001_one.down.sql": {Data: []byte("SELECT -1;")},
		"sql/README.md":           {Data: []byte("ignored")},
	}

	items, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(items) != 2 || items[0].version != 1 || items[0].name != "one" || items[1].down != "SELECT -2;" {
		t.Fatalf("items = %+v", items)
	}
}

func TestLoadMigrationsRejectsIncompletePairs(t *testing.T) {
	for name, fsys := range map[string]fstest.MapFS{
		"missing down SQL": {"sql/000001_one.up.sql": {Data: []byte("SELECT 1;")}},
		"named both": {
			"sql/000001_one.up.sql":   {Data: []byte("SELECT 1;")},
			"sql/000001_uno.down.sql": {Data: []byte("SELECT -1;")},
		},
	} {
		if _, err := loadMigrations(fsys); err == nil || !strings.Contains(err.Error(), name) {
			t.Fatalf("loadMigrations() error = %v, want %q", err, name)
		}
	}
}

func TestEmbeddedMigrationCreatesConversationTable(t *testing.T) {
	items, err := loadMigrations(embeddedFS)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(items) == 0 || items[0].name != "conversation_memory" {
		t.Fatalf("items = %+v", items)
	}
	for _, snippet := range []string{
		"CREATE TABLE conversation_message",
		"client_id TEXT NOT NULL",
		"CHECK (role IN ('human', 'ai'))",
		"CREATE INDEX idx_conversation_message_client",
	} {
		if !strings.Contains(items[0].up, snippet) {
			t.Fatalf("migration missing snippet: %s", snippet)
		}
	}
}

func TestUpAppliesOnlyPendingMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	runner := &Runner{fsys: twoMigrations()}
	expectState(mock, 1)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE two (id INT);")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO receiptqa_schema_migrations (version, name) VALUES ($1, $2)")).
		WithArgs(int64(2), "two").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := runner.Up(context.Background(), db, 0)
	if err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if applied != 1 {
		t.Fatalf("applied = %d", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestDownRollsBackNewestFirstAndStopsOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	runner := &Runner{fsys: twoMigrations()}
	expectState(mock, 1, 2)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DROP TABLE two;")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM receiptqa_schema_migrations WHERE version = $1")).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DROP TABLE one;")).WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	rolledBack, err := runner.Down(context.Background(), db, 2)
	if err == nil || !strings.Contains(err.Error(), "000001_one") {
		t.Fatalf("Down() error = %v", err)
	}
	if rolledBack != 1 {
		t.Fatalf("rolled back = %d", rolledBack)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestStatusAndPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	runner := &Runner{fsys: twoMigrations()}
	expectState(mock, 1)
	statuses, err := runner.Status(context.Background(), db)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(statuses) != 2 || !statuses[0].Applied || statuses[0].AppliedAt.IsZero() || statuses[1].Applied {
		t.Fatalf("statuses = %+v", statuses)
	}

	expectState(mock, 1)
	pending, err := runner.Pending(context.Background(), db)
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if pending != 1 {
		t.Fatalf("pending = %d", pending)
	}
}

func twoMigrations() fstest.MapFS {
	return fstest.MapFS{
		"sql/000001_one.up.sql":   {Data: []byte("CREATE TABLE one (id INT);")},
		"sql/000001_one.down.sql": {Data: []byte("DROP TABLE one;")},
		"sql/000002_two.up.sql":   {Data: []byte("CREATE TABLE two (id INT);")},
		"sql/000002_two.down.sql": {Data: []byte("DROP TABLE two;")},
	}
}

func expectState(mock sqlmock.Sqlmock, applied ...int64) {
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS receiptqa_schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{"version", "applied_at"})
	for _, version := range applied {
		rows.AddRow(version, time.Date(2024, time.February, 1, 12, 0, 0, 0, time.UTC))
	}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version, applied_at FROM receiptqa_schema_migrations")).WillReturnRows(rows)
}

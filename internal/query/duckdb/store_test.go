package duckdb

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/receiptqa/receiptqa/internal/query"
)

type itemRow struct {
	ChaveDeAcesso string  `parquet:"CHAVE_DE_ACESSO"`
	ValorTotal    float64 `parquet:"VALOR_TOTAL"`
}

func TestExecuteCountsLoadedCSV(t *testing.T) {
	store := openTestStore(t)
	csvPath := writeCSV(t, "CHAVE_DE_ACESSO,UF_EMITENTE,VALOR_NOTA_FISCAL\nk1,SP,10.5\nk2,RJ,20\nk3,SP,1.25\n")

	loaded, err := store.LoadFile(context.Background(), "receipts", csvPath)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if loaded != 3 {
		t.Fatalf("loaded = %d", loaded)
	}

	result := store.Execute(context.Background(), "SELECT COUNT(*) AS total_notas FROM receipts")
	rows, ok := result.(query.Rows)
	if !ok {
		t.Fatalf("Execute() = %#v, want query.Rows", result)
	}
	value, ok := rows.Scalar()
	if !ok || value != int64(3) {
		t.Fatalf("scalar = %#v", value)
	}
}

func TestExecuteReturnsErrorVariantForInvalidSQL(t *testing.T) {
	store := openTestStore(t)

	for _, sqlText := range []string{
		"SELEC nonsense",
		"SELECT * FROM missing_table",
		"SELECT CAST('abc' AS INTEGER)",
	} {
		result := store.Execute(context.Background(), sqlText)
		execErr, ok := result.(query.ExecutionError)
		if !ok {
			t.Fatalf("Execute(%q) = %#v, want query.ExecutionError", sqlText, result)
		}
		if strings.TrimSpace(execErr.Message) == "" {
			t.Fatalf("Execute(%q) returned empty message", sqlText)
		}
	}
}

func TestDescribeSchemaIsStableAndOrdered(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	empty, err := store.DescribeSchema(ctx)
	if err != nil {
		t.Fatalf("DescribeSchema() error = %v", err)
	}
	if len(empty.Tables) != 0 {
		t.Fatalf("tables = %#v, want none", empty.Tables)
	}

	if _, err := store.LoadFile(ctx, "receipts", writeCSV(t, "CHAVE_DE_ACESSO,VALOR_NOTA_FISCAL\nk1,10.5\n")); err != nil {
		t.Fatalf("LoadFile(receipts) error = %v", err)
	}
	if _, err := store.LoadFile(ctx, "items", writeCSV(t, "CHAVE_DE_ACESSO,QUANTIDADE\nk1,2\n")); err != nil {
		t.Fatalf("LoadFile(items) error = %v", err)
	}

	first, err := store.DescribeSchema(ctx)
	if err != nil {
		t.Fatalf("DescribeSchema() error = %v", err)
	}
	second, err := store.DescribeSchema(ctx)
	if err != nil {
		t.Fatalf("DescribeSchema() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("schema changed between calls: %#v vs %#v", first, second)
	}
	if len(first.Tables) != 2 || first.Tables[0].Name != "items" || first.Tables[1].Name != "receipts" {
		t.Fatalf("tables = %#v", first.Tables)
	}
	if first.Tables[1].Columns[0].Name != "CHAVE_DE_ACESSO" || first.Tables[1].Columns[1].Name != "VALOR_NOTA_FISCAL" {
		t.Fatalf("receipts columns = %#v", first.Tables[1].Columns)
	}
}

func TestLoadFileReadsParquet(t *testing.T) {
	store := openTestStore(t)
	path := filepath.Join(t.TempDir(), "items.parquet")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create parquet: %v", err)
	}
	writer := parquet.NewGenericWriter[itemRow](file)
	if _, err := writer.Write([]itemRow{{ChaveDeAcesso: "k1", ValorTotal: 1.5}, {ChaveDeAcesso: "k1", ValorTotal: 2.5}}); err != nil {
		t.Fatalf("write parquet: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close parquet writer: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("close parquet file: %v", err)
	}

	loaded, err := store.LoadFile(context.Background(), "items", path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if loaded != 2 {
		t.Fatalf("loaded = %d", loaded)
	}

	rows, ok := store.Execute(context.Background(), "SELECT SUM(VALOR_TOTAL) FROM items").(query.Rows)
	if !ok {
		t.Fatal("expected rows")
	}
	if value, _ := rows.Scalar(); value != float64(4) {
		t.Fatalf("sum = %#v", value)
	}
}

func TestRenameColumnAndCreateIndex(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if _, err := store.LoadFile(ctx, "receipts", writeCSV(t, "CHAVE DE ACESSO,VALOR\nk1,1\n")); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if err := store.RenameColumn(ctx, "receipts", "CHAVE DE ACESSO", "CHAVE_DE_ACESSO"); err != nil {
		t.Fatalf("RenameColumn() error = %v", err)
	}
	if err := store.CreateIndex(ctx, "receipts", "CHAVE_DE_ACESSO"); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}
	if err := store.CreateIndex(ctx, "receipts", "CHAVE_DE_ACESSO"); err != nil {
		t.Fatalf("CreateIndex() second call error = %v", err)
	}

	rows, ok := store.Execute(ctx, `SELECT CHAVE_DE_ACESSO FROM receipts`).(query.Rows)
	if !ok || len(rows.Rows) != 1 || rows.Rows[0][0] != "k1" {
		t.Fatalf("rows = %#v", rows)
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "db", "test.duckdb"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func TestLoadFileKeepsAccessKeysAsText(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	receipts := writeCSV(t, "CHAVE DE ACESSO,CNPJ,VALOR NOTA FISCAL\n"+
		"35240112345678000199550010000000011234567890,01234567000189,10.5\n"+
		"35240112345678000199550010000000021234567891,11234567000189,3\n")
	if _, err := store.LoadFile(ctx, "receipts", receipts); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	rows, ok := store.Execute(ctx, `SELECT "CHAVE DE ACESSO", CNPJ FROM receipts ORDER BY 1`).(query.Rows)
	if !ok || len(rows.Rows) != 2 {
		t.Fatalf("rows = %#v", rows)
	}
	if rows.Rows[1][0] != "35240112345678000199550010000000021234567891" || rows.Rows[0][1] != "01234567000189" {
		t.Fatalf("rows = %#v", rows.Rows)
	}
	sum, ok := store.Execute(ctx, `SELECT SUM("VALOR NOTA FISCAL") FROM receipts`).(query.Rows)
	if !ok {
		t.Fatal("expected rows")
	}
	if value, _ := sum.Scalar(); value != 13.5 {
		t.Fatalf("sum = %#v", value)
	}
}

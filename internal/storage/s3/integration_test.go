//go:build integration

package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/receiptqa/receiptqa/internal/storage"
)

func TestExtractArchiveLifecycleAgainstMinIO(t *testing.T) {
	endpoint := strings.TrimSpace(os.Getenv("RECEIPTQA_TEST_S3_ENDPOINT"))
	if endpoint == "" {
		t.Skip("RECEIPTQA_TEST_S3_ENDPOINT is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	store, err := New(ctx, Config{
		Endpoint:         endpoint,
		Region:           testEnv("RECEIPTQA_TEST_S3_REGION", "us-east-1"),
		Bucket:           testEnv("RECEIPTQA_TEST_S3_BUCKET", "receiptqa-it"),
		AccessKeyID:      testEnv("RECEIPTQA_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey:  testEnv("RECEIPTQA_TEST_S3_SECRET_KEY", "miniostorage"),
		Prefix:           "it-" + time.Now().UTC().Format("20060102150405"),
		AutoCreateBucket: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	period := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	for _, month := range []time.Time{period.AddDate(0, -1, 0), period} {
		key, err := storage.BuildExtractKey(month, storage.ExtractArchiveName(month))
		if err != nil {
			t.Fatalf("BuildExtractKey() error = %v", err)
		}
		payload := []byte("zip:" + month.Format("200601"))
		opts := storage.PutOptions{
			ContentType: "application/zip",
			Metadata:    map[string]string{storage.MetadataPeriod: month.Format("2006-01")},
		}
		if _, err := store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), opts); err != nil {
			t.Fatalf("Put(%s) error = %v", key, err)
		}
	}

	objects, err := store.List(ctx, storage.ExtractPrefix())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	latest, ok := storage.LatestExtract(objects)
	if !ok || latest.Key != "extracts/period=2024-02/202402_NFs.zip" {
		t.Fatalf("LatestExtract() = %#v, %v", latest, ok)
	}

	stat, err := store.Stat(ctx, latest.Key)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if stat.Metadata[storage.MetadataPeriod] != "2024-02" {
		t.Fatalf("Stat().Metadata = %#v", stat.Metadata)
	}

	body, err := store.Get(ctx, latest.Key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer func() { _ = body.Close() }()
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != "zip:202402" {
		t.Fatalf("Get() = %q", data)
	}

	if _, err := store.Get(ctx, "extracts/period=1999-01/199901_NFs.zip"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() of missing archive error = %v, want ErrObjectNotFound", err)
	}
}

func testEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

package storage

import (
	"testing"
	"time"
)

func TestBuildExtractKey(t *testing.T) {
	period := time.Date(2024, time.January, 31, 23, 0, 0, 0, time.FixedZone("x", -3*3600))
	key, err := BuildExtractKey(period, ExtractArchiveName(period))
	if err != nil {
		t.Fatalf("BuildExtractKey() error = %v", err)
	}
	want := "extracts/period=2024-02/202402_NFs.zip"
	if key != want {
		t.Fatalf("BuildExtractKey() = %q, want %q", key, want)
	}
}

func TestExtractArchiveName(t *testing.T) {
	if got := ExtractArchiveName(time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)); got != "202401_NFs.zip" {
		t.Fatalf("ExtractArchiveName() = %q", got)
	}
}

func TestBuildExtractKeyRejectsInvalidName(t *testing.T) {
	if _, err := BuildExtractKey(time.Now(), "../oops.zip"); err == nil {
		t.Fatal("expected invalid component error")
	}
}

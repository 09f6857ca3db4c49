//go:build integration

package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/receiptqa/receiptqa/internal/memory"
)

func TestRedisStoreRoundTrip(t *testing.T) {
	url := os.Getenv("RECEIPTQA_TEST_REDIS_URL")
	if url == "" {
		t.Skip("RECEIPTQA_TEST_REDIS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := Open(ctx, url, "receiptqa-test:"+uuid.NewString())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() {
		_ = store.ClearAll(ctx)
		_ = store.Close()
	}()

	at := time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)
	if err := store.Append(ctx, "web-1", memory.Turn("Quantas notas?", "Encontrei 1.234 notas.", at)...); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := store.Append(ctx, "web-2", memory.Message{Role: memory.RoleHuman, Content: "oi"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	history, err := store.History(ctx, "web-1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 || history[1].Role != memory.RoleAI || !history[0].CreatedAt.Equal(at) {
		t.Fatalf("history = %#v", history)
	}

	if err := store.Clear(ctx, "web-1"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if err := store.Clear(ctx, "web-1"); !errors.Is(err, memory.ErrNotFound) {
		t.Fatalf("second Clear() error = %v", err)
	}
	if err := store.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}
	if history, _ := store.History(ctx, "web-2"); len(history) != 0 {
		t.Fatalf("history after ClearAll = %#v", history)
	}
}

func TestRedisStoreTrimsToMaxMessages(t *testing.T) {
	url := os.Getenv("RECEIPTQA_TEST_REDIS_URL")
	if url == "" {
		t.Skip("RECEIPTQA_TEST_REDIS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := Open(ctx, url, "receiptqa-test:"+uuid.NewString())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() {
		_ = store.ClearAll(ctx)
		_ = store.Close()
	}()
	store.MaxMessages = 4

	for i := 0; i < 5; i++ {
		if err := store.Append(ctx, "web-1", memory.Turn(fmt.Sprint("q", i), fmt.Sprint("a", i), time.Time{})...); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	history, err := store.History(ctx, "web-1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 4 || history[0].Content != "q3" || history[3].Content != "a4" {
		t.Fatalf("history = %#v", history)
	}
}

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/receiptqa/receiptqa/internal/memory"
)

const DefaultKeyPrefix = "receiptqa:memory"

// Store keeps one Redis list per client plus a set of known client ids.
type Store struct {
	// MaxMessages trims each client list to its newest entries. Zero or less keeps everything.
	MaxMessages int

	client *goredis.Client
	prefix string
	now    func() time.Time
}

func Open(ctx context.Context, url, prefix string) (*Store, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, prefix), nil
}

func New(client *goredis.Client, prefix string) *Store {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{MaxMessages: memory.DefaultMaxMessages, client: client, prefix: prefix, now: time.Now}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) clientsKey() string {
	return s.prefix + ":clients"
}

func (s *Store) historyKey(clientID string) string {
	return s.prefix + ":client:" + clientID
}

func (s *Store) Append(ctx context.Context, clientID string, messages ...memory.Message) error {
	if len(messages) == 0 {
		return nil
	}
	values := make([]any, 0, len(messages))
	for _, message := range messages {
		if !memory.ValidRole(message.Role) {
			return fmt.Errorf("append memory: invalid role %q", message.Role)
		}
		if message.CreatedAt.IsZero() {
			message.CreatedAt = s.now().UTC()
		}
		encoded, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("encode memory message: %w", err)
		}
		values = append(values, encoded)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.RPush(ctx, s.historyKey(clientID), values...)
		if s.MaxMessages > 0 {
			pipe.LTrim(ctx, s.historyKey(clientID), -int64(s.MaxMessages), -1)
		}
		pipe.SAdd(ctx, s.clientsKey(), clientID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append memory: %w", err)
	}
	return nil
}

func (s *Store) History(ctx context.Context, clientID string) ([]memory.Message, error) {
	raw, err := s.client.LRange(ctx, s.historyKey(clientID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list memory messages: %w", err)
	}
	messages := make([]memory.Message, 0, len(raw))
	for _, item := range raw {
		var message memory.Message
		if err := json.Unmarshal([]byte(item), &message); err != nil {
			return nil, fmt.Errorf("decode memory message: %w", err)
		}
		messages = append(messages, message)
	}
	return messages, nil
}

func (s *Store) Clear(ctx context.Context, clientID string) error {
	var deleted *goredis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		deleted = pipe.Del(ctx, s.historyKey(clientID))
		pipe.SRem(ctx, s.clientsKey(), clientID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear memory: %w", err)
	}
	if deleted.Val() == 0 {
		return memory.ErrNotFound
	}
	return nil
}

func (s *Store) ClearAll(ctx context.Context) error {
	clientIDs, err := s.client.SMembers(ctx, s.clientsKey()).Result()
	if err != nil {
		return fmt.Errorf("list memory clients: %w", err)
	}
	keys := make([]string, 0, len(clientIDs)+1)
	for _, clientID := range clientIDs {
		keys = append(keys, s.historyKey(clientID))
	}
	keys = append(keys, s.clientsKey())
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear all memory: %w", err)
	}
	return nil
}

package memory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InMemory is a process-local Store. The zero value is usable and keeps
// unbounded history; NewInMemory caps it at DefaultMaxMessages per client.
type InMemory struct {
	// MaxMessages is the per-client history limit. Zero or less keeps everything.
	MaxMessages int

	mu       sync.Mutex
	messages map[string][]Message
	now      func() time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{MaxMessages: DefaultMaxMessages, messages: map[string][]Message{}, now: time.Now}
}

func (m *InMemory) Append(_ context.Context, clientID string, messages ...Message) error {
	for _, message := range messages {
		if !ValidRole(message.Role) {
			return fmt.Errorf("append memory: invalid role %q", message.Role)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.messages == nil {
		m.messages = map[string][]Message{}
	}
	now := time.Now
	if m.now != nil {
		now = m.now
	}
	history := m.messages[clientID]
	for _, message := range messages {
		if message.CreatedAt.IsZero() {
			message.CreatedAt = now().UTC()
		}
		history = append(history, message)
	}
	if m.MaxMessages > 0 && len(history) > m.MaxMessages {
		history = append([]Message(nil), history[len(history)-m.MaxMessages:]...)
	}
	m.messages[clientID] = history
	return nil
}

func (m *InMemory) History(_ context.Context, clientID string) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := make([]Message, len(m.messages[clientID]))
	copy(history, m.messages[clientID])
	return history, nil
}

func (m *InMemory) Clear(_ context.Context, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.messages[clientID]; !ok {
		return ErrNotFound
	}
	delete(m.messages, clientID)
	return nil
}

func (m *InMemory) ClearAll(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = map[string][]Message{}
	return nil
}

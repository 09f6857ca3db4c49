package memory

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	RoleHuman = "human"
	RoleAI    = "ai"
)

// DefaultMaxMessages bounds the history kept per client by the in-process and
// Redis stores. Older messages are dropped first.
const DefaultMaxMessages = 200

var ErrNotFound = errors.New("memory not found")

type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store keeps conversation history per client. Unknown clients have an
// empty history; Clear reports ErrNotFound for them.
type Store interface {
	Append(ctx context.Context, clientID string, messages ...Message) error
	History(ctx context.Context, clientID string) ([]Message, error)
	Clear(ctx context.Context, clientID string) error
	ClearAll(ctx context.Context) error
}

// Turn builds the human/ai message pair recorded after an answered question.
func Turn(question, answer string, at time.Time) []Message {
	return []Message{
		{Role: RoleHuman, Content: question, CreatedAt: at},
		{Role: RoleAI, Content: answer, CreatedAt: at},
	}
}

func ValidRole(role string) bool {
	return role == RoleHuman || role == RoleAI
}

// NormalizeClientID maps blank ids to the shared "default" conversation.
func NormalizeClientID(clientID string) string {
	trimmed := strings.TrimSpace(clientID)
	if trimmed == "" {
		return "default"
	}
	return trimmed
}

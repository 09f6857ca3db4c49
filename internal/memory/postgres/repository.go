package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/receiptqa/receiptqa/internal/memory"
)

// Repository stores conversation messages in the conversation_message table.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping memory db: %w", err)
	}
	return nil
}

func (r *Repository) Append(ctx context.Context, clientID string, messages ...memory.Message) error {
	if len(messages) == 0 {
		return nil
	}
	for _, message := range messages {
		if !memory.ValidRole(message.Role) {
			return fmt.Errorf("append memory: invalid role %q", message.Role)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin memory tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
INSERT INTO conversation_message (client_id, role, content, created_at)
VALUES ($1, $2, $3, $4)`
	for _, message := range messages {
		createdAt := message.CreatedAt
		if createdAt.IsZero() {
			createdAt = r.now().UTC()
		}
		if _, err := tx.ExecContext(ctx, query, clientID, message.Role, message.Content, createdAt); err != nil {
			return fmt.Errorf("insert memory message: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit memory tx: %w", err)
	}
	return nil
}

func (r *Repository) History(ctx context.Context, clientID string) ([]memory.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT role, content, created_at
FROM conversation_message
WHERE client_id = $1
ORDER BY message_id ASC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list memory messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]memory.Message, 0)
	for rows.Next() {
		var message memory.Message
		if err := rows.Scan(&message.Role, &message.Content, &message.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan memory message: %w", err)
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory messages: %w", err)
	}
	return messages, nil
}

func (r *Repository) Clear(ctx context.Context, clientID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM conversation_message WHERE client_id = $1`, clientID)
	if err != nil {
		return fmt.Errorf("clear memory: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("clear memory rows affected: %w", err)
	}
	if affected == 0 {
		return memory.ErrNotFound
	}
	return nil
}

func (r *Repository) ClearAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM conversation_message`); err != nil {
		return fmt.Errorf("clear all memory: %w", err)
	}
	return nil
}

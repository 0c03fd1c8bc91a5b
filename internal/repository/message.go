package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tokenledger/tokenledger/internal/model"
)

const messageColumns = `id, chat_id, role, content, tokens, seq, created_at`

// AppendMessage inserts a message and bumps the chat's updated_at. The
// seq column is a BIGSERIAL assigned by Postgres, so two messages with
// colliding timestamps still have a total order per chat.
func (r *Repository) AppendMessage(ctx context.Context, msg *model.Message) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin append tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := appendMessageInTx(ctx, tx, msg); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE chats SET updated_at = NOW() WHERE id = $1`,
		msg.ChatID,
	); err != nil {
		return fmt.Errorf("failed to touch chat: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit append tx: %w", err)
	}

	return nil
}

func appendMessageInTx(ctx context.Context, tx pgx.Tx, msg *model.Message) error {
	err := tx.QueryRow(ctx,
		`INSERT INTO messages (id, chat_id, role, content, tokens, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING seq`,
		msg.ID,
		msg.ChatID,
		msg.Role,
		msg.Content,
		msg.Tokens,
		msg.CreatedAt,
	).Scan(&msg.Seq)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// RecentMessages returns the last limit messages of a chat in
// chronological order (oldest of the window first).
func (r *Repository) RecentMessages(ctx context.Context, chatID string, limit int) ([]*model.Message, error) {
	query := `
		SELECT ` + messageColumns + ` FROM (
			SELECT ` + messageColumns + `
			FROM messages
			WHERE chat_id = $1
			ORDER BY created_at DESC, seq DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, seq ASC
	`

	rows, err := r.pool.Query(ctx, query, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*model.Message, 0, limit)
	for rows.Next() {
		var m model.Message
		err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.Tokens, &m.Seq, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}

// RecordExchange persists the assistant reply and debits the user and
// chat counters as one transaction. A committed assistant message can
// therefore never exist without its debit having been applied.
func (r *Repository) RecordExchange(ctx context.Context, msg *model.Message, userID string, totalTokens int64) error {
	if totalTokens < 0 {
		return ErrNegativeAmount
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin exchange tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := appendMessageInTx(ctx, tx, msg); err != nil {
		return err
	}

	if err := debitInTx(ctx, tx, userID, msg.ChatID, totalTokens); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit exchange tx: %w", err)
	}

	return nil
}

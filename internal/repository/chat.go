package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tokenledger/tokenledger/internal/model"
)

// ErrChatNotFound is returned for absent chats and for chats owned by a
// different user. The two cases are deliberately indistinguishable so
// that cross-user probing cannot confirm a chat exists.
var ErrChatNotFound = errors.New("chat not found")

// CreateChat inserts a new chat with zero initial usage.
func (r *Repository) CreateChat(ctx context.Context, chat *model.Chat) error {
	query := `
		INSERT INTO chats (id, user_id, title, tokens_used, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $4)
	`

	_, err := r.pool.Exec(ctx, query,
		chat.ID,
		chat.UserID,
		chat.Title,
		chat.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create chat: %w", err)
	}

	return nil
}

// GetChatForUser retrieves a chat scoped to its owner. Every read and
// write path goes through this ownership check.
func (r *Repository) GetChatForUser(ctx context.Context, chatID, userID string) (*model.Chat, error) {
	query := `
		SELECT id, user_id, title, tokens_used, created_at, updated_at
		FROM chats
		WHERE id = $1 AND user_id = $2
	`

	var chat model.Chat
	err := r.pool.QueryRow(ctx, query, chatID, userID).Scan(
		&chat.ID,
		&chat.UserID,
		&chat.Title,
		&chat.TokensUsed,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}

	return &chat, nil
}

// ListChatsForUser returns the user's chats, most recently updated
// first, each with its message count.
func (r *Repository) ListChatsForUser(ctx context.Context, userID string) ([]*model.ChatSummary, error) {
	query := `
		SELECT c.id, c.user_id, c.title, c.tokens_used, c.created_at, c.updated_at,
		       COUNT(m.id) AS message_count
		FROM chats c
		LEFT JOIN messages m ON m.chat_id = c.id
		WHERE c.user_id = $1
		GROUP BY c.id
		ORDER BY c.updated_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	summaries := make([]*model.ChatSummary, 0)
	for rows.Next() {
		var s model.ChatSummary
		err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.Title,
			&s.TokensUsed,
			&s.CreatedAt,
			&s.UpdatedAt,
			&s.MessageCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat summary: %w", err)
		}
		summaries = append(summaries, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chats: %w", err)
	}

	return summaries, nil
}

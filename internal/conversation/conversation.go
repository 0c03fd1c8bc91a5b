// Package conversation owns chat and message entities and builds the
// bounded context window sent to the completion provider.
package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tokenledger/tokenledger/internal/model"
	"github.com/tokenledger/tokenledger/internal/repository"
)

// MaxWindowTurns is the number of most recent messages sent to the
// completion provider. Older history is silently dropped, never
// summarized, to cap provider cost and latency.
const MaxWindowTurns = 6

// Store is the persistence surface the conversation service needs.
// *repository.Repository satisfies it.
type Store interface {
	CreateChat(ctx context.Context, chat *model.Chat) error
	GetChatForUser(ctx context.Context, chatID, userID string) (*model.Chat, error)
	ListChatsForUser(ctx context.Context, userID string) ([]*model.ChatSummary, error)
	AppendMessage(ctx context.Context, msg *model.Message) error
	RecentMessages(ctx context.Context, chatID string, limit int) ([]*model.Message, error)
	RecordExchange(ctx context.Context, msg *model.Message, userID string, totalTokens int64) error
}

// Service provides conversation operations.
type Service struct {
	store Store
}

// New creates a conversation Service.
func New(store Store) *Service {
	return &Service{store: store}
}

// CreateChat persists a new chat for the user, deriving the title from
// the first prompt.
func (s *Service) CreateChat(ctx context.Context, userID, firstPrompt string) (*model.Chat, error) {
	now := time.Now().UTC()
	chat := &model.Chat{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Title:     model.DeriveTitle(firstPrompt),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateChat(ctx, chat); err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}

	return chat, nil
}

// GetChatForUser fetches a chat scoped to its owner.
func (s *Service) GetChatForUser(ctx context.Context, chatID, userID string) (*model.Chat, error) {
	return s.store.GetChatForUser(ctx, chatID, userID)
}

// ListChats returns the user's chats, most recently updated first.
func (s *Service) ListChats(ctx context.Context, userID string) ([]*model.ChatSummary, error) {
	return s.store.ListChatsForUser(ctx, userID)
}

// AppendMessage appends a turn to a chat. The timestamp is assigned
// here; the store's seq column breaks ties when clock resolution
// collides.
func (s *Service) AppendMessage(ctx context.Context, chatID string, role model.Role, content string, tokens int64) (*model.Message, error) {
	msg := &model.Message{
		ID:        ulid.Make().String(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		Tokens:    tokens,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	return msg, nil
}

// ContextWindow returns the most recent maxTurns messages as provider
// turns, in chronological order.
func (s *Service) ContextWindow(ctx context.Context, chatID string, maxTurns int) ([]model.Turn, error) {
	if maxTurns <= 0 {
		maxTurns = MaxWindowTurns
	}

	messages, err := s.store.RecentMessages(ctx, chatID, maxTurns)
	if err != nil {
		return nil, fmt.Errorf("load context window: %w", err)
	}

	turns := make([]model.Turn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, m.AsTurn())
	}
	return turns, nil
}

// CompleteExchange persists the assistant reply and debits totalTokens
// against the user and chat in one transaction.
func (s *Service) CompleteExchange(ctx context.Context, chatID, userID, content string, tokens, totalDebit int64) (*model.Message, error) {
	msg := &model.Message{
		ID:        ulid.Make().String(),
		ChatID:    chatID,
		Role:      model.RoleAssistant,
		Content:   content,
		Tokens:    tokens,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.RecordExchange(ctx, msg, userID, totalDebit); err != nil {
		return nil, fmt.Errorf("complete exchange: %w", err)
	}

	return msg, nil
}

// compile-time check that the repository satisfies the Store surface
var _ Store = (*repository.Repository)(nil)

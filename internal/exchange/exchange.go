// Package exchange orchestrates a single prompt/reply exchange: quota
// check, context assembly, provider call, persistence and ledger debit.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tokenledger/tokenledger/internal/completion"
	"github.com/tokenledger/tokenledger/internal/conversation"
	"github.com/tokenledger/tokenledger/internal/ledger"
	"github.com/tokenledger/tokenledger/internal/metrics"
	"github.com/tokenledger/tokenledger/internal/model"
	"github.com/tokenledger/tokenledger/internal/repository"
)

// Orchestrator errors, mapped to HTTP statuses at the handler boundary.
var (
	ErrUnauthenticated = errors.New("caller is not authenticated")
	ErrEmptyPrompt     = errors.New("prompt must not be empty")
	ErrQuotaExceeded   = errors.New("token limit exceeded")
	ErrChatNotFound    = repository.ErrChatNotFound
	ErrUserNotFound    = repository.ErrUserNotFound
	ErrProviderFailure = completion.ErrProviderFailure
)

// UsagePublisher receives completed exchanges for the reporting
// pipeline. Implementations must not block the request path.
type UsagePublisher interface {
	PublishExchange(userID, chatID string, promptTokens, completionTokens int64)
}

// Service ties the ledger, the conversation store and the completion
// provider into the submit-prompt sequence.
type Service struct {
	ledger    *ledger.Ledger
	convs     *conversation.Service
	provider  completion.Provider
	publisher UsagePublisher
	metrics   metrics.Recorder
	logger    *slog.Logger
}

// New creates an exchange Service. publisher may be nil when the usage
// pipeline is disabled.
func New(
	l *ledger.Ledger,
	convs *conversation.Service,
	provider completion.Provider,
	publisher UsagePublisher,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *Service {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Service{
		ledger:    l,
		convs:     convs,
		provider:  provider,
		publisher: publisher,
		metrics:   recorder,
		logger:    logger.With("component", "exchange"),
	}
}

// Result is the outcome of a completed exchange.
type Result struct {
	Content     string
	MessageID   string
	ChatID      string
	TokensSpent int64
}

// SubmitPrompt runs one exchange for the user. chatID selects an
// existing chat; when empty a new chat is created from the prompt.
//
// The user message is persisted before the provider call and is not
// rolled back on provider failure: the history stays an accurate record
// of what was asked, at the cost of a stored partial turn. The quota
// check happens before any cost is incurred but is not atomic with the
// final debit, so concurrent submissions may overshoot the limit by one
// exchange; that overshoot is recorded, not capped.
func (s *Service) SubmitPrompt(ctx context.Context, userID, chatID, prompt string) (*Result, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if prompt == "" {
		s.metrics.IncExchangeRejected("invalid")
		return nil, ErrEmptyPrompt
	}

	// Admission check before any side effect. On rejection nothing is
	// persisted and the provider is never called.
	budget, err := s.ledger.CheckBudget(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !budget.Allowed {
		s.metrics.IncExchangeRejected("quota")
		s.logger.Info("exchange_rejected",
			"user_id", userID,
			"reason", "quota_exceeded",
		)
		return nil, ErrQuotaExceeded
	}

	chat, history, err := s.resolveChat(ctx, userID, chatID, prompt)
	if err != nil {
		s.metrics.IncExchangeRejected("not_found")
		return nil, err
	}

	// The new prompt rides along as the final turn; it is not yet in
	// the store when the window is assembled.
	history = append(history, model.Turn{Role: model.RoleUser, Content: prompt})

	promptTokens := conversation.EstimateTokens(prompt)
	if _, err := s.convs.AppendMessage(ctx, chat.ID, model.RoleUser, prompt, promptTokens); err != nil {
		return nil, err
	}

	start := time.Now()
	reply, err := s.provider.Complete(ctx, history)
	s.metrics.ObserveProviderDuration(time.Since(start))
	if err != nil {
		// The user message stays; no debit for the failed attempt.
		s.metrics.IncProviderFailure()
		s.logger.Error("provider_call_failed",
			"user_id", userID,
			"chat_id", chat.ID,
			"error", err,
		)
		return nil, ErrProviderFailure
	}

	total := reply.Tokens + promptTokens
	assistantMsg, err := s.convs.CompleteExchange(ctx, chat.ID, userID, reply.Content, reply.Tokens, total)
	if err != nil {
		return nil, err
	}

	s.metrics.IncExchangeCompleted()
	s.metrics.AddTokensDebited(total)
	if s.publisher != nil {
		s.publisher.PublishExchange(userID, chat.ID, promptTokens, reply.Tokens)
	}

	s.logger.Info("exchange_completed",
		"user_id", userID,
		"chat_id", chat.ID,
		"prompt_tokens", promptTokens,
		"completion_tokens", reply.Tokens,
	)

	return &Result{
		Content:     reply.Content,
		MessageID:   assistantMsg.ID,
		ChatID:      chat.ID,
		TokensSpent: total,
	}, nil
}

// resolveChat loads an owned chat and its context window, or creates a
// new chat titled from the prompt. A missing or foreign chat surfaces
// as not-found either way.
func (s *Service) resolveChat(ctx context.Context, userID, chatID, prompt string) (*model.Chat, []model.Turn, error) {
	if chatID == "" {
		chat, err := s.convs.CreateChat(ctx, userID, prompt)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve chat: %w", err)
		}
		return chat, nil, nil
	}

	chat, err := s.convs.GetChatForUser(ctx, chatID, userID)
	if err != nil {
		return nil, nil, err
	}

	history, err := s.convs.ContextWindow(ctx, chat.ID, conversation.MaxWindowTurns)
	if err != nil {
		return nil, nil, err
	}

	return chat, history, nil
}

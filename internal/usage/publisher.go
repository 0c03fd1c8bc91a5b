// Package usage provides exchange usage capture and processing.
//
// Completed exchanges are published to a Redis stream and drained by a
// consumer-group worker into durable usage tables. The pipeline is
// reporting-only: a publish failure is logged and dropped, never
// surfaced to the request path, and the quota ledger does not depend
// on it.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tokenledger/tokenledger/internal/metrics"
)

const (
	// StreamKey is the Redis stream for usage events.
	StreamKey = "stream:usage_events"

	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "stream:usage_events:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 100 * time.Millisecond
)

// ExchangePayload is the compressed event format for the Redis stream.
type ExchangePayload struct {
	UserID           string `json:"u"`
	ChatID           string `json:"c"`
	PromptTokens     int64  `json:"pt"`
	CompletionTokens int64  `json:"ct"`
	ExchangedAt      int64  `json:"t"` // Unix milliseconds
}

// Publisher enqueues exchange events to the Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a new usage event publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "usage.publisher"),
		metrics: recorder,
	}
}

// Publish adds an exchange event to the stream synchronously.
func (p *Publisher) Publish(ctx context.Context, event ExchangePayload) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	result, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true, // ~MAXLEN for performance
		ID:     "*",  // Auto-generate ID
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()

	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	return result, nil
}

// PublishExchange publishes without blocking the caller.
// Errors are logged but not returned (fire-and-forget).
func (p *Publisher) PublishExchange(userID, chatID string, promptTokens, completionTokens int64) {
	event := ExchangePayload{
		UserID:           userID,
		ChatID:           chatID,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		ExchangedAt:      time.Now().UnixMilli(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, event)
		if err != nil {
			p.logger.Warn("failed to publish usage event",
				"user_id", event.UserID,
				"chat_id", event.ChatID,
				"error", err,
			)
			p.metrics.IncUsageEventPublished("dropped")
			return
		}

		p.logger.Debug("usage event published",
			"chat_id", event.ChatID,
			"stream_id", streamID,
		)
		p.metrics.IncUsageEventPublished("success")
	}()
}

// ValidatePayload rejects events the worker could not persist.
func ValidatePayload(event ExchangePayload) error {
	if event.UserID == "" {
		return fmt.Errorf("missing user id")
	}
	if event.ChatID == "" {
		return fmt.Errorf("missing chat id")
	}
	if event.PromptTokens < 0 || event.CompletionTokens < 0 {
		return fmt.Errorf("negative token counts")
	}
	if event.ExchangedAt <= 0 {
		return fmt.Errorf("missing timestamp")
	}
	return nil
}

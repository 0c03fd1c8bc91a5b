package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tokenledger/tokenledger/internal/model"
)

// UsageEventRepository provides database access for the usage pipeline.
type UsageEventRepository struct {
	repo *Repository
}

// NewUsageEventRepository creates a new UsageEventRepository.
func NewUsageEventRepository(repo *Repository) *UsageEventRepository {
	return &UsageEventRepository{repo: repo}
}

// BulkInsert inserts a batch of usage events with idempotency via
// ON CONFLICT DO NOTHING on the stream-assigned event id, so redelivered
// batches do not double-count.
func (r *UsageEventRepository) BulkInsert(ctx context.Context, events []*model.UsageEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	query := `
		INSERT INTO usage_events (
			id, event_id, user_id, chat_id, prompt_tokens, completion_tokens, exchanged_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`

	for _, event := range events {
		batch.Queue(query,
			event.ID,
			event.EventID,
			event.UserID,
			event.ChatID,
			event.PromptTokens,
			event.CompletionTokens,
			event.ExchangedAt,
		)
	}

	results := r.repo.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(events); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert event %d: %w", i, err)
		}
	}

	return nil
}

// UpdateDailyUsage recomputes the per-user daily rollups touched by a
// batch. Recalculating from usage_events keeps the rollup correct under
// redelivery instead of accumulating increments.
func (r *UsageEventRepository) UpdateDailyUsage(ctx context.Context, events []*model.UsageEvent) error {
	if len(events) == 0 {
		return nil
	}

	for _, key := range uniqueDailyKeys(events) {
		if err := r.recalculateDay(ctx, key.userID, key.date); err != nil {
			return fmt.Errorf("recalculate daily usage %s:%s: %w", key.userID, key.date.Format("2006-01-02"), err)
		}
	}

	return nil
}

type dailyKey struct {
	userID string
	date   time.Time
}

func uniqueDailyKeys(events []*model.UsageEvent) []dailyKey {
	seen := make(map[string]dailyKey)
	for _, event := range events {
		day := event.ExchangedAt.UTC().Truncate(24 * time.Hour)
		k := fmt.Sprintf("%s:%s", event.UserID, day.Format("2006-01-02"))
		seen[k] = dailyKey{userID: event.UserID, date: day}
	}

	keys := make([]dailyKey, 0, len(seen))
	for _, key := range seen {
		keys = append(keys, key)
	}
	return keys
}

func (r *UsageEventRepository) recalculateDay(ctx context.Context, userID string, date time.Time) error {
	start := date.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	query := `
		INSERT INTO usage_daily (user_id, date, exchanges, tokens, updated_at)
		SELECT $1, $2, COUNT(*), COALESCE(SUM(prompt_tokens + completion_tokens), 0), NOW()
		FROM usage_events
		WHERE user_id = $1 AND exchanged_at >= $2 AND exchanged_at < $3
		ON CONFLICT (user_id, date) DO UPDATE SET
			exchanges  = EXCLUDED.exchanges,
			tokens     = EXCLUDED.tokens,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := r.repo.pool.Exec(ctx, query, userID, start, end); err != nil {
		return fmt.Errorf("upsert daily usage: %w", err)
	}

	return nil
}

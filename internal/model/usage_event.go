package model

import "time"

// UsageEvent records one completed exchange for the reporting pipeline.
// Events flow through a Redis stream and are batch-inserted by the
// usage worker; the request path never waits on them.
type UsageEvent struct {
	ID      string `json:"id"`       // ULID (time-sortable)
	EventID string `json:"event_id"` // Idempotency key (Redis stream ID)

	UserID string `json:"user_id"`
	ChatID string `json:"chat_id"`

	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`

	ExchangedAt time.Time `json:"exchanged_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// TotalTokens is the amount debited for the exchange.
func (e *UsageEvent) TotalTokens() int64 {
	return e.PromptTokens + e.CompletionTokens
}

// DailyUsage is a pre-aggregated per-user daily rollup.
type DailyUsage struct {
	UserID    string    `json:"user_id"`
	Date      time.Time `json:"date"` // UTC date, time component zeroed
	Exchanges int64     `json:"exchanges"`
	Tokens    int64     `json:"tokens"`
	ChatIDs   []string  `json:"chat_ids,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

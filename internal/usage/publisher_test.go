package usage

import (
	"encoding/json"
	"testing"
	"time"
)

func TestValidatePayload(t *testing.T) {
	t.Parallel()

	valid := ExchangePayload{
		UserID:           "user-1",
		ChatID:           "chat-1",
		PromptTokens:     2,
		CompletionTokens: 5,
		ExchangedAt:      time.Now().UnixMilli(),
	}

	tests := []struct {
		name    string
		mutate  func(*ExchangePayload)
		wantErr bool
	}{
		{"valid", func(_ *ExchangePayload) {}, false},
		{"zero tokens ok", func(e *ExchangePayload) { e.PromptTokens = 0; e.CompletionTokens = 0 }, false},
		{"missing user", func(e *ExchangePayload) { e.UserID = "" }, true},
		{"missing chat", func(e *ExchangePayload) { e.ChatID = "" }, true},
		{"negative prompt tokens", func(e *ExchangePayload) { e.PromptTokens = -1 }, true},
		{"negative completion tokens", func(e *ExchangePayload) { e.CompletionTokens = -1 }, true},
		{"missing timestamp", func(e *ExchangePayload) { e.ExchangedAt = 0 }, true},
		{"negative timestamp", func(e *ExchangePayload) { e.ExchangedAt = -5 }, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			event := valid
			tt.mutate(&event)

			err := ValidatePayload(event)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePayload() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExchangePayload_CompactEncoding(t *testing.T) {
	t.Parallel()

	event := ExchangePayload{
		UserID:           "user-1",
		ChatID:           "chat-1",
		PromptTokens:     2,
		CompletionTokens: 5,
		ExchangedAt:      1700000000000,
	}

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	// Stream payloads use single-letter keys to keep entries small.
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	for _, key := range []string{"u", "c", "pt", "ct", "t"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("Encoded payload missing key %q: %s", key, data)
		}
	}

	var decoded ExchangePayload
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded != event {
		t.Errorf("Round trip = %+v, want %+v", decoded, event)
	}
}

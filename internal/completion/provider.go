// Package completion abstracts the AI completion provider.
//
// The orchestrator depends only on the Provider interface, so tests can
// substitute a deterministic stub and the HTTP client can target any
// OpenAI-compatible endpoint.
package completion

import (
	"context"
	"errors"

	"github.com/tokenledger/tokenledger/internal/model"
)

// ErrProviderFailure is the single failure signal surfaced to callers.
// Upstream error details are logged, never propagated.
var ErrProviderFailure = errors.New("completion provider failure")

// Result is one generated reply plus its reported token cost.
type Result struct {
	Content string
	Tokens  int64
}

// Provider generates a reply for an ordered message history.
type Provider interface {
	Complete(ctx context.Context, history []model.Turn) (Result, error)
}

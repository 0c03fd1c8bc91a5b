package completion

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tokenledger/tokenledger/internal/model"
)

// Stub is a deterministic Provider for tests and local development.
// By default it echoes the last user turn with a fixed token cost.
type Stub struct {
	content   string
	tokens    int64
	latency   time.Duration
	err       error
	callCount atomic.Int64
	respond   func([]model.Turn) (Result, error)
}

var _ Provider = (*Stub)(nil)

// StubOption configures a Stub.
type StubOption func(*Stub)

// StubContent makes the stub always return this content.
func StubContent(content string) StubOption {
	return func(s *Stub) { s.content = content }
}

// StubTokens sets the reported token cost.
func StubTokens(tokens int64) StubOption {
	return func(s *Stub) { s.tokens = tokens }
}

// StubLatency adds simulated latency to each call.
func StubLatency(d time.Duration) StubOption {
	return func(s *Stub) { s.latency = d }
}

// StubError makes every call fail with err.
func StubError(err error) StubOption {
	return func(s *Stub) { s.err = err }
}

// StubResponseFunc sets a custom response function.
func StubResponseFunc(fn func([]model.Turn) (Result, error)) StubOption {
	return func(s *Stub) { s.respond = fn }
}

// NewStub creates a stub provider.
func NewStub(opts ...StubOption) *Stub {
	s := &Stub{tokens: 5}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Complete returns the configured reply.
func (s *Stub) Complete(ctx context.Context, history []model.Turn) (Result, error) {
	s.callCount.Add(1)

	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	if s.err != nil {
		return Result{}, s.err
	}
	if s.respond != nil {
		return s.respond(history)
	}

	content := s.content
	if content == "" {
		content = "Echo: " + lastUserTurn(history)
	}
	return Result{Content: content, Tokens: s.tokens}, nil
}

// Calls returns how many times Complete was invoked.
func (s *Stub) Calls() int64 {
	return s.callCount.Load()
}

func lastUserTurn(history []model.Turn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == model.RoleUser {
			return history[i].Content
		}
	}
	return ""
}

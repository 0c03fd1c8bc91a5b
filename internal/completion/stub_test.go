package completion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tokenledger/tokenledger/internal/model"
)

func TestStub_EchoesLastUserTurn(t *testing.T) {
	t.Parallel()

	stub := NewStub()

	history := []model.Turn{
		{Role: model.RoleUser, Content: "first question"},
		{Role: model.RoleAssistant, Content: "first answer"},
		{Role: model.RoleUser, Content: "second question"},
	}

	result, err := stub.Complete(context.Background(), history)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if result.Content != "Echo: second question" {
		t.Errorf("Content = %q, want echo of last user turn", result.Content)
	}
	if result.Tokens != 5 {
		t.Errorf("Tokens = %d, want default 5", result.Tokens)
	}
	if stub.Calls() != 1 {
		t.Errorf("Calls = %d, want 1", stub.Calls())
	}
}

func TestStub_FixedContentAndTokens(t *testing.T) {
	t.Parallel()

	stub := NewStub(StubContent("canned reply"), StubTokens(12))

	result, err := stub.Complete(context.Background(), nil)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if result.Content != "canned reply" {
		t.Errorf("Content = %q, want canned reply", result.Content)
	}
	if result.Tokens != 12 {
		t.Errorf("Tokens = %d, want 12", result.Tokens)
	}
}

func TestStub_Error(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("upstream unavailable")
	stub := NewStub(StubError(wantErr))

	_, err := stub.Complete(context.Background(), nil)
	if !errors.Is(err, wantErr) {
		t.Errorf("Expected configured error, got: %v", err)
	}
	if stub.Calls() != 1 {
		t.Errorf("Calls = %d, want 1 even on error", stub.Calls())
	}
}

func TestStub_LatencyRespectsContext(t *testing.T) {
	t.Parallel()

	stub := NewStub(StubLatency(time.Minute))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := stub.Complete(ctx, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context deadline error, got: %v", err)
	}
}

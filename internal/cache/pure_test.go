package cache

import (
	"context"
	"testing"
)

func TestCheckUserRateLimit_ZeroRateUnlimited(t *testing.T) {
	t.Parallel()

	// A zero rate short-circuits before touching Redis, so no client is
	// needed.
	c := &Cache{}

	result, err := c.CheckUserRateLimit(context.Background(), "user-1", 0, 10)
	if err != nil {
		t.Fatalf("CheckUserRateLimit failed: %v", err)
	}

	if !result.Allowed {
		t.Error("Zero rate should always allow")
	}
	if result.Remaining != 10 {
		t.Errorf("Remaining = %d, want bucket capacity 10", result.Remaining)
	}
	if result.RetryAfter != 0 {
		t.Errorf("RetryAfter = %v, want 0", result.RetryAfter)
	}
}

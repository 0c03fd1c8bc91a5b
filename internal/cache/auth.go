package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tokenledger/tokenledger/internal/model"
)

const (
	// authCachePrefix is the Redis key prefix for auth context cache.
	authCachePrefix = "auth:ctx:"
	// authCacheTTL is the time-to-live for cached auth contexts.
	authCacheTTL = 5 * time.Minute
)

// cachedAuthContext represents auth context stored in Redis.
type cachedAuthContext struct {
	TokenID string   `json:"token_id"`
	Prefix  string   `json:"prefix"`
	UserID  string   `json:"user_id"`
	Scopes  []string `json:"scopes"`
}

// GetAuthContext retrieves a cached auth context by cache key.
// Returns nil if not found (cache miss).
func (c *Cache) GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error) {
	key := authCachePrefix + cacheKey

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		// Cache miss is not an error
		return nil, nil //nolint:nilerr
	}

	var cached cachedAuthContext
	if err := json.Unmarshal(data, &cached); err != nil {
		// Corrupted cache entry - treat as miss
		return nil, nil //nolint:nilerr
	}

	return &model.AuthContext{
		TokenID: cached.TokenID,
		Prefix:  cached.Prefix,
		UserID:  cached.UserID,
		Scopes:  cached.Scopes,
	}, nil
}

// SetAuthContext caches an auth context.
func (c *Cache) SetAuthContext(ctx context.Context, cacheKey string, auth *model.AuthContext) error {
	key := authCachePrefix + cacheKey

	data, err := json.Marshal(cachedAuthContext{
		TokenID: auth.TokenID,
		Prefix:  auth.Prefix,
		UserID:  auth.UserID,
		Scopes:  auth.Scopes,
	})
	if err != nil {
		return fmt.Errorf("marshal auth context: %w", err)
	}

	if err := c.client.Set(ctx, key, data, authCacheTTL).Err(); err != nil {
		return fmt.Errorf("cache auth context: %w", err)
	}

	return nil
}

// InvalidateAuthContext removes a cached auth context (token revoked).
func (c *Cache) InvalidateAuthContext(ctx context.Context, cacheKey string) error {
	return c.client.Del(ctx, authCachePrefix+cacheKey).Err()
}

// Package testutil provides helpers for integration tests gated on
// DATABASE_URL / REDIS_URL.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tokenledger/tokenledger/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 917917

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// runMigrationFile executes one migration file against the pool.
func runMigrationFile(ctx context.Context, pool *pgxpool.Pool, file string) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}

	path := filepath.Join(root, "migrations", file)
	sql, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", file, err)
	}
	if _, err := pool.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("apply migration %s: %w", file, err)
	}

	return nil
}

var migrationOrder = []string{
	"000001_users",
	"000002_chats",
	"000003_api_tokens",
	"000004_usage",
}

// ResetCoreSchema drops and recreates the full schema. Down migrations
// run in reverse order so foreign keys do not block the drops.
func ResetCoreSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for i := len(migrationOrder) - 1; i >= 0; i-- {
		if err := runMigrationFile(ctx, pool, migrationOrder[i]+".down.sql"); err != nil {
			return err
		}
	}
	for _, name := range migrationOrder {
		if err := runMigrationFile(ctx, pool, name+".up.sql"); err != nil {
			return err
		}
	}
	return nil
}

// ResetUsageSchema drops and recreates only the usage pipeline tables.
func ResetUsageSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if err := runMigrationFile(ctx, pool, "000004_usage.down.sql"); err != nil {
		return err
	}
	return runMigrationFile(ctx, pool, "000004_usage.up.sql")
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestUser creates a free-tier user with sensible defaults.
func NewTestUser(t testing.TB, email string) *model.User {
	t.Helper()
	now := time.Now().UTC()
	return &model.User{
		ID:          UniqueID("user"),
		Email:       email,
		TokensUsed:  0,
		TokensLimit: model.PlanFree.Allowance(),
		PlanType:    model.PlanFree,
		CreatedAt:   now,
	}
}

// NewTestChat creates a chat owned by the given user.
func NewTestChat(t testing.TB, userID string) *model.Chat {
	t.Helper()
	now := time.Now().UTC()
	return &model.Chat{
		ID:        UniqueID("chat"),
		UserID:    userID,
		Title:     "Test chat",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewTestMessage creates a user message in the given chat.
func NewTestMessage(t testing.TB, chatID, content string) *model.Message {
	t.Helper()
	return &model.Message{
		ID:        UniqueID("msg"),
		ChatID:    chatID,
		Role:      model.RoleUser,
		Content:   content,
		Tokens:    int64(len(content)+3) / 4,
		CreatedAt: time.Now().UTC(),
	}
}

// NewTestAPIToken creates an API token for the given user.
func NewTestAPIToken(t testing.TB, userID string) *model.APIToken {
	t.Helper()
	now := time.Now().UTC()
	return &model.APIToken{
		ID:        UniqueID("tok"),
		UserID:    userID,
		TokenHash: UniqueID("hash"),
		Prefix:    "abc123",
		Scopes:    []string{model.ScopeChat},
		Name:      "Test Token",
		CreatedAt: now,
	}
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

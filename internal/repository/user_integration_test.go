//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/tokenledger/tokenledger/internal/model"
	"github.com/tokenledger/tokenledger/internal/testutil"
)

// ============================================================================
// User Repository Integration Tests
// ============================================================================

func TestIntegrationUserRepository_CreateAndGet(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	user := testutil.NewTestUser(t, "alice@example.com")
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	retrieved, err := repo.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}

	if retrieved.Email != "alice@example.com" {
		t.Errorf("Email = %q, want alice@example.com", retrieved.Email)
	}
	if retrieved.PlanType != model.PlanFree {
		t.Errorf("PlanType = %s, want free", retrieved.PlanType)
	}
	if retrieved.TokensLimit != model.PlanFree.Allowance() {
		t.Errorf("TokensLimit = %d, want %d", retrieved.TokensLimit, model.PlanFree.Allowance())
	}
	if retrieved.SubscriptionID != nil {
		t.Error("SubscriptionID should be nil for a fresh user")
	}
}

func TestIntegrationUserRepository_GetByID_NotFound(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	_, err := repo.GetUserByID(ctx, "nonexistent-id")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got: %v", err)
	}
}

func TestIntegrationUserRepository_GetByEmail(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	user := testutil.NewTestUser(t, "bob@example.com")
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	retrieved, err := repo.GetUserByEmail(ctx, "bob@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if retrieved.ID != user.ID {
		t.Errorf("ID = %q, want %q", retrieved.ID, user.ID)
	}
}

func TestIntegrationUserRepository_GetOrCreate(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	user := testutil.NewTestUser(t, "carol@example.com")

	first, err := repo.GetOrCreateUser(ctx, user)
	if err != nil {
		t.Fatalf("GetOrCreateUser (create) failed: %v", err)
	}

	// Second call with the same email returns the existing row.
	dup := testutil.NewTestUser(t, "carol@example.com")
	second, err := repo.GetOrCreateUser(ctx, dup)
	if err != nil {
		t.Fatalf("GetOrCreateUser (get) failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("Second call returned ID %q, want %q", second.ID, first.ID)
	}
}

func TestIntegrationUserRepository_UpdateEntitlement(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	user := testutil.NewTestUser(t, "dave@example.com")
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	plan := model.PlanPro
	limit := plan.Allowance()
	sub := "sub_integration_1"
	status := "active"

	err := repo.UpdateEntitlement(ctx, user.ID, EntitlementPatch{
		PlanType:           &plan,
		TokensLimit:        &limit,
		SubscriptionID:     &sub,
		SubscriptionStatus: &status,
	})
	if err != nil {
		t.Fatalf("UpdateEntitlement failed: %v", err)
	}

	retrieved, err := repo.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if retrieved.PlanType != model.PlanPro {
		t.Errorf("PlanType = %s, want pro", retrieved.PlanType)
	}
	if retrieved.TokensLimit != 50000 {
		t.Errorf("TokensLimit = %d, want 50000", retrieved.TokensLimit)
	}
	if retrieved.SubscriptionID == nil || *retrieved.SubscriptionID != sub {
		t.Errorf("SubscriptionID = %v, want %s", retrieved.SubscriptionID, sub)
	}

	// Now the user is discoverable by subscription.
	bySub, err := repo.GetUserBySubscriptionID(ctx, sub)
	if err != nil {
		t.Fatalf("GetUserBySubscriptionID failed: %v", err)
	}
	if bySub.ID != user.ID {
		t.Errorf("ID = %q, want %q", bySub.ID, user.ID)
	}
}

func TestIntegrationUserRepository_UpdateEntitlement_ClearSubscription(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	user := testutil.NewTestUser(t, "erin@example.com")
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	plan := model.PlanPro
	limit := plan.Allowance()
	sub := "sub_integration_2"
	if err := repo.UpdateEntitlement(ctx, user.ID, EntitlementPatch{
		PlanType: &plan, TokensLimit: &limit, SubscriptionID: &sub,
	}); err != nil {
		t.Fatalf("UpdateEntitlement (attach) failed: %v", err)
	}

	free := model.PlanFree
	freeLimit := free.Allowance()
	if err := repo.UpdateEntitlement(ctx, user.ID, EntitlementPatch{
		PlanType: &free, TokensLimit: &freeLimit, ClearSubscription: true,
	}); err != nil {
		t.Fatalf("UpdateEntitlement (clear) failed: %v", err)
	}

	retrieved, err := repo.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if retrieved.SubscriptionID != nil {
		t.Errorf("SubscriptionID = %v, want nil after clear", retrieved.SubscriptionID)
	}
	if retrieved.PlanType != model.PlanFree {
		t.Errorf("PlanType = %s, want free", retrieved.PlanType)
	}

	if _, err := repo.GetUserBySubscriptionID(ctx, sub); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound after clear, got: %v", err)
	}
}

func TestIntegrationUserRepository_UpdateEntitlement_UnknownUser(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	plan := model.PlanPro
	err := repo.UpdateEntitlement(ctx, "nonexistent-id", EntitlementPatch{PlanType: &plan})
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got: %v", err)
	}
}

func TestIntegrationUserRepository_DebitTokens(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	user := testutil.NewTestUser(t, "frank@example.com")
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	chat := testutil.NewTestChat(t, user.ID)
	if err := repo.CreateChat(ctx, chat); err != nil {
		t.Fatalf("CreateChat failed: %v", err)
	}

	if err := repo.DebitTokens(ctx, user.ID, chat.ID, 7); err != nil {
		t.Fatalf("DebitTokens failed: %v", err)
	}
	if err := repo.DebitTokens(ctx, user.ID, chat.ID, 5); err != nil {
		t.Fatalf("DebitTokens failed: %v", err)
	}

	retrieved, err := repo.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if retrieved.TokensUsed != 12 {
		t.Errorf("TokensUsed = %d, want 12", retrieved.TokensUsed)
	}

	gotChat, err := repo.GetChatForUser(ctx, chat.ID, user.ID)
	if err != nil {
		t.Fatalf("GetChatForUser failed: %v", err)
	}
	if gotChat.TokensUsed != 12 {
		t.Errorf("Chat TokensUsed = %d, want 12", gotChat.TokensUsed)
	}
}

func TestIntegrationUserRepository_DebitTokens_Negative(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	err := repo.DebitTokens(ctx, "any", "any", -1)
	if !errors.Is(err, ErrNegativeAmount) {
		t.Errorf("Expected ErrNegativeAmount, got: %v", err)
	}
}

func TestIntegrationUserRepository_ResetUsage(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	user := testutil.NewTestUser(t, "grace@example.com")
	user.TokensUsed = 400
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	status := "active"
	if err := repo.ResetUsage(ctx, user.ID, &status); err != nil {
		t.Fatalf("ResetUsage failed: %v", err)
	}

	retrieved, err := repo.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if retrieved.TokensUsed != 0 {
		t.Errorf("TokensUsed = %d, want 0 after reset", retrieved.TokensUsed)
	}
	if retrieved.SubscriptionStatus == nil || *retrieved.SubscriptionStatus != "active" {
		t.Errorf("SubscriptionStatus = %v, want active", retrieved.SubscriptionStatus)
	}
}

// ============================================================================
// Test Environment Setup
// ============================================================================

func newRepoTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetCoreSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset core schema: %v", err)
	}

	return ctx, repo
}

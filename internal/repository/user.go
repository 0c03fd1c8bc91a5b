package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tokenledger/tokenledger/internal/model"
)

// Common errors for user repository operations.
var (
	ErrUserNotFound   = errors.New("user not found")
	ErrEmailExists    = errors.New("email already exists")
	ErrNegativeAmount = errors.New("debit amount must be nonnegative")
)

const userColumns = `id, email, tokens_used, tokens_limit, plan_type, subscription_id, subscription_status, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.TokensUsed,
		&user.TokensLimit,
		&user.PlanType,
		&user.SubscriptionID,
		&user.SubscriptionStatus,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}

// CreateUser inserts a new user with the free tier's allowance.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (id, email, tokens_used, tokens_limit, plan_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.TokensUsed,
		user.TokensLimit,
		user.PlanType,
		user.CreatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

// GetUserByEmail retrieves a user by their email address.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

// GetUserBySubscriptionID retrieves the user currently holding a billing
// subscription. Returns ErrUserNotFound when no user holds it, which the
// reconciler treats as an out-of-order no-op rather than a failure.
func (r *Repository) GetUserBySubscriptionID(ctx context.Context, subscriptionID string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE subscription_id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, subscriptionID))
}

// GetOrCreateUser gets a user by email or creates one if not found.
func (r *Repository) GetOrCreateUser(ctx context.Context, user *model.User) (*model.User, error) {
	existing, err := r.GetUserByEmail(ctx, user.Email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	user.CreatedAt = time.Now().UTC()
	if err := r.CreateUser(ctx, user); err != nil {
		// Handle race condition - another request may have created it
		if errors.Is(err, ErrEmailExists) {
			return r.GetUserByEmail(ctx, user.Email)
		}
		return nil, err
	}

	return user, nil
}

// EntitlementPatch describes a partial plan-state update. Nil fields are
// left unchanged; ClearSubscription nulls both subscription columns.
type EntitlementPatch struct {
	PlanType           *model.PlanType
	TokensLimit        *int64
	SubscriptionID     *string
	SubscriptionStatus *string
	ClearSubscription  bool
}

// UpdateEntitlement applies a partial plan-state update as a single
// statement. Every field write is an unconditional set-to-target-state,
// so replaying the same patch is idempotent.
func (r *Repository) UpdateEntitlement(ctx context.Context, userID string, patch EntitlementPatch) error {
	query := `
		UPDATE users SET
			plan_type           = COALESCE($2, plan_type),
			tokens_limit        = COALESCE($3, tokens_limit),
			subscription_id     = CASE WHEN $6 THEN NULL ELSE COALESCE($4, subscription_id) END,
			subscription_status = CASE WHEN $6 THEN NULL ELSE COALESCE($5, subscription_status) END
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query,
		userID,
		patch.PlanType,
		patch.TokensLimit,
		patch.SubscriptionID,
		patch.SubscriptionStatus,
		patch.ClearSubscription,
	)
	if err != nil {
		return fmt.Errorf("failed to update entitlement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

// ResetUsage zeroes tokens_used for a new billing period and refreshes
// the subscription status in the same statement, so the renewal event's
// writes are never partially visible.
func (r *Repository) ResetUsage(ctx context.Context, userID string, subscriptionStatus *string) error {
	query := `
		UPDATE users SET
			tokens_used         = 0,
			subscription_status = COALESCE($2, subscription_status)
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, userID, subscriptionStatus)
	if err != nil {
		return fmt.Errorf("failed to reset usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

// DebitTokens atomically increments the user and chat token counters.
// The increment happens in SQL so concurrent debits never lose updates.
// Usage is allowed to overshoot tokens_limit: the admission check runs
// before the provider call and the cost of completed work must still be
// recorded, so there is deliberately no cap here.
func (r *Repository) DebitTokens(ctx context.Context, userID, chatID string, amount int64) error {
	if amount < 0 {
		return ErrNegativeAmount
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin debit tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := debitInTx(ctx, tx, userID, chatID, amount); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit debit tx: %w", err)
	}

	return nil
}

// debitInTx runs the two counter increments inside an existing transaction.
func debitInTx(ctx context.Context, tx pgx.Tx, userID, chatID string, amount int64) error {
	tag, err := tx.Exec(ctx,
		`UPDATE users SET tokens_used = tokens_used + $2 WHERE id = $1`,
		userID, amount,
	)
	if err != nil {
		return fmt.Errorf("failed to debit user tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	tag, err = tx.Exec(ctx,
		`UPDATE chats SET tokens_used = tokens_used + $2, updated_at = NOW() WHERE id = $1`,
		chatID, amount,
	)
	if err != nil {
		return fmt.Errorf("failed to debit chat tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrChatNotFound
	}

	return nil
}

// CountChats returns the number of chats owned by a user.
func (r *Repository) CountChats(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM chats WHERE user_id = $1`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chats: %w", err)
	}
	return count, nil
}

// Package ledger tracks consumed versus allotted tokens per user.
//
// The ledger answers "may this user spend more tokens?" and applies
// atomic debits. The budget check and the debit are intentionally not
// one atomic span: two concurrent exchanges can both pass the check and
// push usage past the limit by one exchange's worth. Admission is
// best-effort; the debit itself never loses an increment because the
// increments run inside SQL.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/tokenledger/tokenledger/internal/model"
	"github.com/tokenledger/tokenledger/internal/repository"
)

// ErrNegativeAmount is returned when a debit amount is below zero.
// Negative debits are rejected, never clamped.
var ErrNegativeAmount = repository.ErrNegativeAmount

// Store is the persistence surface the ledger needs.
// *repository.Repository satisfies it.
type Store interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	DebitTokens(ctx context.Context, userID, chatID string, amount int64) error
	ResetUsage(ctx context.Context, userID string, subscriptionStatus *string) error
	UpdateEntitlement(ctx context.Context, userID string, patch repository.EntitlementPatch) error
}

// Budget is the result of a point-in-time quota check.
type Budget struct {
	Allowed   bool
	Remaining int64
}

// Ledger exposes quota operations over a Store.
type Ledger struct {
	store Store
}

// New creates a Ledger.
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// CheckBudget reads the user's current usage and limit. Allowed iff
// tokens_used < tokens_limit.
func (l *Ledger) CheckBudget(ctx context.Context, userID string) (Budget, error) {
	user, err := l.store.GetUserByID(ctx, userID)
	if err != nil {
		return Budget{}, fmt.Errorf("check budget: %w", err)
	}

	return Budget{
		Allowed:   user.HasBudget(),
		Remaining: user.Remaining(),
	}, nil
}

// Debit records amount tokens against both the user and the chat.
// The debit may push usage over the limit; the cost of an already
// completed generation must still be recorded.
func (l *Ledger) Debit(ctx context.Context, userID, chatID string, amount int64) error {
	if amount < 0 {
		return ErrNegativeAmount
	}
	if err := l.store.DebitTokens(ctx, userID, chatID, amount); err != nil {
		if errors.Is(err, repository.ErrNegativeAmount) {
			return ErrNegativeAmount
		}
		return fmt.Errorf("debit: %w", err)
	}
	return nil
}

// ResetPeriod zeroes the user's usage for a new billing period. Called
// only by the entitlement reconciler on a confirmed renewal.
func (l *Ledger) ResetPeriod(ctx context.Context, userID string, subscriptionStatus *string) error {
	if err := l.store.ResetUsage(ctx, userID, subscriptionStatus); err != nil {
		return fmt.Errorf("reset period: %w", err)
	}
	return nil
}

// SetEntitlement replaces plan fields. Nil patch fields are left
// unchanged.
func (l *Ledger) SetEntitlement(ctx context.Context, userID string, patch repository.EntitlementPatch) error {
	if err := l.store.UpdateEntitlement(ctx, userID, patch); err != nil {
		return fmt.Errorf("set entitlement: %w", err)
	}
	return nil
}

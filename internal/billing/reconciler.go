package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tokenledger/tokenledger/internal/ledger"
	"github.com/tokenledger/tokenledger/internal/metrics"
	"github.com/tokenledger/tokenledger/internal/model"
	"github.com/tokenledger/tokenledger/internal/repository"
)

// UserLookup resolves the user currently holding a subscription.
// *repository.Repository satisfies it.
type UserLookup interface {
	GetUserBySubscriptionID(ctx context.Context, subscriptionID string) (*model.User, error)
}

// Reconciler applies billing events to the quota ledger. Every
// transition is an unconditional set-to-target-state write, so events
// are safe to replay and safe to arrive out of order.
type Reconciler struct {
	ledger  *ledger.Ledger
	users   UserLookup
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(l *ledger.Ledger, users UserLookup, recorder metrics.Recorder, logger *slog.Logger) *Reconciler {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Reconciler{
		ledger:  l,
		users:   users,
		metrics: recorder,
		logger:  logger.With("component", "billing.reconciler"),
	}
}

// Process applies one validated event. A nil return means the event is
// settled and the processor must stop redelivering it; that includes
// dropped and unrecognized events. Errors mean the transition could not
// be applied and the processor should retry.
func (r *Reconciler) Process(ctx context.Context, event Event) error {
	switch event.Kind {
	case EventCheckoutCompleted:
		return r.activateSubscription(ctx, event)
	case EventPaymentSucceeded:
		return r.renewPeriod(ctx, event)
	case EventSubscriptionDeleted:
		return r.cancelSubscription(ctx, event)
	default:
		// Acknowledge-and-ignore arm for the open set of processor
		// event kinds we do not react to.
		r.metrics.IncBillingEventIgnored(string(event.Kind))
		r.logger.Info("billing_event_ignored",
			"event_id", event.ID,
			"kind", string(event.Kind),
		)
		return nil
	}
}

// activateSubscription attaches the subscription and raises the limit
// to the tier's allowance. An event without a user id cannot be applied
// to anyone and is dropped with a warning, not an error.
func (r *Reconciler) activateSubscription(ctx context.Context, event Event) error {
	if event.UserID == "" {
		r.logger.Warn("billing_event_dropped",
			"event_id", event.ID,
			"kind", string(event.Kind),
			"reason", "missing_user_id",
		)
		return nil
	}

	plan := planForEvent(event)
	limit := plan.Allowance()

	patch := repository.EntitlementPatch{
		PlanType:    &plan,
		TokensLimit: &limit,
	}
	if event.SubscriptionID != "" {
		patch.SubscriptionID = &event.SubscriptionID
	}
	if event.Status != "" {
		patch.SubscriptionStatus = &event.Status
	}

	if err := r.ledger.SetEntitlement(ctx, event.UserID, patch); err != nil {
		return fmt.Errorf("activate subscription: %w", err)
	}

	r.metrics.IncBillingEventProcessed(string(event.Kind))
	r.logger.Info("subscription_activated",
		"event_id", event.ID,
		"user_id", event.UserID,
		"plan", string(plan),
	)
	return nil
}

// renewPeriod resets usage for the new billing period. When no user
// holds the subscription the mapping was likely cleared by a
// cancellation that arrived first; the renewal is then a no-op.
func (r *Reconciler) renewPeriod(ctx context.Context, event Event) error {
	user, err := r.users.GetUserBySubscriptionID(ctx, event.SubscriptionID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			r.logger.Info("billing_event_unmatched",
				"event_id", event.ID,
				"kind", string(event.Kind),
			)
			return nil
		}
		return fmt.Errorf("renew period: %w", err)
	}

	var status *string
	if event.Status != "" {
		status = &event.Status
	}

	if err := r.ledger.ResetPeriod(ctx, user.ID, status); err != nil {
		return fmt.Errorf("renew period: %w", err)
	}

	r.metrics.IncBillingEventProcessed(string(event.Kind))
	r.logger.Info("billing_period_renewed",
		"event_id", event.ID,
		"user_id", user.ID,
	)
	return nil
}

// cancelSubscription downgrades to the free tier. Usage is left
// untouched: there is no refund of already consumed tokens.
func (r *Reconciler) cancelSubscription(ctx context.Context, event Event) error {
	user, err := r.users.GetUserBySubscriptionID(ctx, event.SubscriptionID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			r.logger.Info("billing_event_unmatched",
				"event_id", event.ID,
				"kind", string(event.Kind),
			)
			return nil
		}
		return fmt.Errorf("cancel subscription: %w", err)
	}

	plan := model.PlanFree
	limit := plan.Allowance()

	err = r.ledger.SetEntitlement(ctx, user.ID, repository.EntitlementPatch{
		PlanType:          &plan,
		TokensLimit:       &limit,
		ClearSubscription: true,
	})
	if err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}

	r.metrics.IncBillingEventProcessed(string(event.Kind))
	r.logger.Info("subscription_canceled",
		"event_id", event.ID,
		"user_id", user.ID,
	)
	return nil
}

// planForEvent maps the checkout's plan reference to a tier, defaulting
// to pro for unknown references.
func planForEvent(event Event) model.PlanType {
	plan := model.PlanType(event.Plan)
	if plan.IsValid() && plan != model.PlanFree {
		return plan
	}
	return model.PlanPro
}

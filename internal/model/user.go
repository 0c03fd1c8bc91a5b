// Package model defines domain entities for the application.
package model

import "time"

// PlanType identifies a subscription tier.
type PlanType string

const (
	PlanFree       PlanType = "free"
	PlanPro        PlanType = "pro"
	PlanEnterprise PlanType = "enterprise"
)

// IsValid checks if the plan type is a known tier.
func (p PlanType) IsValid() bool {
	return p == PlanFree || p == PlanPro || p == PlanEnterprise
}

// Allowance returns the token limit granted by the tier per billing period.
func (p PlanType) Allowance() int64 {
	switch p {
	case PlanPro:
		return 50000
	case PlanEnterprise:
		return 200000
	default:
		return 1000
	}
}

// User represents an account with its token quota and plan state.
// TokensUsed only grows within a billing period; it is reset to zero
// by a confirmed renewal event, never by the request path.
type User struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	TokensUsed         int64     `json:"tokens_used"`
	TokensLimit        int64     `json:"tokens_limit"`
	PlanType           PlanType  `json:"plan_type"`
	SubscriptionID     *string   `json:"subscription_id,omitempty"`
	SubscriptionStatus *string   `json:"subscription_status,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// HasBudget reports whether the user may start another exchange.
// This is a point-in-time check, not a reservation.
func (u *User) HasBudget() bool {
	return u.TokensUsed < u.TokensLimit
}

// Remaining returns the tokens left in the current period.
// Concurrent exchanges may push usage past the limit, so clamp at zero.
func (u *User) Remaining() int64 {
	if u.TokensUsed >= u.TokensLimit {
		return 0
	}
	return u.TokensLimit - u.TokensUsed
}

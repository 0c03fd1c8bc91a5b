package billing

import (
	"encoding/json"
	"fmt"
)

// EventKind is the closed set of billing event kinds this service
// reacts to. Anything else falls through to the acknowledge-and-ignore
// arm: the processor retries non-2xx forever, so unknown-but-harmless
// kinds must still be acked.
type EventKind string

const (
	EventCheckoutCompleted   EventKind = "checkout.session.completed"
	EventPaymentSucceeded    EventKind = "invoice.payment_succeeded"
	EventSubscriptionDeleted EventKind = "customer.subscription.deleted"
)

// Handled reports whether the kind has a reconciler transition.
func (k EventKind) Handled() bool {
	switch k {
	case EventCheckoutCompleted, EventPaymentSucceeded, EventSubscriptionDeleted:
		return true
	}
	return false
}

// Event is one validated billing notification.
type Event struct {
	ID             string
	Kind           EventKind
	UserID         string // from checkout metadata; empty for other kinds
	SubscriptionID string
	Status         string // processor's subscription/payment status
	Plan           string // plan name from checkout metadata, may be empty
}

// rawEvent mirrors the processor's envelope: an id, a type string and a
// kind-specific object.
type rawEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object rawObject `json:"object"`
	} `json:"data"`
}

type rawObject struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
	Status       string `json:"status"`
	Metadata     struct {
		UserID string `json:"userId"`
		Plan   string `json:"plan"`
	} `json:"metadata"`
}

// ParseEvent decodes a verified payload into an Event. Only the
// envelope is validated here; kind-specific requirements (such as a
// checkout carrying a user id) are the reconciler's concern.
func ParseEvent(payload []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Event{}, fmt.Errorf("parse billing event: %w", err)
	}

	event := Event{
		ID:     raw.ID,
		Kind:   EventKind(raw.Type),
		UserID: raw.Data.Object.Metadata.UserID,
		Status: raw.Data.Object.Status,
		Plan:   raw.Data.Object.Metadata.Plan,
	}

	// Checkout and invoice objects reference the subscription by field;
	// a subscription object is the subscription itself.
	switch event.Kind {
	case EventSubscriptionDeleted:
		event.SubscriptionID = raw.Data.Object.ID
	default:
		event.SubscriptionID = raw.Data.Object.Subscription
	}

	return event, nil
}

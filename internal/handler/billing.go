package handler

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tokenledger/tokenledger/internal/billing"
	"github.com/tokenledger/tokenledger/internal/handler/dto"
)

// SignatureHeaderName is the header carrying the processor's signature.
const SignatureHeaderName = "Billing-Signature"

// maxWebhookBody caps the webhook payload size.
const maxWebhookBody = 1 << 20 // 1 MB

// BillingWebhookHandler receives signed events from the payment
// processor.
type BillingWebhookHandler struct {
	reconciler   *billing.Reconciler
	secret       string
	replayWindow time.Duration
	logger       *slog.Logger
}

// NewBillingWebhookHandler creates a new BillingWebhookHandler.
func NewBillingWebhookHandler(reconciler *billing.Reconciler, secret string, replayWindow time.Duration, logger *slog.Logger) *BillingWebhookHandler {
	if replayWindow <= 0 {
		replayWindow = billing.DefaultReplayWindow
	}
	return &BillingWebhookHandler{
		reconciler:   reconciler,
		secret:       secret,
		replayWindow: replayWindow,
		logger:       logger,
	}
}

// Receive handles POST /api/billing/webhook.
//
// Status codes drive the processor's retry behavior: 400 rejects an
// unverifiable payload without processing it, 500 asks for redelivery
// after a processing failure, and 200 settles the event - including
// kinds we deliberately ignore.
func (h *BillingWebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unable to read request body")
		return
	}

	header := r.Header.Get(SignatureHeaderName)
	if err := billing.VerifySignature(h.secret, header, payload, h.replayWindow); err != nil {
		h.logger.Warn("webhook_signature_rejected",
			"error", err,
			"ip", r.RemoteAddr,
		)
		writeError(w, http.StatusBadRequest, "Invalid signature")
		return
	}

	event, err := billing.ParseEvent(payload)
	if err != nil {
		h.logger.Warn("webhook_payload_malformed", "error", err)
		writeError(w, http.StatusBadRequest, "Malformed event payload")
		return
	}

	if err := h.reconciler.Process(r.Context(), event); err != nil {
		// Non-2xx makes the processor redeliver; transitions are
		// idempotent so the retry is safe.
		h.logger.Error("webhook_processing_failed",
			"event_id", event.ID,
			"kind", string(event.Kind),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "Event processing failed")
		return
	}

	writeJSON(w, http.StatusOK, dto.WebhookAckResponse{Received: true})
}

package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tokenledger/tokenledger/internal/auth"
	"github.com/tokenledger/tokenledger/internal/conversation"
	"github.com/tokenledger/tokenledger/internal/exchange"
	"github.com/tokenledger/tokenledger/internal/handler/dto"
)

// ChatHandler handles HTTP requests for conversation operations.
type ChatHandler struct {
	exchanges *exchange.Service
	convs     *conversation.Service
	logger    *slog.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(exchanges *exchange.Service, convs *conversation.Service, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		exchanges: exchanges,
		convs:     convs,
		logger:    logger,
	}
}

// SubmitPrompt handles POST /api/chat.
func (h *ChatHandler) SubmitPrompt(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req dto.SubmitPromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	chatID := ""
	if req.ChatID != nil {
		chatID = *req.ChatID
	}

	result, err := h.exchanges.SubmitPrompt(r.Context(), userID, chatID, req.Message)
	if err != nil {
		h.handleExchangeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SubmitPromptResponse{
		Content:    result.Content,
		MessageID:  result.MessageID,
		ChatID:     result.ChatID,
		TokensUsed: result.TokensSpent,
	})
}

// ListChats handles GET /api/chats.
func (h *ChatHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	summaries, err := h.convs.ListChats(r.Context(), userID)
	if err != nil {
		h.logger.Error("list_chats_failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list chats")
		return
	}

	writeJSON(w, http.StatusOK, dto.ToChatListResponse(summaries))
}

// handleExchangeError maps orchestrator errors to HTTP responses.
func (h *ChatHandler) handleExchangeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, exchange.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "Authentication required")
	case errors.Is(err, exchange.ErrEmptyPrompt):
		writeError(w, http.StatusBadRequest, "Message must not be empty")
	case errors.Is(err, exchange.ErrChatNotFound):
		writeError(w, http.StatusNotFound, "Chat not found")
	case errors.Is(err, exchange.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, exchange.ErrQuotaExceeded):
		writeError(w, http.StatusTooManyRequests, "Token limit exceeded. Upgrade your plan to continue.")
	case errors.Is(err, exchange.ErrProviderFailure):
		writeError(w, http.StatusInternalServerError, "Failed to generate a response")
	default:
		h.logger.Error("exchange_failed", "error", err)
		writeError(w, http.StatusInternalServerError, "An internal error occurred")
	}
}

package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tokenledger/tokenledger/internal/auth"
	"github.com/tokenledger/tokenledger/internal/handler/dto"
	"github.com/tokenledger/tokenledger/internal/model"
	"github.com/tokenledger/tokenledger/internal/repository"
)

// UserStatsStore is the persistence surface the stats endpoint reads.
// *repository.Repository satisfies it.
type UserStatsStore interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	CountChats(ctx context.Context, userID string) (int64, error)
}

// UserHandler handles HTTP requests for user account data.
type UserHandler struct {
	repo   UserStatsStore
	logger *slog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(repo UserStatsStore, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		repo:   repo,
		logger: logger,
	}
}

// Stats handles GET /api/user/stats.
func (h *UserHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	user, err := h.repo.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.logger.Error("user_stats_failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load usage stats")
		return
	}

	chatCount, err := h.repo.CountChats(r.Context(), userID)
	if err != nil {
		h.logger.Error("user_stats_failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load usage stats")
		return
	}

	writeJSON(w, http.StatusOK, dto.UsageStatsResponse{
		TokensUsed:  user.TokensUsed,
		TokensLimit: user.TokensLimit,
		PlanType:    string(user.PlanType),
		ChatCount:   chatCount,
	})
}

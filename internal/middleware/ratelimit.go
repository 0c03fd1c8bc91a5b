package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tokenledger/tokenledger/internal/auth"
	"github.com/tokenledger/tokenledger/internal/cache"
)

// RateLimitConfig holds configuration for the rate limiting middleware.
type RateLimitConfig struct {
	Logger *slog.Logger
	Cache  *cache.Cache
	// Enabled toggles per-user rate limiting.
	Enabled bool
	// RequestsPerMinute is the sustained rate per user. Zero means unlimited.
	RequestsPerMinute int
	Burst             int
}

// RateLimit returns middleware that rate limits requests per user.
// Must be applied after Auth middleware.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			authCtx := auth.AuthFromContext(r.Context())
			if authCtx == nil {
				// No auth context - should not happen if Auth middleware ran first
				next.ServeHTTP(w, r)
				return
			}

			result, err := cfg.Cache.CheckUserRateLimit(
				r.Context(),
				authCtx.UserID,
				cfg.RequestsPerMinute,
				cfg.Burst,
			)
			if err != nil {
				cfg.Logger.Error("rate limit check failed",
					slog.String("error", err.Error()),
					slog.String("user_id", authCtx.UserID),
				)
				// Fail open - allow request
				next.ServeHTTP(w, r)
				return
			}

			if cfg.RequestsPerMinute > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerMinute))
				w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
			}

			if !result.Allowed {
				cfg.Logger.Warn("rate limit exceeded",
					slog.String("user_id", authCtx.UserID),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.Int64("retry_after_seconds", int64(result.RetryAfter.Seconds())),
					slog.String("request_id", GetRequestID(r.Context())),
				)

				w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				msg := fmt.Sprintf(`{"message":"Rate limit exceeded. Retry after %d seconds."}`,
					int(result.RetryAfter.Seconds()))
				_, _ = w.Write([]byte(msg))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

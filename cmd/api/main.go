// Package main is the entrypoint for the tokenledger API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tokenledger/tokenledger/internal/billing"
	"github.com/tokenledger/tokenledger/internal/cache"
	"github.com/tokenledger/tokenledger/internal/completion"
	"github.com/tokenledger/tokenledger/internal/config"
	"github.com/tokenledger/tokenledger/internal/conversation"
	"github.com/tokenledger/tokenledger/internal/exchange"
	"github.com/tokenledger/tokenledger/internal/handler"
	"github.com/tokenledger/tokenledger/internal/ledger"
	"github.com/tokenledger/tokenledger/internal/metrics"
	"github.com/tokenledger/tokenledger/internal/middleware"
	"github.com/tokenledger/tokenledger/internal/repository"
	"github.com/tokenledger/tokenledger/internal/server"
	"github.com/tokenledger/tokenledger/internal/usage"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	recorder := metrics.NewInMemory()

	// Core services
	quotaLedger := ledger.New(repo)
	convs := conversation.New(repo)

	var provider completion.Provider
	if cfg.ProviderAPIKey == "" {
		// Without credentials the deterministic stub keeps local
		// environments usable end to end.
		logger.Warn("no provider API key configured, using stub provider")
		provider = completion.NewStub()
	} else {
		provider = completion.NewClient(
			cfg.ProviderBaseURL,
			cfg.ProviderAPIKey,
			cfg.ProviderModel,
			logger,
			completion.WithMaxTokens(cfg.ProviderMaxTokens),
		)
	}

	var publisher *usage.Publisher
	if cfg.UsagePipelineEnabled {
		publisher = usage.NewPublisher(cacheClient.Client(), logger, recorder)
	}

	var exchangePublisher exchange.UsagePublisher
	if publisher != nil {
		exchangePublisher = publisher
	}
	exchanges := exchange.New(quotaLedger, convs, provider, exchangePublisher, recorder, logger)
	reconciler := billing.NewReconciler(quotaLedger, repo, recorder, logger)

	// Handlers
	healthHandler := handler.NewHealthHandler(repo, cacheClient)
	metricsHandler := handler.NewMetricsHandler(recorder)
	chatHandler := handler.NewChatHandler(exchanges, convs, logger)
	userHandler := handler.NewUserHandler(repo, logger)
	if cfg.BillingWebhookSecret == "" {
		// Signature verification fails closed on an empty secret, so
		// the webhook endpoint rejects every delivery until one is set.
		logger.Warn("no billing webhook secret configured, webhook deliveries will be rejected")
	}
	webhookHandler := handler.NewBillingWebhookHandler(reconciler, cfg.BillingWebhookSecret, cfg.BillingReplayWindow, logger)

	r := setupRouter(routerDeps{
		health:  healthHandler,
		metrics: metricsHandler,
		chat:    chatHandler,
		user:    userHandler,
		webhook: webhookHandler,
		repo:    repo,
		cache:   cacheClient,
		cfg:     cfg,
		logger:  logger,
	})

	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	// Usage worker drains the exchange event stream into Postgres.
	if cfg.UsagePipelineEnabled {
		usageRepo := repository.NewUsageEventRepository(repo)
		worker := usage.NewWorker(cacheClient.Client(), usageRepo, logger, usage.NewConsumerID(), recorder)

		workerCtx, cancelWorker := context.WithCancel(ctx)
		go func() {
			if err := worker.Run(workerCtx); err != nil {
				logger.Error("usage worker stopped", "error", err)
			}
		}()

		srv.OnShutdown("usage-worker", func(ctx context.Context) error {
			cancelWorker()
			return worker.Shutdown(ctx)
		})
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type routerDeps struct {
	health  *handler.HealthHandler
	metrics *handler.MetricsHandler
	chat    *handler.ChatHandler
	user    *handler.UserHandler
	webhook *handler.BillingWebhookHandler
	repo    *repository.Repository
	cache   *cache.Cache
	cfg     *config.Config
	logger  *slog.Logger
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(deps routerDeps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(deps.logger))
	r.Use(middleware.Recoverer(deps.logger))

	// Health and ops endpoints (no auth required)
	r.Get("/healthz", deps.health.Healthz)
	r.Get("/readyz", deps.health.Readyz)
	r.Get("/metrics", deps.metrics.Metrics)

	// Root info endpoint
	r.Get("/", handler.Hello)

	authCfg := middleware.AuthConfig{
		Logger:     deps.logger,
		Repository: deps.repo,
		Cache:      deps.cache,
	}

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:            deps.logger,
		Cache:             deps.cache,
		Enabled:           deps.cfg.RateLimitEnabled,
		RequestsPerMinute: deps.cfg.RateLimitRPM,
		Burst:             deps.cfg.RateLimitBurst,
	}

	r.Route("/api", func(r chi.Router) {
		// Billing webhook: verified by signature, not by bearer token.
		r.Post("/billing/webhook", deps.webhook.Receive)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(authCfg))
			r.Use(middleware.RequireChat())

			r.With(middleware.RateLimit(rateLimitCfg)).Post("/chat", deps.chat.SubmitPrompt)
			r.Get("/chats", deps.chat.ListChats)
			r.Get("/user/stats", deps.user.Stats)
		})
	})

	// 404 and 405 handlers
	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}

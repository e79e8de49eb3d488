// Package main is the entrypoint for the VR store API server.
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

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/auth"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/cache"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/config"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/handler"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/metrics"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/middleware"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/migrations"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/payments"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/payments/flutterwave"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/payments/stripepay"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/repository"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/scheduler"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/server"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/service"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/webhook"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	if cfg.MigrateOnStart {
		version, err := migrations.Up(cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to apply migrations", slog.String("error", sanitizeError(err, cfg.DatabaseURL)))
			os.Exit(1)
		}
		logger.Info("database schema up to date", "version", version)
	}

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL, cache.WithPoolSize(cfg.RedisPoolSize))
	if err != nil {
		repo.Close()
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to Redis")

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		logger.Error("failed to initialize session tokens", "error", err)
		os.Exit(1)
	}

	recorder := metrics.NewPrometheus()

	// Developer notification webhooks share the pool through database/sql.
	sqlDB := repo.SQLDB()
	webhookRepo := webhook.NewRepository(sqlDB)
	endpoints := webhook.NewEndpointService(webhookRepo, webhook.TargetPolicy{AllowInsecure: cfg.IsDevelopment()}, logger)
	publisher := webhook.NewPublisher(webhookRepo, logger)

	// Services
	accounts := service.NewAccountService(repo, repo, tokens, logger).WithPrincipalCache(cacheClient)
	catalog := service.NewCatalogService(repo, cacheClient, cfg.CatalogCacheTTL, recorder, logger)
	developers := service.NewDeveloperService(repo, cacheClient, recorder, logger)
	releases := service.NewReleaseService(repo, cacheClient, recorder, logger)
	moderation := service.NewModerationService(repo, cacheClient, publisher, recorder, logger)
	reviews := service.NewReviewService(repo, cacheClient, logger)
	purchases := service.NewPaymentService(
		repo,
		payments.NewRegistry(configuredProviders(cfg, logger)...),
		publisher,
		service.PaymentConfig{FeePercent: cfg.PlatformFeePercent, BaseURL: cfg.BaseURL},
		recorder,
		logger,
	)

	r := setupRouter(routes{
		health: handler.NewHealthHandler(map[string]handler.HealthChecker{
			"database": repo,
			"redis":    cacheClient,
		}),
		catalog:   handler.NewCatalogHandler(catalog, recorder, logger),
		accounts:  handler.NewAccountHandler(accounts, logger),
		developer: handler.NewDeveloperHandler(developers, releases, purchases, accounts, logger),
		webhooks:  handler.NewWebhookHandler(endpoints, developers, logger),
		admin:     handler.NewAdminHandler(moderation, purchases, logger),
		reviews:   handler.NewReviewHandler(reviews, logger),
		payments:  handler.NewPaymentHandler(purchases, logger),
	}, repo, cacheClient, tokens, recorder, cfg, logger)

	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	if cfg.WebhookWorkerEnabled {
		srv.Go("webhook-worker", webhook.NewWorker(webhookRepo, logger, recorder).Run)
	}
	if cfg.PayoutEnabled {
		sched, err := scheduler.New(cfg.PayoutSchedule, purchases, logger)
		if err != nil {
			logger.Error("failed to create payout scheduler", "error", err)
			os.Exit(1)
		}
		srv.Go("payout-scheduler", sched.Run)
	}

	srv.OnShutdown("database", func(context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("webhook-db", func(context.Context) error {
		return sqlDB.Close()
	})
	srv.OnShutdown("redis", func(context.Context) error {
		return cacheClient.Close()
	})

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"env", cfg.AppEnv,
		"stripe", cfg.StripeEnabled(),
		"flutterwave", cfg.FlutterwaveEnabled(),
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// configuredProviders returns the payment providers with credentials set.
func configuredProviders(cfg *config.Config, logger *slog.Logger) []payments.Provider {
	var providers []payments.Provider
	if cfg.StripeEnabled() {
		providers = append(providers, stripepay.New(stripepay.Config{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
		}, logger))
	}
	if cfg.FlutterwaveEnabled() {
		providers = append(providers, flutterwave.New(flutterwave.Config{
			SecretKey:   cfg.FlutterwaveSecretKey,
			WebhookHash: cfg.FlutterwaveWebhookHash,
			BaseURL:     cfg.FlutterwaveBaseURL,
		}, logger))
	}
	return providers
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
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

// routes groups the HTTP handlers mounted by setupRouter.
type routes struct {
	health    *handler.HealthHandler
	catalog   *handler.CatalogHandler
	accounts  *handler.AccountHandler
	developer *handler.DeveloperHandler
	webhooks  *handler.WebhookHandler
	admin     *handler.AdminHandler
	reviews   *handler.ReviewHandler
	payments  *handler.PaymentHandler
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	h routes,
	repo *repository.Repository,
	cacheClient *cache.Cache,
	tokens *auth.TokenIssuer,
	recorder *metrics.PrometheusRecorder,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	securityCfg := middleware.DefaultSecurityConfig()
	securityCfg.IsDevelopment = cfg.IsDevelopment()

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Metrics(recorder))
	r.Use(middleware.Security(securityCfg))
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	// Operational endpoints (no auth required)
	r.Get("/healthz", h.health.Healthz)
	r.Get("/readyz", h.health.Readyz)
	r.Handle("/metrics", recorder.Handler())

	authCfg := middleware.AuthConfig{
		Logger: logger,
		Keys:   repo,
		Users:  repo,
		Cache:  cacheClient,
		Tokens: tokens,
	}

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:     logger,
		Limiter:    cacheClient,
		APIEnabled: cfg.RateLimitAPIEnabled,
		IPEnabled:  cfg.RateLimitPublicEnabled,
		IPRPS:      cfg.RateLimitPublicRPS,
		IPBurst:    cfg.RateLimitPublicBurst,
	}

	validSlug := middleware.ValidateURLParams(logger, map[string]middleware.ParamRule{
		"slug": middleware.ValidateSlug,
	})
	validIDs := middleware.ValidateURLParams(logger, map[string]middleware.ParamRule{
		"appID":      middleware.ValidateID,
		"releaseID":  middleware.ValidateID,
		"keyID":      middleware.ValidateID,
		"id":         middleware.ValidateID,
		"deliveryID": middleware.ValidateID,
	})

	r.Route("/api", func(r chi.Router) {
		// Public catalog: anonymous callers are limited per IP, signed-in
		// callers per key or user.
		r.Route("/public", func(r chi.Router) {
			r.Use(middleware.OptionalAuth(authCfg))
			r.Use(middleware.RateLimitIP(rateLimitCfg))
			r.Use(middleware.RateLimitAPI(rateLimitCfg))

			r.Get("/apps", h.catalog.ListApps)
			r.Get("/categories", h.catalog.Categories)
			r.Route("/apps/{slug}", func(r chi.Router) {
				r.Use(validSlug)
				r.Get("/", h.catalog.GetApp)
				r.Get("/reviews", h.catalog.ListReviews)
				r.Get("/releases", h.catalog.ListReleases)
				r.Get("/download", h.catalog.Download)
				r.Get("/sideload", h.catalog.Sideload)
			})
		})

		r.Route("/auth", func(r chi.Router) {
			r.Use(middleware.RateLimitIP(rateLimitCfg))
			r.Post("/register", h.accounts.Register)
			r.Post("/login", h.accounts.Login)
			r.With(middleware.Auth(authCfg), middleware.RateLimitAPI(rateLimitCfg)).Get("/me", h.accounts.Me)
		})

		// Signed-in routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(authCfg))
			r.Use(middleware.RateLimitAPI(rateLimitCfg))

			r.Route("/account", func(r chi.Router) {
				r.Get("/library", h.payments.Library)
				r.Route("/api-keys", func(r chi.Router) {
					r.Get("/", h.accounts.ListAPIKeys)
					r.Post("/", h.accounts.CreateAPIKey)
					r.With(validIDs).Delete("/{keyID}", h.accounts.RevokeAPIKey)
					r.With(validIDs).Post("/{keyID}/rotate", h.accounts.RotateAPIKey)
				})
			})

			r.With(middleware.RequireScope(model.ScopeWrite)).Post("/checkout", h.payments.Checkout)

			r.Route("/apps/{slug}/reviews", func(r chi.Router) {
				r.Use(validSlug)
				r.Use(middleware.RequireScope(model.ScopeWrite))
				r.Post("/", h.reviews.Upsert)
				r.Delete("/", h.reviews.Delete)
			})

			r.Route("/developer", func(r chi.Router) {
				// Creating a profile is what grants the developer role.
				r.With(middleware.RequireScope(model.ScopeWrite)).Post("/profile", h.developer.CreateProfile)

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireRole(model.RoleDeveloper))
					write := middleware.RequireScope(model.ScopeWrite)

					r.Get("/profile", h.developer.GetProfile)
					r.With(write).Patch("/profile", h.developer.UpdateProfile)

					r.Route("/apps", func(r chi.Router) {
						r.Get("/", h.developer.ListApps)
						r.With(write).Post("/", h.developer.CreateApp)
						r.Route("/{appID}", func(r chi.Router) {
							r.Use(validIDs)
							r.Get("/", h.developer.GetApp)
							r.With(write).Patch("/draft", h.developer.UpdateDraft)
							r.With(write).Post("/submit", h.developer.Submit)
							r.Get("/history", h.developer.History)
							r.Get("/releases", h.developer.ListReleases)
							r.With(write).Post("/releases", h.developer.CreateRelease)
							r.With(write, validIDs).Delete("/releases/{releaseID}", h.developer.DeleteRelease)
						})
					})

					r.Get("/payouts", h.developer.ListPayouts)
					r.With(write).Post("/payouts/setup", h.developer.SetupPayouts)

					r.Route("/webhooks", func(r chi.Router) {
						r.Get("/", h.webhooks.List)
						r.Post("/", h.webhooks.Create)
						r.Route("/{id}", func(r chi.Router) {
							r.Use(validIDs)
							r.Get("/", h.webhooks.Get)
							r.Patch("/", h.webhooks.Update)
							r.Delete("/", h.webhooks.Delete)
							r.Post("/rotate-secret", h.webhooks.RotateSecret)
							r.Get("/deliveries", h.webhooks.ListDeliveries)
							r.With(validIDs).Post("/deliveries/{deliveryID}/retry", h.webhooks.RetryDelivery)
						})
					})
				})
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(model.RoleAdmin))
				r.Get("/apps", h.admin.Queue)
				r.Get("/stats", h.admin.Stats)
				r.Post("/payouts/run", h.admin.RunPayouts)
				r.Route("/apps/{appID}", func(r chi.Router) {
					r.Use(validIDs)
					r.Post("/review", h.admin.Decide)
					r.Get("/history", h.admin.History)
				})
			})
		})

		// Payment provider callbacks authenticate by signature, not by
		// credential.
		r.Route("/webhooks", func(r chi.Router) {
			r.Use(middleware.RateLimitLocal(
				middleware.NewLocalLimiter(float64(cfg.RateLimitProviderRPS), cfg.RateLimitProviderBurst),
				logger,
			))
			r.Post("/stripe", h.payments.ProviderWebhook(model.ProviderStripe))
			r.Post("/flutterwave", h.payments.ProviderWebhook(model.ProviderFlutterwave))
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

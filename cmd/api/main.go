// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carterperez-dev/saasbase/internal/admin"
	"github.com/carterperez-dev/saasbase/internal/audit"
	"github.com/carterperez-dev/saasbase/internal/auth"
	"github.com/carterperez-dev/saasbase/internal/billing"
	"github.com/carterperez-dev/saasbase/internal/config"
	"github.com/carterperez-dev/saasbase/internal/core"
	"github.com/carterperez-dev/saasbase/internal/file"
	"github.com/carterperez-dev/saasbase/internal/health"
	"github.com/carterperez-dev/saasbase/internal/middleware"
	"github.com/carterperez-dev/saasbase/internal/org"
	"github.com/carterperez-dev/saasbase/internal/server"
	"github.com/carterperez-dev/saasbase/internal/user"
)

const (
	drainDelay = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis connected",
		"pool_size", cfg.Redis.PoolSize,
	)

	storage, err := file.NewStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	logger.Info("object storage ready",
		"bucket", cfg.Storage.Bucket,
	)

	jwtManager, err := auth.NewJWTManager(cfg.JWT)
	if err != nil {
		return err
	}
	logger.Info("JWT manager initialized",
		"algorithm", "ES256",
		"key_id", jwtManager.GetKeyID(),
	)

	userRepo := user.NewRepository(db.DB)
	userSvc := user.NewService(userRepo)
	userHandler := user.NewHandler(userSvc)

	authRepo := auth.NewRepository(db.DB)
	authSvc := auth.NewService(authRepo, jwtManager, userSvc, redis.Client,
		auth.MagicLinkConfig{
			Sender:    &auth.LogSender{Logger: logger},
			TTL:       cfg.JWT.MagicLinkExpire,
			VerifyURL: cfg.AbsoluteURL("/v1/auth/magic-link/verify"),
		})
	authHandler := auth.NewHandler(authSvc)

	auditRepo := audit.NewRepository(db.DB)
	auditSvc := audit.NewService(auditRepo, logger)

	orgRepo := org.NewRepository(db.DB)
	orgSvc := org.NewService(orgRepo, userRepo, auditSvc, logger)
	orgHandler := org.NewHandler(orgSvc)

	auditHandler := audit.NewHandler(auditSvc, orgSvc)

	billingRepo := billing.NewRepository(db.DB)
	billingSvc := billing.NewService(
		billingRepo,
		billing.NewStripeProvider(cfg.Stripe.SecretKey),
		userRepo,
		auditSvc,
		cfg,
		logger,
	)
	billingHandler := billing.NewHandler(billingSvc, cfg)
	webhookHandler := billing.NewWebhookHandler(
		billingSvc,
		cfg.Stripe.WebhookSecret,
		logger,
	)

	fileRepo := file.NewRepository(db.DB)
	fileSvc := file.NewService(
		fileRepo,
		storage,
		auditSvc,
		cfg.Storage.MaxUploadSize,
		logger,
	)
	fileHandler := file.NewHandler(fileSvc)

	healthHandler := health.NewHandler(
		health.Check{Name: "database", Checker: db},
		health.Check{Name: "redis", Checker: redis},
	)

	adminHandler := admin.NewHandler(admin.HandlerConfig{
		DBStats:           db.Stats,
		RedisStats:        redis.PoolStats,
		DBPing:            db.Ping,
		RedisPing:         redis.Ping,
		SubscriptionStats: userRepo.SubscriptionBreakdown,
	})

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger))
	router.Use(
		middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
			Limit: middleware.PerMinute(
				cfg.RateLimit.Requests,
				cfg.RateLimit.Burst,
			),
			FailOpen: true,
		}).Handler,
	)
	router.Use(middleware.SecurityHeaders(cfg.App.Environment == "production"))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)

	router.Get("/.well-known/jwks.json", jwtManager.GetJWKSHandler())

	// Authenticated traffic gets a per-user budget sized by the
	// caller's subscription tier, on top of the global IP limit.
	verifyToken := middleware.Authenticator(jwtManager)
	tiered := middleware.TieredRateLimiter(redis.Client, middleware.DefaultTiers)
	authenticator := func(next http.Handler) http.Handler {
		return verifyToken(tiered(next))
	}
	adminOnly := middleware.RequireAdmin

	router.Route("/v1", func(r chi.Router) {
		authHandler.RegisterRoutes(r, authenticator)

		r.Post("/users", authHandler.Register)

		userHandler.RegisterRoutes(r, authenticator)
		userHandler.RegisterAdminRoutes(r, authenticator, adminOnly)
		adminHandler.RegisterRoutes(r, authenticator, adminOnly)

		// Stripe signs its own requests; the session authenticator
		// never sees this route.
		r.Method(http.MethodPost, "/billing/webhook", webhookHandler)

		billingHandler.RegisterRoutes(r, authenticator)
		orgHandler.RegisterRoutes(r, authenticator)
		auditHandler.RegisterRoutes(r, authenticator)
		fileHandler.RegisterRoutes(r, authenticator)
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/storelens/storelens/internal/events"
	"github.com/storelens/storelens/internal/featureflags"
	"github.com/storelens/storelens/internal/handler"
	"github.com/storelens/storelens/internal/infrastructure/logger"
	"github.com/storelens/storelens/internal/infrastructure/redis"
	"github.com/storelens/storelens/internal/infrastructure/shopify"
	"github.com/storelens/storelens/internal/observability/metrics"
	"github.com/storelens/storelens/internal/observability/requestid"
	"github.com/storelens/storelens/internal/observability/tracing"
	"github.com/storelens/storelens/internal/repository"
	"github.com/storelens/storelens/internal/security/audit"
	"github.com/storelens/storelens/internal/security/auth"
	"github.com/storelens/storelens/internal/security/middleware"
	"github.com/storelens/storelens/internal/security/ratelimit"
	"github.com/storelens/storelens/internal/service"
	"github.com/storelens/storelens/internal/worker"
	"github.com/storelens/storelens/pkg/cache"
	"github.com/storelens/storelens/pkg/config"
	"github.com/storelens/storelens/pkg/database"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting StoreLens server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, log, "storelens", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 3. Initialize Postgres and apply the schema
	pool, err := database.NewConnectionPool(ctx, database.DefaultConfig(cfg.DatabaseURL), log)
	if err != nil {
		log.Error("failed to connect to Postgres", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Migrate(ctx); err != nil {
		log.Error("failed to migrate database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	readiness := map[string]handler.Pinger{
		"postgres": handler.PingFunc(pool.Health),
		"redis":    nil,
	}

	// 4. Optional Redis for the cross-instance sync lock
	var locker service.Locker
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Error("failed to connect to Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer redisClient.Close()
		locker = redisClient
		readiness["redis"] = redisClient
	}

	// 5. Event fan-out: in-process hub plus RabbitMQ when configured
	hub := events.NewHub(log)
	publisher := events.Multi{hub}
	if cfg.RabbitURL != "" {
		amqpPublisher, err := events.DialAMQP(ctx, cfg.RabbitURL, log)
		if err != nil {
			log.Error("failed to connect to RabbitMQ", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer amqpPublisher.Close()
		publisher = append(publisher, amqpPublisher)
	}

	// 6. Initialize repositories
	db := pool.GetDB()
	userRepo := repository.NewPostgresUserRepository(db, log)
	tenantRepo := repository.NewPostgresTenantRepository(db, log)
	commerceRepo := repository.NewPostgresCommerceRepository(db, log)

	// 7. Initialize security components
	secret := cfg.JWTSecret
	if secret == "" {
		secret = randomSecret()
		log.Warn("JWT_SECRET not set, sessions will not survive a restart")
	}
	tokenManager := auth.NewTokenManager(secret, "storelens")
	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitPerMinute, time.Minute)
	auditLogger := audit.NewLogger(log)

	// 8. Initialize services
	shopifyClient := shopify.NewClient(shopify.Config{
		APIKey:     cfg.Shopify.APIKey,
		APISecret:  cfg.Shopify.APISecret,
		Scopes:     cfg.Shopify.Scopes,
		APIVersion: cfg.Shopify.APIVersion,
	}, nil, log)

	authService := service.NewAuthService(userRepo, tokenManager, log)
	tenantService := service.NewTenantService(tenantRepo, commerceRepo, publisher, log)
	syncService := service.NewSyncService(tenantRepo, commerceRepo, shopifyClient, locker, publisher, auditLogger, cfg.SyncTimeout(), log)
	dashboardService := service.NewDashboardService(tenantService, commerceRepo, cfg.Location())

	// 9. Start background workers
	scheduler := worker.NewSyncScheduler(syncService, cfg.SyncInterval(), log)
	go scheduler.Start(ctx)

	installStates := cache.New[string]()
	go sweep(ctx, installStates, time.Minute)

	// 10. Setup HTTP routes
	router := &handler.Router{
		Auth:      handler.NewAuthHandler(authService, auditLogger, rateLimiter, cfg.IsProduction(), log),
		Tenants:   handler.NewTenantsHandler(tenantService, syncService, log),
		Dashboard: handler.NewDashboardHandler(dashboardService, log),
		Shopify: handler.NewShopifyHandler(shopifyClient, tenantService, scheduler, installStates, handler.InstallConfig{
			APISecret:   cfg.Shopify.APISecret,
			AppURL:      cfg.AppURL,
			FrontendURL: cfg.FrontendURL,
		}, log),
		Webhooks: handler.NewWebhookHandler(cfg.Shopify.APISecret, tenantService, commerceRepo, publisher, log),
		Health:   handler.NewHealthHandler(readiness, log),
		Metrics:  promhttp.Handler(),
		Tokens:   tokenManager,
		Limiter:  rateLimiter,
		Audit:    auditLogger,
		Logger:   log,
	}
	if featureflags.EnabledOr(featureflags.LiveEvents, true) {
		router.Events = handler.NewEventsHandler(hub, tenantService, cfg.CORSAllowedOrigins, log)
	}

	// Chain: request ID -> tracing -> metrics -> CORS -> routes
	rootHandler := requestid.Middleware(
		otelhttp.NewHandler(
			metrics.HTTPMetricsMiddleware(
				middleware.CORS(cfg.CORSAllowedOrigins)(router.Handler()),
			),
			"storelens",
		),
	)

	// 11. Start HTTP server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           rootHandler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// an on-demand sync holds the request open
		WriteTimeout: cfg.SyncTimeout() + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("auth", "jwt-cookie"),
		slog.Int("rate_limit", cfg.RateLimitPerMinute),
		slog.Duration("sync_interval", cfg.SyncInterval()),
		slog.Bool("redis_lock", locker != nil),
		slog.Bool("rabbitmq", cfg.RabbitURL != ""),
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
			sigChan <- syscall.SIGTERM
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel() // Stop scheduler and sweeper
	rateLimiter.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}

// sweep drops expired install states until ctx is done
func sweep(ctx context.Context, c *cache.Cache[string], every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(buf)
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/voyageur/internal/background"
	"github.com/BradenHooton/voyageur/internal/breach"
	"github.com/BradenHooton/voyageur/internal/config"
	"github.com/BradenHooton/voyageur/internal/events"
	"github.com/BradenHooton/voyageur/internal/handlers"
	middlewareCustom "github.com/BradenHooton/voyageur/internal/middleware"
	"github.com/BradenHooton/voyageur/internal/oauth"
	"github.com/BradenHooton/voyageur/internal/ratelimit"
	"github.com/BradenHooton/voyageur/internal/routes"
	"github.com/BradenHooton/voyageur/internal/services"
	pkghttp "github.com/BradenHooton/voyageur/pkg/http"
	pkglogger "github.com/BradenHooton/voyageur/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := pkglogger.New(os.Stdout, pkglogger.ParseLevel(cfg.Server.LogLevel))
	slog.SetDefault(logger)
	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("identity_provider", cfg.Identity.Provider),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	healthChecks := map[string]handlers.HealthChecker{}
	var cleanupTasks []background.Task

	// Google ID token verification
	keys, err := oauth.NewKeySet(ctx, oauth.KeySetConfig{
		URL:           cfg.Google.JWKSURL,
		TTL:           cfg.Google.KeyTTL,
		Timeout:       cfg.Identity.Timeout,
		RetryAttempts: cfg.Identity.RetryAttempts,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize google key set", slog.Any("error", err))
		os.Exit(1)
	}
	googleVerifier := oauth.NewGoogleVerifier(cfg.Google.ClientID, keys)

	// Identity provider
	provider, closeProvider, err := newProvider(ctx, cfg, googleVerifier, logger, healthChecks, &cleanupTasks)
	if err != nil {
		logger.Error("failed to initialize identity provider", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeProvider()

	// OTP rate limiting: Redis when configured so limits hold across instances
	var counter ratelimit.Counter
	if cfg.Redis.Addr != "" {
		rdb, err := ratelimit.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer rdb.Close()
		counter = ratelimit.NewRedisCounter(rdb)
		healthChecks["redis"] = healthFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	} else {
		memory := ratelimit.NewMemoryCounter()
		counter = memory
		cleanupTasks = append(cleanupTasks, background.Task{Name: "rate_limit_windows", Sweep: memory.Sweep})
	}
	limiter := services.NewRateLimitService(counter, services.RateLimitConfig{
		Window:      cfg.RateLimit.OTPWindow,
		MaxAttempts: cfg.RateLimit.OTPMax,
	}, logger)

	// Account events
	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(logger, cfg.Kafka.Brokers, cfg.Kafka.Topic)
	}
	defer publisher.Close()

	var breachChecker breach.Checker = breach.Disabled{}
	if cfg.Breach.Enabled {
		breachChecker = breach.NewHIBPChecker(breach.Config{
			BaseURL:       cfg.Breach.BaseURL,
			Timeout:       cfg.Breach.Timeout,
			RetryAttempts: cfg.Identity.RetryAttempts,
		}, logger)
	}

	authService := services.NewAuthService(services.AuthServiceDeps{
		Provider:  provider,
		Verifier:  googleVerifier,
		Limiter:   limiter,
		Breach:    breachChecker,
		Publisher: publisher,
		Logger:    logger,
		Audit:     pkglogger.NewAuditLogger(logger),
	})
	authHandler := handlers.NewAuthHandler(authService, logger)

	// Setup router
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.RequestContext(ipConfig))
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, authService, middlewareCustom.DefaultAuthRateLimit(cfg.Server.IPRateLimit), logger)
	router.Get("/health", handlers.Health(healthChecks))

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	cleanupManager := background.NewCleanupManager(logger, cfg.Auth.CleanupInterval, cleanupTasks...)
	go cleanupManager.Start(ctx)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("server error", slog.Any("error", err))
	}

	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		return
	}
	logger.Info("server stopped gracefully")
}

type healthFunc func(ctx context.Context) error

func (f healthFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

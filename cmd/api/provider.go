package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/voyageur/internal/auth"
	"github.com/BradenHooton/voyageur/internal/background"
	"github.com/BradenHooton/voyageur/internal/config"
	"github.com/BradenHooton/voyageur/internal/database"
	"github.com/BradenHooton/voyageur/internal/handlers"
	"github.com/BradenHooton/voyageur/internal/identity"
	"github.com/BradenHooton/voyageur/internal/identity/gotrue"
	"github.com/BradenHooton/voyageur/internal/identity/local"
	"github.com/BradenHooton/voyageur/internal/repositories"
	"github.com/BradenHooton/voyageur/internal/services"
)

// newProvider builds the configured identity provider. The returned func
// releases whatever the provider holds open.
func newProvider(
	ctx context.Context,
	cfg *config.Config,
	google local.IDTokenVerifier,
	logger *slog.Logger,
	healthChecks map[string]handlers.HealthChecker,
	cleanupTasks *[]background.Task,
) (identity.Provider, func(), error) {
	if cfg.Identity.Provider == config.ProviderGoTrue {
		client := gotrue.NewClient(gotrue.Config{
			URL:           cfg.Identity.GoTrueURL,
			AnonKey:       cfg.Identity.GoTrueAnonKey,
			ServiceKey:    cfg.Identity.GoTrueAdminKey,
			Timeout:       cfg.Identity.Timeout,
			RetryAttempts: cfg.Identity.RetryAttempts,
		})
		return client, func() {}, nil
	}

	db, err := database.NewConnection(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	healthChecks["database"] = db

	var mailer services.EmailService
	if cfg.Server.Env == "production" {
		ses, err := services.NewAWSSESEmailService(ctx, cfg.Mail.Region, cfg.Mail.FromEmail, logger)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("init email service: %w", err)
		}
		mailer = ses
	} else {
		mailer = services.NewLogEmailService(logger)
	}

	verifications := repositories.NewVerificationRepository(db)
	revocations := repositories.NewTokenRevocationRepository(db)
	*cleanupTasks = append(*cleanupTasks,
		background.Task{Name: "pending_verifications", Sweep: verifications.DeleteExpired},
		background.Task{Name: "revoked_tokens", Sweep: revocations.CleanupExpiredTokens},
	)

	provider := local.New(local.Deps{
		Accounts:      repositories.NewAccountRepository(db),
		Verifications: verifications,
		Revocations:   revocations,
		Tokens:        auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry, cfg.Auth.RefreshTokenExpiry),
		OTPs:          auth.NewOTPManager(cfg.Auth.OTPTTL),
		Mailer:        mailer,
		Google:        google,
		Timing: auth.NewTimingDelay(auth.TimingConfig{
			BaseDelay:   cfg.Auth.TimingBaseDelay,
			RandomDelay: cfg.Auth.TimingRandomDelay,
		}),
		MaxOTPAttempts: cfg.Auth.OTPMaxAttempts,
		Logger:         logger,
	})
	return provider, db.Close, nil
}

package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/voyageur/internal/models"
	"github.com/BradenHooton/voyageur/internal/ratelimit"
	pkglogger "github.com/BradenHooton/voyageur/pkg/logger"
)

// RateLimitConfig holds the per-email OTP request policy
type RateLimitConfig struct {
	Window      time.Duration
	MaxAttempts int
}

// RateLimitService applies the fixed-window OTP policy on top of a Counter.
// Every call counts, including rejected ones.
type RateLimitService struct {
	counter ratelimit.Counter
	config  RateLimitConfig
	logger  *slog.Logger
}

func NewRateLimitService(counter ratelimit.Counter, config RateLimitConfig, logger *slog.Logger) *RateLimitService {
	return &RateLimitService{
		counter: counter,
		config:  config,
		logger:  logger,
	}
}

// Allow records an OTP request for email and reports whether it is within
// the limit. Counter failures fail open.
func (s *RateLimitService) Allow(ctx context.Context, email string) (bool, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return false, fmt.Errorf("%w: email required", models.ErrValidation)
	}

	count, err := s.counter.Increment(ctx, "otp:"+email, s.config.Window)
	if err != nil {
		s.logger.WarnContext(ctx, "rate limit store unavailable, allowing request", slog.Any("error", err))
		return true, nil
	}

	if count > s.config.MaxAttempts {
		s.logger.WarnContext(ctx, "otp request rate limited",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Int("attempts", count))
		return false, nil
	}
	return true, nil
}

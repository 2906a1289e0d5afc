package auth

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

// TimingConfig holds configuration for timing attack prevention
type TimingConfig struct {
	BaseDelay      time.Duration
	RandomDelay    time.Duration
	DelayOnSuccess bool
}

// TimingDelay pads failed credential checks so that "no such account" and
// "wrong password" take about the same time
type TimingDelay struct {
	config TimingConfig
}

func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config}
}

func (td *TimingDelay) target() time.Duration {
	d := td.config.BaseDelay
	if td.config.RandomDelay > 0 {
		if n, err := rand.Int(rand.Reader, big.NewInt(int64(td.config.RandomDelay))); err == nil {
			d += time.Duration(n.Int64())
		}
	}
	return d
}

// WaitFrom sleeps until at least the target delay has passed since start.
// Returns early when ctx is done.
func (td *TimingDelay) WaitFrom(ctx context.Context, start time.Time, success bool) {
	if td == nil || (success && !td.config.DelayOnSuccess) {
		return
	}

	remaining := td.target() - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

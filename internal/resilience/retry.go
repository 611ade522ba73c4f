package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig is an exponential backoff policy. Zero fields take the
// defaults from DefaultRetryConfig.
type RetryConfig struct {
	// MaxAttempts counts the first call; 1 disables retries.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// JitterFraction spreads each delay by up to ±fraction.
	JitterFraction float64

	// ShouldRetry decides which errors are retried. Defaults to IsTransient.
	ShouldRetry func(err error) bool
	// OnRetry runs before each backoff sleep; attempt starts at 1.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig suits both bulletin downloads and geocoder calls:
// three attempts over a couple of seconds.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.Multiplier <= 0 {
		c.Multiplier = d.Multiplier
	}
	if c.JitterFraction < 0 {
		c.JitterFraction = 0
	}
	if c.ShouldRetry == nil {
		c.ShouldRetry = IsTransient
	}
	return c
}

// backoff returns the sleep before retry number attempt (0-based), capped at
// MaxBackoff before jitter.
func (c RetryConfig) backoff(attempt int) time.Duration {
	d := float64(c.InitialBackoff)
	for i := 0; i < attempt && d < float64(c.MaxBackoff); i++ {
		d *= c.Multiplier
	}
	d = min(d, float64(c.MaxBackoff))
	if c.JitterFraction > 0 {
		d += d * c.JitterFraction * (2*rand.Float64() - 1)
	}
	return time.Duration(max(d, 0))
}

// DoVal calls fn until it succeeds, returns an error ShouldRetry rejects, or
// runs out of attempts. A Retry-After hint longer than the computed backoff
// wins. The last error is returned as is.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	var zero T
	for attempt := 1; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		if ctx.Err() != nil || attempt >= cfg.MaxAttempts || !cfg.ShouldRetry(err) {
			return zero, err
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		wait := max(cfg.backoff(attempt-1), retryAfterHint(err))
		if err := sleep(ctx, wait); err != nil {
			return zero, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryLogger logs each retry with the upstream and the call being retried.
func RetryLogger(upstream, call string) func(int, error) {
	return func(attempt int, err error) {
		fields := []zap.Field{
			zap.String("upstream", upstream),
			zap.String("call", call),
			zap.Int("attempt", attempt),
			zap.Error(err),
		}
		if wait := retryAfterHint(err); wait > 0 {
			fields = append(fields, zap.Duration("retry_after", wait))
		}
		zap.L().Warn("resilience: retrying", fields...)
	}
}

// Package backoff bounds how many times a failed fetch is attempted.
package backoff

import (
	"context"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"go.uber.org/zap"

	"github.com/JakeFAU/jadwal-sholat-crawler/internal/crawler"
)

// Config sets retry behavior. Retries counts attempts after the first one.
type Config struct {
	Retries int
	Backoff time.Duration
}

// Retrier re-runs operations that fail with a retryable fetch error.
type Retrier struct {
	cfg    Config
	logger *zap.Logger
}

// New constructs a Retrier.
func New(cfg Config, logger *zap.Logger) *Retrier {
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{cfg: cfg, logger: logger.Named("retry")}
}

// Attempts reports the maximum number of calls Do makes.
func (r *Retrier) Attempts() int {
	return r.cfg.Retries + 1
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempts are
// exhausted, or ctx is done. The error of the last attempt is returned as-is.
func (r *Retrier) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	var last error
	err := retry.Do(
		func() error {
			last = fn(ctx)
			return last
		},
		retry.Attempts(uint(r.Attempts())),
		retry.Delay(r.cfg.Backoff),
		retry.MaxDelay(r.cfg.Backoff),
		retry.MaxJitter(jitter(r.cfg.Backoff)),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Debug("retrying",
				zap.String("op", op),
				zap.Uint("attempt", n+1),
				zap.Int("max_attempts", r.Attempts()),
				zap.Error(err),
			)
		}),
		retry.RetryIf(crawler.IsRetryable),
	)
	if err == nil {
		return nil
	}
	if last != nil {
		return last
	}
	return err
}

// jitter keeps the random component small relative to the base delay.
func jitter(base time.Duration) time.Duration {
	j := base / 10
	if j < time.Millisecond {
		return time.Millisecond
	}
	return j
}

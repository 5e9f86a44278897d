// Package resilience holds the retry and circuit-breaker policies used for
// stream reconnects, remote OCR, and push notifications.
package resilience

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/knakamura13/twitch-open-cv/internal/errors"
)

const (
	DefaultMaxRetries   = 3
	DefaultBaseDelay    = 500 * time.Millisecond
	DefaultMaxDelay     = 10 * time.Second
	DefaultJitterFactor = 0.2

	// Stream reconnects: live sources drop for seconds at a time.
	ReconnectMaxRetries = 5
	ReconnectBaseDelay  = 1 * time.Second
	ReconnectMaxDelay   = 30 * time.Second

	maxShift = 6
)

// RetryConfig bounds a retry loop. MaxRetries counts retries, so fn runs at
// most MaxRetries+1 times.
type RetryConfig struct {
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64
	IsRetryable  func(error) bool
	// OnRetry is called before each backoff wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryConfig returns settings for short RPC retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   DefaultMaxRetries,
		BaseDelay:    DefaultBaseDelay,
		MaxDelay:     DefaultMaxDelay,
		JitterFactor: DefaultJitterFactor,
		IsRetryable:  IsRetryable,
	}
}

// ReconnectRetryConfig returns settings for reopening a dropped stream.
// Any failure other than cancellation is worth another attempt.
func ReconnectRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   ReconnectMaxRetries,
		BaseDelay:    ReconnectBaseDelay,
		MaxDelay:     ReconnectMaxDelay,
		JitterFactor: DefaultJitterFactor,
		IsRetryable:  func(err error) bool { return err != nil && !isContextErr(err) },
	}
}

// IsRetryable reports whether err is transient: stream EOFs, retryable app
// codes, and transient gRPC statuses. Plain errors are retried.
func IsRetryable(err error) bool {
	var appErr *apperrors.AppError
	switch {
	case err == nil, isContextErr(err):
		return false
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return true
	case errors.As(err, &appErr):
		return apperrors.IsRetryable(appErr)
	default:
		return IsRetryableGRPC(err)
	}
}

// IsRetryableGRPC reports whether a gRPC status code is transient. Errors
// without a status are treated as transient.
func IsRetryableGRPC(err error) bool {
	if err == nil {
		return false
	}
	s, ok := status.FromError(err)
	if !ok {
		return true
	}
	switch s.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	}
	return false
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Retry runs fn until it succeeds, returns a non-retryable error, or the
// retry budget is spent; the last error is returned. Cancelling ctx stops
// the loop during a backoff wait.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}
		if attempt >= cfg.MaxRetries || !cfg.IsRetryable(err) {
			return err
		}

		delay := cfg.Delay(attempt)
		slog.Debug("retrying after error", "attempt", attempt+1, "max", cfg.MaxRetries, "delay", delay, "error", err)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, delay, err)
		}
		if !sleep(ctx, delay) {
			return ctx.Err()
		}
	}
}

// Delay is the backoff before retry number attempt+1: BaseDelay doubled per
// attempt, capped at MaxDelay, then spread by ±JitterFactor/2.
func (c RetryConfig) Delay(attempt int) time.Duration {
	delay := c.BaseDelay << min(attempt, maxShift)
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	if c.JitterFactor == 0 {
		return delay
	}
	jitter := float64(delay) * c.JitterFactor * (rand.Float64() - 0.5)
	return time.Duration(float64(delay) + jitter)
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = DefaultJitterFactor
	}
	if c.IsRetryable == nil {
		c.IsRetryable = IsRetryable
	}
	return c
}

package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/knakamura13/twitch-open-cv/internal/errors"
)

func fastRetry(max int) RetryConfig {
	return RetryConfig{MaxRetries: max, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetrySucceedsFirst(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), DefaultRetryConfig(), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Errorf("Retry() = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetrySucceedsAfterStreamEnd(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(3), func() error {
		calls++
		if calls < 3 {
			return apperrors.Wrap(io.EOF, apperrors.StreamEnded, "decoder stopped")
		}
		return nil
	})
	if err != nil {
		t.Errorf("Retry() = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryExhaustsRetries(t *testing.T) {
	retryErr := status.Error(codes.Unavailable, "always fail")
	calls := 0
	var seen []int

	cfg := fastRetry(2)
	cfg.OnRetry = func(attempt int, _ time.Duration, _ error) { seen = append(seen, attempt) }

	err := Retry(context.Background(), cfg, func() error {
		calls++
		return retryErr
	})
	if !errors.Is(err, retryErr) {
		t.Errorf("Retry() = %v, want %v", err, retryErr)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", seen)
	}
}

func TestRetryNonRetryableError(t *testing.T) {
	calls := 0
	bad := apperrors.New(apperrors.ConfigInvalid, "poll interval must be positive")

	err := Retry(context.Background(), fastRetry(5), func() error {
		calls++
		return bad
	})
	if !errors.Is(err, bad) {
		t.Errorf("Retry() = %v, want %v", err, bad)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 10, BaseDelay: time.Hour, MaxDelay: time.Hour}

	err := Retry(ctx, cfg, func() error {
		cancel()
		return status.Error(codes.Unavailable, "fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry() = %v, want context.Canceled", err)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"eof", io.EOF, true},
		{"wrapped eof", fmt.Errorf("read frame: %w", io.ErrUnexpectedEOF), true},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("open: %w", context.DeadlineExceeded), false},
		{"stream offline", apperrors.New(apperrors.StreamOffline, "no variants"), true},
		{"invalid image", apperrors.New(apperrors.OCRInvalidImage, "empty"), false},
		{"grpc unavailable", status.Error(codes.Unavailable, "down"), true},
		{"grpc invalid", status.Error(codes.InvalidArgument, "bad"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsRetryableGRPC(t *testing.T) {
	tests := []struct {
		code codes.Code
		want bool
	}{
		{codes.Unavailable, true},
		{codes.DeadlineExceeded, true},
		{codes.ResourceExhausted, true},
		{codes.Aborted, true},
		{codes.Internal, false},
		{codes.InvalidArgument, false},
		{codes.NotFound, false},
	}
	for _, tt := range tests {
		if got := IsRetryableGRPC(status.Error(tt.code, "test")); got != tt.want {
			t.Errorf("IsRetryableGRPC(%v) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestReconnectRetryConfig(t *testing.T) {
	cfg := ReconnectRetryConfig()
	if cfg.MaxRetries != ReconnectMaxRetries || cfg.BaseDelay != ReconnectBaseDelay || cfg.MaxDelay != ReconnectMaxDelay {
		t.Errorf("ReconnectRetryConfig() = %+v", cfg)
	}
	if !cfg.IsRetryable(errors.New("open failed")) {
		t.Error("reconnect should retry arbitrary open errors")
	}
	if cfg.IsRetryable(context.Canceled) {
		t.Error("reconnect should not retry cancellation")
	}
}

func TestBackoffDelay(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, JitterFactor: 0}

	for attempt, want := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second} {
		if got := cfg.Delay(attempt); got != want {
			t.Errorf("attempt %d delay = %v, want %v", attempt, got, want)
		}
	}
}

func TestBackoffDelayJitterBounds(t *testing.T) {
	cfg := RetryConfig{BaseDelay: time.Second, MaxDelay: time.Minute, JitterFactor: 0.2}
	for i := 0; i < 100; i++ {
		d := cfg.Delay(0)
		if d < 900*time.Millisecond || d > 1100*time.Millisecond {
			t.Fatalf("delay %v outside jitter bounds", d)
		}
	}
}

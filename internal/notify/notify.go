// Package notify delivers round-open alerts. Delivery is best effort: the
// watcher logs failures and keeps polling.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/knakamura13/twitch-open-cv/internal/audio"
	"github.com/knakamura13/twitch-open-cv/internal/config"
	"github.com/knakamura13/twitch-open-cv/internal/resilience"
	"github.com/knakamura13/twitch-open-cv/internal/trace"
)

// Notifier sends one alert.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, title, message string) error

// Notify implements Notifier.
func (f Func) Notify(ctx context.Context, title, message string) error { return f(ctx, title, message) }

// Multi fans out to every notifier, even after a failure.
type Multi []Notifier

// Notify returns the joined failures, or nil.
func (m Multi) Notify(ctx context.Context, title, message string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, title, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes the alert to the structured log. It never fails.
type Log struct{}

// Notify implements Notifier.
func (Log) Notify(ctx context.Context, title, message string) error {
	trace.Logger(ctx).Info("notification", "title", title, "message", message)
	return nil
}

// New assembles the notifiers enabled in cfg.Notify. The log notifier is
// always included. The returned cleanup releases the audio device, if any.
func New(cfg *config.Config) (Notifier, func()) {
	out := Multi{Log{}}
	cleanup := func() {}

	if cfg.Notify.Desktop {
		out = append(out, NewDesktop())
	}
	if cfg.Notify.NtfyTopic != "" {
		out = append(out, NewNtfy(cfg.Notify.NtfyTopic, cfg.NtfyTimeout()))
	}
	if cfg.Notify.Beep {
		player, err := audio.NewPlayer(audio.DefaultSampleRate, nil)
		if err != nil {
			slog.Warn("beep disabled: audio unavailable", "error", err)
		} else {
			out = append(out, NewBeep(player))
			cleanup = func() { _ = player.Close() }
		}
	}
	return out, cleanup
}

// Breakers returns the circuit breakers of n and, for a Multi, of every
// notifier it fans out to.
func Breakers(n Notifier) []*resilience.Breaker {
	switch v := n.(type) {
	case Multi:
		var out []*resilience.Breaker
		for _, inner := range v {
			out = append(out, Breakers(inner)...)
		}
		return out
	case interface{ Breaker() *resilience.Breaker }:
		return []*resilience.Breaker{v.Breaker()}
	}
	return nil
}

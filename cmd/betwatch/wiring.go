package main

import (
	"context"
	"fmt"

	"github.com/knakamura13/twitch-open-cv/internal/capture"
	"github.com/knakamura13/twitch-open-cv/internal/capture/opencv"
	"github.com/knakamura13/twitch-open-cv/internal/config"
	"github.com/knakamura13/twitch-open-cv/internal/grpcclient"
	"github.com/knakamura13/twitch-open-cv/internal/hud"
	"github.com/knakamura13/twitch-open-cv/internal/ocr"
	"github.com/knakamura13/twitch-open-cv/internal/ocr/tesseract"
	"github.com/knakamura13/twitch-open-cv/internal/orchestrator"
	"github.com/knakamura13/twitch-open-cv/internal/resilience"
	"github.com/knakamura13/twitch-open-cv/internal/resolver"
	"github.com/knakamura13/twitch-open-cv/internal/screen"
	"github.com/knakamura13/twitch-open-cv/internal/trace"
)

// ocrBackend is the configured recognizer plus what the caller needs to
// release and monitor it.
type ocrBackend struct {
	rec      ocr.Recognizer
	breakers []*resilience.Breaker
	close    func()
	// ping is set for remote backends.
	ping func(context.Context) error
	// skipped is set when similar crops reuse the previous text.
	skipped func() uint64
}

// checkRemote logs whether a remote OCR service answers its health check.
// An unreachable service is not fatal: polls report the default status
// until it comes up.
func (b *ocrBackend) checkRemote(ctx context.Context, addr string) error {
	if b.ping == nil {
		return nil
	}
	log := trace.Logger(ctx)
	if err := b.ping(ctx); err != nil {
		log.Warn("ocr service not reachable", "addr", addr, "error", err)
		return err
	}
	log.Info("ocr service reachable", "addr", addr)
	return nil
}

// newRecognizer builds the configured OCR backend, wrapped in the
// perceptual-hash skip when enabled.
func newRecognizer(cfg *config.Config) (*ocrBackend, error) {
	b := &ocrBackend{}
	switch cfg.OCR.Backend {
	case config.BackendGRPC:
		client, err := grpcclient.New(cfg.OCR.Addr, grpcclient.Options{CallTimeout: cfg.OCRTimeout()})
		if err != nil {
			return nil, err
		}
		b.rec = client
		b.breakers = append(b.breakers, client.Breaker())
		b.ping = client.Ping
		b.close = func() { _ = client.Close() }
	case config.BackendTesseract, "":
		t := tesseract.New()
		b.rec = t
		b.close = func() { _ = t.Close() }
	default:
		return nil, fmt.Errorf("unknown ocr backend %q", cfg.OCR.Backend)
	}
	if cfg.OCR.SkipSimilar {
		dedup := ocr.NewDedup(b.rec, cfg.OCR.MaxHashDistance)
		b.rec = dedup
		b.skipped = dedup.Skipped
	}
	return b, nil
}

func roiFor(cfg *config.Config) hud.ROI {
	return hud.ROI{Width: cfg.OCR.ROIWidth, Height: cfg.OCR.ROIHeight}
}

// newSourceFactory returns the function the watcher calls on every
// (re)connect. Stream sources re-resolve the channel each time so a new
// broadcast's URL is picked up.
func newSourceFactory(cfg *config.Config, lister resolver.Lister) (orchestrator.SourceFactory, func(), error) {
	mode, err := capture.ParseMode(cfg.Stream.CaptureMode)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Stream.Source == config.SourceScreen {
		dec, err := screen.New()
		if err != nil {
			return nil, nil, err
		}
		open := func(ctx context.Context) (capture.Source, error) {
			return capture.Open(ctx, dec, "", capture.ModeOneshot)
		}
		return open, func() { _ = dec.Close() }, nil
	}

	dec := opencv.Decoder{}
	open := func(ctx context.Context) (capture.Source, error) {
		url := cfg.Stream.URL
		if url == "" {
			v, err := resolver.Resolve(ctx, lister, cfg.StreamURL(), cfg.Stream.Qualities)
			if err != nil {
				return nil, err
			}
			trace.Logger(ctx).Info("resolved stream", "page", cfg.StreamURL(), "variant", v.Name)
			url = v.URL
		}
		return capture.Open(ctx, dec, url, mode)
	}
	return open, func() {}, nil
}

func reconnectConfig(cfg *config.Config) resilience.RetryConfig {
	rc := resilience.ReconnectRetryConfig()
	rc.MaxRetries = cfg.Reconnect.MaxRetries
	rc.BaseDelay, rc.MaxDelay = cfg.ReconnectDelays()
	return rc
}

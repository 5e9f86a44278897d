package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/knakamura13/twitch-open-cv/internal/debounce"
	"github.com/knakamura13/twitch-open-cv/internal/events"
	"github.com/knakamura13/twitch-open-cv/internal/events/zmqpub"
	"github.com/knakamura13/twitch-open-cv/internal/hud"
	"github.com/knakamura13/twitch-open-cv/internal/notify"
	"github.com/knakamura13/twitch-open-cv/internal/orchestrator"
	"github.com/knakamura13/twitch-open-cv/internal/server"
	"github.com/knakamura13/twitch-open-cv/internal/trace"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Watch the stream in the foreground (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatcher(cmd, ctx)
		},
	}
}

func runWatcher(cmd *cobra.Command, cc *commandContext) error {
	cfg, err := cc.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	runCtx, _ := trace.EnsureContext(signalCtx)
	log := trace.Logger(runCtx)

	if err := os.MkdirAll(cfg.LockDir, 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another watcher is already running for %s (lock %s)", cfg.Stream.Channel, cfg.LockPath())
	}
	defer func() { _ = lock.Unlock() }()

	backend, err := newRecognizer(cfg)
	if err != nil {
		return err
	}
	defer backend.close()
	_ = backend.checkRemote(runCtx, cfg.OCR.Addr)

	open, closeSource, err := newSourceFactory(cfg, cc.streamLister())
	if err != nil {
		return err
	}
	defer closeSource()

	notifier, closeNotifier := notify.New(cfg)
	defer closeNotifier()

	bus := events.NewBus()
	defer bus.Close()

	mgr, err := orchestrator.New(orchestrator.Deps{
		Open:       open,
		Extractor:  hud.NewExtractor(backend.rec, cfg.OCR.Language, roiFor(cfg)),
		Debouncer:  debounce.New(cfg.Cooldown()),
		Notifier:   notifier,
		Bus:        bus,
		OCRSkipped: backend.skipped,
	}, orchestrator.Options{
		PollInterval: cfg.PollInterval(),
		Title:        cfg.Notify.Title,
		Reconnect:    reconnectConfig(cfg),
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(runCtx)

	if endpoint := cfg.Server.ZMQEndpoint; endpoint != "" {
		pub, err := zmqpub.NewPublisher(endpoint)
		if err != nil {
			return fmt.Errorf("event publisher: %w", err)
		}
		g.Go(func() error {
			defer func() { _ = pub.Close() }()
			events.Forward(gctx, bus, pub)
			return nil
		})
		log.Info("publishing events", "endpoint", endpoint)
	}

	if addr := cfg.Server.HTTPAddr; addr != "" {
		breakers := append(backend.breakers, notify.Breakers(notifier)...)
		srv := server.New(mgr, bus).WithBreakers(breakers...)
		g.Go(func() error {
			if err := srv.ListenAndServe(gctx, addr); err != nil {
				return fmt.Errorf("http server %s: %w", addr, err)
			}
			return nil
		})
	}

	log.Info("starting watcher", "channel", cfg.Stream.Channel, "source", cfg.Stream.Source,
		"ocr", cfg.OCR.Backend, "poll", cfg.PollInterval(), "cooldown", cfg.Cooldown())
	g.Go(func() error {
		if err := mgr.Run(gctx); err != nil {
			return fmt.Errorf("watcher: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("watcher stopped")
	return nil
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/knakamura13/twitch-open-cv/internal/capture"
	"github.com/knakamura13/twitch-open-cv/internal/debounce"
	"github.com/knakamura13/twitch-open-cv/internal/events"
	"github.com/knakamura13/twitch-open-cv/internal/hud"
	"github.com/knakamura13/twitch-open-cv/internal/notify"
	"github.com/knakamura13/twitch-open-cv/internal/orchestrator/history"
	"github.com/knakamura13/twitch-open-cv/internal/resilience"
	"github.com/knakamura13/twitch-open-cv/internal/syncx"
	"github.com/knakamura13/twitch-open-cv/internal/trace"
)

// Extractor turns a frame into a status plus diagnostics.
type Extractor interface {
	Observe(ctx context.Context, f capture.Frame) hud.Observation
}

// SourceFactory resolves the stream and opens a fresh FrameSource.
type SourceFactory func(ctx context.Context) (capture.Source, error)

// counted is implemented by sources that track acquisition activity.
type counted interface {
	Stats() capture.Stats
}

// Options tune the loop.
type Options struct {
	PollInterval  time.Duration
	NotifyTimeout time.Duration
	Title         string
	// Reconnect bounds reopening after the stream ends. MaxRetries <= 0
	// disables reconnecting: the first termination ends Run.
	Reconnect resilience.RetryConfig
	Now       func() time.Time
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.NotifyTimeout <= 0 {
		o.NotifyTimeout = DefaultNotifyTimeout
	}
	if o.Title == "" {
		o.Title = DefaultTitle
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Deps are the collaborators. Bus, History and OCRSkipped may be nil.
type Deps struct {
	Open      SourceFactory
	Extractor Extractor
	Debouncer *debounce.Debouncer
	Notifier  notify.Notifier
	Bus       *events.Bus
	History   *history.Store
	// OCRSkipped reports how many recognitions were answered from cache.
	OCRSkipped func() uint64
}

// Manager owns the poll loop. All state transitions happen on the Run
// goroutine; Snapshot and LatestCrop are safe from any goroutine.
type Manager struct {
	deps Deps
	opts Options

	snap *syncx.RWGuard[Snapshot]
	crop *syncx.RWGuard[image.Image]
	seq  uint64
	// frames totals the counters of sources already closed.
	frames capture.Stats
}

// New validates deps and builds a manager.
func New(deps Deps, opts Options) (*Manager, error) {
	if deps.Open == nil || deps.Extractor == nil {
		return nil, errors.New("orchestrator: source factory and extractor are required")
	}
	if deps.Debouncer == nil {
		deps.Debouncer = debounce.New(debounce.DefaultCooldown)
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Log{}
	}
	if deps.History == nil {
		deps.History = history.NewStore(HistoryEntries)
	}
	opts = opts.withDefaults()

	return &Manager{
		deps: deps,
		opts: opts,
		snap: syncx.NewGuard(Snapshot{Status: hud.DefaultStatus()}),
		crop: syncx.NewGuard[image.Image](nil),
	}, nil
}

// History returns the reading log.
func (m *Manager) History() *history.Store { return m.deps.History }

// Run polls until ctx is done, returning nil on a clean stop. It returns an
// error only when the stream cannot be (re)opened within the reconnect budget.
func (m *Manager) Run(ctx context.Context) error {
	ctx, _ = trace.EnsureContext(ctx)
	log := trace.Logger(ctx)

	src, err := m.connect(ctx)
	if err != nil {
		return stopped(ctx, err)
	}
	defer func() {
		if src != nil {
			m.release(src)
		}
		m.snap.Write(func(s *Snapshot) { s.Connected = false })
	}()

	m.snap.Write(func(s *Snapshot) { s.StartedAt = m.opts.Now() })
	log.Info("watching", "poll_interval", m.opts.PollInterval, "cooldown", m.deps.Debouncer.Cooldown())

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			log.Info("watcher stopping")
			return nil
		}

		err := m.poll(ctx, src)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		log.Warn("frame source terminated", "error", err)
		m.release(src)
		src = nil
		m.snap.Write(func(s *Snapshot) { s.Connected = false })
		m.publish(events.Stream(m.nextSeq(), m.opts.Now(), "ended: "+err.Error()))

		if m.opts.Reconnect.MaxRetries <= 0 {
			return err
		}
		if src, err = m.connect(ctx); err != nil {
			return stopped(ctx, err)
		}
		m.snap.Write(func(s *Snapshot) { s.Reconnects++ })
	}
}

// connect opens a source under the reconnect policy.
func (m *Manager) connect(ctx context.Context) (capture.Source, error) {
	log := trace.Logger(ctx)

	var src capture.Source
	open := func() error {
		s, err := m.deps.Open(ctx)
		if err != nil {
			return err
		}
		src = s
		return nil
	}

	var err error
	if m.opts.Reconnect.MaxRetries <= 0 {
		err = open()
	} else {
		cfg := m.opts.Reconnect
		cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
			log.Warn("stream open failed, retrying", "attempt", attempt, "max", cfg.MaxRetries, "delay", delay, "error", err)
		}
		err = resilience.Retry(ctx, cfg, open)
	}
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}

	m.snap.Write(func(s *Snapshot) { s.Connected = true })
	m.publish(events.Stream(m.nextSeq(), m.opts.Now(), "opened"))
	log.Info("stream opened")
	return src, nil
}

// release closes src and folds its frame counters into the running totals.
func (m *Manager) release(src capture.Source) {
	_ = src.Close()
	if c, ok := src.(counted); ok {
		st := c.Stats()
		m.frames.Produced += st.Produced
		m.frames.Dropped += st.Dropped
		m.frames.Delivered += st.Delivered
	}
	m.snap.Write(func(s *Snapshot) {
		s.FramesProduced = m.frames.Produced
		s.FramesDropped = m.frames.Dropped
	})
}

// poll runs one read-extract-debounce-notify step.
func (m *Manager) poll(ctx context.Context, src capture.Source) error {
	ctx, span := trace.StartSpan(ctx, "poll")
	defer span.End()

	frame, err := src.Read(ctx)
	if err != nil {
		span.SetAttr("error", err.Error())
		return err
	}
	span.SetAttr("frame", frame.Seq)

	obs := m.deps.Extractor.Observe(ctx, frame)
	now := m.opts.Now()
	fired := m.deps.Debouncer.Observe(obs.Status, now)
	state := m.deps.Debouncer.State()

	m.deps.History.Add(now, obs.Text, obs.Status)
	m.crop.Set(obs.Crop)
	m.publish(events.Observation(m.nextSeq(), now, obs.Status, obs.Text))

	frames := m.frames
	if c, ok := src.(counted); ok {
		st := c.Stats()
		frames.Produced += st.Produced
		frames.Dropped += st.Dropped
	}
	var skipped uint64
	if m.deps.OCRSkipped != nil {
		skipped = m.deps.OCRSkipped()
	}

	m.snap.Write(func(s *Snapshot) {
		s.FramesProduced = frames.Produced
		s.FramesDropped = frames.Dropped
		s.OCRSkipped = skipped
		s.Status = obs.Status
		s.Phase = state.Phase
		s.EligibleAt = state.EligibleAt
		s.LastFrameAt = frame.Timestamp
		s.LastPollAt = now
		s.LastText = obs.Text
		s.Polls++
		if obs.Err != nil {
			s.OCRFailures++
		}
	})

	if fired {
		span.SetAttr("notified", true)
		m.notify(ctx, obs.Status, now)
	}
	return nil
}

// notify delivers one alert. Failures are logged and counted, never returned.
func (m *Manager) notify(ctx context.Context, st hud.GameStatus, now time.Time) {
	log := trace.Logger(ctx)
	msg := Message(st)

	nctx, cancel := context.WithTimeout(ctx, m.opts.NotifyTimeout)
	defer cancel()

	err := m.deps.Notifier.Notify(nctx, m.opts.Title, msg)
	m.snap.Write(func(s *Snapshot) {
		s.Notifications++
		if err != nil {
			s.NotifyFailures++
		}
	})
	if err != nil {
		log.Warn("notification failed", "error", err)
	}
	m.publish(events.Notification(m.nextSeq(), now, st, msg))
}

func (m *Manager) publish(ev events.Event) {
	if m.deps.Bus != nil {
		m.deps.Bus.Publish(ev)
	}
}

func (m *Manager) nextSeq() uint64 {
	m.seq++
	return m.seq
}

// Message formats the alert body for a status.
func Message(st hud.GameStatus) string {
	msg := "Betting is open"
	if st.TimeRemaining > 0 {
		msg += fmt.Sprintf(": %d:%02d left", st.TimeRemaining/60, st.TimeRemaining%60)
	}
	if st.Rating > 0 || st.Region != hud.NoRegion {
		msg += fmt.Sprintf(" (rating %d, %s)", st.Rating, st.Region)
	}
	return msg
}

// stopped maps errors caused by ctx cancellation to a clean stop.
func stopped(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

package orchestrator

import (
	"context"
	"errors"
	"image"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/knakamura13/twitch-open-cv/internal/capture"
	"github.com/knakamura13/twitch-open-cv/internal/debounce"
	"github.com/knakamura13/twitch-open-cv/internal/events"
	"github.com/knakamura13/twitch-open-cv/internal/hud"
	"github.com/knakamura13/twitch-open-cv/internal/resilience"
)

var openStatus = hud.GameStatus{IsOpen: true, TimeRemaining: 92, Rating: 378, Region: "TR"}

// fakeSource serves n frames, then reports the stream as ended. It claims
// dropped extra frames were decoded and overwritten.
type fakeSource struct {
	mu      sync.Mutex
	frames  int
	served  int
	dropped uint64
	closed  bool
}

func (s *fakeSource) Read(context.Context) (capture.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return capture.Frame{}, capture.ErrClosed
	}
	if s.served >= s.frames {
		return capture.Frame{}, errors.Join(capture.ErrStreamEnded, io.EOF)
	}
	s.served++
	return capture.Frame{
		Seq:       uint64(s.served),
		Timestamp: time.Now(),
		Image:     image.NewRGBA(image.Rect(0, 0, 320, 180)),
	}, nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSource) Stats() capture.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	served := uint64(s.served)
	return capture.Stats{Produced: served + s.dropped, Dropped: s.dropped, Delivered: served}
}

func (s *fakeSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// factory hands out the given sources in order, failing once they run out.
type factory struct {
	mu      sync.Mutex
	sources []*fakeSource
	opens   int
}

func (f *factory) open(context.Context) (capture.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.opens >= len(f.sources) {
		f.opens++
		return nil, errors.New("channel offline")
	}
	s := f.sources[f.opens]
	f.opens++
	return s, nil
}

// scriptedExtractor returns statuses in order and cancels after the last one.
type scriptedExtractor struct {
	statuses []hud.GameStatus
	calls    int
	stopAt   int
	cancel   context.CancelFunc
}

func (e *scriptedExtractor) Observe(_ context.Context, _ capture.Frame) hud.Observation {
	st := hud.DefaultStatus()
	if e.calls < len(e.statuses) {
		st = e.statuses[e.calls]
	}
	e.calls++
	if e.cancel != nil && e.calls >= e.stopAt {
		e.cancel()
	}
	return hud.Observation{Status: st, Text: "rating"}
}

type countingNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (n *countingNotifier) Notify(_ context.Context, title, msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, title+"|"+msg)
	return n.err
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func fastOptions() Options {
	return Options{PollInterval: time.Millisecond}
}

func fastReconnect(retries int) resilience.RetryConfig {
	return resilience.RetryConfig{MaxRetries: retries, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func runWithTimeout(t *testing.T, m *Manager, ctx context.Context) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestRunNotifiesOncePerRound(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{frames: 100}
	ex := &scriptedExtractor{
		statuses: []hud.GameStatus{hud.DefaultStatus(), openStatus, openStatus, openStatus, hud.DefaultStatus()},
		stopAt:   5,
		cancel:   cancel,
	}
	n := &countingNotifier{}
	m, err := New(Deps{
		Open:      (&factory{sources: []*fakeSource{src}}).open,
		Extractor: ex,
		Debouncer: debounce.New(time.Hour),
		Notifier:  n,
	}, fastOptions())
	if err != nil {
		t.Fatal(err)
	}

	if err := runWithTimeout(t, m, ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n.count() != 1 {
		t.Errorf("notifications = %d, want 1", n.count())
	}
	if !strings.HasPrefix(n.calls[0], DefaultTitle+"|Betting is open: 1:32 left") {
		t.Errorf("notification = %q", n.calls[0])
	}

	snap := m.Snapshot()
	if snap.Polls != 5 || snap.Notifications != 1 || snap.Phase != debounce.Cooldown {
		t.Errorf("snapshot = %+v", snap)
	}
	if !src.isClosed() {
		t.Error("source not closed on stop")
	}
	if snap.Connected {
		t.Error("snapshot still connected after stop")
	}
}

func TestRunNotifierFailureIsNotFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ex := &scriptedExtractor{statuses: []hud.GameStatus{openStatus, openStatus}, stopAt: 4, cancel: cancel}
	n := &countingNotifier{err: errors.New("ntfy down")}
	m, _ := New(Deps{
		Open:      (&factory{sources: []*fakeSource{{frames: 100}}}).open,
		Extractor: ex,
		Debouncer: debounce.New(time.Hour),
		Notifier:  n,
	}, fastOptions())

	if err := runWithTimeout(t, m, ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	snap := m.Snapshot()
	if snap.Polls != 4 {
		t.Errorf("polls = %d, want 4", snap.Polls)
	}
	if snap.NotifyFailures != 1 || snap.Phase != debounce.Cooldown {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestRunReconnectsAfterStreamEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, second := &fakeSource{frames: 2}, &fakeSource{frames: 100}
	f := &factory{sources: []*fakeSource{first, second}}
	ex := &scriptedExtractor{stopAt: 5, cancel: cancel}

	opts := fastOptions()
	opts.Reconnect = fastReconnect(3)
	m, _ := New(Deps{Open: f.open, Extractor: ex}, opts)

	if err := runWithTimeout(t, m, ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if f.opens != 2 {
		t.Errorf("opens = %d, want 2", f.opens)
	}
	if !first.isClosed() || !second.isClosed() {
		t.Error("sources not closed")
	}
	if snap := m.Snapshot(); snap.Reconnects != 1 || snap.Polls != 5 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestRunCountsFramesAcrossReconnects(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, second := &fakeSource{frames: 2, dropped: 3}, &fakeSource{frames: 100, dropped: 1}
	f := &factory{sources: []*fakeSource{first, second}}
	ex := &scriptedExtractor{stopAt: 5, cancel: cancel}

	opts := fastOptions()
	opts.Reconnect = fastReconnect(3)
	m, _ := New(Deps{
		Open:       f.open,
		Extractor:  ex,
		OCRSkipped: func() uint64 { return 7 },
	}, opts)

	if err := runWithTimeout(t, m, ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	snap := m.Snapshot()
	// first: 2 served + 3 dropped; second: 3 served + 1 dropped.
	if snap.FramesProduced != 9 || snap.FramesDropped != 4 {
		t.Errorf("frames produced/dropped = %d/%d, want 9/4", snap.FramesProduced, snap.FramesDropped)
	}
	if snap.OCRSkipped != 7 {
		t.Errorf("OCRSkipped = %d, want 7", snap.OCRSkipped)
	}
}

func TestRunFrameCountsDuringPolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{frames: 100, dropped: 2}
	var seen Snapshot
	var m *Manager
	ex := extractorFunc(func(context.Context, capture.Frame) hud.Observation {
		seen = m.Snapshot()
		if seen.Polls == 2 {
			cancel()
		}
		return hud.Observation{Status: hud.DefaultStatus()}
	})
	m, _ = New(Deps{Open: (&factory{sources: []*fakeSource{src}}).open, Extractor: ex}, fastOptions())

	if err := runWithTimeout(t, m, ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// Third poll sees the counters written by the second: 2 served + 2 dropped.
	if seen.FramesProduced != 4 || seen.FramesDropped != 2 {
		t.Errorf("in-flight snapshot frames = %d/%d, want 4/2", seen.FramesProduced, seen.FramesDropped)
	}
	if seen.OCRSkipped != 0 {
		t.Errorf("OCRSkipped = %d without a counter", seen.OCRSkipped)
	}
}

func TestRunReconnectExhausted(t *testing.T) {
	f := &factory{sources: []*fakeSource{{frames: 1}}}
	opts := fastOptions()
	opts.Reconnect = fastReconnect(2)
	m, _ := New(Deps{Open: f.open, Extractor: &scriptedExtractor{}}, opts)

	err := runWithTimeout(t, m, context.Background())
	if err == nil || !strings.Contains(err.Error(), "channel offline") {
		t.Fatalf("Run() error = %v, want offline", err)
	}
	if f.opens != 4 {
		t.Errorf("opens = %d, want initial + 1 + 2 retries", f.opens)
	}
}

func TestRunWithoutReconnectReturnsStreamEnd(t *testing.T) {
	m, _ := New(Deps{
		Open:      (&factory{sources: []*fakeSource{{frames: 1}}}).open,
		Extractor: &scriptedExtractor{},
	}, fastOptions())

	err := runWithTimeout(t, m, context.Background())
	if !errors.Is(err, capture.ErrStreamEnded) {
		t.Fatalf("Run() error = %v, want ErrStreamEnded", err)
	}
}

func TestRunStopDuringInitialOpen(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := fastOptions()
	opts.Reconnect = fastReconnect(5)
	m, _ := New(Deps{Open: (&factory{}).open, Extractor: &scriptedExtractor{}}, opts)

	if err := runWithTimeout(t, m, ctx); err != nil {
		t.Errorf("Run() error = %v, want nil on cancel", err)
	}
}

func TestRunPublishesEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()
	ch, unsubscribe := bus.Subscribe(32)
	defer unsubscribe()

	ex := &scriptedExtractor{statuses: []hud.GameStatus{openStatus, openStatus}, stopAt: 2, cancel: cancel}
	m, _ := New(Deps{
		Open:      (&factory{sources: []*fakeSource{{frames: 100}}}).open,
		Extractor: ex,
		Debouncer: debounce.New(time.Hour),
		Notifier:  &countingNotifier{},
		Bus:       bus,
	}, fastOptions())

	if err := runWithTimeout(t, m, ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	kinds := map[events.Kind]int{}
	var lastSeq uint64
	for len(ch) > 0 {
		ev := <-ch
		if ev.Seq <= lastSeq {
			t.Errorf("seq %d not increasing after %d", ev.Seq, lastSeq)
		}
		lastSeq = ev.Seq
		kinds[ev.Kind]++
	}
	if kinds[events.KindStream] != 1 || kinds[events.KindObservation] != 2 || kinds[events.KindNotification] != 1 {
		t.Errorf("event kinds = %v", kinds)
	}
}

func TestRunKeepsHistoryAndCrop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	crop := image.NewRGBA(image.Rect(0, 0, 168, 64))
	calls := 0
	ex := extractorFunc(func(context.Context, capture.Frame) hud.Observation {
		calls++
		if calls == 3 {
			cancel()
		}
		return hud.Observation{Crop: crop, Text: "rating", Status: hud.DefaultStatus()}
	})
	m, _ := New(Deps{Open: (&factory{sources: []*fakeSource{{frames: 100}}}).open, Extractor: ex}, fastOptions())

	if err := runWithTimeout(t, m, ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := m.LatestCrop(); got != image.Image(crop) {
		t.Error("LatestCrop() not updated")
	}
	entries := m.History().Entries()
	if len(entries) != 1 || entries[0].Repeats != 2 {
		t.Errorf("history = %+v", entries)
	}
}

type extractorFunc func(context.Context, capture.Frame) hud.Observation

func (f extractorFunc) Observe(ctx context.Context, fr capture.Frame) hud.Observation {
	return f(ctx, fr)
}

func TestNewRequiresDeps(t *testing.T) {
	if _, err := New(Deps{}, Options{}); err == nil {
		t.Error("expected error without source factory")
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		st   hud.GameStatus
		want string
	}{
		{openStatus, "Betting is open: 1:32 left (rating 378, TR)"},
		{hud.GameStatus{IsOpen: true, Region: hud.NoRegion}, "Betting is open"},
		{hud.GameStatus{IsOpen: true, TimeRemaining: 5, Region: hud.NoRegion}, "Betting is open: 0:05 left"},
	}
	for _, tt := range tests {
		if got := Message(tt.st); got != tt.want {
			t.Errorf("Message(%+v) = %q, want %q", tt.st, got, tt.want)
		}
	}
}

package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(cfg Config) (*Breaker, *fakeClock) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	b := New(cfg)
	b.now = clk.Now
	return b, clk
}

var errBoom = errors.New("boom")

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(Config{Name: "ntfy", Threshold: 3, ResetTimeout: time.Minute, HalfOpenSuccesses: 1})

	for i := 0; i < 2; i++ {
		_ = b.Execute(func() error { return errBoom })
		if b.State() != Closed {
			t.Fatalf("opened after %d failures", i+1)
		}
	}
	_ = b.Execute(func() error { return errBoom })
	if b.State() != Open {
		t.Fatalf("state = %s, want open", b.State())
	}

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Execute() err = %v, want ErrOpen", err)
	}
	if called {
		t.Error("fn ran while breaker open")
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker(Config{Threshold: 2})

	b.Failure()
	b.Success()
	b.Failure()
	if b.State() != Closed {
		t.Errorf("state = %s, want closed", b.State())
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b, clk := newTestBreaker(Config{Threshold: 1, ResetTimeout: 10 * time.Second, HalfOpenSuccesses: 2})

	var transitions []State
	b.WithHook(func(_, to State) { transitions = append(transitions, to) })

	b.Failure()
	clk.Advance(11 * time.Second)

	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() after timeout = %v", err)
	}
	if b.State() != HalfOpen {
		t.Fatalf("state = %s, want half-open", b.State())
	}
	b.Success()
	b.Success()
	if b.State() != Closed {
		t.Fatalf("state = %s, want closed", b.State())
	}

	want := []State{Open, HalfOpen, Closed}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, clk := newTestBreaker(Config{Threshold: 1, ResetTimeout: time.Second})

	b.Failure()
	clk.Advance(2 * time.Second)
	_ = b.Allow()
	b.Failure()

	if b.State() != Open {
		t.Errorf("state = %s, want open", b.State())
	}
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Errorf("Allow() = %v, want ErrOpen", err)
	}
}

func TestBreakerReset(t *testing.T) {
	b, _ := newTestBreaker(Config{Threshold: 1})
	b.Failure()
	b.Reset()
	if b.State() != Closed {
		t.Errorf("state = %s, want closed", b.State())
	}
}

func TestExecuteWithResult(t *testing.T) {
	b, _ := newTestBreaker(DefaultConfig())

	got, err := ExecuteWithResult(b, func() (string, error) { return "BETS OPEN", nil })
	if err != nil || got != "BETS OPEN" {
		t.Errorf("ExecuteWithResult() = %q, %v", got, err)
	}

	got, err = ExecuteWithResult(b, func() (string, error) { return "partial", errBoom })
	if !errors.Is(err, errBoom) || got != "" {
		t.Errorf("ExecuteWithResult() on error = %q, %v", got, err)
	}
}

func TestConfigPresets(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want Config
	}{
		{"zero gets defaults", Config{}, Config{Name: "default", Threshold: DefaultThreshold, ResetTimeout: DefaultResetTimeout, HalfOpenSuccesses: DefaultHalfOpenSuccesses}},
		{"ocr", OCRConfig(), Config{Name: "ocr", Threshold: OCRThreshold, ResetTimeout: OCRResetTimeout, HalfOpenSuccesses: OCRHalfOpenSuccesses}},
		{"notify", NotifyConfig("ntfy"), Config{Name: "ntfy", Threshold: NotifyThreshold, ResetTimeout: NotifyResetTimeout, HalfOpenSuccesses: NotifyHalfOpenSuccesses}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.withDefaults(); got != tt.want {
				t.Errorf("withDefaults() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	if Open.String() != "open" || HalfOpen.String() != "half-open" || State(9).String() != "unknown" {
		t.Error("unexpected State.String output")
	}
	text, err := HalfOpen.MarshalText()
	if err != nil || string(text) != "half-open" {
		t.Errorf("MarshalText() = %q, %v", text, err)
	}
}

func TestBreakerCounts(t *testing.T) {
	b, clk := newTestBreaker(NotifyConfig("ntfy"))

	b.Failure()
	c := b.Counts()
	if c.Name != "ntfy" || c.State != Closed || c.Failures != 1 || !c.LastFailure.Equal(clk.Now()) {
		t.Fatalf("Counts() = %+v", c)
	}

	b.Failure()
	b.Failure()
	err := b.Allow()
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("Allow() = %v, want ErrOpen", err)
	}
	if err.Error() != "circuit breaker open: ntfy" {
		t.Errorf("error text = %q", err.Error())
	}
	if c := b.Counts(); c.State != Open || c.Failures != 3 {
		t.Errorf("Counts() after trip = %+v", c)
	}
}

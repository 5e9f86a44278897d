package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is the breaker position.
type State uint32

const (
	Closed   State = iota // calls pass through
	Open                  // calls are rejected
	HalfOpen              // trial calls after ResetTimeout
)

var stateNames = [...]string{Closed: "closed", Open: "open", HalfOpen: "half-open"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// MarshalText renders the state name in JSON status payloads.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker open")

// Counts is a point-in-time view of a breaker.
type Counts struct {
	Name        string    `json:"name"`
	State       State     `json:"state"`
	Failures    int       `json:"failures"`
	LastFailure time.Time `json:"last_failure,omitzero"`
}

// Breaker trips after Threshold consecutive failures and stays open for
// ResetTimeout before letting trial calls through.
type Breaker struct {
	cfg Config
	now func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	trials      int
	lastFailure time.Time
	hook        func(from, to State)
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg.withDefaults(), now: time.Now}
}

// WithHook registers fn to run on every state change. fn runs with the
// breaker locked and must not call back into it.
func (b *Breaker) WithHook(fn func(from, to State)) *Breaker {
	b.mu.Lock()
	b.hook = fn
	b.mu.Unlock()
	return b
}

// Name returns the configured breaker name.
func (b *Breaker) Name() string { return b.cfg.Name }

// Allow returns ErrOpen (wrapped with the breaker name) while the breaker
// is open and the reset timeout has not passed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != Open {
		return nil
	}
	if !b.lastFailure.IsZero() && b.now().Sub(b.lastFailure) <= b.cfg.ResetTimeout {
		return fmt.Errorf("%w: %s", ErrOpen, b.cfg.Name)
	}
	b.setState(HalfOpen)
	return nil
}

// Success records a call that worked.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.trials++
		if b.trials >= b.cfg.HalfOpenSuccesses {
			b.setState(Closed)
		}
	}
}

// Failure records a call that failed.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()
	b.failures++
	switch {
	case b.state == HalfOpen:
		b.setState(Open)
	case b.state == Closed && b.failures >= b.cfg.Threshold:
		b.setState(Open)
	}
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Counts returns a snapshot for status output.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Counts{Name: b.cfg.Name, State: b.state, Failures: b.failures, LastFailure: b.lastFailure}
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setState(Closed)
}

func (b *Breaker) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.trials = 0

	switch to {
	case Open:
		slog.Warn("circuit breaker opened", "breaker", b.cfg.Name, "failures", b.failures, "retry_after", b.cfg.ResetTimeout)
	case HalfOpen:
		slog.Info("circuit breaker probing", "breaker", b.cfg.Name)
	case Closed:
		b.failures = 0
		slog.Info("circuit breaker closed", "breaker", b.cfg.Name)
	}
	if b.hook != nil {
		b.hook(from, to)
	}
}

// Execute runs fn if the breaker allows it and records the outcome.
func (b *Breaker) Execute(fn func() error) error {
	_, err := ExecuteWithResult(b, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

// ExecuteWithResult is Execute for functions that return a value. The zero
// value is returned on any error.
func ExecuteWithResult[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := b.Allow(); err != nil {
		return zero, err
	}
	result, err := fn()
	if err != nil {
		b.Failure()
		return zero, err
	}
	b.Success()
	return result, nil
}

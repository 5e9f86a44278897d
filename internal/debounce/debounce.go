// Package debounce decides when a round opening should trigger a notification.
package debounce

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/knakamura13/twitch-open-cv/internal/hud"
)

// DefaultCooldown suppresses repeats for the length of a typical betting window.
const DefaultCooldown = 5 * time.Minute

// Phase is the debouncer state.
type Phase int

const (
	Waiting Phase = iota
	Cooldown
)

func (p Phase) String() string {
	switch p {
	case Waiting:
		return "waiting"
	case Cooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// MarshalText renders the phase by name in JSON and CBOR.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText parses a phase name.
func (p *Phase) UnmarshalText(b []byte) error {
	switch string(b) {
	case "waiting":
		*p = Waiting
	case "cooldown":
		*p = Cooldown
	default:
		return fmt.Errorf("unknown phase %q", b)
	}
	return nil
}

// State is a snapshot of the debouncer.
type State struct {
	Phase      Phase     `json:"phase"`
	EligibleAt time.Time `json:"eligible_at"`
}

// Debouncer is a two-state machine fed one GameStatus per poll. Cooldown is
// a timestamp comparison; Observe never blocks.
type Debouncer struct {
	mu       sync.Mutex
	cooldown time.Duration
	state    State
}

// New creates a debouncer in the Waiting phase. A non-positive cooldown uses
// DefaultCooldown.
func New(cooldown time.Duration) *Debouncer {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Debouncer{cooldown: cooldown}
}

// Observe feeds one observation taken at now and reports whether exactly one
// notification should fire for it.
func (d *Debouncer) Observe(st hud.GameStatus, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state.Phase == Cooldown {
		if now.Before(d.state.EligibleAt) {
			return false
		}
		d.state = State{Phase: Waiting}
		slog.Debug("debounce: cooldown expired")
	}

	if !st.IsOpen {
		return false
	}

	d.state = State{Phase: Cooldown, EligibleAt: now.Add(d.cooldown)}
	slog.Info("debounce: round opened", "time_remaining", st.TimeRemaining, "eligible_at", d.state.EligibleAt)
	return true
}

// State returns the current state.
func (d *Debouncer) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Cooldown returns the configured suppression window.
func (d *Debouncer) Cooldown() time.Duration { return d.cooldown }

// Reset returns to Waiting.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	d.state = State{Phase: Waiting}
	d.mu.Unlock()
}

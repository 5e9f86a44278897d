package orchestrator

import (
	"image"
	"time"

	"github.com/knakamura13/twitch-open-cv/internal/debounce"
	"github.com/knakamura13/twitch-open-cv/internal/hud"
)

// Snapshot is the watcher's latest state as served by the status API.
type Snapshot struct {
	Status         hud.GameStatus `json:"status"`
	Phase          debounce.Phase `json:"phase"`
	EligibleAt     time.Time      `json:"eligible_at"`
	Connected      bool           `json:"connected"`
	StartedAt      time.Time      `json:"started_at"`
	LastFrameAt    time.Time      `json:"last_frame_at"`
	LastPollAt     time.Time      `json:"last_poll_at"`
	LastText       string         `json:"last_text"`
	Polls          uint64         `json:"polls"`
	OCRFailures    uint64         `json:"ocr_failures"`
	Notifications  uint64         `json:"notifications"`
	NotifyFailures uint64         `json:"notify_failures"`
	Reconnects     uint64         `json:"reconnects"`
	FramesProduced uint64         `json:"frames_produced"`
	FramesDropped  uint64         `json:"frames_dropped"`
	OCRSkipped     uint64         `json:"ocr_skipped"`
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() Snapshot { return m.snap.Get() }

// LatestCrop returns the most recent HUD crop, or nil before the first poll.
func (m *Manager) LatestCrop() image.Image { return m.crop.Get() }

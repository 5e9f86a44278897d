// Package events carries watcher observations to transports: the WebSocket
// feed and the ZeroMQ publisher.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/knakamura13/twitch-open-cv/internal/hud"
)

// Kind names an event type. It doubles as the ZeroMQ topic.
type Kind string

const (
	KindObservation  Kind = "observation"
	KindNotification Kind = "notification"
	KindStream       Kind = "stream"
)

// Event is one message on the bus.
type Event struct {
	Kind    Kind            `json:"kind"`
	Seq     uint64          `json:"seq"`
	Time    time.Time       `json:"time"`
	Status  *hud.GameStatus `json:"status,omitempty"`
	RoundID string          `json:"round_id,omitempty"` // notifications only
	Text    string          `json:"text,omitempty"`     // normalized OCR text
	Message string          `json:"message,omitempty"`
}

// NewRoundID returns a fresh identifier for a notified round.
func NewRoundID() string { return uuid.NewString() }

// Observation builds the event for one poll.
func Observation(seq uint64, at time.Time, st hud.GameStatus, text string) Event {
	return Event{Kind: KindObservation, Seq: seq, Time: at, Status: &st, Text: text}
}

// Notification builds the event for a fired alert.
func Notification(seq uint64, at time.Time, st hud.GameStatus, message string) Event {
	return Event{Kind: KindNotification, Seq: seq, Time: at, Status: &st, RoundID: NewRoundID(), Message: message}
}

// Stream builds a lifecycle event (opened, ended, reconnected).
func Stream(seq uint64, at time.Time, message string) Event {
	return Event{Kind: KindStream, Seq: seq, Time: at, Message: message}
}

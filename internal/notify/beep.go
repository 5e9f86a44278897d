package notify

import (
	"context"

	"github.com/knakamura13/twitch-open-cv/internal/audio"
	apperrors "github.com/knakamura13/twitch-open-cv/internal/errors"
)

// Player plays alert tones.
type Player interface {
	Play(ctx context.Context, tones ...audio.Tone) error
}

// Beep plays the alert chime.
type Beep struct {
	player Player
	tones  []audio.Tone
}

// NewBeep plays audio.DefaultAlert through player.
func NewBeep(player Player) *Beep {
	return &Beep{player: player, tones: audio.DefaultAlert}
}

// Notify implements Notifier.
func (b *Beep) Notify(ctx context.Context, _, _ string) error {
	if err := b.player.Play(ctx, b.tones...); err != nil {
		return apperrors.Wrap(err, apperrors.NotifyFailed, "beep")
	}
	return nil
}

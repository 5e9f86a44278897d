// Package capture supplies the freshest decoded frame from a live stream.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"
)

var (
	// ErrStreamEnded reports that the decoder stopped producing frames.
	// The decoder's own error is wrapped alongside it.
	ErrStreamEnded = errors.New("capture: stream ended")
	// ErrClosed is returned by Read after Close.
	ErrClosed = errors.New("capture: source closed")
)

// Frame is one decoded image. It is never mutated after publication.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Image     image.Image
}

// Width returns the frame width in pixels.
func (f Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the frame height in pixels.
func (f Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// Decoder opens a media URL.
type Decoder interface {
	Open(ctx context.Context, url string) (Handle, error)
}

// Handle reads decoded frames from an open stream. Read returns an error
// (io.EOF or otherwise) once no further frames will come.
type Handle interface {
	Read() (image.Image, error)
	Close() error
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(ctx context.Context, url string) (Handle, error)

// Open implements Decoder.
func (f DecoderFunc) Open(ctx context.Context, url string) (Handle, error) { return f(ctx, url) }

// Source yields frames. Read blocks until a frame newer than the previous
// one is available, the stream ends, or ctx is done.
type Source interface {
	Read(ctx context.Context) (Frame, error)
	Close() error
}

// Mode selects the acquisition strategy.
type Mode string

const (
	// ModeThreaded decodes continuously in a goroutine and keeps the newest frame.
	ModeThreaded Mode = "threaded"
	// ModeOneshot opens, reads one frame, and closes on every Read.
	ModeOneshot Mode = "oneshot"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeThreaded, ModeOneshot:
		return m, nil
	case "":
		return ModeThreaded, nil
	default:
		return "", fmt.Errorf("capture: unknown mode %q", s)
	}
}

// Open starts a source for url using the given mode.
func Open(ctx context.Context, dec Decoder, url string, mode Mode) (Source, error) {
	switch mode {
	case ModeOneshot:
		return NewOneshot(dec, url), nil
	case ModeThreaded, "":
		return NewBufferless(ctx, dec, url)
	default:
		return nil, fmt.Errorf("capture: unknown mode %q", mode)
	}
}

func ended(cause error) error {
	return fmt.Errorf("%w: %w", ErrStreamEnded, cause)
}

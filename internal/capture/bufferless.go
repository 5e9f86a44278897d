package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/knakamura13/twitch-open-cv/internal/syncx"
)

// DefaultCloseTimeout bounds how long Close waits for the decode goroutine.
const DefaultCloseTimeout = 3 * time.Second

// Stats summarizes acquisition activity.
type Stats struct {
	Produced  uint64 // frames decoded
	Dropped   uint64 // frames overwritten before anyone read them
	Delivered uint64 // frames returned by Read
}

// Bufferless decodes frames in a background goroutine and keeps only the
// newest one. Memory use does not grow with the decode rate.
type Bufferless struct {
	slot      *syncx.Slot[Frame]
	cancel    context.CancelFunc
	done      chan struct{}
	delivered atomic.Uint64
	closeOnce sync.Once

	// CloseTimeout overrides DefaultCloseTimeout when positive.
	CloseTimeout time.Duration
}

// NewBufferless opens url and starts decoding. The goroutine stops when ctx
// is done, the stream ends, or Close is called.
func NewBufferless(ctx context.Context, dec Decoder, url string) (*Bufferless, error) {
	h, err := dec.Open(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("capture: open stream: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	b := &Bufferless{
		slot:   syncx.NewSlot[Frame](),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go b.acquire(ctx, h)
	return b, nil
}

func (b *Bufferless) acquire(ctx context.Context, h Handle) {
	defer close(b.done)
	defer func() {
		if err := h.Close(); err != nil {
			slog.Debug("capture: close handle", "error", err)
		}
	}()

	var seq uint64
	for {
		img, err := h.Read()
		if ctx.Err() != nil {
			b.slot.CloseWithError(ErrClosed)
			return
		}
		if err != nil {
			slog.Warn("capture: decoder stopped", "error", err, "frames", seq)
			b.slot.CloseWithError(ended(err))
			return
		}
		if img == nil {
			continue
		}
		seq++
		b.slot.Put(Frame{Seq: seq, Timestamp: time.Now(), Image: img})
	}
}

// Read returns the newest frame not yet returned. After the stream ends a
// frame decoded before the end is still delivered once, then Read returns
// an error wrapping ErrStreamEnded.
func (b *Bufferless) Read(ctx context.Context) (Frame, error) {
	f, err := b.slot.Take(ctx)
	if err != nil {
		return Frame{}, err
	}
	b.delivered.Add(1)
	return f, nil
}

// Stats returns acquisition counters.
func (b *Bufferless) Stats() Stats {
	puts, drops := b.slot.Stats()
	return Stats{Produced: puts, Dropped: drops, Delivered: b.delivered.Load()}
}

// Done is closed once the decode goroutine has exited.
func (b *Bufferless) Done() <-chan struct{} { return b.done }

// Close stops decoding and wakes blocked readers. It waits for the decode
// goroutine for at most CloseTimeout; the goroutine releases the decoder
// handle itself when its pending Read returns.
func (b *Bufferless) Close() error {
	b.closeOnce.Do(func() {
		b.cancel()
		b.slot.CloseWithError(ErrClosed)

		timeout := b.CloseTimeout
		if timeout <= 0 {
			timeout = DefaultCloseTimeout
		}
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-b.done:
		case <-timer.C:
			slog.Warn("capture: decoder did not stop in time", "timeout", timeout)
		}
	})
	return nil
}

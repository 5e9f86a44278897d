package capture

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Oneshot opens a fresh decoder connection for every Read, takes one frame,
// and releases it. There is no background goroutine.
type Oneshot struct {
	dec    Decoder
	url    string
	seq    atomic.Uint64
	closed atomic.Bool
}

// NewOneshot returns a synchronous source for url.
func NewOneshot(dec Decoder, url string) *Oneshot {
	return &Oneshot{dec: dec, url: url}
}

// Read opens the stream, decodes one frame, and closes it. Failure to open
// or read is reported as ErrStreamEnded so callers reconnect the same way
// they would for a threaded source.
func (o *Oneshot) Read(ctx context.Context) (Frame, error) {
	if o.closed.Load() {
		return Frame{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	h, err := o.dec.Open(ctx, o.url)
	if err != nil {
		return Frame{}, ended(err)
	}
	defer func() {
		if err := h.Close(); err != nil {
			slog.Debug("capture: close handle", "error", err)
		}
	}()

	for {
		img, err := h.Read()
		if err != nil {
			return Frame{}, ended(err)
		}
		if img != nil {
			return Frame{Seq: o.seq.Add(1), Timestamp: time.Now(), Image: img}, nil
		}
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
	}
}

// Close makes further reads fail with ErrClosed.
func (o *Oneshot) Close() error {
	o.closed.Store(true)
	return nil
}

// Package opencv decodes network streams with OpenCV's VideoCapture.
package opencv

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"gocv.io/x/gocv"

	"github.com/knakamura13/twitch-open-cv/internal/capture"
)

var errClosed = errors.New("opencv: handle closed")

// Decoder opens URLs through the FFmpeg backend.
type Decoder struct{}

// Open implements capture.Decoder.
func (Decoder) Open(ctx context.Context, url string) (capture.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vc, err := gocv.OpenVideoCaptureWithAPI(url, gocv.VideoCaptureFFmpeg)
	if err != nil {
		return nil, fmt.Errorf("opencv: open capture: %w", err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, errors.New("opencv: capture did not open")
	}
	// Keep OpenCV's own queue minimal; freshness is handled by capture.
	vc.Set(gocv.VideoCaptureBufferSize, 1)
	return &handle{vc: vc, mat: gocv.NewMat()}, nil
}

type handle struct {
	mu     sync.Mutex
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	closed bool
}

// Read grabs and decodes the next frame. A failed grab means the stream is over.
func (h *handle) Read() (image.Image, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, errClosed
	}
	if ok := h.vc.Read(&h.mat); !ok || h.mat.Empty() {
		return nil, io.EOF
	}
	img, err := h.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("opencv: convert frame: %w", err)
	}
	return img, nil
}

// Close releases the capture and its frame buffer.
func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	_ = h.mat.Close()
	return h.vc.Close()
}

package ocr

import (
	"context"
	"image"
	_ "image/jpeg" // JPEG decoder for DecodeImage
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/corona10/goimagehash"
)

// DefaultMaxHashDistance treats crops within this Hamming distance as the same.
const DefaultMaxHashDistance = 2

// Dedup skips recognition when the image is perceptually identical to the
// last one that was recognized, returning the cached text instead.
type Dedup struct {
	next        Recognizer
	maxDistance int

	mu       sync.Mutex
	lastHash *goimagehash.ImageHash
	lastLang string
	lastText string

	skipped atomic.Uint64
}

// NewDedup wraps next. A negative maxDistance uses DefaultMaxHashDistance.
func NewDedup(next Recognizer, maxDistance int) *Dedup {
	if maxDistance < 0 {
		maxDistance = DefaultMaxHashDistance
	}
	return &Dedup{next: next, maxDistance: maxDistance}
}

// Recognize implements Recognizer.
func (d *Dedup) Recognize(ctx context.Context, img image.Image, lang string) (string, error) {
	hash := d.hash(img)
	if text, ok := d.cached(hash, lang); ok {
		return text, nil
	}

	text, err := d.next.Recognize(ctx, img, lang)
	if err != nil {
		return "", err
	}

	if hash != nil {
		d.mu.Lock()
		d.lastHash, d.lastLang, d.lastText = hash, lang, text
		d.mu.Unlock()
	}
	return text, nil
}

// Skipped returns how many calls were answered from cache.
func (d *Dedup) Skipped() uint64 { return d.skipped.Load() }

func (d *Dedup) hash(img image.Image) *goimagehash.ImageHash {
	if img == nil || img.Bounds().Empty() {
		return nil
	}
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return nil
	}
	return hash
}

func (d *Dedup) cached(hash *goimagehash.ImageHash, lang string) (string, bool) {
	if hash == nil {
		return "", false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lastHash == nil || lang != d.lastLang {
		return "", false
	}
	dist, err := d.lastHash.Distance(hash)
	if err != nil || dist > d.maxDistance {
		return "", false
	}
	d.skipped.Add(1)
	slog.Debug("ocr: skipping similar crop", "distance", dist)
	return d.lastText, true
}

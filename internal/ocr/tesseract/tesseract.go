// Package tesseract recognizes text with a local Tesseract install.
package tesseract

import (
	"context"
	"image"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	apperrors "github.com/knakamura13/twitch-open-cv/internal/errors"
	"github.com/knakamura13/twitch-open-cv/internal/ocr"
)

// Recognizer wraps one gosseract client. Calls are serialized because the
// underlying Tesseract handle is not safe for concurrent use.
type Recognizer struct {
	mu     sync.Mutex
	client *gosseract.Client
	lang   string
}

// New creates a recognizer. The HUD is a small block of mixed text, so
// single-block page segmentation is used.
func New() *Recognizer {
	client := gosseract.NewClient()
	_ = client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK)
	return &Recognizer{client: client}
}

// Recognize implements ocr.Recognizer.
func (r *Recognizer) Recognize(ctx context.Context, img image.Image, lang string) (string, error) {
	data, err := ocr.EncodePNG(img)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if lang != "" && lang != r.lang {
		if err := r.client.SetLanguage(lang); err != nil {
			return "", apperrors.Wrap(err, apperrors.OCRInitFailed, "set language").WithMetadata("lang", lang)
		}
		r.lang = lang
	}
	if err := r.client.SetImageFromBytes(data); err != nil {
		return "", apperrors.Wrap(err, apperrors.OCRInvalidImage, "load image")
	}
	text, err := r.client.Text()
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.OCRExtractFailed, "tesseract")
	}
	return strings.TrimSpace(text), nil
}

// Close releases the Tesseract handle.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client.Close()
}

package hud

import (
	"context"
	"image"
	"image/draw"

	"github.com/knakamura13/twitch-open-cv/internal/capture"
	"github.com/knakamura13/twitch-open-cv/internal/ocr"
	"github.com/knakamura13/twitch-open-cv/internal/trace"
)

// ROI sizes, anchored to the frame's top-right corner.
const (
	DefaultROIWidth  = 168
	DefaultROIHeight = 64
)

// ROI is the size of the region cropped from the top-right corner.
type ROI struct {
	Width, Height int
}

// DefaultROI covers the overlay on a 720p stream.
var DefaultROI = ROI{Width: DefaultROIWidth, Height: DefaultROIHeight}

// Crop returns the top-right roi.Width x roi.Height region of img,
// intersected with its bounds. The result shares pixels with img.
func Crop(img image.Image, roi ROI) image.Image {
	if img == nil {
		return image.NewRGBA(image.Rectangle{})
	}
	b := img.Bounds()
	r := image.Rect(b.Max.X-roi.Width, b.Min.Y, b.Max.X, b.Min.Y+roi.Height).Intersect(b)

	if si, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return si.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

// Observation is the full result of reading one frame.
type Observation struct {
	Crop   image.Image
	Raw    string // recognizer output
	Text   string // normalized
	Status GameStatus
	Err    error // recognizer failure; Status is still valid
}

// Extractor crops, recognizes, normalizes, and parses frames.
type Extractor struct {
	rec  ocr.Recognizer
	lang string
	roi  ROI
}

// NewExtractor builds an extractor. A zero roi uses DefaultROI.
func NewExtractor(rec ocr.Recognizer, lang string, roi ROI) *Extractor {
	if roi.Width <= 0 || roi.Height <= 0 {
		roi = DefaultROI
	}
	return &Extractor{rec: rec, lang: lang, roi: roi}
}

// Extract never fails: recognizer errors degrade to DefaultStatus.
func (e *Extractor) Extract(ctx context.Context, f capture.Frame) GameStatus {
	return e.Observe(ctx, f).Status
}

// Observe is Extract with the intermediate values kept.
func (e *Extractor) Observe(ctx context.Context, f capture.Frame) Observation {
	obs := Observation{Crop: Crop(f.Image, e.roi), Status: DefaultStatus()}

	raw, err := e.rec.Recognize(ctx, obs.Crop, e.lang)
	if err != nil {
		trace.Logger(ctx).Debug("hud: recognition failed", "frame", f.Seq, "error", err)
		obs.Err = err
		return obs
	}

	obs.Raw = raw
	obs.Text = Normalize(raw)
	obs.Status = Parse(obs.Text)
	return obs
}

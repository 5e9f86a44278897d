// Package ocr defines the text recognizer contract and recognizer wrappers.
package ocr

import (
	"bytes"
	"context"
	"image"
	"image/png"

	apperrors "github.com/knakamura13/twitch-open-cv/internal/errors"
)

// Recognizer extracts text from an image. Output is untrusted: it may be
// empty, partial, or garbled.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image, lang string) (string, error)
}

// Func adapts a function to Recognizer.
type Func func(ctx context.Context, img image.Image, lang string) (string, error)

// Recognize implements Recognizer.
func (f Func) Recognize(ctx context.Context, img image.Image, lang string) (string, error) {
	return f(ctx, img, lang)
}

// EncodePNG validates img and encodes it losslessly for OCR engines.
func EncodePNG(img image.Image) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, apperrors.New(apperrors.OCRInvalidImage, "image is empty")
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, apperrors.Wrap(err, apperrors.OCRInvalidImage, "encode png")
	}
	return buf.Bytes(), nil
}

// DecodeImage decodes PNG or JPEG bytes received from a remote caller.
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, apperrors.New(apperrors.OCRInvalidImage, "image data is empty")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.OCRInvalidImage, "decode image")
	}
	return img, nil
}

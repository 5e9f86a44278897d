package grpcclient

import "time"

// Wire names for the OCR service. Messages are the protobuf well-known
// wrappers: BytesValue (PNG or JPEG) in, StringValue (raw text) out.
const (
	ServiceName     = "betwatch.ocr.v1.OCRService"
	RecognizeMethod = "/" + ServiceName + "/Recognize"

	// LanguageKey carries the Tesseract language code in request metadata.
	LanguageKey = "x-ocr-language"
)

// Client configuration defaults
const (
	DefaultCallTimeout = 5 * time.Second

	// Keepalive configuration
	DefaultKeepaliveTime    = 10 * time.Second
	DefaultKeepaliveTimeout = 3 * time.Second

	HealthCheckTimeout = 2 * time.Second

	// The OCR call is on the poll path, so retries stay short.
	DefaultRetries        = 2
	DefaultRetryBaseDelay = 100 * time.Millisecond
	DefaultRetryMaxDelay  = 500 * time.Millisecond
)

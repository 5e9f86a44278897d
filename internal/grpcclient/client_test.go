package grpcclient

import (
	"context"
	"errors"
	"image"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	apperrors "github.com/knakamura13/twitch-open-cv/internal/errors"
	"github.com/knakamura13/twitch-open-cv/internal/resilience"
)

// scriptedRecognizer returns queued results in order, then repeats the last.
type scriptedRecognizer struct {
	mu      sync.Mutex
	results []result
	calls   int
	langs   []string
	bounds  image.Rectangle
}

type result struct {
	text string
	err  error
}

func (s *scriptedRecognizer) Recognize(_ context.Context, img image.Image, lang string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.results[min(s.calls, len(s.results)-1)]
	s.calls++
	s.langs = append(s.langs, lang)
	s.bounds = img.Bounds()
	return r.text, r.err
}

func (s *scriptedRecognizer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func startServer(t *testing.T, rec *scriptedRecognizer, opts Options) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewServer(NewService(rec, "eng"))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	if opts.Retry.MaxRetries == 0 {
		opts.Retry = resilience.RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	}
	c, err := New("passthrough:///bufnet", opts, grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func crop() image.Image { return image.NewRGBA(image.Rect(0, 0, 168, 64)) }

func TestRecognizeRoundTrip(t *testing.T) {
	rec := &scriptedRecognizer{results: []result{{text: "01:32 378 rating on tr"}}}
	c := startServer(t, rec, Options{})

	got, err := c.Recognize(context.Background(), crop(), "deu")
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if got != "01:32 378 rating on tr" {
		t.Errorf("Recognize() = %q", got)
	}
	if rec.langs[0] != "deu" {
		t.Errorf("server lang = %q, want deu", rec.langs[0])
	}
	if rec.bounds.Dx() != 168 || rec.bounds.Dy() != 64 {
		t.Errorf("server saw bounds %v", rec.bounds)
	}
}

func TestRecognizeDefaultLanguage(t *testing.T) {
	rec := &scriptedRecognizer{results: []result{{text: "x"}}}
	c := startServer(t, rec, Options{})

	if _, err := c.Recognize(context.Background(), crop(), ""); err != nil {
		t.Fatal(err)
	}
	if rec.langs[0] != "eng" {
		t.Errorf("server lang = %q, want default eng", rec.langs[0])
	}
}

func TestRecognizeRetriesUnavailable(t *testing.T) {
	rec := &scriptedRecognizer{results: []result{
		{err: apperrors.New(apperrors.Unavailable, "warming up")},
		{err: apperrors.New(apperrors.Unavailable, "warming up")},
		{text: "closed"},
	}}
	c := startServer(t, rec, Options{})

	got, err := c.Recognize(context.Background(), crop(), "eng")
	if err != nil || got != "closed" {
		t.Fatalf("Recognize() = %q, %v", got, err)
	}
	if rec.Calls() != 3 {
		t.Errorf("calls = %d, want 3", rec.Calls())
	}
}

func TestRecognizeKeepsErrorCode(t *testing.T) {
	rec := &scriptedRecognizer{results: []result{
		{err: apperrors.New(apperrors.OCRExtractFailed, "tesseract crashed").WithMetadata("lang", "eng")},
	}}
	c := startServer(t, rec, Options{})

	_, err := c.Recognize(context.Background(), crop(), "eng")
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("Recognize() error = %T %v, want AppError", err, err)
	}
	if appErr.Code != apperrors.OCRExtractFailed || appErr.Metadata["lang"] != "eng" {
		t.Errorf("AppError = %+v", appErr)
	}
	if rec.Calls() != 1 {
		t.Errorf("non-retryable error retried: calls = %d", rec.Calls())
	}
}

func TestRecognizePlainErrorBecomesExtractFailed(t *testing.T) {
	rec := &scriptedRecognizer{results: []result{{err: errors.New("segfault")}}}
	c := startServer(t, rec, Options{})

	_, err := c.Recognize(context.Background(), crop(), "eng")
	if !apperrors.IsCode(err, apperrors.OCRExtractFailed) {
		t.Errorf("Recognize() error = %v, want OCR_EXTRACT_FAILED", err)
	}
}

func TestRecognizeBreakerOpens(t *testing.T) {
	rec := &scriptedRecognizer{results: []result{{err: apperrors.New(apperrors.OCRExtractFailed, "bad")}}}
	c := startServer(t, rec, Options{Breaker: resilience.Config{Name: "ocr", Threshold: 2, ResetTimeout: time.Hour}})

	for i := 0; i < 2; i++ {
		_, _ = c.Recognize(context.Background(), crop(), "eng")
	}
	_, err := c.Recognize(context.Background(), crop(), "eng")
	if !errors.Is(err, resilience.ErrOpen) || !apperrors.IsCode(err, apperrors.Unavailable) {
		t.Errorf("Recognize() error = %v, want open breaker", err)
	}
	if rec.Calls() != 2 {
		t.Errorf("calls = %d, want 2 (third short-circuited)", rec.Calls())
	}
	if c.Breaker().State() != resilience.Open {
		t.Errorf("breaker state = %s", c.Breaker().State())
	}
}

func TestRecognizeEmptyImage(t *testing.T) {
	rec := &scriptedRecognizer{results: []result{{text: "x"}}}
	c := startServer(t, rec, Options{})

	_, err := c.Recognize(context.Background(), image.NewRGBA(image.Rectangle{}), "eng")
	if !apperrors.IsCode(err, apperrors.OCRInvalidImage) {
		t.Errorf("Recognize() error = %v, want OCR_INVALID_IMAGE", err)
	}
	if rec.Calls() != 0 {
		t.Error("empty image should not reach the server")
	}
}

func TestRecognizeCanceled(t *testing.T) {
	rec := &scriptedRecognizer{results: []result{{text: "x"}}}
	c := startServer(t, rec, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Recognize(ctx, crop(), "eng"); !errors.Is(err, context.Canceled) {
		t.Errorf("Recognize() error = %v, want context.Canceled", err)
	}
}

func TestPing(t *testing.T) {
	rec := &scriptedRecognizer{results: []result{{text: "x"}}}
	c := startServer(t, rec, Options{})

	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping() = %v", err)
	}
}

// Package grpcclient runs OCR out of process: a Recognizer that calls a
// remote OCR service, and the service that wraps any local Recognizer.
package grpcclient

import (
	"context"
	"errors"
	"image"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apperrors "github.com/knakamura13/twitch-open-cv/internal/errors"
	"github.com/knakamura13/twitch-open-cv/internal/ocr"
	"github.com/knakamura13/twitch-open-cv/internal/resilience"
	"github.com/knakamura13/twitch-open-cv/internal/trace"
)

// Options tunes the client. Zero fields take defaults.
type Options struct {
	CallTimeout time.Duration
	Retry       resilience.RetryConfig
	Breaker     resilience.Config
}

func (o Options) withDefaults() Options {
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.Retry.MaxRetries <= 0 {
		o.Retry = resilience.RetryConfig{
			MaxRetries:   DefaultRetries,
			BaseDelay:    DefaultRetryBaseDelay,
			MaxDelay:     DefaultRetryMaxDelay,
			JitterFactor: resilience.DefaultJitterFactor,
		}
	}
	if o.Breaker.Threshold <= 0 {
		o.Breaker = resilience.OCRConfig()
	}
	return o
}

// Client is a remote ocr.Recognizer.
type Client struct {
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
	breaker *resilience.Breaker
	opts    Options
}

// New creates a client for addr. Extra dial options are appended after the
// defaults (insecure transport, keepalive, trace propagation).
func New(addr string, opts Options, dialOpts ...grpc.DialOption) (*Client, error) {
	opts = opts.withDefaults()
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    DefaultKeepaliveTime,
			Timeout: DefaultKeepaliveTimeout,
		}),
		grpc.WithUnaryInterceptor(trace.UnaryClientInterceptor()),
	}
	conn, err := grpc.NewClient(addr, append(base, dialOpts...)...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Unavailable, "dial ocr service").WithMetadata("addr", addr)
	}
	return &Client{
		conn:    conn,
		health:  healthpb.NewHealthClient(conn),
		breaker: resilience.New(opts.Breaker),
		opts:    opts,
	}, nil
}

// Close closes the gRPC connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Breaker exposes the client's circuit breaker state.
func (c *Client) Breaker() *resilience.Breaker { return c.breaker }

// Recognize implements ocr.Recognizer.
func (c *Client) Recognize(ctx context.Context, img image.Image, lang string) (string, error) {
	data, err := ocr.EncodePNG(img)
	if err != nil {
		return "", err
	}
	if lang != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, LanguageKey, lang)
	}

	text, err := resilience.ExecuteWithResult(c.breaker, func() (string, error) {
		var text string
		err := resilience.Retry(ctx, c.opts.Retry, func() error {
			resp, err := c.invoke(ctx, data)
			if err != nil {
				return apperrors.FromGRPCError(err)
			}
			text = resp.GetValue()
			return nil
		})
		return text, err
	})
	switch {
	case err == nil:
		return text, nil
	case ctx.Err() != nil:
		return "", ctx.Err()
	case errors.Is(err, resilience.ErrOpen):
		return "", apperrors.Wrap(err, apperrors.Unavailable, "ocr service circuit open")
	default:
		return "", err
	}
}

func (c *Client) invoke(ctx context.Context, data []byte) (*wrapperspb.StringValue, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	resp := new(wrapperspb.StringValue)
	if err := c.conn.Invoke(ctx, RecognizeMethod, wrapperspb.Bytes(data), resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Ping reports whether the remote service is serving.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return apperrors.FromGRPCError(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return apperrors.Newf(apperrors.Unavailable, "ocr service status %s", resp.GetStatus())
	}
	return nil
}

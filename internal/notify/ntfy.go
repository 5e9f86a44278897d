package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/knakamura13/twitch-open-cv/internal/errors"
	"github.com/knakamura13/twitch-open-cv/internal/resilience"
)

const (
	userAgent          = "betwatch/0.1"
	defaultNtfyServer  = "https://ntfy.sh/"
	defaultNtfyTimeout = 10 * time.Second
)

// Ntfy posts alerts to an ntfy topic.
type Ntfy struct {
	endpoint string
	client   *http.Client
	breaker  *resilience.Breaker
	Tags     []string
	Priority string
}

// NewNtfy builds a notifier for topic, which is either a bare topic name on
// ntfy.sh or a full URL.
func NewNtfy(topic string, timeout time.Duration) *Ntfy {
	topic = strings.TrimSpace(topic)
	if !strings.Contains(topic, "://") {
		topic = defaultNtfyServer + topic
	}
	if timeout <= 0 {
		timeout = defaultNtfyTimeout
	}
	return &Ntfy{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		breaker:  resilience.New(resilience.NotifyConfig("ntfy")),
		Tags:     []string{"betwatch", "moneybag"},
		Priority: "high",
	}
}

// Endpoint returns the resolved topic URL.
func (n *Ntfy) Endpoint() string { return n.endpoint }

// Breaker returns the circuit breaker guarding the topic.
func (n *Ntfy) Breaker() *resilience.Breaker { return n.breaker }

// Notify implements Notifier.
func (n *Ntfy) Notify(ctx context.Context, title, message string) error {
	err := n.breaker.Execute(func() error { return n.send(ctx, title, message) })
	if err != nil {
		return apperrors.Wrap(err, apperrors.NotifyFailed, "ntfy").WithMetadata("endpoint", n.endpoint)
	}
	return nil
}

func (n *Ntfy) send(ctx context.Context, title, message string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if title != "" {
		req.Header.Set("Title", title)
	}
	if len(n.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(n.Tags, ","))
	}
	if n.Priority != "" && n.Priority != "default" {
		req.Header.Set("Priority", n.Priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

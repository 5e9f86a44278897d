// Package zmqpub publishes CBOR-encoded watcher events on a ZeroMQ PUB socket.
// Each message has two frames: the event kind (used as the topic) and the
// CBOR payload.
package zmqpub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pebbe/zmq4"

	"github.com/knakamura13/twitch-open-cv/internal/events"
)

const recvTimeout = 250 * time.Millisecond

// Publisher owns a bound PUB socket.
type Publisher struct {
	mu       sync.Mutex
	sock     *zmq4.Socket
	endpoint string
}

// NewPublisher binds a PUB socket at endpoint, e.g. "tcp://*:5556".
func NewPublisher(endpoint string) (*Publisher, error) {
	sock, err := zmq4.NewSocket(zmq4.PUB)
	if err != nil {
		return nil, err
	}
	if err := sock.SetLinger(0); err != nil {
		_ = sock.Close()
		return nil, err
	}
	if err := sock.Bind(endpoint); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("bind %s: %w", endpoint, err)
	}
	slog.Info("event publisher bound", "endpoint", endpoint)
	return &Publisher{sock: sock, endpoint: endpoint}, nil
}

// Publish implements events.Sink.
func (p *Publisher) Publish(ev events.Event) error {
	data, err := events.EncodeCBOR(ev)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sock == nil {
		return errors.New("publisher closed")
	}
	_, err = p.sock.SendMessage(string(ev.Kind), data)
	return err
}

// Close closes the socket.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sock == nil {
		return nil
	}
	err := p.sock.Close()
	p.sock = nil
	return err
}

// Subscribe connects a SUB socket to endpoint and streams decoded events of
// the given kinds (all kinds when none are given) until ctx is done.
func Subscribe(ctx context.Context, endpoint string, kinds ...events.Kind) (<-chan events.Event, error) {
	sock, err := zmq4.NewSocket(zmq4.SUB)
	if err != nil {
		return nil, err
	}
	if err := sock.SetRcvtimeo(recvTimeout); err != nil {
		_ = sock.Close()
		return nil, err
	}
	if len(kinds) == 0 {
		err = sock.SetSubscribe("")
	}
	for _, k := range kinds {
		if err = sock.SetSubscribe(string(k)); err != nil {
			break
		}
	}
	if err != nil {
		_ = sock.Close()
		return nil, err
	}
	if err := sock.Connect(endpoint); err != nil {
		_ = sock.Close()
		return nil, fmt.Errorf("connect %s: %w", endpoint, err)
	}

	out := make(chan events.Event, events.DefaultBuffer)
	go func() {
		defer close(out)
		defer sock.Close()

		for ctx.Err() == nil {
			parts, err := sock.RecvMessageBytes(0)
			if err != nil {
				// EAGAIN on receive timeout; loop to re-check ctx.
				continue
			}
			if len(parts) != 2 {
				slog.Debug("zmq subscriber skipped message", "frames", len(parts))
				continue
			}
			ev, err := events.DecodeCBOR(parts[1])
			if err != nil {
				slog.Debug("zmq subscriber decode failed", "error", err)
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

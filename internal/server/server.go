package server

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/knakamura13/twitch-open-cv/internal/events"
	"github.com/knakamura13/twitch-open-cv/internal/orchestrator"
	"github.com/knakamura13/twitch-open-cv/internal/orchestrator/history"
	"github.com/knakamura13/twitch-open-cv/internal/resilience"
	"github.com/knakamura13/twitch-open-cv/internal/trace"
)

// Watcher is the read side of the orchestrator.
type Watcher interface {
	Snapshot() orchestrator.Snapshot
	LatestCrop() image.Image
	History() *history.Store
}

// Message types.
type Message struct {
	Type string `json:"type"`
}

type SnapshotMessage struct {
	Type     string                `json:"type"`
	Snapshot orchestrator.Snapshot `json:"snapshot"`
}

type EventMessage struct {
	Type  string       `json:"type"`
	Event events.Event `json:"event"`
}

type RateLimitedMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
	now        func() time.Time
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if r.now != nil {
		now = r.now()
	}
	cutoff := now.Add(-RateLimitWindow)

	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}
	r.timestamps = append(r.timestamps, now)
	return true
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	watcher  Watcher
	bus      *events.Bus
	breakers []*resilience.Breaker

	mu    sync.RWMutex
	conns map[*websocket.Conn]struct{}
}

// New creates a server. bus may be nil, in which case /ws only answers
// snapshot requests.
func New(w Watcher, bus *events.Bus) *Server {
	return &Server{
		watcher: w,
		bus:     bus,
		conns:   make(map[*websocket.Conn]struct{}),
	}
}

// WithBreakers exposes the given circuit breakers on /api/breakers.
func (s *Server) WithBreakers(bs ...*resilience.Breaker) *Server {
	s.breakers = append(s.breakers, bs...)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/crop.png", s.handleCrop)
	mux.HandleFunc("GET /api/breakers", s.handleBreakers)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("status server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Clients returns the number of open WebSocket connections.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if !s.watcher.Snapshot().Connected {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "disconnected"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.watcher.Snapshot())
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	entries := s.watcher.History().Since(time.Now().Add(-HistoryWindow))
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleBreakers(w http.ResponseWriter, _ *http.Request) {
	out := make([]resilience.Counts, 0, len(s.breakers))
	for _, b := range s.breakers {
		out = append(out, b.Counts())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCrop(w http.ResponseWriter, r *http.Request) {
	img := s.watcher.LatestCrop()
	if img == nil || img.Bounds().Empty() {
		http.Error(w, "no frame yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, img); err != nil {
		trace.Logger(r.Context()).Warn("encode crop", "error", err)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := trace.Logger(ctx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	// Single writer per connection.
	out := make(chan any, EventBuffer)
	out <- SnapshotMessage{Type: "snapshot", Snapshot: s.watcher.Snapshot()}
	go s.writeLoop(ctx, cancel, conn, out)

	if s.bus != nil {
		ch, unsubscribe := s.bus.Subscribe(EventBuffer)
		defer unsubscribe()
		go forwardEvents(ctx, ch, out)
	}

	rl := &rateLimiter{}
	for {
		var base Message
		if err := wsjson.Read(ctx, conn, &base); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		var reply any
		switch {
		case !rl.allow():
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			reply = RateLimitedMessage{Type: "error", Message: "rate limit exceeded"}
		case base.Type == "snapshot":
			reply = SnapshotMessage{Type: "snapshot", Snapshot: s.watcher.Snapshot()}
		default:
			continue
		}

		select {
		case out <- reply:
		case <-ctx.Done():
			return
		}
	}
}

func forwardEvents(ctx context.Context, ch <-chan events.Event, out chan<- any) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			select {
			case out <- EventMessage{Type: "event", Event: ev}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out <-chan any) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-out:
			wctx, wcancel := context.WithTimeout(ctx, WriteTimeout)
			err := wsjson.Write(wctx, conn, msg)
			wcancel()
			if err != nil {
				trace.Logger(ctx).Debug("websocket write error", "error", err)
				return
			}
		}
	}
}

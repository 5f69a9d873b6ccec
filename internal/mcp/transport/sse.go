package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"toolhost/internal/shared/observability"
	"toolhost/internal/shared/util"

	"github.com/google/uuid"
)

const sseKeepAlive = 30 * time.Second

// SSE serves the legacy MCP HTTP transport: clients hold a GET /sse event
// stream and POST messages to /message?session_id=.... Responses arrive on
// the stream. Closing the stream cancels that session's calls.
type SSE struct {
	address string
	opts    Options
	proto   protocol

	mu         sync.Mutex
	server     *http.Server
	listener   net.Listener
	dispatcher Dispatcher

	sessions   map[string]*sseSession
	sessionsMu sync.RWMutex

	requestLimiter    *util.LimiterRegistry
	connectionLimiter *util.LimiterRegistry
}

type sseSession struct {
	id        string
	messages  chan any
	createdAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	calls     *inflight
}

func NewSSE(address string, opts Options) (*SSE, error) {
	opts = opts.withDefaults()
	s := &SSE{
		address:  address,
		opts:     opts,
		proto:    protocol{opts: opts},
		sessions: make(map[string]*sseSession),
	}

	if opts.RateLimit.Enabled {
		s.requestLimiter = util.NewLimiterRegistry(util.PerMinute(opts.RateLimit.SSERequestsPerMinute), opts.RateLimit.Burst, 10*time.Minute)
		s.connectionLimiter = util.NewLimiterRegistry(util.PerMinute(opts.RateLimit.SSEConnectionsPerMinute), 5, 10*time.Minute)
	}

	return s, nil
}

// Handler exposes the routes without binding a listener.
func (s *SSE) Handler(d Dispatcher) http.Handler {
	s.mu.Lock()
	s.dispatcher = d
	s.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/sse", s.handleSSE)
	mux.HandleFunc("/message", s.handleMessage)
	return mux
}

func (s *SSE) Start(ctx context.Context, d Dispatcher) error {
	if ctx == nil {
		ctx = context.Background()
	}
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.address, err)
	}

	server := &http.Server{
		Handler:           s.Handler(d),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.server = server
	s.listener = listener
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.opts.Logger.Info("mcp sse server listening", "address", listener.Addr().String())
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return s.Stop()
	}
}

// Addr reports the bound address once Start is listening.
func (s *SSE) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.address
	}
	return s.listener.Addr().String()
}

func (s *SSE) Stop() error {
	s.sessionsMu.Lock()
	for _, session := range s.sessions {
		session.cancel()
	}
	s.sessionsMu.Unlock()

	s.requestLimiter.Close()
	s.connectionLimiter.Close()

	s.mu.Lock()
	server := s.server
	s.server = nil
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

func (s *SSE) current() Dispatcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatcher
}

func (s *SSE) sessionCount() int {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return len(s.sessions)
}

func (s *SSE) handleSSE(w http.ResponseWriter, r *http.Request) {
	if s.connectionLimiter != nil && !s.connectionLimiter.Allow(util.GetClientIP(r)) {
		observability.RateLimitedTotal.WithLabelValues("sse").Inc()
		w.Header().Set("Retry-After", "60")
		http.Error(w, "Too many connections", http.StatusTooManyRequests)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ctx, cancel := context.WithCancel(r.Context())
	session := &sseSession{
		id:        uuid.New().String(),
		messages:  make(chan any, 32),
		createdAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		calls:     newInflight(),
	}

	s.sessionsMu.Lock()
	s.sessions[session.id] = session
	s.sessionsMu.Unlock()

	defer func() {
		s.sessionsMu.Lock()
		delete(s.sessions, session.id)
		s.sessionsMu.Unlock()
		if n := session.calls.cancelAll(); n > 0 {
			s.opts.Logger.Debug("sse session closed with calls in flight", "session_id", session.id, "cancelled", n)
		}
		cancel()
	}()

	fmt.Fprintf(w, "event: endpoint\ndata: /message?session_id=%s\n\n", session.id)
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case msg := <-session.messages:
			data, err := json.Marshal(msg)
			if err != nil {
				s.opts.Logger.Warn("sse encode failed", "session_id", session.id, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", string(data))
			flusher.Flush()
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			fmt.Fprintf(w, ":\n\n")
			flusher.Flush()
		}
	}
}

func (s *SSE) handleMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "Missing session_id", http.StatusBadRequest)
		return
	}

	s.sessionsMu.RLock()
	session, ok := s.sessions[sessionID]
	s.sessionsMu.RUnlock()
	if !ok {
		http.Error(w, "Invalid session_id", http.StatusNotFound)
		return
	}

	if s.requestLimiter != nil && !s.requestLimiter.Allow(util.GetClientIP(r)) {
		observability.RateLimitedTotal.WithLabelValues("sse").Inc()
		w.Header().Set("Retry-After", "1")
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil || raw == nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	d := s.current()
	if d == nil {
		http.Error(w, "Server not ready", http.StatusServiceUnavailable)
		return
	}

	if isRPCMessage(raw) {
		req := parseRPCRequest(raw)
		if id, ok := req.cancelledRequestID(); ok {
			session.calls.cancel(id)
			w.WriteHeader(http.StatusAccepted)
			return
		}
	}

	callCtx, release := session.calls.track(session.ctx, raw["id"])
	go func() {
		defer release()
		resp := s.process(callCtx, d, raw)
		if resp == nil {
			return
		}
		select {
		case session.messages <- resp:
		case <-session.ctx.Done():
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}

func (s *SSE) process(ctx context.Context, d Dispatcher, raw map[string]any) any {
	if !isRPCMessage(raw) {
		req := parseLegacyToolRequest(raw)
		if req.Tool == "" {
			return nil
		}
		return s.proto.handleLegacy(ctx, d, req)
	}
	resp := s.proto.handleRPC(ctx, d, parseRPCRequest(raw))
	if resp == nil {
		return nil
	}
	return resp
}

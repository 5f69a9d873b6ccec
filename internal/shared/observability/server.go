package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"toolhost/internal/shared/util"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthFunc contributes details to the /health response.
type HealthFunc func(ctx context.Context) map[string]any

// Server exposes /metrics and /health.
type Server struct {
	addr    string
	health  HealthFunc
	logger  *slog.Logger
	started time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

func NewServer(addr string, health HealthFunc, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:    addr,
		health:  health,
		logger:  logger,
		started: time.Now(),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]any{
			"status":         "up",
			"uptime_seconds": int64(time.Since(s.started).Seconds()),
			"heap_alloc_mb":  util.GetHeapAllocMB(),
		}
		if s.health != nil {
			for k, v := range s.health(r.Context()) {
				status[k] = v
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if status["status"] != "up" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})
	return mux
}

// Start serves until ctx is done, then shuts down.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.server = server
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("observability server starting", "addr", listener.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	}
}

// Addr reports the bound address once Start is listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

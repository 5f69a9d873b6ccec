package transport

import (
	"bufio"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"os"
	"sync"

	"toolhost/internal/mcp/contracts"
	"toolhost/internal/shared/observability"
	"toolhost/internal/shared/util"

	"github.com/sourcegraph/conc/pool"
)

// Stdio speaks newline-delimited JSON-RPC and the legacy {id, tool,
// arguments} protocol. Calls run concurrently; responses may be written out
// of request order.
type Stdio struct {
	opts    Options
	proto   protocol
	in      io.Reader
	out     io.Writer
	limiter *util.Limiter
	calls   *inflight

	writeMu sync.Mutex
	encoder *json.Encoder
	writer  *bufio.Writer

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewStdio builds a stdio transport. Nil in or out default to the process
// streams.
func NewStdio(opts Options, in io.Reader, out io.Writer) (*Stdio, error) {
	opts = opts.withDefaults()
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	s := &Stdio{
		opts:  opts,
		proto: protocol{opts: opts},
		in:    in,
		out:   out,
		calls: newInflight(),
	}
	if opts.RateLimit.Enabled {
		s.limiter = util.NewLimiter(util.PerMinute(opts.RateLimit.RequestsPerMinute), opts.RateLimit.Burst)
	}
	s.writer = bufio.NewWriter(out)
	s.encoder = json.NewEncoder(s.writer)
	return s, nil
}

func (s *Stdio) Start(ctx context.Context, d Dispatcher) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if d == nil {
		return contracts.ToolError{Code: contracts.ErrorInvalidArgument, Message: "stdio dispatcher is required"}
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		<-ctx.Done()
		return ctx.Err()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.running = false
		s.cancel = nil
		s.mu.Unlock()
	}()

	err := s.serve(ctx, d)
	if err != nil && !stderrors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Stop cancels the serve loop and every in-flight call.
func (s *Stdio) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.calls.cancelAll()
	return nil
}

func (s *Stdio) serve(ctx context.Context, d Dispatcher) error {
	p := pool.New()
	if s.opts.MaxConcurrent > 0 {
		p = p.WithMaxGoroutines(s.opts.MaxConcurrent)
	}
	defer func() {
		if n := s.calls.cancelAll(); n > 0 {
			s.opts.Logger.Debug("cancelled in-flight calls", "count", n)
		}
		p.Wait()
	}()

	decoder := json.NewDecoder(bufio.NewReader(s.in))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// A syntax error leaves the decoder unable to find the next message,
		// so only that ends the loop. Well-formed non-objects are rejected.
		var msg json.RawMessage
		if err := decoder.Decode(&msg); err != nil {
			if stderrors.Is(err, io.EOF) {
				return nil
			}
			s.write(rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: codeParseError, Message: "Parse error"}})
			return err
		}
		var raw map[string]any
		if err := json.Unmarshal(msg, &raw); err != nil || raw == nil {
			s.write(rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: codeInvalidRequest, Message: "Invalid Request"}})
			continue
		}

		if s.limiter != nil && !s.limiter.Allow(1) {
			observability.RateLimitedTotal.WithLabelValues("stdio").Inc()
			s.write(rpcResponse{
				JSONRPC: "2.0",
				ID:      raw["id"],
				Error:   &rpcError{Code: codeRateLimited, Message: "Rate limit exceeded"},
			})
			continue
		}

		if isRPCMessage(raw) {
			req := parseRPCRequest(raw)
			if id, ok := req.cancelledRequestID(); ok {
				if s.calls.cancel(id) {
					s.opts.Logger.Debug("call cancelled by client", "request_id", id)
				}
				continue
			}
			if req.Method != "tools/call" {
				if resp := s.proto.handleRPC(ctx, d, req); resp != nil {
					s.write(resp)
				}
				continue
			}
			callCtx, release := s.calls.track(ctx, req.ID)
			p.Go(func() {
				defer release()
				if resp := s.proto.handleRPC(callCtx, d, req); resp != nil {
					s.write(resp)
				}
			})
			continue
		}

		req := parseLegacyToolRequest(raw)
		callCtx, release := s.calls.track(ctx, req.ID)
		p.Go(func() {
			defer release()
			s.write(s.proto.handleLegacy(callCtx, d, req))
		})
	}
}

func (s *Stdio) write(v any) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.encoder.Encode(v); err != nil {
		s.opts.Logger.Warn("stdio encode failed", "error", err)
		return
	}
	if err := s.writer.Flush(); err != nil {
		s.opts.Logger.Warn("stdio flush failed", "error", err)
	}
}

package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"toolhost/internal/mcp/schema"
	"toolhost/internal/mcp/validate"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// SDK serves tools through the official MCP Go SDK, over stdio when address
// is empty and over streamable HTTP otherwise.
type SDK struct {
	opts    Options
	address string
	server  *mcp.Server

	mu         sync.Mutex
	dispatcher Dispatcher
	registered map[string]bool
	httpServer *http.Server
}

func NewSDK(opts Options, address string) (*SDK, error) {
	opts = opts.withDefaults()
	server := mcp.NewServer(&mcp.Implementation{
		Name:    opts.ServerName,
		Version: opts.ServerVersion,
	}, nil)
	return &SDK{
		opts:       opts,
		address:    address,
		server:     server,
		registered: make(map[string]bool),
	}, nil
}

// Server exposes the underlying SDK server, mainly for in-memory transports.
func (s *SDK) Server() *mcp.Server {
	return s.server
}

// Sync makes the SDK's tool list match d. The SDK notifies connected clients
// of the change.
func (s *SDK) Sync(d Dispatcher) error {
	if d == nil {
		return fmt.Errorf("sdk dispatcher is required")
	}
	defs := d.ListTools()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatcher = d

	want := make(map[string]bool, len(defs))
	for _, def := range defs {
		want[def.Name] = true
	}
	stale := make([]string, 0)
	for name := range s.registered {
		if !want[name] {
			stale = append(stale, name)
		}
	}
	if len(stale) > 0 {
		s.server.RemoveTools(stale...)
		for _, name := range stale {
			delete(s.registered, name)
		}
	}

	for _, def := range defs {
		tool, err := sdkTool(def)
		if err != nil {
			return err
		}
		s.server.AddTool(tool, s.handler(def.Name))
		s.registered[def.Name] = true
	}
	s.opts.Logger.Debug("sdk tools synced", "tools", len(defs), "removed", len(stale))
	return nil
}

func (s *SDK) Start(ctx context.Context, d Dispatcher) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.Sync(d); err != nil {
		return err
	}

	if s.address == "" {
		s.opts.Logger.Info("mcp sdk server running on stdio")
		err := s.server.Run(ctx, &mcp.StdioTransport{})
		if err != nil && ctx.Err() != nil {
			return nil
		}
		return err
	}

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.address, err)
	}
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.server }, nil)
	httpServer := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.opts.Logger.Info("mcp streamable http server listening", "address", listener.Addr().String())
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
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

func (s *SDK) Stop() error {
	s.mu.Lock()
	httpServer := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()
	if httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}

func (s *SDK) current() Dispatcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatcher
}

func (s *SDK) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var raw []byte
		if req != nil && req.Params != nil {
			raw = req.Params.Arguments
		}
		args, err := validate.DecodeRaw(raw)
		if err != nil {
			return errorResult(err), nil
		}
		d := s.current()
		if d == nil {
			return nil, fmt.Errorf("sdk dispatcher is not configured")
		}
		out, err := d.CallTool(ctx, name, args)
		if err != nil {
			return errorResult(err), nil
		}
		result := &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: resultText(out)}},
		}
		if structured, ok := out.(map[string]any); ok {
			result.StructuredContent = structured
		}
		return result, nil
	}
}

func errorResult(err error) *mcp.CallToolResult {
	toolErr := normalizeToolError(err)
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%s: %s", toolErr.Code, toolErr.Message)}},
	}
}

func sdkTool(def schema.ToolDefinition) (*mcp.Tool, error) {
	input, err := schema.ToJSONSchema(def.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("tool %q: %w", def.Name, err)
	}
	return &mcp.Tool{
		Name:        def.Name,
		Description: def.Description,
		InputSchema: input,
	}, nil
}

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"toolhost/internal/mcp/schema"
)

// MockAdapter implements transport.Adapter for end-to-end testing.
type MockAdapter struct {
	mu       sync.Mutex
	started  bool
	ready    chan struct{}
	requests chan mockRequest
}

type mockRequest struct {
	list bool
	tool string
	args map[string]any
	res  chan mockResponse
}

type mockResponse struct {
	result any
	tools  []schema.ToolDefinition
	err    error
}

func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		ready:    make(chan struct{}),
		requests: make(chan mockRequest),
	}
}

func (m *MockAdapter) Start(ctx context.Context, d Dispatcher) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("mock adapter already started")
	}
	m.started = true
	close(m.ready)
	m.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-m.requests:
			if req.list {
				req.res <- mockResponse{tools: d.ListTools()}
				continue
			}
			go func(req mockRequest) {
				res, err := d.CallTool(ctx, req.tool, req.args)
				req.res <- mockResponse{result: res, err: err}
			}(req)
		}
	}
}

func (m *MockAdapter) Stop() error {
	return nil
}

// Ready is closed once Start has begun serving.
func (m *MockAdapter) Ready() <-chan struct{} {
	return m.ready
}

// Call simulates a tool call from a client.
func (m *MockAdapter) Call(ctx context.Context, tool string, args map[string]any) (any, error) {
	resChan := make(chan mockResponse, 1)
	select {
	case m.requests <- mockRequest{tool: tool, args: args, res: resChan}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case resp := <-resChan:
		return resp.result, resp.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CallJSON round-trips args through JSON first, so numbers arrive as float64
// the way a real client would send them.
func (m *MockAdapter) CallJSON(ctx context.Context, tool string, args map[string]any) (any, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	var mapArgs map[string]any
	if err := json.Unmarshal(data, &mapArgs); err != nil {
		return nil, err
	}
	return m.Call(ctx, tool, mapArgs)
}

// ListTools asks the served dispatcher for its current listing.
func (m *MockAdapter) ListTools(ctx context.Context) ([]schema.ToolDefinition, error) {
	resChan := make(chan mockResponse, 1)
	select {
	case m.requests <- mockRequest{list: true, res: resChan}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case resp := <-resChan:
		return resp.tools, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

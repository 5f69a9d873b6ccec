package transport

import (
	"bytes"
	"context"
	"log/slog"

	"toolhost/internal/mcp/contracts"
	"toolhost/internal/mcp/schema"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

type fakeDispatcher struct {
	tools   []schema.ToolDefinition
	started chan string
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{
		tools: []schema.ToolDefinition{
			{Name: "echo", Description: "Echo text", InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"text": map[string]any{"type": "string"}},
			}},
			{Name: "structured", InputSchema: map[string]any{"type": "object", "properties": map[string]any{}}},
			{Name: "block", InputSchema: map[string]any{"type": "object", "properties": map[string]any{}}},
		},
		started: make(chan string, 8),
	}
}

func (f *fakeDispatcher) ListTools() []schema.ToolDefinition {
	return append([]schema.ToolDefinition(nil), f.tools...)
}

func (f *fakeDispatcher) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "echo":
		text, _ := args["text"].(string)
		return text, nil
	case "structured":
		return map[string]any{"count": float64(2)}, nil
	case "block":
		f.started <- name
		<-ctx.Done()
		return nil, contracts.Cancelled(name)
	default:
		return nil, contracts.NotFound(name)
	}
}

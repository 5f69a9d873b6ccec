// Package transport carries tool listings and tool calls between protocol
// clients and a Dispatcher.
package transport

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"toolhost/internal/core/config"
	"toolhost/internal/core/errors"
	"toolhost/internal/mcp/contracts"
	"toolhost/internal/mcp/schema"
)

// Dispatcher is the session-facing surface every transport serves. It must
// reflect the current policy at call time.
type Dispatcher interface {
	ListTools() []schema.ToolDefinition
	CallTool(ctx context.Context, name string, args map[string]any) (any, error)
}

type Adapter interface {
	Start(ctx context.Context, d Dispatcher) error
	Stop() error
}

// Syncer is implemented by transports that keep their own copy of the tool
// list and must be told when it changes.
type Syncer interface {
	Sync(d Dispatcher) error
}

type Options struct {
	ServerName    string
	ServerVersion string
	RateLimit     config.MCPRateLimit
	MaxConcurrent int
	Logger        *slog.Logger
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.ServerName) == "" {
		o.ServerName = contracts.ServerName
	}
	if strings.TrimSpace(o.ServerVersion) == "" {
		o.ServerVersion = "dev"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeRateLimited    = -32005
)

type toolRequest struct {
	ID   any            `json:"id,omitempty"`
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

type toolResponse struct {
	ID     any                  `json:"id,omitempty"`
	OK     bool                 `json:"ok"`
	Result any                  `json:"result,omitempty"`
	Error  *contracts.ToolError `json:"error,omitempty"`
}

type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc,omitempty"`
	ID      any            `json:"id,omitempty"`
	Method  string         `json:"method,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id,omitempty"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func isRPCMessage(raw map[string]any) bool {
	method, _ := raw["method"].(string)
	jsonrpc, _ := raw["jsonrpc"].(string)
	return method != "" && jsonrpc != ""
}

func parseRPCRequest(raw map[string]any) rpcRequest {
	req := rpcRequest{Params: map[string]any{}}
	req.JSONRPC, _ = raw["jsonrpc"].(string)
	req.Method, _ = raw["method"].(string)
	if id, ok := raw["id"]; ok {
		req.ID = id
	}
	if params, ok := raw["params"].(map[string]any); ok {
		req.Params = params
	}
	return req
}

// parseLegacyToolRequest accepts {id, tool, arguments} and the older
// {id, tool, args} spelling.
func parseLegacyToolRequest(raw map[string]any) toolRequest {
	req := toolRequest{}
	if id, ok := raw["id"]; ok {
		req.ID = id
	}
	if tool, ok := raw["tool"].(string); ok {
		req.Tool = tool
	}
	if args, ok := raw["arguments"].(map[string]any); ok {
		req.Args = args
	} else if args, ok := raw["args"].(map[string]any); ok {
		req.Args = args
	}
	if req.Args == nil {
		req.Args = map[string]any{}
	}
	return req
}

func (r rpcRequest) isNotification() bool {
	return r.ID == nil
}

// cancelledRequestID extracts params.requestId from notifications/cancelled.
func (r rpcRequest) cancelledRequestID() (any, bool) {
	if r.Method != "notifications/cancelled" {
		return nil, false
	}
	id, ok := r.Params["requestId"]
	return id, ok && id != nil
}

type protocol struct {
	opts Options
}

// handleRPC answers one JSON-RPC request. It returns nil for notifications.
func (p protocol) handleRPC(ctx context.Context, d Dispatcher, req rpcRequest) *rpcResponse {
	if req.isNotification() || strings.HasPrefix(req.Method, "notifications/") {
		return nil
	}

	resp := &rpcResponse{JSONRPC: "2.0", ID: req.ID}
	switch req.Method {
	case "initialize":
		resp.Result = map[string]any{
			"protocolVersion": contracts.ProtocolVersion,
			"capabilities": map[string]any{
				"tools": map[string]any{"listChanged": true},
			},
			"serverInfo": map[string]any{
				"name":    p.opts.ServerName,
				"version": p.opts.ServerVersion,
			},
		}
	case "ping":
		resp.Result = map[string]any{}
	case "tools/list":
		defs := d.ListTools()
		tools := make([]map[string]any, 0, len(defs))
		for _, def := range defs {
			tools = append(tools, map[string]any{
				"name":        def.Name,
				"description": def.Description,
				"inputSchema": def.InputSchema,
			})
		}
		resp.Result = map[string]any{"tools": tools}
	case "tools/call":
		name, _ := req.Params["name"].(string)
		if strings.TrimSpace(name) == "" {
			resp.Error = &rpcError{Code: codeInvalidParams, Message: "params.name is required"}
			break
		}
		args, _ := req.Params["arguments"].(map[string]any)
		if args == nil {
			args = map[string]any{}
		}
		result, err := d.CallTool(ctx, name, args)
		resp.Result = toolCallResult(result, err)
	default:
		resp.Error = &rpcError{Code: codeMethodNotFound, Message: "Method not found"}
	}
	return resp
}

func (p protocol) handleLegacy(ctx context.Context, d Dispatcher, req toolRequest) toolResponse {
	resp := toolResponse{ID: req.ID}
	if strings.TrimSpace(req.Tool) == "" {
		toolErr := contracts.ToolError{Code: contracts.ErrorInvalidArgument, Message: "tool is required"}
		resp.Error = &toolErr
		return resp
	}
	result, err := d.CallTool(ctx, req.Tool, req.Args)
	if err != nil {
		toolErr := normalizeToolError(err)
		resp.Error = &toolErr
		return resp
	}
	resp.OK = true
	resp.Result = result
	return resp
}

// toolCallResult shapes a call outcome as an MCP tools/call result. Failures
// are reported in-band with isError so the client model can see them.
func toolCallResult(result any, err error) map[string]any {
	if err != nil {
		toolErr := normalizeToolError(err)
		return map[string]any{
			"isError": true,
			"content": []map[string]any{
				{"type": "text", "text": fmt.Sprintf("%s: %s", toolErr.Code, toolErr.Message)},
			},
		}
	}
	out := map[string]any{
		"isError": false,
		"content": []map[string]any{
			{"type": "text", "text": resultText(result)},
		},
	}
	if structured, ok := result.(map[string]any); ok {
		out["structuredContent"] = structured
	}
	return out
}

func resultText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return mustJSONText(v)
}

func mustJSONText(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func normalizeToolError(err error) contracts.ToolError {
	var toolErr contracts.ToolError
	if stderrors.As(err, &toolErr) {
		return toolErr
	}
	if errors.IsCode(err, errors.CodeValidationError) {
		return contracts.ToolError{Code: contracts.ErrorInvalidArgument, Message: err.Error()}
	}
	return contracts.ToolError{Code: contracts.ErrorInternal, Message: err.Error()}
}

// inflight tracks cancellable calls by request id.
type inflight struct {
	mu    sync.Mutex
	calls map[string]*inflightCall
}

type inflightCall struct {
	cancel context.CancelFunc
}

func newInflight() *inflight {
	return &inflight{calls: make(map[string]*inflightCall)}
}

func requestKey(id any) string {
	switch v := id.(type) {
	case float64:
		return fmt.Sprintf("n:%g", v)
	case json.Number:
		return "n:" + v.String()
	case int, int64:
		return fmt.Sprintf("n:%d", v)
	default:
		return fmt.Sprintf("s:%v", v)
	}
}

// track derives a cancellable context for id. The returned release must be
// called when the call finishes.
func (f *inflight) track(parent context.Context, id any) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	if id == nil {
		return ctx, cancel
	}
	key := requestKey(id)
	call := &inflightCall{cancel: cancel}

	f.mu.Lock()
	f.calls[key] = call
	f.mu.Unlock()

	return ctx, func() {
		f.mu.Lock()
		if f.calls[key] == call {
			delete(f.calls, key)
		}
		f.mu.Unlock()
		cancel()
	}
}

func (f *inflight) cancel(id any) bool {
	key := requestKey(id)
	f.mu.Lock()
	call, ok := f.calls[key]
	if ok {
		delete(f.calls, key)
	}
	f.mu.Unlock()
	if ok {
		call.cancel()
	}
	return ok
}

func (f *inflight) cancelAll() int {
	f.mu.Lock()
	calls := f.calls
	f.calls = make(map[string]*inflightCall)
	f.mu.Unlock()
	for _, call := range calls {
		call.cancel()
	}
	return len(calls)
}

func (f *inflight) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

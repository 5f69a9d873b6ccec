package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sseClient struct {
	t        *testing.T
	base     string
	endpoint string
	reader   *bufio.Reader
	cancel   context.CancelFunc
}

func dialSSE(t *testing.T, base string) *sseClient {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/sse", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	t.Cleanup(func() {
		cancel()
		_ = resp.Body.Close()
	})

	c := &sseClient{t: t, base: base, reader: bufio.NewReader(resp.Body), cancel: cancel}
	event, data := c.next()
	require.Equal(t, "endpoint", event)
	require.True(t, strings.HasPrefix(data, "/message?session_id="))
	c.endpoint = data
	return c
}

// next reads one event, skipping keepalive comments.
func (c *sseClient) next() (string, string) {
	c.t.Helper()
	var event, data string
	for {
		line, err := c.reader.ReadString('\n')
		require.NoError(c.t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
}

func (c *sseClient) post(v any) int {
	c.t.Helper()
	body, err := json.Marshal(v)
	require.NoError(c.t, err)
	resp, err := http.Post(c.base+c.endpoint, "application/json", bytes.NewReader(body))
	require.NoError(c.t, err)
	_ = resp.Body.Close()
	return resp.StatusCode
}

func (c *sseClient) message() map[string]any {
	c.t.Helper()
	event, data := c.next()
	require.Equal(c.t, "message", event)
	var out map[string]any
	require.NoError(c.t, json.Unmarshal([]byte(data), &out))
	return out
}

func newSSEServer(t *testing.T, d Dispatcher) (*SSE, *httptest.Server) {
	t.Helper()
	s, err := NewSSE("127.0.0.1:0", Options{Logger: quietLogger()})
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler(d))
	t.Cleanup(func() {
		_ = s.Stop()
		srv.Close()
	})
	return s, srv
}

func TestSSE_CallRoundTrip(t *testing.T) {
	_, srv := newSSEServer(t, newFakeDispatcher())
	c := dialSSE(t, srv.URL)

	assert.Equal(t, http.StatusAccepted, c.post(rpc(1, "tools/list", nil)))
	resp := c.message()
	assert.Equal(t, float64(1), resp["id"])
	assert.Len(t, resp["result"].(map[string]any)["tools"], 3)

	assert.Equal(t, http.StatusAccepted, c.post(rpc(2, "tools/call", map[string]any{
		"name":      "echo",
		"arguments": map[string]any{"text": "over sse"},
	})))
	resp = c.message()
	result := resp["result"].(map[string]any)
	assert.Equal(t, "over sse", result["content"].([]any)[0].(map[string]any)["text"])

	assert.Equal(t, http.StatusAccepted, c.post(map[string]any{"id": "l1", "tool": "echo", "arguments": map[string]any{"text": "legacy"}}))
	resp = c.message()
	assert.Equal(t, true, resp["ok"])
	assert.Equal(t, "legacy", resp["result"])
}

func TestSSE_CancelNotification(t *testing.T) {
	d := newFakeDispatcher()
	_, srv := newSSEServer(t, d)
	c := dialSSE(t, srv.URL)

	c.post(rpc(9, "tools/call", map[string]any{"name": "block"}))
	select {
	case <-d.started:
	case <-time.After(2 * time.Second):
		t.Fatal("blocking call never started")
	}

	assert.Equal(t, http.StatusAccepted, c.post(rpc(nil, "notifications/cancelled", map[string]any{"requestId": 9})))
	resp := c.message()
	assert.Equal(t, float64(9), resp["id"])
	assert.Contains(t, resp["result"].(map[string]any)["content"].([]any)[0].(map[string]any)["text"], "cancelled")
}

func TestSSE_DisconnectCancelsSessionCalls(t *testing.T) {
	d := newFakeDispatcher()
	s, srv := newSSEServer(t, d)
	c := dialSSE(t, srv.URL)

	c.post(rpc(1, "tools/call", map[string]any{"name": "block"}))
	<-d.started
	c.cancel()

	assert.Eventually(t, func() bool { return s.sessionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestSSE_MessageErrors(t *testing.T) {
	_, srv := newSSEServer(t, newFakeDispatcher())

	resp, err := http.Get(srv.URL + "/message?session_id=x")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/message", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/message?session_id=unknown", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	c := dialSSE(t, srv.URL)
	resp, err = http.Post(srv.URL+c.endpoint, "application/json", strings.NewReader(`not json`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

package adapters

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"toolhost/internal/capability"
	"toolhost/internal/data/history"
	"toolhost/internal/mcp/contracts"
	"toolhost/internal/mcp/schema"
	"toolhost/internal/policy"
	"toolhost/internal/shared/observability"
	"toolhost/internal/tools"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func newRegistry(t *testing.T, extra ...tools.Tool) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry(quietLogger())
	require.NoError(t, tools.RegisterBuiltins(reg))
	require.NoError(t, reg.RegisterAll(extra...))
	return reg
}

func build(t *testing.T, reg *tools.Registry, ctx policy.Context, modes []policy.Mode, opts Options) *Adapter {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	set := capability.Resolve(reg, ctx, modes, opts.Logger)
	a, err := New(reg, set, opts)
	require.NoError(t, err)
	return a
}

func toolError(t *testing.T, err error) contracts.ToolError {
	t.Helper()
	var te contracts.ToolError
	require.True(t, stderrors.As(err, &te), "expected ToolError, got %T: %v", err, err)
	return te
}

func TestCall_PlaceholderEcho(t *testing.T) {
	a := build(t, newRegistry(t), policy.Context{Name: "full"}, nil, Options{})

	out, err := a.Call(context.Background(), "find_symbol", map[string]any{"query": "Foo"})
	require.NoError(t, err)
	assert.Equal(t, `Placeholder tool 'find_symbol' executed with parameters: {"path":".","query":"Foo"}`, out)
}

func TestCall_HiddenButRegisteredIsNotFound(t *testing.T) {
	reg := newRegistry(t)
	modes := []policy.Mode{{Name: "readonly", DisabledTools: []string{"delete_file"}}}
	a := build(t, reg, policy.Context{Name: "full"}, modes, Options{})

	assert.True(t, reg.Has("delete_file"))
	assert.Contains(t, reg.List(), "delete_file")
	assert.False(t, a.Has("delete_file"))

	_, err := a.Call(context.Background(), "delete_file", map[string]any{"path": "x"})
	te := toolError(t, err)
	assert.Equal(t, contracts.ErrorNotFound, te.Code)
	assert.Equal(t, "Tool 'delete_file' not found", te.Message)

	for _, def := range a.Tools() {
		assert.NotEqual(t, "delete_file", def.Name)
	}
}

func TestCall_InvalidArgumentNamesParameter(t *testing.T) {
	strict := tools.Contract{
		Name:       "strict",
		Parameters: []tools.Parameter{{Name: "count", Type: tools.TypeInteger, Required: true}},
		Executor: tools.ExecutorFunc(func(context.Context, *tools.RequestContext, tools.Arguments) (any, error) {
			t.Fatal("executor must not run on invalid input")
			return nil, nil
		}),
	}
	a := build(t, newRegistry(t, strict), policy.Context{}, nil, Options{})

	_, err := a.Call(context.Background(), "strict", map[string]any{})
	te := toolError(t, err)
	assert.Equal(t, contracts.ErrorInvalidArgument, te.Code)
	assert.Equal(t, "count", te.Details["parameter"])
	assert.Equal(t, "Invalid parameters for tool 'strict': Required parameter count is missing", te.Message)

	_, err = a.Call(context.Background(), "strict", map[string]any{"count": "many"})
	te = toolError(t, err)
	assert.Equal(t, contracts.ErrorInvalidArgument, te.Code)
}

func TestCall_ExecutorFailureAndPanicAreContained(t *testing.T) {
	failing := tools.Contract{
		Name: "failing",
		Executor: tools.ExecutorFunc(func(context.Context, *tools.RequestContext, tools.Arguments) (any, error) {
			return nil, fmt.Errorf("boom")
		}),
	}
	panicking := tools.Contract{
		Name: "panicking",
		Executor: tools.ExecutorFunc(func(context.Context, *tools.RequestContext, tools.Arguments) (any, error) {
			panic("kaboom")
		}),
	}
	a := build(t, newRegistry(t, failing, panicking), policy.Context{}, nil, Options{})

	_, err := a.Call(context.Background(), "failing", nil)
	te := toolError(t, err)
	assert.Equal(t, contracts.ErrorExecution, te.Code)
	assert.Contains(t, te.Message, "boom")

	_, err = a.Call(context.Background(), "panicking", nil)
	te = toolError(t, err)
	assert.Equal(t, contracts.ErrorExecution, te.Code)
	assert.Contains(t, te.Message, "kaboom")

	out, err := a.Call(context.Background(), "list_dir", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestCall_ConcurrentFailuresAreIsolated(t *testing.T) {
	flaky := tools.Contract{
		Name:       "flaky",
		Parameters: []tools.Parameter{{Name: "n", Type: tools.TypeInteger, Required: true}},
		Executor: tools.ExecutorFunc(func(_ context.Context, rc *tools.RequestContext, args tools.Arguments) (any, error) {
			n := args.Int("n")
			if n%2 == 0 {
				return nil, fmt.Errorf("even %d", n)
			}
			return fmt.Sprintf("%d:%s", n, rc.CallID), nil
		}),
	}
	a := build(t, newRegistry(t, flaky), policy.Context{}, nil, Options{})

	const calls = 50
	var wg sync.WaitGroup
	results := make([]any, calls)
	errs := make([]error, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = a.Call(context.Background(), "flaky", map[string]any{"n": i})
		}(i)
	}
	wg.Wait()

	seen := make(map[any]bool)
	for i := 0; i < calls; i++ {
		if i%2 == 0 {
			te := toolError(t, errs[i])
			assert.Equal(t, contracts.ErrorExecution, te.Code)
			assert.Contains(t, te.Message, fmt.Sprintf("even %d", i))
			continue
		}
		require.NoError(t, errs[i])
		assert.False(t, seen[results[i]], "call ids must be unique")
		seen[results[i]] = true
	}
}

func TestCall_FailingToolDoesNotAffectAnother(t *testing.T) {
	echo := tools.Contract{
		Name:       "echo",
		Parameters: []tools.Parameter{{Name: "text", Type: tools.TypeString, Required: true}},
		Executor: tools.ExecutorFunc(func(_ context.Context, _ *tools.RequestContext, args tools.Arguments) (any, error) {
			return args.String("text"), nil
		}),
	}
	broken := tools.Contract{
		Name: "broken",
		Executor: tools.ExecutorFunc(func(context.Context, *tools.RequestContext, tools.Arguments) (any, error) {
			return nil, fmt.Errorf("disk unavailable")
		}),
	}
	a := build(t, newRegistry(t, echo, broken), policy.Context{}, nil, Options{})

	const rounds = 25
	var wg sync.WaitGroup
	echoOut := make([]any, rounds)
	echoErr := make([]error, rounds)
	brokenErr := make([]error, rounds)
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			echoOut[i], echoErr[i] = a.Call(context.Background(), "echo", map[string]any{"text": fmt.Sprintf("m%d", i)})
		}(i)
		go func(i int) {
			defer wg.Done()
			_, brokenErr[i] = a.Call(context.Background(), "broken", nil)
		}(i)
	}
	wg.Wait()

	for i := 0; i < rounds; i++ {
		require.NoError(t, echoErr[i])
		assert.Equal(t, fmt.Sprintf("m%d", i), echoOut[i])
		te := toolError(t, brokenErr[i])
		assert.Equal(t, contracts.ErrorExecution, te.Code)
		assert.Contains(t, te.Message, "disk unavailable")
	}
}

func seriesCount(c prometheus.Collector) int {
	ch := make(chan prometheus.Metric, 4096)
	c.Collect(ch)
	close(ch)
	return len(ch)
}

func TestCall_UnknownNamesShareOneMetricSeries(t *testing.T) {
	a := build(t, newRegistry(t), policy.Context{}, nil, Options{})

	_, err := a.Call(context.Background(), "missing_0", nil)
	require.Error(t, err)
	counters := seriesCount(observability.ToolCallsTotal)
	histograms := seriesCount(observability.ToolCallDuration)

	for i := 1; i < 200; i++ {
		_, err := a.Call(context.Background(), fmt.Sprintf("missing_%d", i), nil)
		te := toolError(t, err)
		assert.Equal(t, contracts.ErrorNotFound, te.Code)
	}
	assert.Equal(t, counters, seriesCount(observability.ToolCallsTotal))
	assert.Equal(t, histograms, seriesCount(observability.ToolCallDuration))
}

func TestCall_TimeoutFromSettings(t *testing.T) {
	slow := tools.Contract{
		Name: "slow",
		Executor: tools.ExecutorFunc(func(ctx context.Context, _ *tools.RequestContext, _ tools.Arguments) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	}
	ctx := policy.Context{Name: "fast", Settings: map[string]any{"timeout": "50ms"}}
	a := build(t, newRegistry(t, slow), ctx, nil, Options{DefaultTimeout: time.Minute})
	assert.Equal(t, 50*time.Millisecond, a.Timeout())

	_, err := a.Call(context.Background(), "slow", nil)
	te := toolError(t, err)
	assert.Equal(t, contracts.ErrorTimeout, te.Code)
	assert.Equal(t, "Operation timed out after 0.05 seconds", te.Message)
}

func TestCall_CallerCancellation(t *testing.T) {
	started := make(chan struct{})
	blocking := tools.Contract{
		Name: "blocking",
		Executor: tools.ExecutorFunc(func(ctx context.Context, _ *tools.RequestContext, _ tools.Arguments) (any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	}
	a := build(t, newRegistry(t, blocking), policy.Context{}, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	_, err := a.Call(ctx, "blocking", nil)
	te := toolError(t, err)
	assert.Equal(t, contracts.ErrorCancelled, te.Code)
}

func TestCall_RequestContextCarriesSessionAndSettings(t *testing.T) {
	var got *tools.RequestContext
	inspect := tools.Contract{
		Name: "inspect",
		Executor: tools.ExecutorFunc(func(_ context.Context, rc *tools.RequestContext, _ tools.Arguments) (any, error) {
			got = rc
			return "ok", nil
		}),
	}
	ctx := policy.Context{Name: "dev", Settings: map[string]any{"verbosity": "low"}}
	modes := []policy.Mode{{Name: "loud", Settings: map[string]any{"verbosity": "high"}}}
	a := build(t, newRegistry(t, inspect), ctx, modes, Options{Session: tools.Session{Project: "demo", Root: "/src/demo"}})

	_, err := a.Call(context.Background(), "inspect", nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "inspect", got.Tool)
	assert.Equal(t, "demo", got.Session.Project)
	assert.Equal(t, "dev", got.Session.Context)
	assert.Equal(t, []string{"loud"}, got.Session.Modes)
	assert.Equal(t, "high", got.Settings["verbosity"])
	assert.NotEmpty(t, got.CallID)
}

func TestTools_OpenAIProfileAndCopies(t *testing.T) {
	counter := tools.Contract{
		Name:        "counter",
		Description: "Counts",
		Parameters:  []tools.Parameter{{Name: "limit", Type: tools.TypeInteger, Default: int64(3)}},
		Executor: tools.ExecutorFunc(func(context.Context, *tools.RequestContext, tools.Arguments) (any, error) {
			return nil, nil
		}),
	}
	reg := tools.NewRegistry(quietLogger())
	require.NoError(t, reg.Register(counter))

	a := build(t, reg, policy.Context{}, nil, Options{Sanitizer: schema.NewSanitizer(schema.ProfileOpenAI, 8)})
	assert.Equal(t, schema.ProfileOpenAI, a.Profile())

	defs := a.Tools()
	require.Len(t, defs, 1)
	assert.Equal(t, "counter", defs[0].Name)
	assert.Equal(t, "Counts", defs[0].Description)

	limit := defs[0].InputSchema["properties"].(map[string]any)["limit"].(map[string]any)
	assert.Equal(t, "number", limit["type"])
	assert.Equal(t, float64(1), limit["multipleOf"])

	limit["type"] = "mutated"
	again := a.Tools()[0].InputSchema["properties"].(map[string]any)["limit"].(map[string]any)
	assert.Equal(t, "number", again["type"])
}

type captureRecorder struct {
	mu      sync.Mutex
	records []history.CallRecord
}

func (c *captureRecorder) Record(rec history.CallRecord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
	return true
}

func TestCall_RecordsOutcomes(t *testing.T) {
	rec := &captureRecorder{}
	a := build(t, newRegistry(t), policy.Context{Name: "full"}, nil, Options{
		Recorder: rec,
		Session:  tools.Session{Project: "demo"},
	})

	_, err := a.Call(context.Background(), "find_file", map[string]any{"query": "main.go"})
	require.NoError(t, err)
	_, err = a.Call(context.Background(), "nope", nil)
	require.Error(t, err)

	require.Len(t, rec.records, 2)
	assert.Equal(t, history.OutcomeSuccess, rec.records[0].Outcome)
	assert.Equal(t, "find_file", rec.records[0].Tool)
	assert.Equal(t, "demo", rec.records[0].Project)
	assert.Equal(t, "full", rec.records[0].Context)
	assert.NotEmpty(t, rec.records[0].CallID)

	assert.Equal(t, history.OutcomeError, rec.records[1].Outcome)
	assert.Equal(t, contracts.ErrorNotFound, rec.records[1].ErrorCode)
}

func TestCall_EmitsSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})

	a := build(t, newRegistry(t), policy.Context{}, nil, Options{})
	_, err := a.Call(context.Background(), "list_dir", nil)
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "tool.call", spans[0].Name)

	var toolAttr string
	for _, kv := range spans[0].Attributes {
		if kv.Key == "tool.name" {
			toolAttr = kv.Value.AsString()
		}
	}
	assert.Equal(t, "list_dir", toolAttr)
}

func TestNew_RequiresInputs(t *testing.T) {
	_, err := New(nil, nil, Options{})
	require.Error(t, err)

	reg := newRegistry(t)
	_, err = New(reg, nil, Options{})
	require.Error(t, err)
}

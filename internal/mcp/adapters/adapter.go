// Package adapters binds a resolved capability set to callable protocol
// tools: it publishes descriptors and runs validated, time-bounded calls.
package adapters

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"toolhost/internal/capability"
	"toolhost/internal/core/errors"
	"toolhost/internal/data/history"
	"toolhost/internal/mcp/contracts"
	"toolhost/internal/mcp/schema"
	"toolhost/internal/mcp/validate"
	"toolhost/internal/shared/observability"
	"toolhost/internal/tools"

	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultRequestTimeout = 30 * time.Second

// unknownToolLabel is the metric label for calls naming no bound tool, so
// client-chosen names never become series.
const unknownToolLabel = "<unknown>"

// Source looks up registered contracts.
type Source interface {
	Get(name string) (tools.Contract, bool)
}

// Recorder receives one record per finished call. It must not block.
type Recorder interface {
	Record(rec history.CallRecord) bool
}

type Options struct {
	Sanitizer      *schema.Sanitizer
	Session        tools.Session
	DefaultTimeout time.Duration
	Recorder       Recorder
	Logger         *slog.Logger
}

type binding struct {
	contract tools.Contract
	def      schema.ToolDefinition
}

// Adapter is immutable once built; a policy change builds a new one.
type Adapter struct {
	set      *capability.Set
	bindings map[string]binding
	order    []string
	settings map[string]any
	session  tools.Session
	timeout  time.Duration
	recorder Recorder
	profile  schema.Profile
	logger   *slog.Logger
}

func New(src Source, set *capability.Set, opts Options) (*Adapter, error) {
	if src == nil {
		return nil, errors.New(errors.CodeFatalStartup, "tool source is required")
	}
	if set == nil {
		return nil, errors.New(errors.CodeFatalStartup, "capability set is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sanitizer := opts.Sanitizer
	if sanitizer == nil {
		sanitizer = schema.NewSanitizer(schema.ProfileDefault, 0)
	}
	timeout := opts.DefaultTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if t, ok := set.Timeout(); ok {
		timeout = t
	}

	session := opts.Session
	session.Context = set.Context()
	session.Modes = set.Modes()

	a := &Adapter{
		set:      set,
		bindings: make(map[string]binding, set.Len()),
		order:    make([]string, 0, set.Len()),
		settings: set.Settings(),
		session:  session,
		timeout:  timeout,
		recorder: opts.Recorder,
		profile:  sanitizer.Profile(),
		logger:   logger,
	}

	for _, name := range set.Visible() {
		contract, ok := src.Get(name)
		if !ok {
			logger.Warn("visible tool missing from registry", "tool", name)
			continue
		}
		input, err := sanitizer.Sanitize(schema.BuildInputSchema(contract.Parameters))
		if err != nil {
			return nil, errors.AddContext(errors.Wrap(err, errors.CodeInternal, "sanitize input schema"), errors.CtxTool, name)
		}
		a.bindings[name] = binding{
			contract: contract,
			def: schema.ToolDefinition{
				Name:        contract.Name,
				Description: contract.Description,
				InputSchema: input,
			},
		}
		a.order = append(a.order, name)
	}

	logger.Debug("adapter built",
		"context", set.Context(),
		"modes", set.Modes(),
		"visible", len(a.order),
		"profile", string(a.profile),
		"timeout", timeout,
	)
	return a, nil
}

// Tools returns descriptors in visible order. Each call returns fresh copies.
func (a *Adapter) Tools() []schema.ToolDefinition {
	out := make([]schema.ToolDefinition, 0, len(a.order))
	for _, name := range a.order {
		def := a.bindings[name].def
		def.InputSchema = schema.Clone(def.InputSchema)
		out = append(out, def)
	}
	return out
}

func (a *Adapter) Names() []string {
	return append([]string(nil), a.order...)
}

func (a *Adapter) Has(name string) bool {
	_, ok := a.bindings[name]
	return ok
}

func (a *Adapter) Set() *capability.Set {
	return a.set
}

func (a *Adapter) Profile() schema.Profile {
	return a.profile
}

func (a *Adapter) Timeout() time.Duration {
	return a.timeout
}

type outcome struct {
	value any
	err   error
}

// Call runs one tool. Every failure is returned as a contracts.ToolError.
func (a *Adapter) Call(ctx context.Context, name string, raw map[string]any) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	started := time.Now()

	b, ok := a.bindings[name]
	if !ok {
		toolErr := contracts.NotFound(name)
		a.finish(name, "", started, toolErr)
		return nil, toolErr
	}

	args, err := validate.Arguments(b.contract.Parameters, raw)
	if err != nil {
		param, _ := errors.ContextValue(err, errors.CtxParameter)
		paramName, _ := param.(string)
		toolErr := contracts.InvalidArgument(name, paramName, reason(err))
		a.finish(name, "", started, toolErr)
		return nil, toolErr
	}

	rc := tools.NewRequestContext(name, a.session, a.settings)

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	callCtx, span := observability.Tracer().Start(callCtx, "tool.call", trace.WithAttributes(
		attribute.String("tool.name", name),
		attribute.String("tool.call_id", rc.CallID),
		attribute.String("policy.context", a.session.Context),
	))
	defer span.End()

	observability.ToolCallsInFlight.Inc()
	defer observability.ToolCallsInFlight.Dec()

	done := make(chan outcome, 1)
	go func() {
		var out outcome
		var pc panics.Catcher
		pc.Try(func() {
			out.value, out.err = b.contract.Executor.Execute(callCtx, rc, args)
		})
		if r := pc.Recovered(); r != nil {
			a.logger.Error("tool panicked", "tool", name, "call_id", rc.CallID, "panic", r.Value, "stack", string(r.Stack))
			out.err = r.AsError()
		}
		done <- out
	}()

	var result outcome
	finished := false
	select {
	case result = <-done:
		finished = true
	case <-callCtx.Done():
	}

	var toolErr error
	switch {
	case callCtx.Err() != nil && (!finished || result.err != nil):
		toolErr = a.contextError(name, callCtx)
	case result.err != nil:
		a.logger.Error("tool execution failed", "tool", name, "call_id", rc.CallID, "arguments", args, "error", result.err)
		toolErr = contracts.ExecutionFailed(name, result.err)
	}

	if toolErr != nil {
		span.RecordError(toolErr)
		span.SetStatus(codes.Error, toolErr.Error())
		a.finish(name, rc.CallID, started, toolErr)
		return nil, toolErr
	}
	span.SetStatus(codes.Ok, "")
	a.finish(name, rc.CallID, started, nil)
	return result.value, nil
}

func (a *Adapter) contextError(name string, ctx context.Context) error {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return contracts.TimedOut(name, a.timeout.Seconds())
	}
	return contracts.Cancelled(name)
}

func (a *Adapter) finish(name, callID string, started time.Time, err error) {
	elapsed := time.Since(started)
	label := history.OutcomeSuccess
	code := ""
	msg := ""
	if err != nil {
		label = contracts.ErrorInternal
		var toolErr contracts.ToolError
		if stderrors.As(err, &toolErr) {
			label = toolErr.Code
		}
		code = label
		msg = err.Error()
	}

	metricTool := name
	if !a.Has(name) {
		metricTool = unknownToolLabel
	}
	observability.ToolCallsTotal.WithLabelValues(metricTool, label).Inc()
	observability.ToolCallDuration.WithLabelValues(metricTool).Observe(elapsed.Seconds())

	if a.recorder == nil {
		return
	}
	outcome := history.OutcomeSuccess
	if err != nil {
		outcome = history.OutcomeError
	}
	a.recorder.Record(history.CallRecord{
		CallID:    callID,
		Tool:      name,
		Project:   a.session.Project,
		Context:   a.session.Context,
		Modes:     a.session.Modes,
		Outcome:   outcome,
		ErrorCode: code,
		Message:   msg,
		StartedAt: started,
		Duration:  elapsed,
	})
}

func reason(err error) string {
	var de *errors.DomainError
	if stderrors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

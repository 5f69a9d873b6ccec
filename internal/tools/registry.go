package tools

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"toolhost/internal/core/errors"
)

type snapshot struct {
	byName map[string]Contract
	order  []string
}

// Registry is an insertion-ordered set of contracts. Writers are serialized
// and publish a new snapshot; readers never block.
type Registry struct {
	mu      sync.Mutex
	current atomic.Pointer[snapshot]
	logger  *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{logger: logger}
	r.current.Store(&snapshot{byName: map[string]Contract{}})
	return r
}

// Register inserts the contract, or replaces an existing contract of the same
// name while keeping its original position.
func (r *Registry) Register(tool Tool) error {
	c := tool.Contract()
	if err := c.Validate(); err != nil {
		return errors.AddContext(errors.Wrap(err, errors.CodeValidationError, "invalid tool contract"), errors.CtxTool, c.Name)
	}
	c = c.clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.current.Load()
	next := &snapshot{
		byName: make(map[string]Contract, len(old.byName)+1),
		order:  old.order,
	}
	for k, v := range old.byName {
		next.byName[k] = v
	}
	if _, exists := old.byName[c.Name]; exists {
		r.logger.Debug("tool replaced", "tool", c.Name)
	} else {
		next.order = append(append(make([]string, 0, len(old.order)+1), old.order...), c.Name)
	}
	next.byName[c.Name] = c
	r.current.Store(next)
	return nil
}

func (r *Registry) RegisterAll(tools ...Tool) error {
	var errs []error
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Unregister removes the tool and reports whether it was present.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.current.Load()
	if _, ok := old.byName[name]; !ok {
		return false
	}
	next := &snapshot{
		byName: make(map[string]Contract, len(old.byName)),
		order:  make([]string, 0, len(old.order)),
	}
	for k, v := range old.byName {
		if k != name {
			next.byName[k] = v
		}
	}
	for _, n := range old.order {
		if n != name {
			next.order = append(next.order, n)
		}
	}
	r.current.Store(next)
	r.logger.Debug("tool unregistered", "tool", name)
	return true
}

func (r *Registry) Get(name string) (Contract, bool) {
	c, ok := r.current.Load().byName[name]
	if !ok {
		return Contract{}, false
	}
	return c.clone(), true
}

func (r *Registry) Has(name string) bool {
	_, ok := r.current.Load().byName[name]
	return ok
}

// List returns registered names in insertion order.
func (r *Registry) List() []string {
	snap := r.current.Load()
	out := make([]string, len(snap.order))
	copy(out, snap.order)
	return out
}

func (r *Registry) Len() int {
	return len(r.current.Load().order)
}

func (r *Registry) ListByCategory(category string) []string {
	snap := r.current.Load()
	out := make([]string, 0)
	for _, name := range snap.order {
		if snap.byName[name].InCategory(category) {
			out = append(out, name)
		}
	}
	return out
}

// Cleanup runs Cleanup on every executor that implements Cleaner. All
// executors are visited even when some fail.
func (r *Registry) Cleanup(ctx context.Context) error {
	snap := r.current.Load()
	var errs []error
	for _, name := range snap.order {
		cleaner, ok := snap.byName[name].Executor.(Cleaner)
		if !ok {
			continue
		}
		if err := cleaner.Cleanup(ctx); err != nil {
			r.logger.Warn("tool cleanup failed", "tool", name, "error", err)
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

package policy

import (
	"log/slog"
	"strings"
)

// Loader resolves context and mode references: a preset name, a file path,
// or a bare name looked up as <dir>/<name>_context.json (or _mode.json) in
// the search directories.
type Loader struct {
	catalog *Catalog
	dirs    []string
	logger  *slog.Logger
}

func NewLoader(catalog *Catalog, dirs []string, logger *slog.Logger) *Loader {
	if catalog == nil {
		catalog = BuiltinCatalog()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		catalog: catalog,
		dirs:    append([]string(nil), dirs...),
		logger:  logger,
	}
}

func (l *Loader) Catalog() *Catalog {
	return l.catalog
}

// LoadContext resolves ref strictly, returning a configuration error when it
// cannot be found or decoded.
func (l *Loader) LoadContext(ref string) (Context, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		ref = DefaultContext
	}
	if isFileRef(ref) {
		return ReadContextFile(ref)
	}
	if ctx, ok := l.catalog.Context(ref); ok {
		return ctx, nil
	}
	if path, ok := findInDirs(l.dirs, ref, contextFileSuffix); ok {
		return ReadContextFile(path)
	}
	return Context{}, notFound("context", ref)
}

func (l *Loader) LoadMode(ref string) (Mode, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		ref = DefaultMode
	}
	if isFileRef(ref) {
		return ReadModeFile(ref)
	}
	if m, ok := l.catalog.Mode(ref); ok {
		return m, nil
	}
	if path, ok := findInDirs(l.dirs, ref, modeFileSuffix); ok {
		return ReadModeFile(path)
	}
	return Mode{}, notFound("mode", ref)
}

// Context resolves ref and falls back to the default context with a warning.
func (l *Loader) Context(ref string) Context {
	ctx, err := l.LoadContext(ref)
	if err == nil {
		return ctx
	}
	l.logger.Warn("context unavailable, falling back", "ref", ref, "fallback", DefaultContext, "error", err)
	if fallback, ok := l.catalog.Context(DefaultContext); ok {
		return fallback
	}
	return Context{Name: DefaultContext, Tools: []string{}, Settings: map[string]any{}}
}

// Mode resolves ref and falls back to the default mode with a warning.
func (l *Loader) Mode(ref string) Mode {
	m, err := l.LoadMode(ref)
	if err == nil {
		return m
	}
	l.logger.Warn("mode unavailable, falling back", "ref", ref, "fallback", DefaultMode, "error", err)
	if fallback, ok := l.catalog.Mode(DefaultMode); ok {
		return fallback
	}
	return Mode{Name: DefaultMode, Settings: map[string]any{}}
}

// Modes resolves refs in order. An empty list activates DefaultModes.
func (l *Loader) Modes(refs []string) []Mode {
	if len(refs) == 0 {
		refs = DefaultModes
	}
	out := make([]Mode, 0, len(refs))
	for _, ref := range refs {
		out = append(out, l.Mode(ref))
	}
	return out
}

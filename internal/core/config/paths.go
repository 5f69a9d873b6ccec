package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

type ResolvedPaths struct {
	ProjectRoot string
	ProjectName string
	HistoryPath string
	PolicyDirs  []string
	OpenAPISpec string
}

// ResolvePaths makes the project root absolute against base and resolves the
// history path and policy directories against the project root.
func ResolvePaths(cfg *Config, base string) (ResolvedPaths, error) {
	if strings.TrimSpace(base) == "" {
		return ResolvedPaths{}, fmt.Errorf("base directory must not be empty")
	}
	root, err := filepath.Abs(ResolveRelative(base, cfg.Session.Project))
	if err != nil {
		return ResolvedPaths{}, fmt.Errorf("resolve project root: %w", err)
	}

	dirs := make([]string, 0, len(cfg.Session.PolicyDirs))
	for _, d := range cfg.Session.PolicyDirs {
		dirs = append(dirs, ResolveRelative(root, d))
	}

	spec := cfg.Catalog.OpenAPISpec
	if spec != "" && !isURL(spec) {
		spec = ResolveRelative(root, spec)
	}

	return ResolvedPaths{
		ProjectRoot: root,
		ProjectName: filepath.Base(root),
		HistoryPath: ResolveRelative(root, cfg.History.Path),
		PolicyDirs:  dirs,
		OpenAPISpec: spec,
	}, nil
}

func isURL(value string) bool {
	lower := strings.ToLower(value)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func ResolveRelative(base, value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw)
	}
	return filepath.Clean(filepath.Join(base, raw))
}

package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"toolhost/internal/core/config"
	"toolhost/internal/shared/util"
)

// ProjectContext is the resolved on-disk layout of the served project.
type ProjectContext struct {
	Name        string
	Root        string
	ConfigFile  string
	HistoryPath string
	PolicyDirs  []string
	OpenAPISpec string
}

// ResolveProjectContext resolves cfg's paths against the working directory.
func ResolveProjectContext(cfg *config.Config, configPath string) (ProjectContext, error) {
	if cfg == nil {
		return ProjectContext{}, fmt.Errorf("config is required")
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ProjectContext{}, fmt.Errorf("resolve cwd: %w", err)
	}
	paths, err := config.ResolvePaths(cfg, cwd)
	if err != nil {
		return ProjectContext{}, fmt.Errorf("resolve paths: %w", err)
	}

	configFile := strings.TrimSpace(configPath)
	if configFile != "" {
		configFile = config.ResolveRelative(cwd, configFile)
	}

	return ProjectContext{
		Name:        paths.ProjectName,
		Root:        paths.ProjectRoot,
		ConfigFile:  configFile,
		HistoryPath: paths.HistoryPath,
		PolicyDirs:  paths.PolicyDirs,
		OpenAPISpec: paths.OpenAPISpec,
	}, nil
}

// GenerateProjectConfig writes the default configuration to target unless a
// file already exists there. It reports whether a file was written.
func GenerateProjectConfig(target string) (bool, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return false, fmt.Errorf("config path is required")
	}
	if _, err := os.Stat(target); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("check target config %q: %w", target, err)
	}

	if err := util.WriteFileWithDirs(target, []byte(config.DefaultTOML()), 0o644); err != nil {
		return false, fmt.Errorf("write generated config %q: %w", target, err)
	}
	return true, nil
}

// EnsurePolicyDir creates the first policy directory so authored context and
// mode files have somewhere to go.
func EnsurePolicyDir(project ProjectContext) (string, error) {
	if len(project.PolicyDirs) == 0 {
		return "", fmt.Errorf("no policy directories configured")
	}
	dir := project.PolicyDirs[0]
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create policy dir %q: %w", dir, err)
	}
	return filepath.Clean(dir), nil
}

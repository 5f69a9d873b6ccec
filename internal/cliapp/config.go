package cliapp

import (
	"os"
	"strings"

	"toolhost/internal/core/config"
	"toolhost/internal/mcp/runtime"

	"github.com/spf13/cobra"
)

const (
	exitRuntime = 1
	exitConfig  = 2
)

// loadConfig reads the --config file. Without the flag ./toolhost.toml is
// used when present, otherwise defaults plus environment overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, _ := cmd.Flags().GetString("config")
	path = strings.TrimSpace(path)
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, "", exitError(exitConfig, "load config: %v", err)
	}
	return cfg, path, nil
}

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().String("context", "", "Context preset name or file path")
	cmd.Flags().StringArray("mode", nil, "Mode preset name or file path (repeatable)")
	cmd.Flags().String("project", "", "Project root directory")
	cmd.Flags().Bool("openai-compatible", false, "Rewrite tool schemas for OpenAI-compatible clients")
}

// applySessionFlags overlays explicitly set session flags onto cfg and
// re-validates it.
func applySessionFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("context") {
		contextRef, _ := flags.GetString("context")
		cfg.Session.Context = strings.TrimSpace(contextRef)
	}
	if flags.Changed("mode") {
		modes, _ := flags.GetStringArray("mode")
		cfg.Session.Modes = nil
		for _, m := range modes {
			if m = strings.TrimSpace(m); m != "" {
				cfg.Session.Modes = append(cfg.Session.Modes, m)
			}
		}
	}
	if flags.Changed("project") {
		cfg.Session.Project, _ = flags.GetString("project")
	}
	if on, _ := flags.GetBool("openai-compatible"); on {
		cfg.MCP.SchemaProfile = "openai"
	}
	if flags.Lookup("transport") != nil && flags.Changed("transport") {
		transport, _ := flags.GetString("transport")
		cfg.MCP.Transport = strings.ToLower(strings.TrimSpace(transport))
	}
	if err := config.Validate(cfg); err != nil {
		return exitError(exitConfig, "invalid options: %v", err)
	}
	return nil
}

// loadSession builds a session from configuration without starting a
// transport.
func loadSession(cmd *cobra.Command) (*runtime.Session, *config.Config, error) {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if err := applySessionFlags(cmd, cfg); err != nil {
		return nil, nil, err
	}
	project, err := runtime.ResolveProjectContext(cfg, path)
	if err != nil {
		return nil, nil, exitError(exitConfig, "%v", err)
	}
	session, err := runtime.BuildSession(cmd.Context(), cfg, project, runtime.SessionOptions{})
	if err != nil {
		return nil, nil, exitError(exitRuntime, "build session: %v", err)
	}
	return session, cfg, nil
}

package cliapp

import (
	"encoding/json"
	"fmt"
	"strings"

	"toolhost/internal/mcp/runtime"
	"toolhost/internal/policy"

	"github.com/spf13/cobra"
)

// NewContextCmd creates the "context" command group.
func NewContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Author context policy files",
	}
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Write <name>_context.json into the policy directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runContextCreate,
	}
	create.Flags().String("description", "", "Context description")
	create.Flags().StringArray("tool", nil, "Whitelisted tool (repeatable); empty admits every tool")
	create.Flags().StringArray("setting", nil, "Setting as key=value (repeatable)")
	create.Flags().String("dir", "", "Target directory (default: first policy directory)")
	cmd.AddCommand(create)
	return cmd
}

// NewModeCmd creates the "mode" command group.
func NewModeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mode",
		Short: "Author mode policy files",
	}
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Write <name>_mode.json into the policy directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runModeCreate,
	}
	create.Flags().String("description", "", "Mode description")
	create.Flags().StringArray("enable", nil, "Tool or glob to enable (repeatable)")
	create.Flags().StringArray("disable", nil, "Tool or glob to disable (repeatable)")
	create.Flags().StringArray("setting", nil, "Setting as key=value (repeatable)")
	create.Flags().String("dir", "", "Target directory (default: first policy directory)")
	cmd.AddCommand(create)
	return cmd
}

func runContextCreate(cmd *cobra.Command, args []string) error {
	settings, err := parseSettings(cmd)
	if err != nil {
		return err
	}
	description, _ := cmd.Flags().GetString("description")
	toolNames, _ := cmd.Flags().GetStringArray("tool")

	dir, err := policyDir(cmd)
	if err != nil {
		return err
	}
	path, err := policy.WriteContextFile(dir, policy.Context{
		Name:        strings.TrimSpace(args[0]),
		Description: description,
		Tools:       toolNames,
		Settings:    settings,
	})
	if err != nil {
		return exitError(exitRuntime, "write context: %v", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, newStyles(cmd, out).success.Render("Wrote "+path))
	return nil
}

func runModeCreate(cmd *cobra.Command, args []string) error {
	settings, err := parseSettings(cmd)
	if err != nil {
		return err
	}
	description, _ := cmd.Flags().GetString("description")
	enabled, _ := cmd.Flags().GetStringArray("enable")
	disabled, _ := cmd.Flags().GetStringArray("disable")

	dir, err := policyDir(cmd)
	if err != nil {
		return err
	}
	path, err := policy.WriteModeFile(dir, policy.Mode{
		Name:          strings.TrimSpace(args[0]),
		Description:   description,
		EnabledTools:  enabled,
		DisabledTools: disabled,
		Settings:      settings,
	})
	if err != nil {
		return exitError(exitRuntime, "write mode: %v", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, newStyles(cmd, out).success.Render("Wrote "+path))
	return nil
}

// policyDir returns --dir, or the first configured policy directory,
// creating it if needed.
func policyDir(cmd *cobra.Command) (string, error) {
	if dir, _ := cmd.Flags().GetString("dir"); strings.TrimSpace(dir) != "" {
		return strings.TrimSpace(dir), nil
	}
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	project, err := runtime.ResolveProjectContext(cfg, path)
	if err != nil {
		return "", exitError(exitConfig, "%v", err)
	}
	dir, err := runtime.EnsurePolicyDir(project)
	if err != nil {
		return "", exitError(exitRuntime, "%v", err)
	}
	return dir, nil
}

// parseSettings turns key=value flags into a settings map. Values that parse
// as JSON keep their JSON type; anything else is a string.
func parseSettings(cmd *cobra.Command) (map[string]any, error) {
	raw, _ := cmd.Flags().GetStringArray("setting")
	if len(raw) == 0 {
		return nil, nil
	}
	settings := make(map[string]any, len(raw))
	for _, entry := range raw {
		key, value, ok := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, exitError(exitConfig, "invalid --setting %q: expected key=value", entry)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			settings[key] = decoded
		} else {
			settings[key] = value
		}
	}
	return settings, nil
}

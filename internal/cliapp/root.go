// Package cliapp implements the toolhost command line.
package cliapp

import (
	"errors"
	"fmt"
	"os"

	"toolhost/internal/shared/version"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "./toolhost.toml"

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	closeLogs := func() {}

	root := &cobra.Command{
		Use:          "toolhost",
		Short:        "Policy-filtered MCP tool server",
		Long:         "toolhost serves a catalogue of tools over MCP, filtered by a context and a set of modes.",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			verbose, _ := cmd.Flags().GetBool("verbose")
			logFile, _ := cmd.Flags().GetString("log-file")
			closeLogs = configureLogging(cmd.ErrOrStderr(), verbose, logFile)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			closeLogs()
		},
	}

	root.PersistentFlags().String("config", "", "Path to config file (default ./toolhost.toml when present)")
	root.PersistentFlags().Bool("verbose", false, "Enable verbose/debug logging")
	root.PersistentFlags().String("log-file", "", "Write logs to this file instead of stderr")
	root.PersistentFlags().Bool("no-color", false, "Disable colored output")

	root.Version = version.Version
	root.SetVersionTemplate(fmt.Sprintf("toolhost version %s\n", version.Version))

	root.AddCommand(NewServeCmd())
	root.AddCommand(NewToolsCmd())
	root.AddCommand(NewStatusCmd())
	root.AddCommand(NewHistoryCmd())
	root.AddCommand(NewContextCmd())
	root.AddCommand(NewModeCmd())
	root.AddCommand(NewInitCmd())
	root.AddCommand(NewVersionCmd())
	return root
}

// Run executes the command line and returns the process exit code.
func Run(args []string) int {
	root := NewRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}
		return 1
	}
	return 0
}

// Main is the process entry point.
func Main() {
	os.Exit(Run(os.Args[1:]))
}

package cliapp

import (
	"fmt"

	"toolhost/internal/mcp/runtime"
	"toolhost/internal/shared/version"

	"github.com/spf13/cobra"
)

// NewInitCmd creates the "init" subcommand.
func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Write a commented default config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := defaultConfigPath
			if len(args) == 1 {
				target = args[0]
			}
			written, err := runtime.GenerateProjectConfig(target)
			if err != nil {
				return exitError(exitRuntime, "%v", err)
			}
			if !written {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists; left unchanged\n", target)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", target)
			return nil
		},
	}
}

// NewVersionCmd creates the "version" subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "toolhost version %s\n", version.Version)
		},
	}
}

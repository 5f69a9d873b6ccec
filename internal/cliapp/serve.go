package cliapp

import (
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"toolhost/internal/mcp/runtime"

	"github.com/spf13/cobra"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the visible tools over MCP",
		Long: "Serve resolves the configured context and modes against the tool catalogue " +
			"and exposes the visible tools over the selected transport until interrupted.",
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	addSessionFlags(cmd)
	cmd.Flags().String("transport", "", "Transport: stdio, sse, sdk or http")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applySessionFlags(cmd, cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()
	server, err := runtime.Build(ctx, cfg, runtime.Dependencies{
		Logger:     logger,
		ConfigPath: path,
		Stdin:      cmd.InOrStdin(),
		Stdout:     cmd.OutOrStdout(),
	})
	if err != nil {
		return exitError(exitRuntime, "start server: %v", err)
	}

	runErr := server.Start(ctx)
	stopErr := server.Stop()
	if err := errors.Join(runErr, stopErr); err != nil {
		logger.Error("server stopped with error", "error", err)
		return exitError(exitRuntime, "serve: %v", err)
	}
	logger.Info("server stopped")
	return nil
}

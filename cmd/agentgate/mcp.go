package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"agentgate/internal/app"
	"agentgate/internal/mcpserver"
	"agentgate/internal/version"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the registered functions as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := loadConfig(cmd); err != nil {
				return err
			}

			registry, err := app.NewRegistry()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return mcpserver.New(registry, version.Version).Serve(ctx, os.Stdin, os.Stdout)
		},
	}
}

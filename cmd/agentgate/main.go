// Package main is the entry point for the agentgate server and its
// companion commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"agentgate/config"
	"agentgate/internal/logging"
	"agentgate/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "agentgate",
		Short:         "HTTP gateway between clients, a hosted LLM and local functions",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.SetVersionTemplate(version.Info() + "\n")
	root.PersistentFlags().StringP("config", "c", "", "path to a YAML config file (default: config.yaml or config/config.yaml)")

	root.AddCommand(
		newServeCmd(),
		newFunctionsCmd(),
		newCallsCmd(),
		newMCPCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	}
}

// loadConfig reads configuration from the --config flag location and
// installs the process logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logging.Setup(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Production: cfg.IsProduction(),
	})
	return cfg, nil
}

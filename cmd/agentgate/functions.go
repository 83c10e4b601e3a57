package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"agentgate/internal/app"
	"agentgate/internal/core"
)

func newFunctionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "functions",
		Short: "List the functions the gateway can dispatch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			output, _ := cmd.Flags().GetString("output")
			registry, err := app.NewRegistry()
			if err != nil {
				return err
			}
			return printFunctions(cmd.OutOrStdout(), registry.List(), output)
		},
	}
	cmd.Flags().StringP("output", "o", "table", "output format: table, json or yaml")
	return cmd
}

func printFunctions(w io.Writer, specs []core.FunctionSpec, output string) error {
	switch strings.ToLower(output) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(specs)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(specs); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tDESCRIPTION\tREQUIRED")
		for _, spec := range specs {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", spec.Name, spec.Description, strings.Join(requiredParams(spec), ","))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", output)
	}
}

func requiredParams(spec core.FunctionSpec) []string {
	switch required := spec.Parameters["required"].(type) {
	case []string:
		return required
	case []any:
		names := make([]string, 0, len(required))
		for _, r := range required {
			if s, ok := r.(string); ok {
				names = append(names, s)
			}
		}
		return names
	default:
		return nil
	}
}

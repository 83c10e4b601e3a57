package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"agentgate/internal/auditlog"
)

func newCallsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calls",
		Short: "Show recent entries from the call log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			limit, _ := cmd.Flags().GetInt("limit")
			function, _ := cmd.Flags().GetString("function")
			errorsOnly, _ := cmd.Flags().GetBool("errors")

			result, err := auditlog.OpenStore(cmd.Context(), cfg, 0)
			if err != nil {
				return err
			}
			defer result.Close()

			entries, err := result.Store.List(cmd.Context(), auditlog.ListParams{
				Limit:          limit,
				FunctionCalled: function,
				ErrorsOnly:     errorsOnly,
			})
			if err != nil {
				return fmt.Errorf("failed to list calls: %w", err)
			}
			return printCalls(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().IntP("limit", "n", auditlog.DefaultListLimit, "maximum number of entries")
	cmd.Flags().String("function", "", "only calls that executed this function")
	cmd.Flags().Bool("errors", false, "only failed calls")
	return cmd
}

func printCalls(w io.Writer, entries []auditlog.LogEntry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSTATUS\tPATH\tFUNCTION\tTOKENS\tDURATION\tERROR")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%s\t%s\n",
			e.Timestamp.Local().Format(time.DateTime),
			e.StatusCode,
			e.Path,
			dash(e.FunctionCalled),
			e.TotalTokens,
			time.Duration(e.DurationNs).Round(time.Millisecond),
			dash(e.ErrorCode),
		)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

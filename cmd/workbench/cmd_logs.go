package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"workbench/pkg/logstream"
	"workbench/pkg/protocol"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// logsConfig holds configuration for the logs command.
type logsConfig struct {
	follow bool
	since  int64
	raw    bool
}

// newLogsCmd creates the "workbench logs" subcommand.
func newLogsCmd() *cobra.Command {
	var cfg logsConfig

	cmd := &cobra.Command{
		Use:   "logs <attempt-id>",
		Short: "Replay or tail an attempt's execution log",
		Long:  "Prints an attempt's log entries in sequence order. With --follow the\ncommand keeps tailing until the attempt's final entry arrives. --since N\nstarts after sequence number N, so interrupted tails can resume without\ngaps.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, paths, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			pipeline := logstream.New(st, logstream.WithDBPath(paths.DBPath))
			w := cmd.OutOrStdout()

			// Pretty rendering only for humans; pipes get raw JSON lines.
			pretty := !cfg.raw && isatty.IsTerminal(os.Stdout.Fd())

			if !cfg.follow {
				entries, err := pipeline.ReadFrom(cmd.Context(), args[0], cfg.since)
				if err != nil {
					return err
				}
				for _, e := range entries {
					printEntry(w, e, pretty)
				}
				return nil
			}

			entries, errs := pipeline.Follow(cmd.Context(), args[0], cfg.since)
			for e := range entries {
				printEntry(w, e, pretty)
			}
			return <-errs
		},
	}

	cmd.Flags().BoolVarP(&cfg.follow, "follow", "f", false, "tail live until the final entry")
	cmd.Flags().Int64Var(&cfg.since, "since", 0, "start after this sequence number")
	cmd.Flags().BoolVar(&cfg.raw, "raw", false, "force raw JSON lines even on a TTY")

	return cmd
}

// printEntry writes one log entry, either as a raw JSON line or as a
// one-line human rendering.
func printEntry(w io.Writer, e protocol.LogEntry, pretty bool) {
	if !pretty {
		line, err := json.Marshal(e)
		if err != nil {
			fmt.Fprintf(w, "{\"seq\":%d,\"error\":\"marshal: %v\"}\n", e.Seq, err)
			return
		}
		fmt.Fprintf(w, "%s\n", line)
		return
	}

	final := ""
	if e.IsFinal {
		final = " [final]"
	}
	fmt.Fprintf(w, "%4d  %-12s %s%s\n", e.Seq, e.Kind, summarizePayload(e), final)
}

// summarizePayload extracts a short human-readable line from an entry payload.
func summarizePayload(e protocol.LogEntry) string {
	var m map[string]any
	if err := json.Unmarshal([]byte(e.Payload), &m); err != nil {
		return truncate(e.Payload, 120)
	}
	for _, key := range []string{"text", "content", "error", "event", "tool_name", "exit"} {
		if v, ok := m[key].(string); ok && v != "" {
			return truncate(v, 120)
		}
	}
	return truncate(e.Payload, 120)
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

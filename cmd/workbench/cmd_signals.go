package main

import (
	"fmt"
	"text/tabwriter"

	"workbench/pkg/protocol"
	"workbench/pkg/store"

	"github.com/spf13/cobra"
)

// newSignalsCmd creates the "workbench signals" subcommand group.
func newSignalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signals",
		Short: "Inspect work signals",
	}
	cmd.AddCommand(newSignalsListCmd())
	return cmd
}

func newSignalsListCmd() *cobra.Command {
	var (
		state string
		repo  string
		limit int
		page  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List signals ordered by priority",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := store.SignalFilter{Repo: repo, Limit: limit, Page: page}
			if state != "" {
				s := protocol.SignalState(state)
				if !s.Valid() {
					return fmt.Errorf("invalid state %q", state)
				}
				filter.State = s
			}

			st, _, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			signals, total, err := st.ListSignals(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(signals) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no signals")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPRIORITY\tSTATE\tISSUE\tTITLE")
			for _, s := range signals {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s#%d\t%s\n",
					s.ID, s.Priority, s.State, s.Repo, s.IssueNumber, s.Title)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d signal(s)\n", len(signals), total)
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "filter by lifecycle state")
	cmd.Flags().StringVar(&repo, "repo", "", "filter by repo substring")
	cmd.Flags().IntVar(&limit, "limit", 50, "page size (0 = all)")
	cmd.Flags().IntVar(&page, "page", 1, "1-based page number")

	return cmd
}

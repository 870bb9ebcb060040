package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"workbench/pkg/protocol"
	"workbench/pkg/store"

	"github.com/spf13/cobra"
)

// newAttemptsCmd creates the "workbench attempts" subcommand group.
func newAttemptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attempts",
		Short: "Create and inspect attempts",
	}
	cmd.AddCommand(
		newAttemptsCreateCmd(),
		newAttemptsListCmd(),
		newAttemptsShowCmd(),
		newAttemptsCancelCmd(),
	)
	return cmd
}

func newAttemptsCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <signal-id>",
		Short: "Queue a new attempt for a signal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, paths, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			cfg, err := loadConfig(paths.ConfigPath)
			if err != nil {
				return err
			}
			budget, err := cfg.budget()
			if err != nil {
				return err
			}

			att, err := st.CreateAttempt(cmd.Context(), args[0], budget, protocol.RunnerMetadata{})
			switch {
			case errors.Is(err, store.ErrSignalBusy):
				return fmt.Errorf("signal %s already has an active attempt", args[0])
			case errors.Is(err, store.ErrNotFound):
				return fmt.Errorf("signal %s not found", args[0])
			case err != nil:
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "attempt %s #%d pending\n", att.ID, att.AttemptNumber)
			return nil
		},
	}
}

func newAttemptsListCmd() *cobra.Command {
	var (
		signalID string
		status   string
		limit    int
		page     int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List attempts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := store.AttemptFilter{SignalID: signalID, Limit: limit, Page: page}
			if status != "" {
				s := protocol.AttemptStatus(status)
				if !s.Valid() {
					return fmt.Errorf("invalid status %q", status)
				}
				filter.Status = s
			}

			st, _, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			attempts, total, err := st.ListAttempts(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(attempts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no attempts")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSIGNAL\t#\tSTATUS\tWORKER\tFINISHED")
			for _, a := range attempts {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
					a.ID, a.SignalID, a.AttemptNumber, a.Status, a.WorkerID, a.FinishedAt)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d attempt(s)\n", len(attempts), total)
			return nil
		},
	}

	cmd.Flags().StringVar(&signalID, "signal", "", "filter by signal ID")
	cmd.Flags().StringVar(&status, "status", "", "filter by attempt status")
	cmd.Flags().IntVar(&limit, "limit", 50, "page size (0 = all)")
	cmd.Flags().IntVar(&page, "page", 1, "1-based page number")

	return cmd
}

func newAttemptsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <attempt-id>",
		Short: "Show one attempt in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			att, err := st.GetAttempt(ctx, args[0])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("attempt %s not found", args[0])
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Attempt:   %s (#%d)\n", att.ID, att.AttemptNumber)
			fmt.Fprintf(out, "Signal:    %s\n", att.SignalID)
			fmt.Fprintf(out, "Status:    %s\n", att.Status)
			if att.WorkerID != "" {
				fmt.Fprintf(out, "Worker:    %s\n", att.WorkerID)
			}
			if att.PRURL != "" {
				fmt.Fprintf(out, "PR:        %s\n", att.PRURL)
			}
			if att.ErrorMessage != "" {
				fmt.Fprintf(out, "Error:     %s\n", att.ErrorMessage)
			}
			if att.StartedAt != "" {
				fmt.Fprintf(out, "Started:   %s\n", att.StartedAt)
			}
			if att.FinishedAt != "" {
				fmt.Fprintf(out, "Finished:  %s\n", att.FinishedAt)
			}

			budget, err := protocol.DecodeBudget(att.Policy)
			if err == nil {
				fmt.Fprintf(out, "Budget:    wall=%s tools=%d turns=%d diff=%d files=%d\n",
					budget.WallClock, budget.ToolCalls, budget.Turns,
					budget.DiffLines, budget.FilesTouched)
			}

			if summary, err := protocol.DecodeSummary(att.Summary); err == nil {
				if len(summary.RiskFlags) > 0 {
					fmt.Fprintf(out, "Risks:     %v\n", summary.RiskFlags)
				}
				if len(summary.Assumptions) > 0 {
					fmt.Fprintln(out, "Assumptions:")
					for _, a := range summary.Assumptions {
						fmt.Fprintf(out, "  - %s\n", a)
					}
				}
				if len(summary.FilesTouched) > 0 {
					fmt.Fprintf(out, "Files:     %d touched\n", len(summary.FilesTouched))
				}
			}

			clars, err := st.ListClarifications(ctx, att.ID)
			if err != nil {
				return err
			}
			if len(clars) > 0 {
				fmt.Fprintln(out, "Clarifications:")
				for _, c := range clars {
					mark := "unanswered"
					if c.IsAnswered() {
						mark = fmt.Sprintf("answered: %s", c.EffectiveAnswer())
					}
					fmt.Fprintf(out, "  %s [%s] %s (%s)\n", c.ID, c.QuestionID, c.QuestionText, mark)
				}
			}
			return nil
		},
	}
}

func newAttemptsCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <attempt-id>",
		Short: "Cancel a pending or running attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			err = st.CancelAttempt(cmd.Context(), args[0])
			switch {
			case errors.Is(err, store.ErrNotFound):
				return fmt.Errorf("attempt %s not found", args[0])
			case errors.Is(err, store.ErrNotCancellable):
				return fmt.Errorf("attempt %s is already terminal", args[0])
			case err != nil:
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "attempt %s cancelled\n", args[0])
			return nil
		},
	}
}

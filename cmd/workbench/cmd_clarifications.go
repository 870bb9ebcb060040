package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"workbench/pkg/clarify"
	"workbench/pkg/protocol"
	"workbench/pkg/store"

	"github.com/spf13/cobra"
)

// newClarificationsCmd creates the "workbench clarifications" subcommand group.
func newClarificationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "clarifications",
		Aliases: []string{"clar"},
		Short:   "Answer agent questions and retry stuck attempts",
	}
	cmd.AddCommand(
		newClarificationsListCmd(),
		newClarificationsAnswerCmd(),
		newClarificationsRetryCmd(),
	)
	return cmd
}

func newClarificationsListCmd() *cobra.Command {
	var attemptID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List clarifications awaiting an answer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, _, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			var clars []protocol.Clarification
			if attemptID != "" {
				clars, err = st.ListClarifications(ctx, attemptID)
			} else {
				clars, err = st.ListPendingClarifications(ctx)
			}
			if err != nil {
				return err
			}
			if len(clars) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no pending clarifications")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tATTEMPT\tQUESTION\tDEFAULT\tANSWER")
			for _, c := range clars {
				answer := ""
				if c.IsAnswered() {
					answer = c.EffectiveAnswer()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					c.ID, c.AttemptID, c.QuestionText, c.DefaultAnswer, answer)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&attemptID, "attempt", "", "show all clarifications for one attempt")

	return cmd
}

func newClarificationsAnswerCmd() *cobra.Command {
	var (
		acceptDefault bool
		answeredBy    string
		retry         bool
	)

	cmd := &cobra.Command{
		Use:   "answer <clarification-id> [answer...]",
		Short: "Answer one clarification",
		Long:  "Records an answer to a clarification. Each clarification accepts\nexactly one answer; use --accept-default to take the recorded default\ninstead of typing one. With --retry a follow-up attempt is queued once\nevery clarification on the attempt is answered.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			answer := strings.Join(args[1:], " ")
			if acceptDefault && answer != "" {
				return fmt.Errorf("--accept-default and an answer text are mutually exclusive")
			}
			if !acceptDefault && answer == "" {
				return fmt.Errorf("provide an answer or --accept-default")
			}

			st, _, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			mgr := clarify.NewManager(st)
			ctx := cmd.Context()

			if acceptDefault {
				err = mgr.AcceptDefault(ctx, id, answeredBy)
			} else {
				err = mgr.SubmitAnswer(ctx, id, answer, answeredBy)
			}
			switch {
			case errors.Is(err, store.ErrNotFound):
				return fmt.Errorf("clarification %s not found", id)
			case errors.Is(err, store.ErrAlreadyAnswered):
				return fmt.Errorf("clarification %s is already answered", id)
			case errors.Is(err, store.ErrNoDefault):
				return fmt.Errorf("clarification %s has no default answer", id)
			case err != nil:
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "answered %s\n", id)

			if !retry {
				return nil
			}
			att, err := mgr.RetryByClarification(ctx, id)
			if errors.Is(err, clarify.ErrUnanswered) {
				fmt.Fprintln(cmd.OutOrStdout(), "other clarifications still unanswered; not retrying yet")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "attempt %s #%d pending\n", att.ID, att.AttemptNumber)
			return nil
		},
	}

	cmd.Flags().BoolVar(&acceptDefault, "accept-default", false, "accept the recorded default answer")
	cmd.Flags().StringVar(&answeredBy, "by", "", "who is answering (recorded for audit)")
	cmd.Flags().BoolVar(&retry, "retry", false, "queue a follow-up attempt once all questions are answered")

	return cmd
}

func newClarificationsRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <attempt-id>",
		Short: "Queue a follow-up attempt for a stuck attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			att, err := clarify.NewManager(st).Retry(cmd.Context(), args[0])
			switch {
			case errors.Is(err, store.ErrNotFound):
				return fmt.Errorf("attempt %s not found", args[0])
			case errors.Is(err, clarify.ErrNotRetryable):
				return fmt.Errorf("attempt %s is not waiting on clarifications", args[0])
			case errors.Is(err, clarify.ErrUnanswered):
				return fmt.Errorf("attempt %s still has unanswered clarifications", args[0])
			case errors.Is(err, store.ErrSignalBusy):
				return fmt.Errorf("signal already has an active attempt")
			case err != nil:
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "attempt %s #%d pending\n", att.ID, att.AttemptNumber)
			return nil
		},
	}
}

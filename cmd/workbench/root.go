package main

import (
	"fmt"

	"workbench/internal/appversion"

	"github.com/spf13/cobra"
)

// newRootCmd creates the root workbench command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "workbench",
		Short:         "Attempt orchestration engine",
		Long:          "workbench turns queued work signals into supervised agent attempts.\nIt claims signals, runs an external agent under budgets, classifies the\noutcome, and records an ordered execution log per attempt.",
		Version:       fmt.Sprintf("workbench %s", appversion.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.AddCommand(
		newInitCmd(),
		newWorkCmd(),
		newIngestCmd(),
		newSignalsCmd(),
		newAttemptsCmd(),
		newClarificationsCmd(),
		newLogsCmd(),
	)

	return cmd
}

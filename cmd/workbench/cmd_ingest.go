package main

import (
	"fmt"
	"os"

	"workbench/pkg/protocol"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// signalFixture is one entry in an ingest YAML file.
type signalFixture struct {
	Source      string `yaml:"source"`
	Repo        string `yaml:"repo"`
	IssueNumber int    `yaml:"issue_number"`
	Title       string `yaml:"title"`
	Body        string `yaml:"body"`
	Priority    int    `yaml:"priority"`
}

type ingestFile struct {
	Signals []signalFixture `yaml:"signals"`
}

// newIngestCmd creates the "workbench ingest" subcommand.
func newIngestCmd() *cobra.Command {
	var (
		enqueue bool
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Load signals from a YAML file into the job store",
		Long:  "Reads signal definitions from a YAML file and upserts them into the\njob store. Re-ingesting the same repo/issue pair refreshes content and\npriority without touching lifecycle state.\n\nWith --enqueue each ingested signal also gets a pending attempt so the\nworker pool can pick it up.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0]) //nolint:gosec // operator-supplied path
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			var file ingestFile
			if err := yaml.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			if len(file.Signals) == 0 {
				return fmt.Errorf("%s contains no signals", args[0])
			}
			for i, fx := range file.Signals {
				if fx.Repo == "" || fx.IssueNumber == 0 || fx.Title == "" {
					return fmt.Errorf("signal %d: repo, issue_number and title are required", i+1)
				}
			}

			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "would ingest %d signal(s)\n", len(file.Signals))
				return nil
			}

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

			ctx := cmd.Context()
			for _, fx := range file.Signals {
				id, err := st.UpsertSignal(ctx, protocol.Signal{
					Source:      fx.Source,
					Repo:        fx.Repo,
					IssueNumber: fx.IssueNumber,
					Title:       fx.Title,
					Body:        fx.Body,
					Priority:    fx.Priority,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ingested %s (%s#%d)\n", id, fx.Repo, fx.IssueNumber)

				if enqueue {
					att, err := st.CreateAttempt(ctx, id, budget, protocol.RunnerMetadata{})
					if err != nil {
						return fmt.Errorf("enqueue %s: %w", id, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "  attempt %s pending\n", att.ID)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "create a pending attempt per ingested signal")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file without writing")

	return cmd
}

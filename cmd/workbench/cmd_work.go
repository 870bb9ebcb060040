package main

import (
	"fmt"
	"log/slog"
	"os"

	"workbench/pkg/clarify"
	"workbench/pkg/dispatcher"
	"workbench/pkg/logstream"
	"workbench/pkg/runner"

	"github.com/spf13/cobra"
)

// newWorkCmd creates the "workbench work" subcommand.
func newWorkCmd() *cobra.Command {
	var (
		workers int
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "work",
		Short: "Run the worker pool until interrupted",
		Long:  "Starts the dispatcher worker pool. Each worker claims pending\nattempts, runs the agent under budget enforcement, and records the\noutcome. Stop with Ctrl-C; in-flight attempts finish first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, paths, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			cfg, err := loadConfig(paths.ConfigPath)
			if err != nil {
				return err
			}
			poll, err := cfg.pollInterval()
			if err != nil {
				return err
			}
			if workers == 0 {
				workers = cfg.Worker.Count
			}

			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			baseDir := cfg.Workspace.BaseDir
			if baseDir == "" {
				baseDir = paths.WorkspaceDir
			}

			pipeline := logstream.New(st, logstream.WithDBPath(paths.DBPath))
			spawner := &runner.ExecSpawner{Bin: cfg.Agent.Bin, Args: cfg.Agent.Args}
			workspaces := runner.NewTempWorkspaceManager(baseDir)
			run := runner.New(pipeline, spawner, workspaces, runner.WithLogger(logger))

			d := dispatcher.New(dispatcher.Config{
				Workers:      workers,
				PollInterval: poll,
				CloneRepos:   cfg.Agent.CloneRepos,
				Logger:       logger,
			}, st, run, clarify.NewManager(st))

			logger.Info("worker pool starting",
				"workers", workers, "poll_interval", poll, "agent_bin", cfg.Agent.Bin)
			if err := d.Run(cmd.Context()); err != nil {
				return fmt.Errorf("worker pool: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "worker pool size (overrides config)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	return cmd
}

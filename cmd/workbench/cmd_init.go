package main

import (
	"fmt"
	"os"

	"workbench/pkg/store"

	"github.com/spf13/cobra"
)

// newInitCmd creates the "workbench init" subcommand.
func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the workbench home directory and job store",
		Long:  "Creates the workbench home directory, the job store database with\nits schema, the workspaces directory, and a default config.toml.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return fmt.Errorf("resolve paths: %w", err)
			}

			if err := os.MkdirAll(paths.Home, 0o755); err != nil {
				return fmt.Errorf("create home %s: %w", paths.Home, err)
			}
			if err := os.MkdirAll(paths.WorkspaceDir, 0o755); err != nil {
				return fmt.Errorf("create workspace dir: %w", err)
			}

			// Opening applies the schema.
			st, err := store.Open(paths.DBPath)
			if err != nil {
				return fmt.Errorf("init store: %w", err)
			}
			if err := st.Close(); err != nil {
				return fmt.Errorf("close store: %w", err)
			}

			if _, err := os.Stat(paths.ConfigPath); os.IsNotExist(err) {
				if err := os.WriteFile(paths.ConfigPath, []byte(defaultConfigTOML), 0o644); err != nil {
					return fmt.Errorf("write config: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", paths.ConfigPath)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", paths.Home)
			return nil
		},
	}
}

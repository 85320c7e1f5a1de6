package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/foundrydev/foundry/internal/config"
)

// newInitCmd creates the init command
func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize foundry in the current directory",
		Long: `Write .foundry/config.yaml with defaults and create the data
directory. Safe to run in a fresh checkout; refuses to overwrite an
existing config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(config.FoundryDir, config.ConfigFileName)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}

			cfg := config.Default()
			if err := config.Save(cfg); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
				return fmt.Errorf("create data directory: %w", err)
			}
			if err := os.MkdirAll(cfg.WorkspaceRoot, 0o755); err != nil {
				return fmt.Errorf("create workspace: %w", err)
			}
			successf("initialized %s", path)
			fmt.Println("  Next: foundry project create <id> --owner <you>")
			return nil
		},
	}
}

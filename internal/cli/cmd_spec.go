package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newSpecCmd creates the spec command group.
func newSpecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spec",
		Short: "Register and inspect project specs",
	}
	cmd.AddCommand(newSpecRegisterCmd())
	cmd.AddCommand(newSpecListCmd())
	return cmd
}

func newSpecRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register <project-id> <file>",
		Short: "Register a spec file with its checksum",
		Long: `Register a spec file. Re-registering an unlocked spec bumps its
version; once specs are locked at G3 approval, registration is refused.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			specType, _ := cmd.Flags().GetString("type")

			content, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read spec file: %w", err)
			}

			core, _, closer, err := openCore()
			if err != nil {
				return err
			}
			defer closer()

			row, err := core.Specs.Register(cmd.Context(), args[0], specType, args[1], content)
			if err != nil {
				return err
			}
			successf("spec %s v%d registered (%s)", row.SpecType, row.Version, row.Checksum[:12])
			return nil
		},
	}
	cmd.Flags().String("type", "", "spec type (openapi, prisma, zod, architecture)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newSpecListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <project-id>",
		Short: "List registered specs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, _, closer, err := openCore()
			if err != nil {
				return err
			}
			defer closer()

			rows, err := core.Specs.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(rows)
			}
			for _, s := range rows {
				lock := ""
				if s.Locked {
					lock = warnMark(" [locked]")
				}
				fmt.Printf("%-14s v%-3d %s %s%s\n", s.SpecType, s.Version, s.Checksum[:12], s.Path, lock)
			}
			return nil
		},
	}
}

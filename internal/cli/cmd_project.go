package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foundrydev/foundry/internal/db"
)

// newProjectCmd creates the project command group.
func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}
	cmd.AddCommand(newProjectCreateCmd())
	cmd.AddCommand(newProjectListCmd())
	cmd.AddCommand(newProjectStatusCmd())
	return cmd
}

func newProjectCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <project-id>",
		Short: "Create a project at gate G1",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, _ := cmd.Flags().GetString("owner")
			name, _ := cmd.Flags().GetString("name")
			apiOnly, _ := cmd.Flags().GetBool("api-only")
			aiML, _ := cmd.Flags().GetBool("ai-ml")
			if name == "" {
				name = args[0]
			}

			core, _, closer, err := openCore()
			if err != nil {
				return err
			}
			defer closer()

			row, err := core.CreateProject(cmd.Context(), args[0], name, owner, apiOnly, aiML)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(row)
			}
			successf("project %s created (owner %s, gate %s)", row.ID, row.Owner, row.CurrentGate)
			return nil
		},
	}
	cmd.Flags().String("owner", "", "project owner")
	cmd.Flags().String("name", "", "display name (defaults to the id)")
	cmd.Flags().Bool("api-only", false, "API-only product: G4 design review is skipped")
	cmd.Flags().Bool("ai-ml", false, "product has AI/ML features: extra G6 review agent")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newProjectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			core, _, closer, err := openCore()
			if err != nil {
				return err
			}
			defer closer()

			rows, err := db.ListProjects(cmd.Context(), core.Truth.DB())
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(rows)
			}
			if len(rows) == 0 {
				fmt.Println("no projects")
				return nil
			}
			for _, p := range rows {
				fmt.Printf("%-24s gate %-3s owner %s %s\n",
					p.ID, p.CurrentGate, p.Owner, dimText(p.CreatedAt.Format("2006-01-02")))
			}
			return nil
		},
	}
}

func newProjectStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <project-id>",
		Short: "Show the full project snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, _, closer, err := openCore()
			if err != nil {
				return err
			}
			defer closer()

			snap, err := core.Truth.GetState(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(snap)
			}

			p := snap.Project
			fmt.Printf("Project %s (%s)\n", p.ID, p.Name)
			fmt.Printf("  Owner:        %s\n", p.Owner)
			fmt.Printf("  Current gate: %s\n", p.CurrentGate)
			fmt.Printf("  Specs locked: %v\n", snap.SpecsLocked)
			fmt.Printf("  Gates:\n")
			for _, g := range snap.Gates {
				mark := dimText("·")
				switch g.Status {
				case "approved", "skipped":
					mark = okMark("✓")
				case "rejected":
					mark = failMark("✗")
				case "in_review":
					mark = warnMark("?")
				}
				fmt.Printf("    %s %-3s %s\n", mark, g.GateType, g.Status)
			}
			if len(snap.Tasks) > 0 {
				fmt.Printf("  Tasks:\n")
				for _, t := range snap.Tasks {
					fmt.Printf("    %-10s %-12s %s\n", t.Status, t.WorkerCategory, t.Description)
				}
			}
			return nil
		},
	}
}

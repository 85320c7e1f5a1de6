package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// newAssessCmd creates the assess command group.
func newAssessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Run parallel quality assessments",
	}
	cmd.AddCommand(newAssessStartCmd())
	cmd.AddCommand(newAssessStatusCmd())
	cmd.AddCommand(newAssessAggregateCmd())
	return cmd
}

func newAssessStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <project-id>",
		Short: "Start an assessment session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agents, _ := cmd.Flags().GetStringSlice("agent")

			core, _, closer, err := openCore()
			if err != nil {
				return err
			}
			defer closer()

			id, err := core.Assess.Start(cmd.Context(), args[0], agents)
			if err != nil {
				return err
			}
			successf("assessment %s started (%s)", id, strings.Join(agents, ", "))
			return nil
		},
	}
	cmd.Flags().StringSlice("agent", []string{"architecture", "security", "quality"},
		"assessment sections to run")
	return cmd
}

func newAssessStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <project-id>",
		Short: "Show assessment completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, _, closer, err := openCore()
			if err != nil {
				return err
			}
			defer closer()

			c, err := core.Assess.CheckCompletion(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(c)
			}
			fmt.Printf("completed %d/%d (failed %d, timed out %d)\n",
				c.Completed, c.Total, c.Failed, c.TimedOut)
			return nil
		},
	}
}

func newAssessAggregateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate <project-id>",
		Short: "Aggregate submitted sections into the weighted score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, _, closer, err := openCore()
			if err != nil {
				return err
			}
			defer closer()

			agg, err := core.Assess.Aggregate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(agg)
			}
			for section, s := range agg.ScoresBySection {
				fmt.Printf("  %-14s %.1f (weight %.1f)\n", section, s.Score, s.Weight)
			}
			fmt.Printf("Score: %.2f -> %s\n", agg.AggregatedScore, agg.Recommendation)
			return nil
		},
	}
}

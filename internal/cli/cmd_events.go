package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/foundrydev/foundry/internal/db"
)

// newEventsCmd creates the events command group.
func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Query the event log",
	}
	cmd.AddCommand(newEventsLogCmd())
	cmd.AddCommand(newEventsStatsCmd())
	return cmd
}

func newEventsLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log <project-id>",
		Short: "Show the project event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			types, _ := cmd.Flags().GetStringSlice("type")
			gateFilter, _ := cmd.Flags().GetString("gate")
			taskID, _ := cmd.Flags().GetString("task")
			afterSeq, _ := cmd.Flags().GetInt64("after-seq")
			limit, _ := cmd.Flags().GetInt("limit")

			core, _, closer, err := openCore()
			if err != nil {
				return err
			}
			defer closer()

			log, err := core.Truth.GetEventLog(cmd.Context(), args[0], db.QueryEventsOptions{
				Types:    types,
				Gate:     gateFilter,
				TaskID:   taskID,
				AfterSeq: afterSeq,
				Limit:    limit,
			})
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(log)
			}
			for _, e := range log {
				fmt.Printf("%6d %s %-22s %s\n",
					e.Seq, dimText(e.Timestamp.Format("2006-01-02 15:04:05")), e.Type, e.Actor)
			}
			return nil
		},
	}
	cmd.Flags().StringSlice("type", nil, "filter by event type")
	cmd.Flags().String("gate", "", "filter by gate")
	cmd.Flags().String("task", "", "filter by task id")
	cmd.Flags().Int64("after-seq", 0, "events after this sequence number")
	cmd.Flags().Int("limit", 0, "maximum events")
	return cmd
}

func newEventsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <project-id>",
		Short: "Show event counts by type and actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, _, closer, err := openCore()
			if err != nil {
				return err
			}
			defer closer()

			stats, err := core.Truth.GetEventLogStats(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(stats)
			}
			fmt.Printf("Total events: %d\n\nBy type:\n", stats.Total)
			for _, k := range sortedKeys(stats.ByType) {
				fmt.Printf("  %-24s %d\n", k, stats.ByType[k])
			}
			fmt.Printf("\nBy actor:\n")
			for _, k := range sortedKeys(stats.ByActor) {
				fmt.Printf("  %-24s %d\n", k, stats.ByActor[k])
			}
			return nil
		},
	}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

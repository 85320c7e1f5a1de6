package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/foundrydev/foundry/internal/db"
	"github.com/foundrydev/foundry/internal/queue"
)

// newTaskCmd creates the task command group.
func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage the task queue",
	}
	cmd.AddCommand(newTaskAddCmd())
	cmd.AddCommand(newTaskListCmd())
	cmd.AddCommand(newTaskRetryCmd())
	cmd.AddCommand(newTaskHistoryCmd())
	return cmd
}

func newTaskAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <project-id> <description>",
		Short: "Enqueue a task",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskType, _ := cmd.Flags().GetString("type")
			priority, _ := cmd.Flags().GetString("priority")
			category, _ := cmd.Flags().GetString("category")
			dependsOn, _ := cmd.Flags().GetStringSlice("depends-on")
			gateDep, _ := cmd.Flags().GetString("gate")
			specRefs, _ := cmd.Flags().GetStringSlice("spec-ref")

			core, _, closer, err := openCore()
			if err != nil {
				return err
			}
			defer closer()

			row, err := core.Queue.Enqueue(cmd.Context(), args[0], queue.EnqueueRequest{
				TaskType:       taskType,
				Priority:       priority,
				WorkerCategory: category,
				Description:    strings.Join(args[1:], " "),
				DependsOn:      dependsOn,
				GateDependency: gateDep,
				SpecRefs:       specRefs,
			})
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(row)
			}
			successf("task %s enqueued (%s)", row.ID, row.Status)
			if len(row.Blockers) > 0 {
				warnf("blocked on: %s", strings.Join(row.Blockers, ", "))
			}
			return nil
		},
	}
	cmd.Flags().String("type", "feature", "task type")
	cmd.Flags().String("priority", "medium", "priority (critical, high, medium, low)")
	cmd.Flags().String("category", "generation", "worker category (planning, generation, validation)")
	cmd.Flags().StringSlice("depends-on", nil, "task ids this task depends on")
	cmd.Flags().String("gate", "", "gate that must be approved before the task runs")
	cmd.Flags().StringSlice("spec-ref", nil, "spec references")
	return cmd
}

func newTaskListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")

			core, _, closer, err := openCore()
			if err != nil {
				return err
			}
			defer closer()

			rows, err := db.ListTasks(cmd.Context(), core.Truth.DB(), args[0], status)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(rows)
			}
			if len(rows) == 0 {
				fmt.Println("no tasks")
				return nil
			}
			for _, t := range rows {
				fmt.Printf("%-36s %-11s %-8s %-11s %s\n",
					t.ID, t.Status, t.Priority, t.WorkerCategory, t.Description)
			}
			return nil
		},
	}
	cmd.Flags().String("status", "", "filter by status")
	return cmd
}

func newTaskRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <project-id> <task-id>",
		Short: "Requeue a failed task with promoted priority",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, _, closer, err := openCore()
			if err != nil {
				return err
			}
			defer closer()

			row, err := core.Queue.Retry(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			successf("task %s requeued (priority %s, attempt %d/%d)",
				row.ID, row.Priority, row.Attempts, row.MaxAttempts)
			return nil
		},
	}
}

func newTaskHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <project-id> <task-id>",
		Short: "Show the event history of a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, _, closer, err := openCore()
			if err != nil {
				return err
			}
			defer closer()

			log, err := core.Queue.History(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(log)
			}
			for _, e := range log {
				fmt.Printf("%s %-16s %s\n",
					dimText(e.Timestamp.Format("2006-01-02 15:04:05")), e.Type, e.Actor)
			}
			return nil
		},
	}
}

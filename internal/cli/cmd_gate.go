package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foundrydev/foundry/internal/gate"
)

// newGateCmd creates the gate command group.
func newGateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Inspect and transition workflow gates",
	}
	cmd.AddCommand(newGateCurrentCmd())
	cmd.AddCommand(newGateReviewCmd())
	cmd.AddCommand(newGateApproveCmd())
	cmd.AddCommand(newGateRejectCmd())
	cmd.AddCommand(newGateSkipCmd())
	return cmd
}

func newGateCurrentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "current <project-id>",
		Short: "Show the active gate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, _, closer, err := openCore()
			if err != nil {
				return err
			}
			defer closer()

			g, err := core.Machine.CurrentGate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(g)
			}
			fmt.Printf("%s: %s (%s)\n", g.Type, g.Description, g.Status)
			fmt.Printf("  Passing criteria: %s\n", g.PassingCriteria)
			if g.BlockingReason != "" {
				warnf("blocked: %s", g.BlockingReason)
			}
			return nil
		},
	}
}

func newGateReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review <project-id> <gate>",
		Short: "Move a gate into review",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, _ := cmd.Flags().GetString("actor")
			data, _ := cmd.Flags().GetString("data")
			gateType, err := gate.ParseType(args[1])
			if err != nil {
				return err
			}

			core, _, closer, err := openCore()
			if err != nil {
				return err
			}
			defer closer()

			if err := core.Machine.TransitionToReview(cmd.Context(), args[0], gateType, actor, data); err != nil {
				return err
			}
			successf("gate %s is in review", gateType)
			return nil
		},
	}
	cmd.Flags().String("actor", "", "who requests the review")
	cmd.Flags().String("data", "", "review payload shown to the approver")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func newGateApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <project-id> <gate>",
		Short: "Approve a gate with typed confirmation",
		Long: `Approve a gate. The approval response must contain an explicit
approval phrase ("approved", "yes"); bare acknowledgments like "ok" or
"sure" are rejected so an approval is always a deliberate act.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, _ := cmd.Flags().GetString("actor")
			response, _ := cmd.Flags().GetString("response")
			notes, _ := cmd.Flags().GetString("notes")
			force, _ := cmd.Flags().GetBool("force-without-proofs")
			gateType, err := gate.ParseType(args[1])
			if err != nil {
				return err
			}

			core, _, closer, err := openCore()
			if err != nil {
				return err
			}
			defer closer()

			err = core.Machine.ApproveGate(cmd.Context(), args[0], gateType, actor, response, notes,
				gate.ApproveOptions{ForceWithoutProofs: force})
			if err != nil {
				return err
			}
			if force {
				warnf("gate %s approved WITHOUT proof verification", gateType)
			} else {
				successf("gate %s approved", gateType)
			}
			return nil
		},
	}
	cmd.Flags().String("actor", "", "approving authority")
	cmd.Flags().String("response", "", `typed approval phrase ("approved")`)
	cmd.Flags().String("notes", "", "review notes")
	cmd.Flags().Bool("force-without-proofs", false, "bypass proof checks (recorded on the event)")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("response")
	return cmd
}

func newGateRejectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <project-id> <gate>",
		Short: "Reject a gate with a blocking reason",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, _ := cmd.Flags().GetString("actor")
			reason, _ := cmd.Flags().GetString("reason")
			gateType, err := gate.ParseType(args[1])
			if err != nil {
				return err
			}

			core, _, closer, err := openCore()
			if err != nil {
				return err
			}
			defer closer()

			if err := core.Machine.RejectGate(cmd.Context(), args[0], gateType, actor, reason); err != nil {
				return err
			}
			failf("gate %s rejected: %s", gateType, reason)
			return nil
		},
	}
	cmd.Flags().String("actor", "", "rejecting authority")
	cmd.Flags().String("reason", "", "blocking reason")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newGateSkipCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skip <project-id> <gate>",
		Short: "Skip a gate under product policy",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, _ := cmd.Flags().GetString("actor")
			reason, _ := cmd.Flags().GetString("reason")
			gateType, err := gate.ParseType(args[1])
			if err != nil {
				return err
			}

			core, _, closer, err := openCore()
			if err != nil {
				return err
			}
			defer closer()

			if err := core.Machine.SkipGate(cmd.Context(), args[0], gateType, actor, reason); err != nil {
				return err
			}
			successf("gate %s skipped: %s", gateType, reason)
			return nil
		},
	}
	cmd.Flags().String("actor", "", "who applies the policy")
	cmd.Flags().String("reason", "", "policy reason")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

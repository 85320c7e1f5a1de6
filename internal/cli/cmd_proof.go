package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foundrydev/foundry/internal/gate"
	"github.com/foundrydev/foundry/internal/proof"
)

// newProofCmd creates the proof command group.
func newProofCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proof",
		Short: "Submit and verify proof artifacts",
	}
	cmd.AddCommand(newProofSubmitCmd())
	cmd.AddCommand(newProofVerifyCmd())
	cmd.AddCommand(newProofReportCmd())
	return cmd
}

func newProofSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <project-id> <file>",
		Short: "Submit an evidence file for a gate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			gateArg, _ := cmd.Flags().GetString("gate")
			proofType, _ := cmd.Flags().GetString("type")
			summary, _ := cmd.Flags().GetString("summary")
			result, _ := cmd.Flags().GetString("result")
			by, _ := cmd.Flags().GetString("by")
			gateType, err := gate.ParseType(gateArg)
			if err != nil {
				return err
			}

			core, _, closer, err := openCore()
			if err != nil {
				return err
			}
			defer closer()

			id, err := core.Proofs.Submit(cmd.Context(), proof.SubmitRequest{
				ProjectID:      args[0],
				Gate:           gateType,
				ProofType:      proofType,
				FilePath:       args[1],
				ContentSummary: summary,
				PassFail:       result,
				CreatedBy:      by,
			})
			if err != nil {
				return err
			}
			successf("proof %s submitted for %s", id, gateType)
			return nil
		},
	}
	cmd.Flags().String("gate", "", "gate the proof backs")
	cmd.Flags().String("type", "", "proof type (test_output, security_scan, ...)")
	cmd.Flags().String("summary", "", "one-line content summary")
	cmd.Flags().String("result", proof.Pass, "pass or fail")
	cmd.Flags().String("by", "", "submitting agent or person")
	_ = cmd.MarkFlagRequired("gate")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func newProofVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <artifact-id>",
		Short: "Re-verify an artifact against its stored hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, _, closer, err := openCore()
			if err != nil {
				return err
			}
			defer closer()

			res, err := core.Proofs.Verify(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(res)
			}
			if res.Valid {
				successf("artifact intact (%s)", res.StoredHash[:12])
			} else {
				failf("integrity violation: stored %s, current %s", res.StoredHash, res.CurrentHash)
			}
			return nil
		},
	}
}

func newProofReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <project-id>",
		Short: "Render the proof artifact report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, _, closer, err := openCore()
			if err != nil {
				return err
			}
			defer closer()

			report, err := core.Proofs.GenerateReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Print(report)
			return nil
		},
	}
}

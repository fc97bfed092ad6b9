package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/runward/runward/internal/core"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [run-id]",
	Short: "Refresh run status from remote evidence",
	Long: `Probe a run's target and update its ledger row from what the probe
proved: exit marker, pid liveness, heartbeat age, task progress. With
--all, every run in the ledger is reconciled in parallel. An
unreachable target never changes a run's status.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReconcile,
}

var reconcileAll bool

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().BoolVar(&reconcileAll, "all", false, "Reconcile every run")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	if reconcileAll == (len(args) == 1) {
		return fmt.Errorf("pass exactly one of a run id or --all")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if reconcileAll {
		summary, err := a.svc.Reconciler.ReconcileAll(cmd.Context(), core.Filter{})
		if err != nil {
			return err
		}
		fmt.Printf("reconciled %d runs: %d changed, %d without evidence, %d errors\n",
			summary.Total, summary.ChangedCount, summary.NoEvidenceCount, len(summary.Errors))
		for _, se := range summary.Errors {
			fmt.Printf("  %s: %v\n", se.RunID, se.Err)
		}
		return nil
	}

	res, err := a.svc.Reconciler.Reconcile(cmd.Context(), core.RunID(args[0]))
	if err != nil {
		return err
	}
	printReconcileResult(res.Record, res.Changed)
	return nil
}

func printReconcileResult(rec *core.RunRecord, changed bool) {
	line := fmt.Sprintf("%s: %s", rec.ID, rec.Status)
	if rec.FailureReason != "" {
		line += fmt.Sprintf(" (%s)", rec.FailureReason)
	}
	if !changed {
		line += " [unchanged]"
	}
	if rec.ProbeNote != "" {
		line += " - " + rec.ProbeNote
	}
	fmt.Println(line)
}

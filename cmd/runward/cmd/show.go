package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/runward/runward/internal/core"
)

var showCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run's ledger record",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var showJSON bool

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.svc.Get(cmd.Context(), core.RunID(args[0]))
	if err != nil {
		return err
	}

	if showJSON {
		return outputJSON(rec)
	}

	fmt.Printf("Run:      %s\n", rec.ID)
	fmt.Printf("Target:   %s\n", rec.Target)
	fmt.Printf("Task DB:  %s\n", rec.Target.TaskDB)
	fmt.Printf("Status:   %s\n", rec.Status)
	if rec.FailureReason != "" {
		fmt.Printf("Reason:   %s\n", rec.FailureReason)
	}
	if rec.ExitCode != nil {
		fmt.Printf("Exit:     %d\n", *rec.ExitCode)
	}
	fmt.Printf("Attempt:  %d\n", rec.Attempt)
	fmt.Printf("Nodes:    %d finished\n", rec.FinishedNodes)
	fmt.Printf("Started:  %s\n", rec.StartedAt.Local().Format(time.RFC3339))
	fmt.Printf("Updated:  %s\n", rec.UpdatedAt.Local().Format(time.RFC3339))
	return nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/runward/runward/internal/core"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Resume an interrupted run on its original target",
	Long: `Relaunch a failed or blocked run from where it stopped. The executor
re-probes the target first and refuses to act while a live process
still holds the pid marker, or when the task database shows less
progress than previously recorded.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.svc.Executor.Resume(cmd.Context(), core.RunID(args[0]))
	if err != nil {
		return err
	}
	fmt.Printf("resumed %s (attempt %d) on %s\n", rec.ID, rec.Attempt, rec.Target)
	return nil
}

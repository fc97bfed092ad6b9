package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/runward/runward/internal/core"
)

var purgeCmd = &cobra.Command{
	Use:   "purge <run-id>",
	Short: "Remove a run's ledger record",
	Long: `Delete a run from the host ledger. Remote artifacts (control files,
task database) are left alone. Only terminal runs can be purged unless
--force is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runPurge,
}

var purgeForce bool

func init() {
	rootCmd.AddCommand(purgeCmd)
	purgeCmd.Flags().BoolVar(&purgeForce, "force", false, "Purge even if the run is not terminal")
}

func runPurge(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	id := core.RunID(args[0])
	if err := a.svc.Purge(cmd.Context(), id, purgeForce); err != nil {
		return err
	}
	fmt.Printf("purged %s\n", id)
	return nil
}

package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/runward/runward/internal/core"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the ledger",
	Long:  "Show run counts by status and which failed runs need attention.",
	RunE:  runStatus,
}

var statusJSON bool

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.svc.List(cmd.Context(), core.Filter{})
	if err != nil {
		return err
	}

	counts := map[core.RunStatus]int{}
	var failed []*core.RunRecord
	for _, rec := range records {
		counts[rec.Status]++
		if rec.Status == core.StatusFailed {
			failed = append(failed, rec)
		}
	}

	if statusJSON {
		return outputJSON(map[string]any{
			"total":  len(records),
			"counts": counts,
			"failed": failed,
		})
	}

	fmt.Printf("%d runs tracked\n", len(records))
	for _, s := range []core.RunStatus{
		core.StatusPending, core.StatusRunning, core.StatusBlocked,
		core.StatusDone, core.StatusFailed,
	} {
		if counts[s] > 0 {
			fmt.Printf("  %-8s %d\n", s, counts[s])
		}
	}

	if len(failed) > 0 {
		fmt.Println("\nNeeds attention:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, rec := range failed {
			fmt.Fprintf(w, "  %s\t%s\t%s\tattempt %d\n",
				rec.ID, rec.Target.Host, rec.FailureReason, rec.Attempt)
		}
		return w.Flush()
	}
	return nil
}

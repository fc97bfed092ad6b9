package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/runward/runward/internal/core"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs in the ledger",
	RunE:  runList,
}

var (
	listJSON   bool
	listStatus string
	listHost   string
)

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status")
	listCmd.Flags().StringVar(&listHost, "host", "", "Filter by host")
}

func runList(cmd *cobra.Command, _ []string) error {
	var filter core.Filter
	if listStatus != "" {
		status, err := core.ParseStatus(listStatus)
		if err != nil {
			return err
		}
		filter.Status = status
	}
	filter.Host = listHost

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.svc.List(cmd.Context(), filter)
	if err != nil {
		return err
	}

	if listJSON {
		return outputJSON(records)
	}
	if len(records) == 0 {
		fmt.Println("No runs")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tHOST\tSTATUS\tREASON\tATTEMPT\tNODES\tUPDATED")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			rec.ID, rec.Target.Host, rec.Status, rec.FailureReason,
			rec.Attempt, rec.FinishedNodes,
			rec.UpdatedAt.Local().Format(time.RFC3339))
	}
	return w.Flush()
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/runward/runward/internal/core"
)

var planCmd = &cobra.Command{
	Use:   "plan <run-id>",
	Short: "Preview the resume plan for a run",
	Long: `Compute where a resume would continue from: which in-progress nodes
would be reset and which node runs first. Computing a plan changes
nothing, locally or remotely.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

var planJSON bool

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().BoolVar(&planJSON, "json", false, "Output as JSON")
}

func runPlan(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	plan, err := a.svc.Planner.Plan(cmd.Context(), core.RunID(args[0]))
	if err != nil {
		return err
	}

	if planJSON {
		return outputJSON(plan)
	}

	fmt.Printf("Run:         %s\n", plan.RunID)
	fmt.Printf("Progress:    %d/%d nodes finished\n", plan.FinishedNodes, plan.TotalNodes)
	if plan.ResumeFromNodeID == "" {
		fmt.Println("Resume from: (all nodes finished)")
	} else {
		fmt.Printf("Resume from: %s\n", plan.ResumeFromNodeID)
	}
	if len(plan.ResetNodeIDs) > 0 {
		fmt.Printf("Will reset:  %v\n", plan.ResetNodeIDs)
	}
	return nil
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/runward/runward/internal/core"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Dispatch new runs to remote targets",
	Long: `Create ledger records for new runs and launch the workflow runtime on
their targets. Targets come from a YAML manifest (-f) or from the
--host/--control-dir/--task-db flags for a single run.`,
	RunE: runDispatch,
}

var (
	dispatchManifest   string
	dispatchHost       string
	dispatchControlDir string
	dispatchTaskDB     string
)

func init() {
	rootCmd.AddCommand(dispatchCmd)
	dispatchCmd.Flags().StringVarP(&dispatchManifest, "file", "f", "", "YAML manifest of targets")
	dispatchCmd.Flags().StringVar(&dispatchHost, "host", "", "target host (user@host, or 'local')")
	dispatchCmd.Flags().StringVar(&dispatchControlDir, "control-dir", "", "remote control directory")
	dispatchCmd.Flags().StringVar(&dispatchTaskDB, "task-db", "", "remote task database path")
}

// targetManifest is the dispatch file format.
type targetManifest struct {
	Targets []core.Target `yaml:"targets"`
}

func runDispatch(cmd *cobra.Command, _ []string) error {
	targets, err := collectTargets()
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("no targets: pass -f or --host/--control-dir/--task-db")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	for _, target := range targets {
		rec, err := a.svc.Executor.Dispatch(cmd.Context(), target)
		if err != nil {
			return err
		}
		fmt.Printf("dispatched %s -> %s\n", rec.ID, target)
	}
	return nil
}

func collectTargets() ([]core.Target, error) {
	if dispatchManifest != "" {
		data, err := os.ReadFile(dispatchManifest)
		if err != nil {
			return nil, fmt.Errorf("reading manifest: %w", err)
		}
		var m targetManifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parsing manifest: %w", err)
		}
		return m.Targets, nil
	}

	if dispatchHost == "" && dispatchControlDir == "" && dispatchTaskDB == "" {
		return nil, nil
	}
	return []core.Target{{
		Host:       dispatchHost,
		ControlDir: dispatchControlDir,
		TaskDB:     dispatchTaskDB,
	}}, nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/runward/runward/internal/service"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Continuously reconcile all runs",
	Long: `Sweep every run at the configured interval. Local targets are also
watched through filesystem notifications, so an exit marker appearing
on disk triggers an immediate reconcile instead of waiting out the
interval. Runs until interrupted.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("watching runs every %s (ctrl-c to stop)\n", a.durations.ReconcileInterval)

	poller := service.NewPoller(a.svc.Reconciler, a.ledger, a.durations.ReconcileInterval, a.logger)
	if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

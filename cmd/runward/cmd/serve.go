package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/runward/runward/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the run status API",
	Long: `Expose the ledger over HTTP: run listing, inspection, resume-plan
previews, and reconcile triggers. The API never dispatches or resumes;
those stay on the CLI.`,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := web.DefaultConfig()
	cfg.Addr = a.cfg.Serve.Addr
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}
	cfg.AllowedOrigins = a.cfg.Serve.AllowedOrigins

	server := web.New(cfg, a.svc, a.logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/runward/runward/internal/adapters/ledger"
	"github.com/runward/runward/internal/adapters/remote"
	"github.com/runward/runward/internal/config"
	"github.com/runward/runward/internal/logging"
	"github.com/runward/runward/internal/service"
)

// settleDelay is how long the resume executor waits after confirming
// process death before copying the task database.
const settleDelay = 2 * time.Second

// app is the wired application shared by all commands.
type app struct {
	cfg       *config.Config
	durations config.Durations
	logger    *logging.Logger
	ledger    *ledger.SQLiteLedger
	svc       *service.Service
}

// newApp loads configuration and wires the full stack.
func newApp() (*app, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader = loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, err
	}
	durations := config.ParseDurations(cfg)

	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	store, err := ledger.NewSQLiteLedger(cfg.Ledger.Path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	runner := remote.NewRunner(cfg.Probe.SSHPath, cfg.Probe.SCPPath)
	tasks := remote.NewTaskDB(runner)
	probe := remote.NewProbe(runner, tasks, durations.ProbeTimeout, logger)
	launcher := remote.NewProcessLauncher(runner, cfg.Runtime.Command, cfg.Runtime.LogFile, logger)

	recon := service.NewReconciler(store, probe, service.ReconcilerConfig{
		StaleAfter:  durations.StaleAfter,
		Parallelism: cfg.Reconcile.Parallelism,
	}, logger)
	planner := service.NewPlanner(store, tasks, logger)
	executor := service.NewExecutor(store, probe, tasks, launcher,
		service.ExecutorConfig{Settle: settleDelay}, logger)

	return &app{
		cfg:       cfg,
		durations: durations,
		logger:    logger,
		ledger:    store,
		svc:       service.NewService(store, recon, planner, executor, logger),
	}, nil
}

// Close releases the ledger.
func (a *app) Close() {
	if err := a.ledger.Close(); err != nil {
		a.logger.Warn("closing ledger", "error", err)
	}
}

// outputJSON prints v as indented JSON on stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

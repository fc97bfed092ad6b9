package service

import (
	"context"
	"fmt"

	"github.com/runward/runward/internal/core"
	"github.com/runward/runward/internal/logging"
)

// Service bundles the run operations behind one facade for the CLI and the
// status API.
type Service struct {
	Ledger     core.Ledger
	Reconciler *Reconciler
	Planner    *Planner
	Executor   *Executor

	logger *logging.Logger
}

// NewService wires the facade.
func NewService(ledger core.Ledger, rec *Reconciler, pl *Planner, ex *Executor, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		Ledger:     ledger,
		Reconciler: rec,
		Planner:    pl,
		Executor:   ex,
		logger:     logger,
	}
}

// Get returns the ledger record for a run.
func (s *Service) Get(ctx context.Context, id core.RunID) (*core.RunRecord, error) {
	return s.Ledger.Get(ctx, id)
}

// List returns ledger records passing the filter.
func (s *Service) List(ctx context.Context, filter core.Filter) ([]*core.RunRecord, error) {
	return s.Ledger.List(ctx, filter)
}

// Purge removes a run's ledger row. Remote artifacts are left alone; only
// terminal runs can be purged unless force is set.
func (s *Service) Purge(ctx context.Context, id core.RunID, force bool) error {
	rec, err := s.Ledger.Get(ctx, id)
	if err != nil {
		return err
	}
	if !rec.Status.IsTerminal() && !force {
		return core.ErrState(core.CodeNotResumable,
			fmt.Sprintf("run %s is %s; purge terminal runs only, or use force", id, rec.Status))
	}
	if err := s.Ledger.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.WithRun(string(id)).Info("run purged", "status", string(rec.Status))
	return nil
}

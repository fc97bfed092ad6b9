package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/runward/runward/internal/core"
	"github.com/runward/runward/internal/logging"
)

// Reconciler refreshes ledger records from remote evidence. It is the only
// writer of run status outside the resume executor, and it only ever writes
// what a probe proved.
type Reconciler struct {
	ledger      core.Ledger
	probe       core.StateProbe
	staleAfter  time.Duration
	parallelism int
	logger      *logging.Logger
}

// ReconcilerConfig holds reconciler tuning.
type ReconcilerConfig struct {
	StaleAfter  time.Duration
	Parallelism int
}

// NewReconciler creates a reconciler.
func NewReconciler(ledger core.Ledger, probe core.StateProbe, cfg ReconcilerConfig, logger *logging.Logger) *Reconciler {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = core.DefaultStaleAfter
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Reconciler{
		ledger:      ledger,
		probe:       probe,
		staleAfter:  cfg.StaleAfter,
		parallelism: cfg.Parallelism,
		logger:      logger,
	}
}

// ReconcileResult reports one reconciliation: the refreshed record, the
// decision class, and whether the ledger row actually changed.
type ReconcileResult struct {
	Record  *core.RunRecord
	Outcome core.Outcome
	Changed bool
}

// Reconcile probes one run's target and refreshes its ledger row. Terminal
// runs are returned untouched without probing; an unreachable target leaves
// the row unchanged and reports no evidence.
func (r *Reconciler) Reconcile(ctx context.Context, id core.RunID) (*ReconcileResult, error) {
	rec, err := r.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.reconcileRecord(ctx, rec)
}

func (r *Reconciler) reconcileRecord(ctx context.Context, rec *core.RunRecord) (*ReconcileResult, error) {
	log := r.logger.WithRun(string(rec.ID)).WithTarget(rec.Target.String())

	if rec.Status.IsTerminal() {
		// done never changes; failed stays failed until an explicit resume.
		return &ReconcileResult{Record: rec, Outcome: outcomeForTerminal(rec.Status)}, nil
	}

	snap, err := r.probe.Probe(ctx, rec.Target)
	if err != nil {
		return nil, err
	}

	decision := core.Decide(rec, snap, r.staleAfter)
	rec.ProbeNote = decision.Note

	if decision.Outcome == core.OutcomeNoEvidence {
		log.Warn("no evidence, status unchanged", "status", string(rec.Status))
		return &ReconcileResult{Record: rec, Outcome: decision.Outcome}, nil
	}

	changed := rec.Status != decision.Status || rec.FailureReason != decision.Reason

	rec.Status = decision.Status
	rec.FailureReason = decision.Reason
	rec.ExitCode = decision.ExitCode

	if snap.Tasks.State == core.Present {
		finished := len(core.PartitionNodes(snap.Tasks.Value).Finished)
		if finished >= rec.FinishedNodes {
			rec.FinishedNodes = finished
		} else {
			// The count must never move backwards; keep the high-water mark
			// and let the resume planner surface the regression.
			log.Warn("finished-node count regressed",
				"observed", finished, "recorded", rec.FinishedNodes)
		}
	}

	if err := r.ledger.Upsert(ctx, rec); err != nil {
		return nil, err
	}

	if changed {
		log.Info("run reconciled",
			"status", string(rec.Status),
			"reason", string(rec.FailureReason),
			"finished_nodes", rec.FinishedNodes)
	}
	return &ReconcileResult{Record: rec, Outcome: decision.Outcome, Changed: changed}, nil
}

// ReconcileAll reconciles every run passing the filter, probing targets in
// parallel. One unreachable or failing target never stops the sweep; its
// error is recorded in the summary instead.
func (r *Reconciler) ReconcileAll(ctx context.Context, filter core.Filter) (*SweepSummary, error) {
	records, err := r.ledger.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	summary := &SweepSummary{}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)

	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			res, err := r.reconcileRecord(ctx, rec)

			mu.Lock()
			defer mu.Unlock()
			summary.Total++
			if err != nil {
				summary.Errors = append(summary.Errors, SweepError{RunID: rec.ID, Err: err})
				return nil
			}
			summary.Results = append(summary.Results, res)
			if res.Changed {
				summary.ChangedCount++
			}
			if res.Outcome == core.OutcomeNoEvidence {
				summary.NoEvidenceCount++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summary, nil
}

// SweepSummary aggregates one ReconcileAll pass.
type SweepSummary struct {
	Total           int
	ChangedCount    int
	NoEvidenceCount int
	Results         []*ReconcileResult
	Errors          []SweepError
}

// SweepError pairs a run with the error that kept it from reconciling.
type SweepError struct {
	RunID core.RunID
	Err   error
}

func outcomeForTerminal(s core.RunStatus) core.Outcome {
	if s == core.StatusDone {
		return core.OutcomeDone
	}
	return core.OutcomeFailed
}

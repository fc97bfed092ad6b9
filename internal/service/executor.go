package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/runward/runward/internal/core"
	"github.com/runward/runward/internal/logging"
)

// Executor performs the two writes that exist in the system: dispatching a
// new run and resuming an interrupted one. Everything else is read-only.
type Executor struct {
	ledger   core.Ledger
	probe    core.StateProbe
	tasks    core.TaskStore
	launcher core.Launcher
	settle   time.Duration
	logger   *logging.Logger
}

// ExecutorConfig holds executor tuning.
type ExecutorConfig struct {
	// Settle is how long to wait after confirming process death before
	// copying the task database, so the runtime's final WAL frame lands.
	Settle time.Duration
}

// NewExecutor creates an executor.
func NewExecutor(
	ledger core.Ledger,
	probe core.StateProbe,
	tasks core.TaskStore,
	launcher core.Launcher,
	cfg ExecutorConfig,
	logger *logging.Logger,
) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		ledger:   ledger,
		probe:    probe,
		tasks:    tasks,
		launcher: launcher,
		settle:   cfg.Settle,
		logger:   logger,
	}
}

// Dispatch creates a run bound to the target and launches its first attempt.
// The record is written before the launch so a crash between the two leaves
// a pending row that the next reconciliation resolves.
func (e *Executor) Dispatch(ctx context.Context, target core.Target) (*core.RunRecord, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	rec := &core.RunRecord{
		ID:        core.RunID(uuid.NewString()),
		Target:    target,
		Status:    core.StatusPending,
		Attempt:   1,
		StartedAt: time.Now().UTC(),
	}
	if err := e.ledger.Upsert(ctx, rec); err != nil {
		return nil, err
	}

	pid, err := e.launcher.Launch(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("dispatching run %s: %w", rec.ID, err)
	}

	rec.Status = core.StatusRunning
	if err := e.ledger.Upsert(ctx, rec); err != nil {
		return nil, err
	}

	e.logger.WithRun(string(rec.ID)).Info("run dispatched",
		"target", target.String(), "pid", pid)
	return rec, nil
}

// Resume relaunches an interrupted run against its original target. The
// sequence re-verifies every precondition at the last moment:
//
//  1. the run must be in a resumable status
//  2. a fresh probe must confirm no live process holds the pid marker
//  3. the resume plan must not regress below the recorded progress
//
// Only then are in-progress nodes reset and the runtime relaunched. Any
// violation surfaces as a conflict and changes nothing remote.
func (e *Executor) Resume(ctx context.Context, id core.RunID) (*core.RunRecord, error) {
	rec, err := e.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	log := e.logger.WithRun(string(id)).WithTarget(rec.Target.String())

	if !rec.Status.Resumable() {
		return nil, core.ErrState(core.CodeNotResumable,
			fmt.Sprintf("run %s is %s; only failed or blocked runs can resume", id, rec.Status))
	}

	snap, err := e.probe.Probe(ctx, rec.Target)
	if err != nil {
		return nil, err
	}
	if snap.TargetUnreachable() || snap.Process.State == core.Unreachable {
		// Cannot prove the process is dead, so nothing may be touched.
		return nil, core.ErrProbeUnreachable(rec.Target, nil)
	}
	if snap.ProcessAlive() {
		return nil, core.ErrResumeConflict(
			"run %s: process %d is still alive on %s",
			id, snap.Process.Value.PID, rec.Target.Host)
	}
	if snap.Exit.State == core.Present && snap.Exit.Value.Code == 0 {
		// Completed since the last reconciliation. Record it; there is
		// nothing to resume.
		rec.Status = core.StatusDone
		rec.FailureReason = ""
		rec.ExitCode = nil
		if err := e.ledger.Upsert(ctx, rec); err != nil {
			return nil, err
		}
		return nil, core.ErrResumeConflict("run %s completed since last reconciliation", id)
	}

	// Give the dead runtime's final WAL frame a moment to land before the
	// task database is copied.
	if e.settle > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.settle):
		}
	}

	nodes, err := e.tasks.LoadNodes(ctx, rec.Target)
	if err != nil {
		return nil, err
	}
	plan, err := core.BuildResumePlan(id, nodes, rec.FinishedNodes)
	if err != nil {
		return nil, err
	}

	if len(plan.ResetNodeIDs) > 0 {
		if err := e.tasks.ResetNodes(ctx, rec.Target, plan.ResetNodeIDs); err != nil {
			return nil, err
		}
		log.Info("reset in-progress nodes", "nodes", plan.ResetNodeIDs)
	}

	rec, err = e.ledger.AppendAttempt(ctx, id)
	if err != nil {
		return nil, err
	}

	pid, err := e.launcher.Launch(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("resuming run %s: %w", id, err)
	}

	rec.Status = core.StatusRunning
	rec.FailureReason = ""
	rec.ExitCode = nil
	rec.FinishedNodes = plan.FinishedNodes
	if err := e.ledger.Upsert(ctx, rec); err != nil {
		return nil, err
	}

	log.Info("run resumed",
		"attempt", rec.Attempt,
		"pid", pid,
		"resume_from", plan.ResumeFromNodeID,
		"finished_nodes", plan.FinishedNodes)
	return rec, nil
}

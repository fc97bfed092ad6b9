package service

import (
	"context"

	"github.com/runward/runward/internal/core"
	"github.com/runward/runward/internal/logging"
)

// Planner derives resume plans from the remote task database. Plans are
// ephemeral: computing one changes nothing anywhere.
type Planner struct {
	ledger core.Ledger
	tasks  core.TaskStore
	logger *logging.Logger
}

// NewPlanner creates a planner.
func NewPlanner(ledger core.Ledger, tasks core.TaskStore, logger *logging.Logger) *Planner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Planner{ledger: ledger, tasks: tasks, logger: logger}
}

// Plan computes the continuation point for a run. A done run has nothing to
// continue; any other status is plannable, including running, so operators
// can preview what a resume would do.
func (p *Planner) Plan(ctx context.Context, id core.RunID) (*core.ResumePlan, error) {
	rec, err := p.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status == core.StatusDone {
		return nil, core.ErrState(core.CodeNotResumable,
			"run "+string(id)+" is done; nothing to resume")
	}

	nodes, err := p.tasks.LoadNodes(ctx, rec.Target)
	if err != nil {
		return nil, err
	}

	plan, err := core.BuildResumePlan(id, nodes, rec.FinishedNodes)
	if err != nil {
		return nil, err
	}

	p.logger.WithRun(string(id)).Debug("resume plan computed",
		"total", plan.TotalNodes,
		"finished", plan.FinishedNodes,
		"resume_from", plan.ResumeFromNodeID,
		"resets", len(plan.ResetNodeIDs))
	return plan, nil
}

package core

// ResumePlan is the derived continuation point for a non-terminal run.
// It is never persisted; the task database and ledger stay authoritative.
type ResumePlan struct {
	RunID      RunID `json:"run_id"`
	TotalNodes int   `json:"total_nodes"`

	// FinishedNodes counts nodes the plan leaves untouched. It must never
	// fall below the count observed at the previous reconciliation.
	FinishedNodes int `json:"finished_nodes"`

	// ResumeFromNodeID is the lowest-ordered node not yet finished.
	// Empty when every node is finished.
	ResumeFromNodeID string `json:"resume_from_node_id,omitempty"`

	// ResetNodeIDs are the in-progress nodes to demote back to pending.
	// An in-progress node gives no guarantee its side effects completed,
	// so it is re-attempted; finished and pending nodes are never touched.
	ResetNodeIDs []string `json:"reset_node_ids,omitempty"`
}

// BuildResumePlan derives a plan from the current task database contents.
// prevFinished is the finished-node count from the previous observation;
// a regression below it means the database was corrupted or truncated and
// the plan fails closed with a ResumeConflict.
func BuildResumePlan(id RunID, nodes []TaskNodeState, prevFinished int) (*ResumePlan, error) {
	p := PartitionNodes(nodes)

	if len(p.Finished) < prevFinished {
		return nil, ErrResumeConflict(
			"task database regressed: %d finished nodes observed, previously %d",
			len(p.Finished), prevFinished,
		)
	}

	plan := &ResumePlan{
		RunID:         id,
		TotalNodes:    p.Total(),
		FinishedNodes: len(p.Finished),
	}
	for _, n := range p.InProgress {
		plan.ResetNodeIDs = append(plan.ResetNodeIDs, n.NodeID)
	}
	if first, ok := p.FirstUnfinished(); ok {
		plan.ResumeFromNodeID = first.NodeID
	}
	return plan, nil
}

package core

import "testing"

func nodes(states ...NodeState) []TaskNodeState {
	out := make([]TaskNodeState, len(states))
	for i, s := range states {
		out[i] = TaskNodeState{
			NodeID: nodeName(i + 1),
			Ord:    i + 1,
			State:  s,
		}
	}
	return out
}

func nodeName(n int) string {
	return "node-" + string(rune('0'+n/10)) + string(rune('0'+n%10))
}

func TestBuildResumePlan_PartialCrash(t *testing.T) {
	// Nodes 1-14 finished, node 15 in-progress, nodes 16-18 pending.
	states := make([]NodeState, 0, 18)
	for i := 0; i < 14; i++ {
		states = append(states, NodeFinished)
	}
	states = append(states, NodeInProgress)
	states = append(states, NodePending, NodePending, NodePending)

	plan, err := BuildResumePlan("r1", nodes(states...), 14)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.TotalNodes != 18 {
		t.Fatalf("expected 18 total nodes, got %d", plan.TotalNodes)
	}
	if plan.FinishedNodes != 14 {
		t.Fatalf("expected 14 finished nodes, got %d", plan.FinishedNodes)
	}
	if len(plan.ResetNodeIDs) != 1 || plan.ResetNodeIDs[0] != nodeName(15) {
		t.Fatalf("expected reset of node 15 only, got %v", plan.ResetNodeIDs)
	}
	if plan.ResumeFromNodeID != nodeName(15) {
		t.Fatalf("expected resume from node 15, got %s", plan.ResumeFromNodeID)
	}
}

func TestBuildResumePlan_NeverTouchesFinishedOrPending(t *testing.T) {
	plan, err := BuildResumePlan("r1", nodes(NodeFinished, NodePending, NodeFailed), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.ResetNodeIDs) != 0 {
		t.Fatalf("expected no resets, got %v", plan.ResetNodeIDs)
	}
	if plan.ResumeFromNodeID != nodeName(2) {
		t.Fatalf("expected resume from first unfinished node, got %s", plan.ResumeFromNodeID)
	}
}

func TestBuildResumePlan_RegressionFailsClosed(t *testing.T) {
	_, err := BuildResumePlan("r1", nodes(NodeFinished, NodePending), 5)
	if err == nil {
		t.Fatalf("expected resume conflict on finished-count regression")
	}
	if !IsCategory(err, ErrCatConflict) {
		t.Fatalf("expected conflict category, got %s", GetCategory(err))
	}
}

func TestBuildResumePlan_AllFinished(t *testing.T) {
	plan, err := BuildResumePlan("r1", nodes(NodeFinished, NodeFinished), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.ResumeFromNodeID != "" {
		t.Fatalf("expected no resume node when everything is finished")
	}
}

func TestPartitionNodes_OrderPreserved(t *testing.T) {
	in := []TaskNodeState{
		{NodeID: "c", Ord: 3, State: NodePending},
		{NodeID: "a", Ord: 1, State: NodeInProgress},
		{NodeID: "b", Ord: 2, State: NodeInProgress},
	}
	p := PartitionNodes(in)
	if len(p.InProgress) != 2 || p.InProgress[0].NodeID != "a" {
		t.Fatalf("expected in-progress nodes in dependency order, got %v", p.InProgress)
	}
	first, ok := p.FirstUnfinished()
	if !ok || first.NodeID != "a" {
		t.Fatalf("expected first unfinished node a, got %v", first)
	}
}

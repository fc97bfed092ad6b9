package core

import (
	"fmt"
	"sort"
	"time"
)

// NodeState is the lifecycle state of one unit of work in the remote task
// database.
type NodeState string

const (
	NodePending    NodeState = "pending"
	NodeInProgress NodeState = "in-progress"
	NodeFinished   NodeState = "finished"
	NodeFailed     NodeState = "failed"
)

// ValidNodeState checks if a node state string is valid.
func ValidNodeState(s NodeState) bool {
	switch s {
	case NodePending, NodeInProgress, NodeFinished, NodeFailed:
		return true
	default:
		return false
	}
}

// ParseNodeState converts a string to a NodeState with validation.
func ParseNodeState(s string) (NodeState, error) {
	ns := NodeState(s)
	if !ValidNodeState(ns) {
		return "", fmt.Errorf("invalid node state: %s", s)
	}
	return ns, nil
}

// TaskNodeState is one row of the remote task database. The database is
// owned by the workflow runtime; this side only reads it, except for the
// resume executor's in-progress resets.
type TaskNodeState struct {
	NodeID string `json:"node_id"`

	// Ord is the node's position in dependency order. Lower runs first.
	Ord int `json:"ord"`

	State         NodeState  `json:"state"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
}

// NodePartition groups task nodes by state, preserving dependency order
// inside each group.
type NodePartition struct {
	Finished   []TaskNodeState
	InProgress []TaskNodeState
	Pending    []TaskNodeState
	Failed     []TaskNodeState
}

// PartitionNodes sorts nodes by dependency order and splits them by state.
func PartitionNodes(nodes []TaskNodeState) NodePartition {
	sorted := make([]TaskNodeState, len(nodes))
	copy(sorted, nodes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Ord < sorted[j].Ord
	})

	var p NodePartition
	for _, n := range sorted {
		switch n.State {
		case NodeFinished:
			p.Finished = append(p.Finished, n)
		case NodeInProgress:
			p.InProgress = append(p.InProgress, n)
		case NodeFailed:
			p.Failed = append(p.Failed, n)
		default:
			p.Pending = append(p.Pending, n)
		}
	}
	return p
}

// Total returns the node count across all states.
func (p NodePartition) Total() int {
	return len(p.Finished) + len(p.InProgress) + len(p.Pending) + len(p.Failed)
}

// FirstUnfinished returns the lowest-ordered node not in finished state.
// ok is false when every node is finished.
func (p NodePartition) FirstUnfinished() (TaskNodeState, bool) {
	var first TaskNodeState
	found := false
	for _, group := range [][]TaskNodeState{p.InProgress, p.Pending, p.Failed} {
		for _, n := range group {
			if !found || n.Ord < first.Ord {
				first = n
				found = true
			}
		}
	}
	return first, found
}

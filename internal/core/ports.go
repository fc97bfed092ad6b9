package core

import (
	"context"
)

// =============================================================================
// Ledger Port
// =============================================================================

// Ledger is the host-persisted table of run records: the only host-side
// authority on what we last believed about each run. Writes are single-row,
// last-writer-wins on UpdatedAt; runs are independent, so no cross-run
// transaction exists.
type Ledger interface {
	// Get retrieves a run record by id. Returns a not-found error when the
	// id is unknown.
	Get(ctx context.Context, id RunID) (*RunRecord, error)

	// List returns records passing the filter, most recently updated first.
	List(ctx context.Context, filter Filter) ([]*RunRecord, error)

	// Upsert inserts or updates a record. An upsert that would change
	// Target for an existing id is rejected and the stored record is left
	// unchanged.
	Upsert(ctx context.Context, record *RunRecord) error

	// AppendAttempt increments the attempt counter by exactly one and
	// returns the updated record.
	AppendAttempt(ctx context.Context, id RunID) (*RunRecord, error)

	// Delete removes a run record. Remote artifacts are untouched.
	Delete(ctx context.Context, id RunID) error

	// Close releases the underlying store.
	Close() error
}

// =============================================================================
// Remote Ports
// =============================================================================

// StateProbe reads the remote evidence for a target: exit marker, pid
// liveness, heartbeat, and task-level progress. Pure read, no side effects.
// An individually missing artifact degrades to Absent in the snapshot; a
// channel failure yields the all-unreachable snapshot, never an error that
// could be mistaken for "process dead".
type StateProbe interface {
	Probe(ctx context.Context, target Target) (ProbeSnapshot, error)
}

// TaskStore gives narrowly-scoped access to the remote task database. Reads
// serve the probe and the resume planner; ResetNodes is the executor's
// single sanctioned write, applied only while no live process owns the
// database.
type TaskStore interface {
	// LoadNodes reads all task node rows. Returns a database error when
	// the store is corrupt or truncated.
	LoadNodes(ctx context.Context, target Target) ([]TaskNodeState, error)

	// ResetNodes demotes the given in-progress nodes back to pending.
	ResetNodes(ctx context.Context, target Target, nodeIDs []string) error
}

// Launcher starts the remote workflow process against a run's existing
// target paths and writes the fresh pid marker and initial heartbeat.
type Launcher interface {
	// Launch starts attempt n of the run and returns the new process pid.
	Launch(ctx context.Context, record *RunRecord) (int, error)
}

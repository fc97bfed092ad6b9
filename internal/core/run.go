package core

import (
	"fmt"
	"time"
)

// RunID identifies one logical dispatch of a workflow to a remote target.
// Assigned at dispatch time, never reused.
type RunID string

// String returns the string representation of the run ID.
func (id RunID) String() string {
	return string(id)
}

// RunStatus represents the host's last authoritative belief about a run.
type RunStatus string

const (
	// StatusPending is the initial state between record creation and launch.
	StatusPending RunStatus = "pending"

	// StatusRunning means the remote process was alive at last reconciliation.
	StatusRunning RunStatus = "running"

	// StatusBlocked means the run is waiting on something outside the
	// workflow's control (operator input, an external gate).
	StatusBlocked RunStatus = "blocked"

	// StatusDone is terminal success: the exit marker carried code 0.
	StatusDone RunStatus = "done"

	// StatusFailed is terminal until an explicit resume succeeds.
	StatusFailed RunStatus = "failed"
)

// ValidStatus checks if a status string is valid.
func ValidStatus(s RunStatus) bool {
	switch s {
	case StatusPending, StatusRunning, StatusBlocked, StatusDone, StatusFailed:
		return true
	default:
		return false
	}
}

// ParseStatus converts a string to a RunStatus with validation.
func ParseStatus(s string) (RunStatus, error) {
	st := RunStatus(s)
	if !ValidStatus(st) {
		return "", fmt.Errorf("invalid run status: %s", s)
	}
	return st, nil
}

// IsTerminal reports whether the status admits no further reconciliation.
// A failed run stays failed until an explicit resume succeeds.
func (s RunStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Resumable reports whether a resume may be attempted from this status.
func (s RunStatus) Resumable() bool {
	return s == StatusFailed || s == StatusBlocked
}

// FailureReason records why a run was marked failed.
type FailureReason string

const (
	// ReasonExitNonZero: the exit marker carried a non-zero code.
	ReasonExitNonZero FailureReason = "exit_nonzero"

	// ReasonHeartbeatStale: the process was alive but stopped reporting.
	// A hung process and a healthy one are indistinguishable otherwise.
	ReasonHeartbeatStale FailureReason = "heartbeat_stale"

	// ReasonStaleProcess: no exit marker and the PID is gone (or the pid
	// file itself is missing).
	ReasonStaleProcess FailureReason = "stale_process"
)

// Target locates the remote execution context a run is permanently bound to.
// It is write-once: resuming must reuse it verbatim.
type Target struct {
	// Host is the remote machine, in ssh destination form (user@host).
	// The literal "local" selects the local filesystem adapter.
	Host string `json:"host" yaml:"host"`

	// ControlDir holds the pid, heartbeat and exit markers on the remote.
	ControlDir string `json:"control_dir" yaml:"control_dir"`

	// TaskDB is the path of the remote task database.
	TaskDB string `json:"task_db" yaml:"task_db"`
}

// Validate checks that all target fields are present.
func (t Target) Validate() error {
	if t.Host == "" {
		return ErrValidation(CodeInvalidTarget, "target host is required")
	}
	if t.ControlDir == "" {
		return ErrValidation(CodeInvalidTarget, "target control dir is required")
	}
	if t.TaskDB == "" {
		return ErrValidation(CodeInvalidTarget, "target task db is required")
	}
	return nil
}

// IsLocal reports whether the target lives on the host itself.
func (t Target) IsLocal() bool {
	return t.Host == "local" || t.Host == "localhost"
}

// String returns a compact locator for logs.
func (t Target) String() string {
	return fmt.Sprintf("%s:%s", t.Host, t.ControlDir)
}

// RunRecord is the ledger's row for one dispatched execution. The ledger is
// a cache of remote truth: it is only ever refreshed from probe evidence,
// never the reverse.
type RunRecord struct {
	ID            RunID         `json:"id"`
	Target        Target        `json:"target"`
	Status        RunStatus     `json:"status"`
	FailureReason FailureReason `json:"failure_reason,omitempty"`
	ExitCode      *int          `json:"exit_code,omitempty"`

	// Attempt increments exactly once per (re)launch.
	Attempt int `json:"attempt"`

	// FinishedNodes is the finished-node count at the last reconciliation
	// that could read the task database. Resume plans must never fall
	// below it.
	FinishedNodes int `json:"finished_nodes"`

	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// ProbeNote carries a transient observation from the most recent
	// reconciliation (e.g. an unreachable target). Not persisted.
	ProbeNote string `json:"probe_note,omitempty"`
}

// Clone returns a deep copy of the record.
func (r *RunRecord) Clone() *RunRecord {
	c := *r
	if r.ExitCode != nil {
		code := *r.ExitCode
		c.ExitCode = &code
	}
	return &c
}

// Filter narrows a ledger listing.
type Filter struct {
	Status RunStatus // empty matches all
	Host   string    // empty matches all
}

// Matches reports whether a record passes the filter.
func (f Filter) Matches(r *RunRecord) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Host != "" && r.Target.Host != f.Host {
		return false
	}
	return true
}

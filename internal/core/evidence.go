package core

import "time"

// Presence classifies a single remote artifact. Modeling the three cases
// explicitly keeps the reconciler's priority match exhaustive: a missing
// heartbeat and an unreachable VM mean very different things.
type Presence int

const (
	// Unreachable: the channel to the target failed before the artifact
	// could be read. Carries no information about the artifact itself.
	Unreachable Presence = iota

	// Absent: the target was reachable and the artifact does not exist.
	Absent

	// Present: the artifact was read successfully.
	Present
)

// String returns the presence label.
func (p Presence) String() string {
	switch p {
	case Present:
		return "present"
	case Absent:
		return "absent"
	default:
		return "unreachable"
	}
}

// Artifact wraps one piece of remote evidence with its presence state.
// Value is meaningful only when State == Present.
type Artifact[T any] struct {
	State Presence
	Value T
}

// PresentArtifact wraps a value that was read successfully.
func PresentArtifact[T any](v T) Artifact[T] {
	return Artifact[T]{State: Present, Value: v}
}

// AbsentArtifact marks an artifact that does not exist on a reachable target.
func AbsentArtifact[T any]() Artifact[T] {
	return Artifact[T]{State: Absent}
}

// UnreachableArtifact marks an artifact the channel failure hid from us.
func UnreachableArtifact[T any]() Artifact[T] {
	return Artifact[T]{State: Unreachable}
}

// ExitMarker is written exactly once at remote process termination.
// Its presence is authoritative: nothing else needs to be inferred.
type ExitMarker struct {
	Code int `json:"code"`
}

// HeartbeatSnapshot is the periodic liveness record written by the remote
// process, roughly every 30 seconds. Absence or age is signal, not an error.
type HeartbeatSnapshot struct {
	Timestamp time.Time `json:"timestamp"`
	PID       int       `json:"pid"`
	Phase     string    `json:"phase,omitempty"`
}

// Age returns how old the heartbeat is relative to now.
func (h HeartbeatSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(h.Timestamp)
}

// ProcessInfo is the pid marker plus a liveness check against the remote
// process table.
type ProcessInfo struct {
	PID   int  `json:"pid"`
	Alive bool `json:"alive"`
}

// ProbeSnapshot is everything one probe call could learn about a target.
// Pure read; each artifact degrades independently.
type ProbeSnapshot struct {
	Exit      Artifact[ExitMarker]
	Heartbeat Artifact[HeartbeatSnapshot]
	Process   Artifact[ProcessInfo]
	Tasks     Artifact[[]TaskNodeState]

	// ProbedAt is the host-side read time, used for heartbeat aging.
	ProbedAt time.Time
}

// TargetUnreachable reports whether the channel itself failed: no artifact
// could be read at all. Distinct from "process confirmed dead".
func (s ProbeSnapshot) TargetUnreachable() bool {
	return s.Exit.State == Unreachable &&
		s.Heartbeat.State == Unreachable &&
		s.Process.State == Unreachable
}

// ProcessAlive reports whether a live process was confirmed holding the pid
// marker. A missing pid file counts as not alive.
func (s ProbeSnapshot) ProcessAlive() bool {
	return s.Process.State == Present && s.Process.Value.Alive
}

// UnreachableSnapshot builds the no-evidence snapshot for a channel failure.
func UnreachableSnapshot(now time.Time) ProbeSnapshot {
	return ProbeSnapshot{
		Exit:      UnreachableArtifact[ExitMarker](),
		Heartbeat: UnreachableArtifact[HeartbeatSnapshot](),
		Process:   UnreachableArtifact[ProcessInfo](),
		Tasks:     UnreachableArtifact[[]TaskNodeState](),
		ProbedAt:  now,
	}
}

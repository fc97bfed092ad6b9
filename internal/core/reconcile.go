package core

import (
	"fmt"
	"time"
)

// DefaultStaleAfter is the heartbeat age beyond which a live process is no
// longer trusted. The remote runtime writes roughly every 30s, so this
// allows four missed beats.
const DefaultStaleAfter = 120 * time.Second

// Outcome is the result class of one reconciliation decision.
type Outcome int

const (
	// OutcomeNoEvidence: the target was unreachable; status must not change.
	OutcomeNoEvidence Outcome = iota

	// OutcomeRunning: a live, recently-heartbeating process was confirmed.
	OutcomeRunning

	// OutcomeDone: the exit marker carried code 0.
	OutcomeDone

	// OutcomeFailed: the run is dead, hung, or exited non-zero.
	OutcomeFailed
)

// Decision is the pure output of matching probe evidence against the
// staleness policy. Applying it to the ledger is the caller's job.
type Decision struct {
	Outcome  Outcome
	Status   RunStatus
	Reason   FailureReason
	ExitCode *int

	// Note explains the decision for operators; surfaced, never persisted.
	Note string
}

// Decide derives the authoritative status for a run from one probe snapshot.
// Evaluated in strict priority order, first match wins:
//
//  1. Exit marker present, code 0           -> done
//  2. Exit marker present, code != 0        -> failed (exit_nonzero)
//  3. Target unreachable                    -> no evidence, keep prior status
//  4. PID alive, heartbeat fresh            -> running
//  5. PID alive, heartbeat stale or missing -> failed (heartbeat_stale)
//  6. PID dead or pid file missing          -> failed (stale_process)
//
// The exit code is the strongest signal and always wins. PID liveness beats
// the heartbeat: a fresh heartbeat with a dead PID is the last write racing
// a crash and must not be trusted. Heartbeat age only decides between the
// two cases where the PID is confirmed alive.
func Decide(prior *RunRecord, snap ProbeSnapshot, staleAfter time.Duration) Decision {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}

	if snap.Exit.State == Present {
		code := snap.Exit.Value.Code
		if code == 0 {
			return Decision{Outcome: OutcomeDone, Status: StatusDone}
		}
		return Decision{
			Outcome:  OutcomeFailed,
			Status:   StatusFailed,
			Reason:   ReasonExitNonZero,
			ExitCode: &code,
			Note:     fmt.Sprintf("exit marker code %d", code),
		}
	}

	// No exit marker. Without a confirmed process check there is no
	// evidence either way; do not guess.
	if snap.TargetUnreachable() || snap.Process.State == Unreachable {
		return Decision{
			Outcome: OutcomeNoEvidence,
			Status:  prior.Status,
			Note:    "probe_failed: target unreachable, status unchanged",
		}
	}

	if snap.ProcessAlive() {
		if snap.Heartbeat.State == Present {
			age := snap.Heartbeat.Value.Age(snap.ProbedAt)
			if age < staleAfter {
				return Decision{Outcome: OutcomeRunning, Status: StatusRunning}
			}
			return Decision{
				Outcome: OutcomeFailed,
				Status:  StatusFailed,
				Reason:  ReasonHeartbeatStale,
				Note:    fmt.Sprintf("heartbeat age %s exceeds %s", age.Round(time.Second), staleAfter),
			}
		}
		// Alive process that never wrote (or lost) its heartbeat is as
		// untrustworthy as one that stopped reporting.
		return Decision{
			Outcome: OutcomeFailed,
			Status:  StatusFailed,
			Reason:  ReasonHeartbeatStale,
			Note:    "process alive but no heartbeat on record",
		}
	}

	return Decision{
		Outcome: OutcomeFailed,
		Status:  StatusFailed,
		Reason:  ReasonStaleProcess,
		Note:    "no live process holds the pid marker",
	}
}

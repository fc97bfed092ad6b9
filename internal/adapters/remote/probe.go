package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/runward/runward/internal/core"
	"github.com/runward/runward/internal/logging"
)

// Control file names inside a run's control directory. The remote workflow
// process owns pid and heartbeat; exit is written once by its shutdown path.
const (
	PidFileName       = "pid"
	HeartbeatFileName = "heartbeat.json"
	ExitFileName      = "exit"
)

// Probe implements core.StateProbe over a Runner channel. Each artifact is
// read independently so one missing file never hides the others; only a
// channel failure collapses the snapshot to all-unreachable.
type Probe struct {
	runner  Runner
	tasks   core.TaskStore
	timeout time.Duration
	log     *logging.Logger
}

// NewProbe creates a probe bounded by timeout per call.
func NewProbe(runner Runner, tasks core.TaskStore, timeout time.Duration, log *logging.Logger) *Probe {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Probe{runner: runner, tasks: tasks, timeout: timeout, log: log}
}

// Probe reads the target's evidence. It never writes.
func (p *Probe) Probe(ctx context.Context, target core.Target) (core.ProbeSnapshot, error) {
	if err := target.Validate(); err != nil {
		return core.ProbeSnapshot{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	now := time.Now().UTC()
	snap := core.ProbeSnapshot{ProbedAt: now}

	// The exit marker is read first: if the channel is already down we can
	// stop without paying for the remaining round trips.
	exit, err := p.readExit(ctx, target)
	if errors.Is(err, ErrUnreachable) {
		p.log.Warn("target unreachable", "host", target.Host, "error", err)
		return core.UnreachableSnapshot(now), nil
	}
	if err != nil {
		return core.ProbeSnapshot{}, err
	}
	snap.Exit = exit

	proc, err := p.readProcess(ctx, target)
	if errors.Is(err, ErrUnreachable) {
		snap.Process = core.UnreachableArtifact[core.ProcessInfo]()
	} else if err != nil {
		return core.ProbeSnapshot{}, err
	} else {
		snap.Process = proc
	}

	hb, err := p.readHeartbeat(ctx, target)
	if errors.Is(err, ErrUnreachable) {
		snap.Heartbeat = core.UnreachableArtifact[core.HeartbeatSnapshot]()
	} else if err != nil {
		return core.ProbeSnapshot{}, err
	} else {
		snap.Heartbeat = hb
	}

	snap.Tasks = p.readTasks(ctx, target)

	return snap, nil
}

func (p *Probe) readExit(ctx context.Context, target core.Target) (core.Artifact[core.ExitMarker], error) {
	data, err := p.runner.ReadFile(ctx, target, path.Join(target.ControlDir, ExitFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return core.AbsentArtifact[core.ExitMarker](), nil
	}
	if err != nil {
		return core.Artifact[core.ExitMarker]{}, err
	}

	code, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		// A garbled marker still proves the process reached its shutdown
		// path; treat it as a non-zero exit rather than guessing liveness.
		p.log.Warn("unparsable exit marker", "host", target.Host, "content", strings.TrimSpace(string(data)))
		code = -1
	}
	return core.PresentArtifact(core.ExitMarker{Code: code}), nil
}

func (p *Probe) readProcess(ctx context.Context, target core.Target) (core.Artifact[core.ProcessInfo], error) {
	data, err := p.runner.ReadFile(ctx, target, path.Join(target.ControlDir, PidFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return core.AbsentArtifact[core.ProcessInfo](), nil
	}
	if err != nil {
		return core.Artifact[core.ProcessInfo]{}, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		p.log.Warn("unparsable pid marker", "host", target.Host)
		return core.AbsentArtifact[core.ProcessInfo](), nil
	}

	alive, err := p.runner.PidAlive(ctx, target, pid)
	if err != nil {
		return core.Artifact[core.ProcessInfo]{}, err
	}
	return core.PresentArtifact(core.ProcessInfo{PID: pid, Alive: alive}), nil
}

func (p *Probe) readHeartbeat(ctx context.Context, target core.Target) (core.Artifact[core.HeartbeatSnapshot], error) {
	data, err := p.runner.ReadFile(ctx, target, path.Join(target.ControlDir, HeartbeatFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return core.AbsentArtifact[core.HeartbeatSnapshot](), nil
	}
	if err != nil {
		return core.Artifact[core.HeartbeatSnapshot]{}, err
	}

	var hb core.HeartbeatSnapshot
	if err := json.Unmarshal(data, &hb); err != nil {
		// A corrupt heartbeat is written-but-useless; it cannot prove
		// liveness, so it degrades to absent.
		p.log.Warn("corrupt heartbeat", "host", target.Host, "error", err)
		return core.AbsentArtifact[core.HeartbeatSnapshot](), nil
	}
	return core.PresentArtifact(hb), nil
}

func (p *Probe) readTasks(ctx context.Context, target core.Target) core.Artifact[[]core.TaskNodeState] {
	if p.tasks == nil {
		return core.AbsentArtifact[[]core.TaskNodeState]()
	}
	nodes, err := p.tasks.LoadNodes(ctx, target)
	if err != nil {
		// Task progress is advisory for reconciliation; an unreadable
		// database degrades confidence but must not abort the probe.
		p.log.Warn("task database unreadable", "host", target.Host, "error", err)
		return core.UnreachableArtifact[[]core.TaskNodeState]()
	}
	return core.PresentArtifact(nodes)
}

func controlPath(target core.Target, name string) string {
	return path.Join(target.ControlDir, name)
}

var _ core.StateProbe = (*Probe)(nil)

// formatHeartbeat renders the initial heartbeat written at launch.
func formatHeartbeat(pid int, phase string, now time.Time) ([]byte, error) {
	hb := core.HeartbeatSnapshot{Timestamp: now, PID: pid, Phase: phase}
	data, err := json.Marshal(hb)
	if err != nil {
		return nil, fmt.Errorf("encoding heartbeat: %w", err)
	}
	return data, nil
}

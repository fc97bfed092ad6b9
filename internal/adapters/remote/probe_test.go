package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runward/runward/internal/core"
)

// fakeRunner is an in-memory channel for adapter tests. Setting unreachable
// makes every call fail the way a dead ssh connection would.
type fakeRunner struct {
	files       map[string][]byte
	alivePids   map[int]bool
	unreachable bool

	runOut  string
	runCode int
	runErr  error

	lastScript string
	written    map[string][]byte
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		files:     map[string][]byte{},
		alivePids: map[int]bool{},
		written:   map[string][]byte{},
	}
}

func (f *fakeRunner) Run(_ context.Context, _ core.Target, script string) (string, int, error) {
	if f.unreachable {
		return "", 0, fmt.Errorf("%w: fake", ErrUnreachable)
	}
	f.lastScript = script
	return f.runOut, f.runCode, f.runErr
}

func (f *fakeRunner) ReadFile(_ context.Context, _ core.Target, path string) ([]byte, error) {
	if f.unreachable {
		return nil, fmt.Errorf("%w: fake", ErrUnreachable)
	}
	data, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, fs.ErrNotExist)
	}
	return data, nil
}

func (f *fakeRunner) WriteFile(_ context.Context, _ core.Target, path string, data []byte) error {
	if f.unreachable {
		return fmt.Errorf("%w: fake", ErrUnreachable)
	}
	f.written[path] = data
	f.files[path] = data
	return nil
}

func (f *fakeRunner) Fetch(_ context.Context, _ core.Target, remotePath, localPath string) error {
	if f.unreachable {
		return fmt.Errorf("%w: fake", ErrUnreachable)
	}
	return copyFile(remotePath, localPath)
}

func (f *fakeRunner) Push(_ context.Context, _ core.Target, localPath, remotePath string) error {
	if f.unreachable {
		return fmt.Errorf("%w: fake", ErrUnreachable)
	}
	return copyFile(localPath, remotePath)
}

func (f *fakeRunner) PidAlive(_ context.Context, _ core.Target, pid int) (bool, error) {
	if f.unreachable {
		return false, fmt.Errorf("%w: fake", ErrUnreachable)
	}
	return f.alivePids[pid], nil
}

func probeTarget() core.Target {
	return core.Target{
		Host:       "ci@vm-7",
		ControlDir: "/var/run/work/r1",
		TaskDB:     "/var/run/work/r1/tasks.db",
	}
}

func TestProbe_AllPresent(t *testing.T) {
	runner := newFakeRunner()
	target := probeTarget()

	hb, err := json.Marshal(core.HeartbeatSnapshot{
		Timestamp: time.Now().UTC().Add(-30 * time.Second),
		PID:       4242,
		Phase:     "execute",
	})
	require.NoError(t, err)

	runner.files[target.ControlDir+"/pid"] = []byte("4242\n")
	runner.files[target.ControlDir+"/heartbeat.json"] = hb
	runner.alivePids[4242] = true

	probe := NewProbe(runner, nil, time.Second, nil)
	snap, err := probe.Probe(context.Background(), target)
	require.NoError(t, err)

	assert.Equal(t, core.Absent, snap.Exit.State)
	require.Equal(t, core.Present, snap.Process.State)
	assert.Equal(t, 4242, snap.Process.Value.PID)
	assert.True(t, snap.ProcessAlive())
	require.Equal(t, core.Present, snap.Heartbeat.State)
	assert.Equal(t, "execute", snap.Heartbeat.Value.Phase)
	assert.False(t, snap.TargetUnreachable())
}

func TestProbe_ExitMarker(t *testing.T) {
	runner := newFakeRunner()
	target := probeTarget()
	runner.files[target.ControlDir+"/exit"] = []byte("3\n")

	probe := NewProbe(runner, nil, time.Second, nil)
	snap, err := probe.Probe(context.Background(), target)
	require.NoError(t, err)

	require.Equal(t, core.Present, snap.Exit.State)
	assert.Equal(t, 3, snap.Exit.Value.Code)
	assert.Equal(t, core.Absent, snap.Process.State)
}

func TestProbe_GarbledExitMarker(t *testing.T) {
	runner := newFakeRunner()
	target := probeTarget()
	runner.files[target.ControlDir+"/exit"] = []byte("killed\n")

	probe := NewProbe(runner, nil, time.Second, nil)
	snap, err := probe.Probe(context.Background(), target)
	require.NoError(t, err)

	// Still authoritative that the process terminated; code is unknown.
	require.Equal(t, core.Present, snap.Exit.State)
	assert.Equal(t, -1, snap.Exit.Value.Code)
}

func TestProbe_Unreachable(t *testing.T) {
	runner := newFakeRunner()
	runner.unreachable = true

	probe := NewProbe(runner, nil, time.Second, nil)
	snap, err := probe.Probe(context.Background(), probeTarget())
	require.NoError(t, err)

	assert.True(t, snap.TargetUnreachable())
	assert.Equal(t, core.Unreachable, snap.Tasks.State)
	assert.False(t, snap.ProcessAlive())
}

func TestProbe_EmptyControlDir(t *testing.T) {
	probe := NewProbe(newFakeRunner(), nil, time.Second, nil)
	snap, err := probe.Probe(context.Background(), probeTarget())
	require.NoError(t, err)

	assert.Equal(t, core.Absent, snap.Exit.State)
	assert.Equal(t, core.Absent, snap.Process.State)
	assert.Equal(t, core.Absent, snap.Heartbeat.State)
	assert.False(t, snap.TargetUnreachable())
}

func TestProbe_CorruptHeartbeat(t *testing.T) {
	runner := newFakeRunner()
	target := probeTarget()
	runner.files[target.ControlDir+"/pid"] = []byte("99")
	runner.files[target.ControlDir+"/heartbeat.json"] = []byte("{not json")

	probe := NewProbe(runner, nil, time.Second, nil)
	snap, err := probe.Probe(context.Background(), target)
	require.NoError(t, err)

	assert.Equal(t, core.Absent, snap.Heartbeat.State)
	require.Equal(t, core.Present, snap.Process.State)
	assert.False(t, snap.Process.Value.Alive)
}

func TestProbe_DeadPid(t *testing.T) {
	runner := newFakeRunner()
	target := probeTarget()
	runner.files[target.ControlDir+"/pid"] = []byte("4242")
	// pid not in alivePids: process table has no such entry.

	probe := NewProbe(runner, nil, time.Second, nil)
	snap, err := probe.Probe(context.Background(), target)
	require.NoError(t, err)

	require.Equal(t, core.Present, snap.Process.State)
	assert.False(t, snap.ProcessAlive())
}

func TestProbe_TaskStoreFailureDegrades(t *testing.T) {
	runner := newFakeRunner()
	target := probeTarget()

	probe := NewProbe(runner, failingTaskStore{}, time.Second, nil)
	snap, err := probe.Probe(context.Background(), target)
	require.NoError(t, err)

	assert.Equal(t, core.Unreachable, snap.Tasks.State)
	// The rest of the snapshot is unaffected.
	assert.Equal(t, core.Absent, snap.Exit.State)
}

type failingTaskStore struct{}

func (failingTaskStore) LoadNodes(_ context.Context, target core.Target) ([]core.TaskNodeState, error) {
	return nil, core.ErrDatabaseUnavailable(target, fmt.Errorf("malformed"))
}

func (failingTaskStore) ResetNodes(context.Context, core.Target, []string) error {
	return nil
}

func TestLauncher_Launch(t *testing.T) {
	runner := newFakeRunner()
	runner.runOut = "5150\n"
	target := probeTarget()

	launcher := NewProcessLauncher(runner, "/opt/workflow/bin/engine run", "", nil)
	rec := &core.RunRecord{ID: "r1", Target: target, Status: core.StatusFailed, Attempt: 2}

	pid, err := launcher.Launch(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, 5150, pid)

	// Stale exit marker is cleared before the runtime starts.
	assert.Contains(t, runner.lastScript, "rm -f '/var/run/work/r1/exit'")
	assert.Contains(t, runner.lastScript, "nohup /opt/workflow/bin/engine run")
	assert.Contains(t, runner.lastScript, "--task-db '/var/run/work/r1/tasks.db'")

	hbData, ok := runner.written[target.ControlDir+"/heartbeat.json"]
	require.True(t, ok, "initial heartbeat not written")
	var hb core.HeartbeatSnapshot
	require.NoError(t, json.Unmarshal(hbData, &hb))
	assert.Equal(t, 5150, hb.PID)
	assert.Equal(t, "launch", hb.Phase)
}

func TestLauncher_NoCommand(t *testing.T) {
	launcher := NewProcessLauncher(newFakeRunner(), "", "", nil)
	_, err := launcher.Launch(context.Background(), &core.RunRecord{ID: "r1", Target: probeTarget()})
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestLauncher_ScriptFailure(t *testing.T) {
	runner := newFakeRunner()
	runner.runCode = 127

	launcher := NewProcessLauncher(runner, "/opt/workflow/bin/engine run", "", nil)
	_, err := launcher.Launch(context.Background(), &core.RunRecord{ID: "r1", Target: probeTarget()})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "exited 127"))
}

func TestLauncher_NoPidOutput(t *testing.T) {
	runner := newFakeRunner()
	runner.runOut = ""

	launcher := NewProcessLauncher(runner, "/opt/workflow/bin/engine run", "", nil)
	_, err := launcher.Launch(context.Background(), &core.RunRecord{ID: "r1", Target: probeTarget()})
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatState))
}

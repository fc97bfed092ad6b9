package remote

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/runward/runward/internal/core"
	"github.com/runward/runward/internal/logging"
)

// ProcessLauncher starts the workflow runtime on a run's target and seeds
// the control directory for the new attempt: stale exit marker removed,
// fresh pid marker, initial heartbeat. The runtime takes ownership of the
// heartbeat once it is up.
type ProcessLauncher struct {
	runner  Runner
	command string
	logFile string
	log     *logging.Logger
}

// NewProcessLauncher creates a launcher that starts command on the target.
// logFile is relative to the control directory and defaults to run.log.
func NewProcessLauncher(runner Runner, command, logFile string, log *logging.Logger) *ProcessLauncher {
	if logFile == "" {
		logFile = "run.log"
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &ProcessLauncher{runner: runner, command: command, logFile: logFile, log: log}
}

// Launch starts the next attempt of the run and returns the new pid.
// The previous process must already be confirmed dead; the launcher does
// not re-check.
func (pl *ProcessLauncher) Launch(ctx context.Context, record *core.RunRecord) (int, error) {
	if pl.command == "" {
		return 0, core.ErrValidation(core.CodeLaunchFailed, "runtime command is not configured")
	}
	if err := record.Target.Validate(); err != nil {
		return 0, err
	}

	target := record.Target
	script := pl.launchScript(target)

	out, code, err := pl.runner.Run(ctx, target, script)
	if err != nil {
		return 0, fmt.Errorf("launching run %s: %w", record.ID, err)
	}
	if code != 0 {
		return 0, core.ErrState(core.CodeLaunchFailed,
			fmt.Sprintf("launch script for run %s exited %d", record.ID, code))
	}

	pid, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil || pid <= 0 {
		return 0, core.ErrState(core.CodeLaunchFailed,
			fmt.Sprintf("launch script for run %s returned no pid", record.ID))
	}

	// The runtime writes its own heartbeats once running; the initial one
	// keeps the reconciler from reading the brand-new process as stale.
	hb, err := formatHeartbeat(pid, "launch", time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if err := pl.runner.WriteFile(ctx, target, controlPath(target, HeartbeatFileName), hb); err != nil {
		return 0, fmt.Errorf("writing initial heartbeat for run %s: %w", record.ID, err)
	}

	pl.log.Info("launched run",
		"run_id", string(record.ID),
		"host", target.Host,
		"pid", pid,
		"attempt", record.Attempt)
	return pid, nil
}

// launchScript builds the shell script run on the target. It clears the
// previous attempt's exit marker, starts the runtime detached, and prints
// the new pid on stdout.
func (pl *ProcessLauncher) launchScript(target core.Target) string {
	control := shellQuote(target.ControlDir)
	exit := shellQuote(controlPath(target, ExitFileName))
	pid := shellQuote(controlPath(target, PidFileName))
	logPath := shellQuote(controlPath(target, pl.logFile))

	return strings.Join([]string{
		fmt.Sprintf("mkdir -p %s", control),
		fmt.Sprintf("rm -f %s", exit),
		fmt.Sprintf("nohup %s --control-dir %s --task-db %s >> %s 2>&1 &",
			pl.command, control, shellQuote(target.TaskDB), logPath),
		"rwpid=$!",
		fmt.Sprintf("echo $rwpid > %s", pid),
		"echo $rwpid",
	}, "\n")
}

var _ core.Launcher = (*ProcessLauncher)(nil)

package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/runward/runward/internal/core"
)

// ErrUnreachable marks a channel-level failure: the command never reached
// the target. Callers must never conflate it with a command that ran and
// failed on the remote side.
var ErrUnreachable = errors.New("target unreachable")

// absentExitCode is returned by probe scripts when the artifact they were
// asked for does not exist on a reachable target.
const absentExitCode = 44

// Runner is the best-effort command channel between the host and a target.
// Implementations must bound every call by the context deadline.
type Runner interface {
	// Run executes a shell script on the target. The returned exit code
	// is the script's own; a channel failure yields ErrUnreachable.
	Run(ctx context.Context, target core.Target, script string) (stdout string, exitCode int, err error)

	// ReadFile returns the contents of a remote file. A missing file is
	// fs.ErrNotExist; a channel failure is ErrUnreachable.
	ReadFile(ctx context.Context, target core.Target, path string) ([]byte, error)

	// WriteFile replaces the contents of a remote file.
	WriteFile(ctx context.Context, target core.Target, path string, data []byte) error

	// Fetch copies a remote file to a local path.
	Fetch(ctx context.Context, target core.Target, remotePath, localPath string) error

	// Push copies a local file to a remote path.
	Push(ctx context.Context, target core.Target, localPath, remotePath string) error

	// PidAlive checks whether a process with the given pid exists on the
	// target.
	PidAlive(ctx context.Context, target core.Target, pid int) (bool, error)
}

// NewRunner returns a runner that dispatches per target: local targets go
// straight to the filesystem, everything else through ssh.
func NewRunner(sshPath, scpPath string) Runner {
	return &autoRunner{
		ssh:   NewSSHRunner(sshPath, scpPath),
		local: NewLocalRunner(),
	}
}

type autoRunner struct {
	ssh   *SSHRunner
	local *LocalRunner
}

func (a *autoRunner) pick(target core.Target) Runner {
	if target.IsLocal() {
		return a.local
	}
	return a.ssh
}

func (a *autoRunner) Run(ctx context.Context, target core.Target, script string) (string, int, error) {
	return a.pick(target).Run(ctx, target, script)
}

func (a *autoRunner) ReadFile(ctx context.Context, target core.Target, path string) ([]byte, error) {
	return a.pick(target).ReadFile(ctx, target, path)
}

func (a *autoRunner) WriteFile(ctx context.Context, target core.Target, path string, data []byte) error {
	return a.pick(target).WriteFile(ctx, target, path, data)
}

func (a *autoRunner) Fetch(ctx context.Context, target core.Target, remotePath, localPath string) error {
	return a.pick(target).Fetch(ctx, target, remotePath, localPath)
}

func (a *autoRunner) Push(ctx context.Context, target core.Target, localPath, remotePath string) error {
	return a.pick(target).Push(ctx, target, localPath, remotePath)
}

func (a *autoRunner) PidAlive(ctx context.Context, target core.Target, pid int) (bool, error) {
	return a.pick(target).PidAlive(ctx, target, pid)
}

// =============================================================================
// SSH
// =============================================================================

// SSHRunner drives remote targets through the system ssh/scp binaries in
// batch mode. ssh reserves exit code 255 for its own failures, which is how
// channel errors are told apart from script failures.
type SSHRunner struct {
	sshPath string
	scpPath string
}

// NewSSHRunner creates a runner using the given ssh and scp binaries.
func NewSSHRunner(sshPath, scpPath string) *SSHRunner {
	if sshPath == "" {
		sshPath = "ssh"
	}
	if scpPath == "" {
		scpPath = "scp"
	}
	return &SSHRunner{sshPath: sshPath, scpPath: scpPath}
}

const sshExitUnreachable = 255

func (r *SSHRunner) baseArgs() []string {
	return []string{
		"-o", "BatchMode=yes",
		"-o", "ConnectTimeout=5",
		"-o", "StrictHostKeyChecking=accept-new",
	}
}

// Run executes a shell script on the target via ssh.
func (r *SSHRunner) Run(ctx context.Context, target core.Target, script string) (string, int, error) {
	args := append(r.baseArgs(), target.Host, "--", "sh", "-c", shellQuote(script))
	cmd := exec.CommandContext(ctx, r.sshPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code == sshExitUnreachable {
			return "", 0, fmt.Errorf("%w: %s: %s", ErrUnreachable, target.Host, strings.TrimSpace(stderr.String()))
		}
		return stdout.String(), code, nil
	}
	if ctx.Err() != nil {
		// A timeout carries no information about the remote process.
		return "", 0, fmt.Errorf("%w: %s: %v", ErrUnreachable, target.Host, ctx.Err())
	}
	return "", 0, fmt.Errorf("%w: %s: %v", ErrUnreachable, target.Host, err)
}

// ReadFile returns the contents of a remote file.
func (r *SSHRunner) ReadFile(ctx context.Context, target core.Target, path string) ([]byte, error) {
	script := fmt.Sprintf("if [ -f %s ]; then cat %s; else exit %d; fi",
		shellQuote(path), shellQuote(path), absentExitCode)
	out, code, err := r.Run(ctx, target, script)
	if err != nil {
		return nil, err
	}
	if code == absentExitCode {
		return nil, fmt.Errorf("%s: %w", path, fs.ErrNotExist)
	}
	if code != 0 {
		return nil, fmt.Errorf("reading %s on %s: exit %d", path, target.Host, code)
	}
	return []byte(out), nil
}

// WriteFile replaces the contents of a remote file through a rename, so a
// half-written file is never observed.
func (r *SSHRunner) WriteFile(ctx context.Context, target core.Target, path string, data []byte) error {
	tmp := path + ".tmp"
	script := fmt.Sprintf("cat > %s && mv %s %s", shellQuote(tmp), shellQuote(tmp), shellQuote(path))
	args := append(r.baseArgs(), target.Host, "--", "sh", "-c", shellQuote(script))
	cmd := exec.CommandContext(ctx, r.sshPath, args...)
	cmd.Stdin = bytes.NewReader(data)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() != sshExitUnreachable {
			return fmt.Errorf("writing %s on %s: %s", path, target.Host, strings.TrimSpace(stderr.String()))
		}
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, target.Host, err)
	}
	return nil
}

// Fetch copies a remote file to a local path via scp.
func (r *SSHRunner) Fetch(ctx context.Context, target core.Target, remotePath, localPath string) error {
	return r.scp(ctx, target, target.Host+":"+remotePath, localPath)
}

// Push copies a local file to a remote path via scp.
func (r *SSHRunner) Push(ctx context.Context, target core.Target, localPath, remotePath string) error {
	return r.scp(ctx, target, localPath, target.Host+":"+remotePath)
}

func (r *SSHRunner) scp(ctx context.Context, target core.Target, src, dst string) error {
	args := append(r.baseArgs(), "-q", src, dst)
	cmd := exec.CommandContext(ctx, r.scpPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() != sshExitUnreachable {
			return fmt.Errorf("copying %s to %s: %s", src, dst, strings.TrimSpace(stderr.String()))
		}
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, target.Host, err)
	}
	return nil
}

// PidAlive checks the remote process table with kill -0.
func (r *SSHRunner) PidAlive(ctx context.Context, target core.Target, pid int) (bool, error) {
	_, code, err := r.Run(ctx, target, fmt.Sprintf("kill -0 %d 2>/dev/null", pid))
	if err != nil {
		return false, err
	}
	return code == 0, nil
}

// shellQuote single-quotes a string for safe inclusion in a shell command.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// =============================================================================
// Local
// =============================================================================

// LocalRunner serves targets on the host's own filesystem: locally mounted
// VM images and tests. Process checks go through gopsutil instead of the
// process table of a remote machine.
type LocalRunner struct{}

// NewLocalRunner creates a local filesystem runner.
func NewLocalRunner() *LocalRunner {
	return &LocalRunner{}
}

// Run executes a shell script locally.
func (r *LocalRunner) Run(ctx context.Context, _ core.Target, script string) (string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", script)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), exitErr.ExitCode(), nil
	}
	return "", 0, fmt.Errorf("running script: %w", err)
}

// ReadFile returns the contents of a local file.
func (r *LocalRunner) ReadFile(_ context.Context, _ core.Target, path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile atomically replaces the contents of a local file.
func (r *LocalRunner) WriteFile(_ context.Context, _ core.Target, path string, data []byte) error {
	return atomicWriteFile(path, data, 0o644)
}

// Fetch copies a file; local targets are plain filesystem copies.
func (r *LocalRunner) Fetch(_ context.Context, _ core.Target, remotePath, localPath string) error {
	return copyFile(remotePath, localPath)
}

// Push copies a file back to its target path.
func (r *LocalRunner) Push(_ context.Context, _ core.Target, localPath, remotePath string) error {
	return copyFile(localPath, remotePath)
}

// PidAlive checks the local process table.
func (r *LocalRunner) PidAlive(ctx context.Context, _ core.Target, pid int) (bool, error) {
	return process.PidExistsWithContext(ctx, int32(pid))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}
	return out.Sync()
}

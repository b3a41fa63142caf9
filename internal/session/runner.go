package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"

	"github.com/buildswarm/swarm/internal/security"
)

// CommandRunner launches an agent CLI as a subprocess in its sandbox
// directory. One runner is created per worker session.
type CommandRunner struct {
	cfg Config
	pm  *ProcessManager

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewCommandRunner validates the configured command against the allowlist
// (nil disables the guard) and returns a runner.
func NewCommandRunner(cfg Config, pm *ProcessManager, allow *security.Allowlist) (*CommandRunner, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("no agent command configured")
	}
	if allow != nil && !allow.Permits(cfg.Command) {
		return nil, fmt.Errorf("command %q is not on the allowlist", cfg.Command)
	}
	return &CommandRunner{cfg: cfg, pm: pm}, nil
}

// Run executes one agent session and returns its stdout. The subprocess
// runs in its own process group so the whole tree can be terminated.
func (r *CommandRunner) Run(ctx context.Context, req Request) (Result, error) {
	args := append([]string(nil), r.cfg.Args...)
	if r.cfg.Model != "" {
		args = append(args, "--model", r.cfg.Model)
	}
	if r.cfg.SystemPrompt != "" {
		args = append(args, "--system-prompt", r.cfg.SystemPrompt)
	}
	args = append(args, req.Prompt)

	cmd := exec.CommandContext(ctx, r.cfg.Command, args...)
	cmd.Dir = r.cfg.WorkDir
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true, // own process group, so Close can kill the whole tree
	}

	r.mu.Lock()
	r.cmd = cmd
	r.mu.Unlock()

	stdout, stderr, err := drainCommand(cmd, r.pm)

	r.mu.Lock()
	r.cmd = nil
	r.mu.Unlock()

	if err != nil {
		return Result{}, fmt.Errorf("agent session failed: %w (stderr: %s)", err, bytes.TrimSpace(stderr))
	}
	return Result{Output: string(stdout)}, nil
}

// Close kills the live subprocess tree, if any.
func (r *CommandRunner) Close() error {
	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	// Negative pid signals the process group.
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
}

// drainCommand starts the command and reads stdout and stderr concurrently.
// Both pipes must be fully drained before Wait, otherwise a subprocess
// producing more output than the pipe buffer deadlocks.
func drainCommand(cmd *exec.Cmd, pm *ProcessManager) (stdout, stderr []byte, err error) {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("starting command: %w", err)
	}
	if pm != nil {
		pm.Track(cmd.Process)
		defer pm.Untrack(cmd.Process)
	}

	var wg sync.WaitGroup
	var outBuf, errBuf bytes.Buffer
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(&outBuf, stdoutPipe)
	}()
	go func() {
		defer wg.Done()
		io.Copy(&errBuf, stderrPipe)
	}()
	wg.Wait()

	err = cmd.Wait()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

package framework

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// CommandRequest captures one shell execution. The command string is handed
// to the system shell, so callers must run it through
// SafetyPolicy.CheckCommand first.
type CommandRequest struct {
	Command string
	Workdir string
	Env     []string
	Input   string
	Timeout time.Duration
}

// CommandResult carries captured output. A non-zero exit code is data, not
// an error: the model is expected to read it and react.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

// CommandRunner executes commands with captured output. Implementations
// must honor the context and kill the process when it is cancelled.
type CommandRunner interface {
	Run(ctx context.Context, req CommandRequest) (*CommandResult, error)
}

// ShellRunner launches commands through the system shell.
type ShellRunner struct {
	Shell string // defaults to /bin/sh, cmd on windows
}

// Run executes the request. On timeout the process is terminated and the
// returned error carries FailureTimeout.
func (r *ShellRunner) Run(ctx context.Context, req CommandRequest) (*CommandResult, error) {
	if strings.TrimSpace(req.Command) == "" {
		return nil, errors.New("command required")
	}
	execCtx := ctx
	cancel := func() {}
	if req.Timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	name, args := r.invocation(req.Command)
	cmd := exec.CommandContext(execCtx, name, args...)
	if req.Workdir != "" {
		cmd.Dir = req.Workdir
	}
	if len(req.Env) > 0 {
		cmd.Env = append(os.Environ(), req.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if req.Input != "" {
		cmd.Stdin = strings.NewReader(req.Input)
	}

	start := time.Now()
	err := cmd.Run()
	res := &CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		return res, NewToolError(FailureTimeout, "command timed out after %s", res.Duration.Round(time.Millisecond))
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("run command: %w", err)
	}
	return res, nil
}

func (r *ShellRunner) invocation(command string) (string, []string) {
	if runtime.GOOS == "windows" {
		shell := r.Shell
		if shell == "" {
			shell = "cmd"
		}
		return shell, []string{"/C", command}
	}
	shell := r.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	return shell, []string{"-c", command}
}

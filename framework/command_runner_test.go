package framework

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests assume a POSIX shell")
	}
}

func TestShellRunnerCapturesStdout(t *testing.T) {
	requireShell(t)
	runner := &ShellRunner{}

	res, err := runner.Run(context.Background(), CommandRequest{Command: "echo hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, 0, res.ExitCode)
	assert.False(t, res.TimedOut)
}

func TestShellRunnerCapturesStderr(t *testing.T) {
	requireShell(t)
	runner := &ShellRunner{}

	res, err := runner.Run(context.Background(), CommandRequest{Command: "echo oops 1>&2"})
	require.NoError(t, err)
	assert.Equal(t, "oops\n", res.Stderr)
	assert.Empty(t, res.Stdout)
}

func TestShellRunnerExitCodeIsData(t *testing.T) {
	requireShell(t)
	runner := &ShellRunner{}

	res, err := runner.Run(context.Background(), CommandRequest{Command: "exit 7"})
	require.NoError(t, err)
	assert.Equal(t, 7, res.ExitCode)
}

func TestShellRunnerHonorsWorkdir(t *testing.T) {
	requireShell(t)
	runner := &ShellRunner{}
	dir := t.TempDir()

	res, err := runner.Run(context.Background(), CommandRequest{Command: "pwd", Workdir: dir})
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, dir)
}

func TestShellRunnerFeedsStdin(t *testing.T) {
	requireShell(t)
	runner := &ShellRunner{}

	res, err := runner.Run(context.Background(), CommandRequest{Command: "cat", Input: "piped"})
	require.NoError(t, err)
	assert.Equal(t, "piped", res.Stdout)
}

func TestShellRunnerTimeoutKillsProcess(t *testing.T) {
	requireShell(t)
	runner := &ShellRunner{}

	start := time.Now()
	res, err := runner.Run(context.Background(), CommandRequest{
		Command: "sleep 5",
		Timeout: 50 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Equal(t, FailureTimeout, failureKindOf(t, err))
	require.NotNil(t, res)
	assert.True(t, res.TimedOut)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestShellRunnerRejectsEmptyCommand(t *testing.T) {
	runner := &ShellRunner{}
	_, err := runner.Run(context.Background(), CommandRequest{Command: "   "})
	assert.Error(t, err)
}

package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lexcodex/aicode/framework"
)

// DefaultCommandTimeout bounds subprocess runtime when neither the config
// nor the call supplies one.
const DefaultCommandTimeout = 30 * time.Second

// maxCommandOutput bounds how much captured output goes back into the
// conversation.
const maxCommandOutput = 64 * 1024

// ExecuteCommandTool runs a shell command inside the workspace. The command
// is checked against the safety deny-list before anything is spawned; a
// non-zero exit code is reported as data, not a failure.
type ExecuteCommandTool struct {
	Policy  *framework.SafetyPolicy
	Runner  framework.CommandRunner
	Workdir string
	Timeout time.Duration
}

func (t *ExecuteCommandTool) Name() string { return "execute_command" }
func (t *ExecuteCommandTool) Description() string {
	return "Runs a shell command in the workspace and returns its output and exit code."
}
func (t *ExecuteCommandTool) Danger() framework.DangerLevel { return framework.DangerConfirm }
func (t *ExecuteCommandTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{
		{Name: "command", Type: "string", Description: "shell command line to run", Required: true},
		{Name: "workdir", Type: "string", Description: "working directory, workspace-relative"},
		{Name: "timeout", Type: "int", Description: "timeout in seconds"},
	}
}

func (t *ExecuteCommandTool) Execute(ctx context.Context, args map[string]string) (*framework.ToolResult, error) {
	command := args["command"]
	if err := t.Policy.CheckCommand(command); err != nil {
		return nil, err
	}
	workdir := t.Workdir
	if args["workdir"] != "" {
		resolved, err := t.Policy.ResolvePath(args["workdir"])
		if err != nil {
			return nil, err
		}
		workdir = resolved
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	if secs := atoiDefault(args["timeout"], 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	res, err := t.runner().Run(ctx, framework.CommandRequest{
		Command: command,
		Workdir: workdir,
		Timeout: timeout,
	})
	if err != nil {
		if res != nil && (res.Stdout != "" || res.Stderr != "") {
			// surface whatever the process printed before it died
			return &framework.ToolResult{
				SideEffects: true,
				Metadata: map[string]interface{}{
					"partial_output": clampOutput(combineOutput(res)),
					"timed_out":      res.TimedOut,
				},
			}, err
		}
		return nil, err
	}

	output := clampOutput(combineOutput(res))
	if output == "" {
		output = "(no output)"
	}
	if res.ExitCode != 0 {
		output = fmt.Sprintf("%s\n[exit status %d]", output, res.ExitCode)
	}
	return &framework.ToolResult{
		Success:     true,
		Output:      output,
		SideEffects: true,
		Metadata: map[string]interface{}{
			"exit_code":   res.ExitCode,
			"duration_ms": res.Duration.Milliseconds(),
		},
	}, nil
}

func (t *ExecuteCommandTool) runner() framework.CommandRunner {
	if t.Runner != nil {
		return t.Runner
	}
	return &framework.ShellRunner{}
}

func combineOutput(res *framework.CommandResult) string {
	out := strings.TrimRight(res.Stdout, "\n")
	if res.Stderr != "" {
		if out != "" {
			out += "\n"
		}
		out += "[stderr]\n" + strings.TrimRight(res.Stderr, "\n")
	}
	return out
}

func clampOutput(out string) string {
	if len(out) > maxCommandOutput {
		return out[:maxCommandOutput] + truncationMarker
	}
	return out
}

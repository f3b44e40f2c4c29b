package framework

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lexcodex/aicode/parser"
)

// DefaultCallTimeout bounds a single tool execution when the caller does not
// override it. Command tools apply their own tighter subprocess timeout
// underneath this.
const DefaultCallTimeout = 60 * time.Second

// Executor runs parsed tool calls against the registry. It owns argument
// validation, the safe-mode confirmation gate, the per-call timeout, and
// panic containment. Path and command safety live in the tools themselves,
// behind the shared SafetyPolicy.
type Executor struct {
	Registry *Registry
	Policy   *SafetyPolicy
	Confirm  Confirmer
	Audit    AuditLogger
	Timeout  time.Duration
}

// NewExecutor wires an executor with the default call timeout.
func NewExecutor(registry *Registry, policy *SafetyPolicy) *Executor {
	return &Executor{
		Registry: registry,
		Policy:   policy,
		Timeout:  DefaultCallTimeout,
	}
}

// Execute resolves and runs one call. It always returns a result: every
// failure mode is folded into the taxonomy, nothing panics past this
// boundary, and each attempt lands in the audit log.
func (e *Executor) Execute(ctx context.Context, call parser.ToolCall) *ToolResult {
	start := time.Now()
	res := e.execute(ctx, call)
	res.Call = call
	res.Duration = time.Since(start)
	if e.Audit != nil {
		e.Audit.Record(AuditRecord{
			Timestamp: start,
			Tool:      call.Name,
			Args:      call.Args,
			Success:   res.Success,
			Failure:   res.Failure,
			Detail:    res.Error,
			Duration:  res.Duration,
		})
	}
	return res
}

func (e *Executor) execute(ctx context.Context, call parser.ToolCall) *ToolResult {
	if call.ParseErr != "" {
		return failure(FailureInvalidArguments, call.ParseErr)
	}
	tool, ok := e.Registry.Get(call.Name)
	if !ok {
		return failure(FailureUnknownTool, fmt.Sprintf("tool %s is not registered", call.Name))
	}
	args, err := normalizeArgs(tool, call.Args)
	if err != nil {
		kind, msg := ClassifyError(err)
		return failure(kind, msg)
	}
	if tool.Danger() == DangerConfirm && e.Policy != nil && e.Policy.SafeMode {
		approved, err := e.requestConfirmation(ctx, tool, args)
		if err != nil {
			return failure(FailureUserDenied, fmt.Sprintf("confirmation aborted: %v", err))
		}
		if !approved {
			return failure(FailureUserDenied, fmt.Sprintf("user declined to run %s", tool.Name()))
		}
	}
	return e.run(ctx, tool, args)
}

func (e *Executor) requestConfirmation(ctx context.Context, tool Tool, args map[string]string) (bool, error) {
	if e.Confirm == nil {
		// no way to ask means no permission
		return false, errors.New("no confirmer configured")
	}
	req := ConfirmRequest{
		Tool:    tool.Name(),
		Summary: summarizeCall(tool.Name(), args),
		Args:    args,
	}
	return e.Confirm.Confirm(ctx, req)
}

func (e *Executor) run(ctx context.Context, tool Tool, args map[string]string) (res *ToolResult) {
	runCtx := ctx
	cancel := func() {}
	if e.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.Timeout)
	}
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			res = failure(FailureInternal, fmt.Sprintf("tool %s panicked: %v", tool.Name(), r))
		}
	}()
	out, err := tool.Execute(runCtx, args)
	if err != nil {
		kind, msg := ClassifyError(err)
		failed := failure(kind, msg)
		if out != nil {
			// a failed call may still have performed side effects
			failed.SideEffects = out.SideEffects
			failed.Metadata = out.Metadata
		}
		return failed
	}
	if out == nil {
		return failure(FailureInternal, fmt.Sprintf("tool %s returned no result", tool.Name()))
	}
	return out
}

// normalizeArgs checks raw arguments against the tool schema and fills in
// declared defaults. Values stay strings; int and bool parameters are only
// checked for parseability here.
func normalizeArgs(tool Tool, raw map[string]string) (map[string]string, error) {
	params := tool.Parameters()
	known := make(map[string]ToolParameter, len(params))
	for _, p := range params {
		known[p.Name] = p
	}
	args := make(map[string]string, len(raw))
	for key, value := range raw {
		if _, ok := known[key]; !ok {
			return nil, NewToolError(FailureInvalidArguments, "unknown parameter %s for tool %s", key, tool.Name())
		}
		args[key] = value
	}
	for _, p := range params {
		value, present := args[p.Name]
		if !present {
			if p.Required {
				return nil, NewToolError(FailureInvalidArguments, "missing required parameter: %s", p.Name)
			}
			if p.Default != "" {
				args[p.Name] = p.Default
			}
			continue
		}
		switch p.Type {
		case "int":
			if _, err := strconv.Atoi(value); err != nil {
				return nil, NewToolError(FailureInvalidArguments, "parameter %s expects an integer, got %q", p.Name, value)
			}
		case "bool":
			if _, err := strconv.ParseBool(value); err != nil {
				return nil, NewToolError(FailureInvalidArguments, "parameter %s expects a boolean, got %q", p.Name, value)
			}
		}
	}
	return args, nil
}

func summarizeCall(name string, args map[string]string) string {
	keys := make([]string, 0, len(args))
	for key := range args {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		value := args[key]
		if len(value) > 60 {
			value = value[:57] + "..."
		}
		parts = append(parts, fmt.Sprintf("%s=%q", key, value))
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", "))
}

func failure(kind FailureKind, message string) *ToolResult {
	return &ToolResult{Failure: kind, Error: message}
}

package framework

import (
	"context"
	"errors"
	"fmt"
)

// FailureKind classifies why a tool execution or model call failed. The
// values are stable strings because results are persisted and replayed to
// the model verbatim.
type FailureKind string

const (
	FailureUnknownTool      FailureKind = "unknown_tool"
	FailureInvalidArguments FailureKind = "invalid_arguments"
	FailurePathViolation    FailureKind = "path_violation"
	FailureCommandBlocked   FailureKind = "command_blocked"
	FailureUserDenied       FailureKind = "user_denied"
	FailureTimeout          FailureKind = "timeout"
	FailureUnreadableImage  FailureKind = "unreadable_image"
	FailureConnection       FailureKind = "connection_error"
	FailureBadResponse      FailureKind = "bad_response"
	FailureInternal         FailureKind = "internal_error"
)

// Remedy returns a short user-facing hint for kinds that have an actionable
// fix. Empty when there is nothing useful to suggest.
func (k FailureKind) Remedy() string {
	switch k {
	case FailurePathViolation:
		return "paths must stay inside the workspace root"
	case FailureCommandBlocked:
		return "the command matched the destructive-command filter"
	case FailureTimeout:
		return "raise timeout_seconds in the config for long-running work"
	case FailureConnection:
		return "check that the model server is running and the endpoint is reachable"
	default:
		return ""
	}
}

// ToolError carries a classified failure out of a tool handler. The executor
// unwraps it into the result; any other error becomes FailureInternal.
type ToolError struct {
	Kind    FailureKind
	Message string
}

func (e *ToolError) Error() string {
	return e.Message
}

// NewToolError builds a classified error.
func NewToolError(kind FailureKind, format string, args ...interface{}) *ToolError {
	return &ToolError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ClassifyError maps an arbitrary handler error onto the failure taxonomy.
func ClassifyError(err error) (FailureKind, string) {
	if err == nil {
		return "", ""
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te.Kind, te.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout, "execution exceeded the configured timeout"
	}
	if errors.Is(err, context.Canceled) {
		return FailureUserDenied, "execution cancelled"
	}
	return FailureInternal, err.Error()
}

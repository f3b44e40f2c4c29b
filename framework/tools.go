package framework

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lexcodex/aicode/parser"
)

// DangerLevel classifies how much damage a tool can do. Confirm-required
// tools prompt the user before running when safe mode is on.
type DangerLevel string

const (
	DangerSafe    DangerLevel = "safe"
	DangerConfirm DangerLevel = "confirm"
)

// Tool defines a capability the model can invoke by name. The metadata
// doubles as the schema rendered into the system prompt so the model knows
// which calls exist and what arguments they take.
type Tool interface {
	Name() string
	Description() string
	Parameters() []ToolParameter
	Danger() DangerLevel
	Execute(ctx context.Context, args map[string]string) (*ToolResult, error)
}

// ToolParameter describes an argument the tool accepts. Type is one of
// "string", "int", "bool"; values arrive as strings from the parser and are
// checked by the executor before the handler runs.
type ToolParameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
	Default     string `json:"default,omitempty"`
}

// ToolResult is produced for every attempted call, success or not. A failed
// result still names the call that produced it so the conversation can
// record what was asked for.
type ToolResult struct {
	Call        parser.ToolCall        `json:"call"`
	Success     bool                   `json:"success"`
	Output      string                 `json:"output,omitempty"`
	Failure     FailureKind            `json:"failure,omitempty"`
	Error       string                 `json:"error,omitempty"`
	SideEffects bool                   `json:"side_effects,omitempty"`
	Duration    time.Duration          `json:"duration,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Registry maintains the invocable tool set. Registration order is
// preserved: help output and the system prompt list tools in the order they
// were added, built-ins first.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool. Names are unique for the process lifetime; there is
// no removal.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

// Get fetches a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns the registered tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		res = append(res, r.tools[name])
	}
	return res
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Len reports how many tools are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

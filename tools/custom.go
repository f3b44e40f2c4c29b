package tools

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lexcodex/aicode/framework"
)

// ToolManifest declares user-defined command tools.
type ToolManifest struct {
	Tools []CustomToolSpec `yaml:"tools"`
}

// CustomToolSpec defines one manifest tool: a command template with {param}
// placeholders filled from the call arguments.
type CustomToolSpec struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Command     string            `yaml:"command"`
	Danger      string            `yaml:"danger"` // "safe" or "confirm"; default confirm
	Params      []CustomParamSpec `yaml:"params"`
}

// CustomParamSpec declares one template parameter.
type CustomParamSpec struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
	Required    bool   `yaml:"required"`
	Default     string `yaml:"default"`
}

var toolNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// LoadToolManifest parses and validates a manifest file. A missing file is
// not an error: custom tools are optional.
func LoadToolManifest(path string) (*ToolManifest, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &ToolManifest{}, nil
	}
	if err != nil {
		return nil, err
	}
	var manifest ToolManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse tool manifest %s: %w", path, err)
	}
	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("tool manifest %s: %w", path, err)
	}
	return &manifest, nil
}

// Validate enforces manifest semantics.
func (m *ToolManifest) Validate() error {
	seen := make(map[string]bool)
	for i, spec := range m.Tools {
		if spec.Name == "" {
			return fmt.Errorf("tool %d missing name", i)
		}
		if !toolNamePattern.MatchString(spec.Name) {
			return fmt.Errorf("tool name %q must match %s", spec.Name, toolNamePattern)
		}
		if seen[spec.Name] {
			return fmt.Errorf("duplicate tool name %q", spec.Name)
		}
		seen[spec.Name] = true
		if spec.Command == "" {
			return fmt.Errorf("tool %q missing command", spec.Name)
		}
		if spec.Danger != "" && spec.Danger != "safe" && spec.Danger != "confirm" {
			return fmt.Errorf("tool %q danger must be safe or confirm, got %q", spec.Name, spec.Danger)
		}
		declared := make(map[string]bool)
		for _, p := range spec.Params {
			if p.Name == "" {
				return fmt.Errorf("tool %q has a parameter without a name", spec.Name)
			}
			declared[p.Name] = true
		}
		for _, placeholder := range placeholders(spec.Command) {
			if !declared[placeholder] {
				return fmt.Errorf("tool %q command references undeclared parameter {%s}", spec.Name, placeholder)
			}
		}
	}
	return nil
}

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func placeholders(template string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(template, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// CustomTool runs a manifest-defined command. Argument values are
// shell-quoted before substitution and the assembled command passes the
// same deny-list as execute_command.
type CustomTool struct {
	Spec    CustomToolSpec
	Policy  *framework.SafetyPolicy
	Runner  framework.CommandRunner
	Workdir string
	Timeout time.Duration
}

func (t *CustomTool) Name() string        { return t.Spec.Name }
func (t *CustomTool) Description() string { return t.Spec.Description }
func (t *CustomTool) Danger() framework.DangerLevel {
	if t.Spec.Danger == "safe" {
		return framework.DangerSafe
	}
	return framework.DangerConfirm
}

func (t *CustomTool) Parameters() []framework.ToolParameter {
	params := make([]framework.ToolParameter, 0, len(t.Spec.Params))
	for _, p := range t.Spec.Params {
		typ := p.Type
		if typ == "" {
			typ = "string"
		}
		params = append(params, framework.ToolParameter{
			Name:        p.Name,
			Type:        typ,
			Description: p.Description,
			Required:    p.Required,
			Default:     p.Default,
		})
	}
	return params
}

func (t *CustomTool) Execute(ctx context.Context, args map[string]string) (*framework.ToolResult, error) {
	for _, name := range placeholders(t.Spec.Command) {
		if _, ok := args[name]; !ok {
			return nil, framework.NewToolError(framework.FailureInvalidArguments,
				"parameter %s required by the command template", name)
		}
	}
	command := t.Spec.Command
	for name, value := range args {
		command = strings.ReplaceAll(command, "{"+name+"}", shellQuote(value))
	}
	runner := &ExecuteCommandTool{
		Policy:  t.Policy,
		Runner:  t.Runner,
		Workdir: t.Workdir,
		Timeout: t.Timeout,
	}
	return runner.Execute(ctx, map[string]string{"command": command})
}

// shellQuote wraps a value in single quotes, escaping embedded quotes, so
// argument content can never break out of the command template.
func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}

// RegisterCustomTools adds manifest tools to the registry, skipping names
// already taken by built-ins. Returns the skipped names.
func RegisterCustomTools(reg *framework.Registry, manifest *ToolManifest, policy *framework.SafetyPolicy, runner framework.CommandRunner, workdir string, timeout time.Duration) ([]string, error) {
	if manifest == nil {
		return nil, nil
	}
	var skipped []string
	for _, spec := range manifest.Tools {
		if _, exists := reg.Get(spec.Name); exists {
			skipped = append(skipped, spec.Name)
			continue
		}
		tool := &CustomTool{
			Spec:    spec,
			Policy:  policy,
			Runner:  runner,
			Workdir: workdir,
			Timeout: timeout,
		}
		if err := reg.Register(tool); err != nil {
			return skipped, err
		}
	}
	return skipped, nil
}

// Package cliutils wires the service graph the aicode subcommands share:
// workspace resolution, config loading with flag overrides, the tool
// registry, the model client, and the session store.
package cliutils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lexcodex/aicode/framework"
	"github.com/lexcodex/aicode/internal/config"
	"github.com/lexcodex/aicode/llm"
	"github.com/lexcodex/aicode/tools"
)

// Options carry the persistent flag values into the bootstrap. Zero values
// mean "keep whatever the config says".
type Options struct {
	Workspace  string
	ConfigPath string
	// Endpoint is a name from the config's endpoints table, or a full
	// chat-completions URL.
	Endpoint string
	Model    string
	// SafeMode overrides the config when set; nil leaves it alone.
	SafeMode *bool
	Debug    bool

	// OpenStore opens the SQLite session store. One-shot commands that
	// never touch saved sessions leave it off.
	OpenStore bool
	// StartLSP spawns configured language servers for symbol lookup.
	// Worth it for the interactive shell, not for a single ask.
	StartLSP bool
}

// Env is the resolved launch environment: where the workspace is, which
// config file applies, and the effective configuration after overrides.
type Env struct {
	Workspace  string
	ConfigPath string
	Config     config.Config
}

// ResolveEnv locates the workspace, loads the config over the defaults, and
// applies the flag overrides.
func ResolveEnv(opts Options) (Env, error) {
	workspace, err := ResolveWorkspace(opts.Workspace)
	if err != nil {
		return Env{}, err
	}
	path := opts.ConfigPath
	if path == "" {
		path = config.DefaultConfigPath(workspace)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return Env{}, err
	}
	if err := applyOverrides(&cfg, opts); err != nil {
		return Env{}, err
	}
	return Env{Workspace: workspace, ConfigPath: path, Config: cfg}, nil
}

// ResolveWorkspace turns the flag value into an absolute existing directory.
func ResolveWorkspace(path string) (string, error) {
	if path == "" {
		path = "."
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve workspace: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("workspace %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("workspace %s is not a directory", abs)
	}
	return abs, nil
}

// SessionDBPath returns where the session store lives under a workspace.
func SessionDBPath(workspace string) string {
	return filepath.Join(workspace, ".aicode", "sessions.db")
}

func applyOverrides(cfg *config.Config, opts Options) error {
	if opts.Endpoint != "" {
		if strings.Contains(opts.Endpoint, "://") {
			cfg.Endpoints["custom"] = opts.Endpoint
			cfg.ActiveEndpoint = "custom"
		} else {
			if _, ok := cfg.Endpoints[opts.Endpoint]; !ok {
				return fmt.Errorf("unknown endpoint %q (configured: %s)",
					opts.Endpoint, strings.Join(cfg.EndpointNames(), ", "))
			}
			cfg.ActiveEndpoint = opts.Endpoint
		}
	}
	if opts.Model != "" {
		cfg.Model = opts.Model
	}
	if opts.SafeMode != nil {
		cfg.Settings.SafeMode = *opts.SafeMode
	}
	if opts.Debug {
		cfg.Settings.Debug = true
	}
	return cfg.Normalize()
}

// BuildToolRegistry registers the enabled builtins plus the custom manifest
// tools. It returns the registry, the custom tool names added, and the ones
// skipped because they collide with a builtin.
func BuildToolRegistry(cfg config.Config, policy *framework.SafetyPolicy, runner framework.CommandRunner, workspace string, symbols tools.SymbolProvider) (*framework.Registry, []string, []string, error) {
	reg := framework.NewRegistry()
	builtins := tools.Builtins(policy, runner, workspace, cfg.Settings.Timeout(), symbols)
	if err := tools.RegisterBuiltins(reg, builtins, cfg.Tools.Enabled); err != nil {
		return nil, nil, nil, err
	}

	manifestPath := cfg.Tools.CustomManifest
	if manifestPath == "" {
		return reg, nil, nil, nil
	}
	if !filepath.IsAbs(manifestPath) {
		manifestPath = filepath.Join(workspace, manifestPath)
	}
	manifest, err := tools.LoadToolManifest(manifestPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("custom tools: %w", err)
	}
	skipped, err := tools.RegisterCustomTools(reg, manifest, policy, runner, workspace, cfg.Settings.Timeout())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("custom tools: %w", err)
	}
	skippedSet := make(map[string]bool, len(skipped))
	for _, name := range skipped {
		skippedSet[name] = true
	}
	var added []string
	for _, spec := range manifest.Tools {
		if !skippedSet[spec.Name] {
			added = append(added, spec.Name)
		}
	}
	return reg, added, skipped, nil
}

// NewChatClient builds a model client carrying the configured sampling
// settings; llm.NewClient alone leaves temperature and max tokens unset.
func NewChatClient(cfg config.Config) *llm.Client {
	client := llm.NewClient(cfg.EndpointURL(), cfg.Model)
	client.Temperature = cfg.Settings.Temperature
	client.MaxTokens = cfg.Settings.MaxTokens
	client.SetTimeout(cfg.Settings.Timeout())
	client.SetDebugLogging(cfg.Settings.Debug)
	return client
}

// Package config loads the aicode configuration: named model endpoints, the
// active selection, and the knobs shared by every entry point.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the persisted configuration, TOML at .aicode/config.toml under
// the workspace. Decoding overlays the file onto DefaultConfig, so omitted
// keys keep their defaults.
type Config struct {
	ActiveEndpoint string            `toml:"active_endpoint"`
	Model          string            `toml:"model"`
	Endpoints      map[string]string `toml:"endpoints"`
	Settings       Settings          `toml:"settings"`
	Tools          Tools             `toml:"tools"`
	LSP            LSP               `toml:"lsp"`
}

// Settings are the model and execution knobs.
type Settings struct {
	Temperature    float64 `toml:"temperature"`
	MaxTokens      int     `toml:"max_tokens"`
	ContextLength  int     `toml:"context_length"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	SafeMode       bool    `toml:"safe_mode"`
	RetainRecent   int     `toml:"retain_recent"`
	Debug          bool    `toml:"debug"`
}

// Timeout returns the command timeout as a duration.
func (s Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Tools controls which tools register and where custom ones come from.
type Tools struct {
	Enabled        []string `toml:"enabled"`
	CustomManifest string   `toml:"custom_manifest"`
}

// LSP configures symbol lookup servers per language.
type LSP struct {
	Enabled bool              `toml:"enabled"`
	Servers map[string]string `toml:"servers"`
}

// DefaultConfig returns the configuration used when no file exists: an
// Ollama endpoint next to an LM Studio one, safe mode on.
func DefaultConfig() Config {
	return Config{
		ActiveEndpoint: "ollama",
		Model:          "qwen2.5-coder",
		Endpoints: map[string]string{
			"ollama":   "http://localhost:11434/v1/chat/completions",
			"lmstudio": "http://localhost:1234/v1/chat/completions",
		},
		Settings: Settings{
			Temperature:    0.7,
			MaxTokens:      2048,
			ContextLength:  4096,
			TimeoutSeconds: 30,
			SafeMode:       true,
			RetainRecent:   6,
		},
		Tools: Tools{
			CustomManifest: filepath.Join(".aicode", "tools.yaml"),
		},
		LSP: LSP{
			Servers: map[string]string{
				"go": "gopls serve",
			},
		},
	}
}

// DefaultConfigPath returns the config location under a workspace.
func DefaultConfigPath(workspace string) string {
	return filepath.Join(workspace, ".aicode", "config.toml")
}

// Load reads the configuration at path over the defaults. A missing file is
// not an error; the defaults come back as-is. The result is normalized.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.Normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save persists the configuration, creating parent directories as needed.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return fmt.Errorf("encode config: %w", err)
	}
	return f.Close()
}

// Normalize validates the endpoint table and clamps broken numeric values.
// It is the only fatal configuration check: everything else degrades to a
// default or a warning.
func (c *Config) Normalize() error {
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("no model endpoints configured")
	}
	if c.ActiveEndpoint == "" {
		c.ActiveEndpoint = pickEndpoint(c.Endpoints)
	}
	raw, ok := c.Endpoints[c.ActiveEndpoint]
	if !ok {
		return fmt.Errorf("active endpoint %q is not in the endpoints table", c.ActiveEndpoint)
	}
	if err := checkEndpointURL(raw); err != nil {
		return fmt.Errorf("endpoint %s: %w", c.ActiveEndpoint, err)
	}
	if c.Settings.MaxTokens <= 0 {
		c.Settings.MaxTokens = 2048
	}
	if c.Settings.ContextLength <= 0 {
		c.Settings.ContextLength = 4096
	}
	if c.Settings.TimeoutSeconds <= 0 {
		c.Settings.TimeoutSeconds = 30
	}
	if c.Settings.RetainRecent < 0 {
		c.Settings.RetainRecent = 6
	}
	if c.Settings.Temperature < 0 {
		c.Settings.Temperature = 0.7
	}
	return nil
}

// EndpointURL resolves the active endpoint to its URL.
func (c Config) EndpointURL() string {
	return c.Endpoints[c.ActiveEndpoint]
}

// EndpointNames lists configured endpoint names, sorted.
func (c Config) EndpointNames() []string {
	names := make([]string, 0, len(c.Endpoints))
	for name := range c.Endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// pickEndpoint prefers ollama, then the alphabetically first name so the
// choice is stable run to run.
func pickEndpoint(endpoints map[string]string) string {
	if _, ok := endpoints["ollama"]; ok {
		return "ollama"
	}
	names := make([]string, 0, len(endpoints))
	for name := range endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names[0]
}

func checkEndpointURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid URL %q: need scheme and host", raw)
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(DefaultConfigPath(t.TempDir()))
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.ActiveEndpoint)
	assert.Equal(t, "http://localhost:11434/v1/chat/completions", cfg.EndpointURL())
	assert.Equal(t, 0.7, cfg.Settings.Temperature)
	assert.Equal(t, 2048, cfg.Settings.MaxTokens)
	assert.Equal(t, 4096, cfg.Settings.ContextLength)
	assert.True(t, cfg.Settings.SafeMode)
	assert.Equal(t, 6, cfg.Settings.RetainRecent)
	assert.Equal(t, "gopls serve", cfg.LSP.Servers["go"])
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
active_endpoint = "lmstudio"
model = "llama3"

[endpoints]
myserver = "http://10.0.0.5:8080/v1/chat/completions"

[settings]
temperature = 0.2
safe_mode = false

[tools]
enabled = ["read_file", "list_files"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "lmstudio", cfg.ActiveEndpoint)
	assert.Equal(t, "llama3", cfg.Model)
	assert.Equal(t, 0.2, cfg.Settings.Temperature)
	assert.False(t, cfg.Settings.SafeMode)
	// keys the file omits keep their defaults
	assert.Equal(t, 2048, cfg.Settings.MaxTokens)
	assert.Equal(t, 30, cfg.Settings.TimeoutSeconds)
	// file endpoints merge with the built-in table
	assert.Equal(t, "http://10.0.0.5:8080/v1/chat/completions", cfg.Endpoints["myserver"])
	assert.Equal(t, "http://localhost:1234/v1/chat/completions", cfg.EndpointURL())
	assert.Equal(t, []string{"read_file", "list_files"}, cfg.Tools.Enabled)
}

func TestLoadRejectsUnknownActiveEndpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`active_endpoint = "missing"`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestLoadRejectsMalformedToml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("active_endpoint = [broken"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestNormalizeRejectsBadEndpointURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Endpoints["ollama"] = "not a url"

	err := cfg.Normalize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama")
}

func TestNormalizeRejectsEmptyEndpointTable(t *testing.T) {
	cfg := Config{}
	assert.Error(t, cfg.Normalize())
}

func TestNormalizePicksEndpointDeterministically(t *testing.T) {
	cfg := Config{Endpoints: map[string]string{
		"zeta": "http://localhost:9999/v1/chat/completions",
		"beta": "http://localhost:8888/v1/chat/completions",
	}}
	require.NoError(t, cfg.Normalize())
	assert.Equal(t, "beta", cfg.ActiveEndpoint)

	cfg2 := Config{Endpoints: map[string]string{
		"zeta":   "http://localhost:9999/v1/chat/completions",
		"ollama": "http://localhost:11434/v1/chat/completions",
	}}
	require.NoError(t, cfg2.Normalize())
	assert.Equal(t, "ollama", cfg2.ActiveEndpoint)
}

func TestNormalizeClampsBrokenNumbers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Settings.MaxTokens = -5
	cfg.Settings.ContextLength = 0
	cfg.Settings.TimeoutSeconds = -1
	cfg.Settings.RetainRecent = -3
	cfg.Settings.Temperature = -0.1

	require.NoError(t, cfg.Normalize())
	assert.Equal(t, 2048, cfg.Settings.MaxTokens)
	assert.Equal(t, 4096, cfg.Settings.ContextLength)
	assert.Equal(t, 30, cfg.Settings.TimeoutSeconds)
	assert.Equal(t, 6, cfg.Settings.RetainRecent)
	assert.Equal(t, 0.7, cfg.Settings.Temperature)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := DefaultConfigPath(t.TempDir())
	cfg := DefaultConfig()
	cfg.Model = "codellama"
	cfg.Settings.Debug = true
	cfg.Endpoints["remote"] = "https://models.example.com/v1/chat/completions"

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "codellama", loaded.Model)
	assert.True(t, loaded.Settings.Debug)
	assert.Equal(t, cfg.Endpoints["remote"], loaded.Endpoints["remote"])
}

func TestEndpointNamesSorted(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, []string{"lmstudio", "ollama"}, cfg.EndpointNames())
}

func TestSettingsTimeout(t *testing.T) {
	s := Settings{TimeoutSeconds: 45}
	assert.Equal(t, "45s", s.Timeout().String())
}

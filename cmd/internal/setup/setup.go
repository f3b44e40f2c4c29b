// Package setup detects the local environment: which configured endpoints
// answer, which models they serve, and which language servers are installed
// and worth wiring up for the files actually present in the workspace.
package setup

import (
	"context"
	"io/fs"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lexcodex/aicode/internal/config"
	"github.com/lexcodex/aicode/llm"
)

// EndpointStatus reports one probed endpoint.
type EndpointStatus struct {
	Name    string   `json:"name"`
	URL     string   `json:"url"`
	Healthy bool     `json:"healthy"`
	Models  []string `json:"models,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// ServerStatus reports one language server candidate.
type ServerStatus struct {
	Language    string `json:"language"`
	Command     string `json:"command"`
	CommandPath string `json:"command_path,omitempty"`
	Available   bool   `json:"available"`
	Files       int    `json:"files"`
}

// Report summarizes what Detect found and which selections it made.
type Report struct {
	Endpoints  []EndpointStatus `json:"endpoints"`
	Servers    []ServerStatus   `json:"servers"`
	OllamaPath string           `json:"ollama_path,omitempty"`
}

// serverCandidate pairs a language with the binary to look for and the
// command to configure when it is present. Languages match the keys the
// symbol router derives from file extensions.
type serverCandidate struct {
	language   string
	binary     string
	command    string
	extensions []string
}

var serverCandidates = []serverCandidate{
	{"go", "gopls", "gopls serve", []string{".go"}},
	{"python", "pylsp", "pylsp", []string{".py"}},
	{"rust", "rust-analyzer", "rust-analyzer", []string{".rs"}},
	{"typescript", "typescript-language-server", "typescript-language-server --stdio", []string{".ts", ".tsx"}},
	{"javascript", "typescript-language-server", "typescript-language-server --stdio", []string{".js", ".jsx"}},
	{"c", "clangd", "clangd", []string{".c", ".h"}},
}

// Detect probes every configured endpoint and the local language servers,
// updating cfg in place: a healthy endpoint becomes active, the model is
// switched to one the endpoint actually serves, and detected servers land
// in the LSP table. Probe failures are findings, not errors.
func Detect(ctx context.Context, workspace string, cfg *config.Config) *Report {
	report := &Report{}
	if path, err := exec.LookPath("ollama"); err == nil {
		report.OllamaPath = path
	}

	names := cfg.EndpointNames()
	healthy := make(map[string][]string)
	for _, name := range names {
		url := cfg.Endpoints[name]
		probe := llm.Probe(ctx, url)
		models := append([]string(nil), probe.Models...)
		sort.Strings(models)
		report.Endpoints = append(report.Endpoints, EndpointStatus{
			Name:    name,
			URL:     url,
			Healthy: probe.Healthy,
			Models:  models,
			Error:   probe.Error,
		})
		if probe.Healthy {
			healthy[name] = models
		}
	}
	chooseEndpoint(cfg, names, healthy)
	chooseModel(cfg, healthy)
	detectServers(workspace, cfg, report)
	return report
}

// chooseEndpoint keeps a healthy active endpoint, otherwise prefers ollama,
// otherwise the first healthy one. Nothing healthy leaves the config alone.
func chooseEndpoint(cfg *config.Config, names []string, healthy map[string][]string) {
	if _, ok := healthy[cfg.ActiveEndpoint]; ok {
		return
	}
	if _, ok := healthy["ollama"]; ok {
		cfg.ActiveEndpoint = "ollama"
		return
	}
	for _, name := range names {
		if _, ok := healthy[name]; ok {
			cfg.ActiveEndpoint = name
			return
		}
	}
}

// chooseModel keeps the configured model when the active endpoint serves
// it, otherwise takes the endpoint's first model.
func chooseModel(cfg *config.Config, healthy map[string][]string) {
	models, ok := healthy[cfg.ActiveEndpoint]
	if !ok || len(models) == 0 {
		return
	}
	for _, m := range models {
		if m == cfg.Model {
			return
		}
	}
	cfg.Model = models[0]
}

func detectServers(workspace string, cfg *config.Config, report *Report) {
	counts := scanExtensions(workspace)
	detected := make(map[string]string)
	for _, cand := range serverCandidates {
		path, err := exec.LookPath(cand.binary)
		files := 0
		for _, ext := range cand.extensions {
			files += counts[ext]
		}
		available := err == nil
		report.Servers = append(report.Servers, ServerStatus{
			Language:    cand.language,
			Command:     cand.command,
			CommandPath: path,
			Available:   available,
			Files:       files,
		})
		if available && files > 0 {
			detected[cand.language] = cand.command
		}
	}
	if len(detected) == 0 {
		return
	}
	if cfg.LSP.Servers == nil {
		cfg.LSP.Servers = make(map[string]string)
	}
	for lang, command := range detected {
		// an existing entry may carry user-tuned flags, keep it
		if _, exists := cfg.LSP.Servers[lang]; !exists {
			cfg.LSP.Servers[lang] = command
		}
	}
	cfg.LSP.Enabled = true
}

var skipDirs = map[string]bool{
	".git":         true,
	".aicode":      true,
	".idea":        true,
	".vscode":      true,
	"node_modules": true,
	"vendor":       true,
	"target":       true,
}

// scanExtensions counts files per extension under the workspace. Unreadable
// directories are skipped; detection should never fail over permissions.
func scanExtensions(workspace string) map[string]int {
	counts := make(map[string]int)
	if workspace == "" {
		workspace = "."
	}
	_ = filepath.WalkDir(workspace, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if ext != "" {
			counts[ext]++
		}
		return nil
	})
	return counts
}

// Package tools holds the built-in capabilities the model can invoke: file
// access, command execution, code and image analysis, and manifest-defined
// custom commands. Every tool routes paths and commands through the shared
// SafetyPolicy before touching the system.
package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/lexcodex/aicode/framework"
)

const (
	// maxReadBytes bounds how much of a file read_file returns. Larger
	// files are cut with a marker so one stray log file cannot flood the
	// conversation.
	maxReadBytes = 256 * 1024
	// maxListEntries bounds list_files output.
	maxListEntries = 500

	truncationMarker = "\n[output truncated]"
)

// ReadFileTool reads a UTF-8 file inside the workspace.
type ReadFileTool struct {
	Policy *framework.SafetyPolicy
}

func (t *ReadFileTool) Name() string { return "read_file" }
func (t *ReadFileTool) Description() string {
	return "Reads a text file from the workspace and returns its content."
}
func (t *ReadFileTool) Danger() framework.DangerLevel { return framework.DangerSafe }
func (t *ReadFileTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{
		{Name: "path", Type: "string", Description: "workspace-relative file path", Required: true},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]string) (*framework.ToolResult, error) {
	path, err := t.Policy.ResolvePath(args["path"])
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", args["path"], err)
	}
	if !isText(data) {
		return nil, framework.NewToolError(framework.FailureInvalidArguments,
			"file %s looks binary, not text", args["path"])
	}
	content := string(data)
	truncated := false
	if len(content) > maxReadBytes {
		content = content[:maxReadBytes] + truncationMarker
		truncated = true
	}
	return &framework.ToolResult{
		Success: true,
		Output:  content,
		Metadata: map[string]interface{}{
			"path":      args["path"],
			"bytes":     len(data),
			"truncated": truncated,
		},
	}, nil
}

// WriteFileTool writes content to a workspace file, keeping a .bak copy of
// anything it overwrites.
type WriteFileTool struct {
	Policy *framework.SafetyPolicy
	Backup bool
}

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Description() string {
	return "Writes content to a workspace file, backing up any existing file."
}
func (t *WriteFileTool) Danger() framework.DangerLevel { return framework.DangerConfirm }
func (t *WriteFileTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{
		{Name: "path", Type: "string", Description: "workspace-relative file path", Required: true},
		{Name: "content", Type: "string", Description: "full file content to write", Required: true},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]string) (*framework.ToolResult, error) {
	path, err := t.Policy.ResolvePath(args["path"])
	if err != nil {
		return nil, err
	}
	content := []byte(args["content"])
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create parent directory: %w", err)
	}
	backedUp := false
	if t.Backup {
		if _, err := os.Stat(path); err == nil {
			if err := copyFile(path, path+".bak"); err != nil {
				return nil, fmt.Errorf("back up %s: %w", args["path"], err)
			}
			backedUp = true
		}
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", args["path"], err)
	}
	return &framework.ToolResult{
		Success:     true,
		Output:      fmt.Sprintf("wrote %d bytes to %s", len(content), args["path"]),
		SideEffects: true,
		Metadata: map[string]interface{}{
			"path":   args["path"],
			"bytes":  len(content),
			"backup": backedUp,
		},
	}, nil
}

// ListFilesTool lists workspace files under a directory, glob-filtered by
// base name.
type ListFilesTool struct {
	Policy *framework.SafetyPolicy
}

func (t *ListFilesTool) Name() string { return "list_files" }
func (t *ListFilesTool) Description() string {
	return "Lists files under a workspace directory, optionally filtered by a glob pattern."
}
func (t *ListFilesTool) Danger() framework.DangerLevel { return framework.DangerSafe }
func (t *ListFilesTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{
		{Name: "path", Type: "string", Description: "directory to list", Default: "."},
		{Name: "pattern", Type: "string", Description: "glob matched against file names", Default: "*"},
	}
}

func (t *ListFilesTool) Execute(ctx context.Context, args map[string]string) (*framework.ToolResult, error) {
	dir, err := t.Policy.ResolvePath(args["path"])
	if err != nil {
		return nil, err
	}
	pattern := args["pattern"]
	if pattern == "" {
		pattern = "*"
	}
	var files []string
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		match, _ := filepath.Match(pattern, d.Name())
		if !match {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		files = append(files, rel)
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("list %s: %w", args["path"], walkErr)
	}
	sort.Strings(files)
	capped := false
	if len(files) > maxListEntries {
		files = files[:maxListEntries]
		capped = true
	}
	output := strings.Join(files, "\n")
	if output == "" {
		output = "(no matching files)"
	} else if capped {
		output += truncationMarker
	}
	return &framework.ToolResult{
		Success: true,
		Output:  output,
		Metadata: map[string]interface{}{
			"count":  len(files),
			"capped": capped,
		},
	}, nil
}

func isText(data []byte) bool {
	for _, b := range data {
		if b == 0 {
			return false
		}
	}
	return true
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := out.ReadFrom(in); err != nil {
		return err
	}
	return out.Close()
}

func atoiDefault(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

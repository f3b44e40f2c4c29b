package tools

import (
	"time"

	"github.com/lexcodex/aicode/framework"
)

// Builtins assembles the default tool set against one shared policy and
// runner. Symbols may be nil; analyze_code then reports metrics only.
func Builtins(policy *framework.SafetyPolicy, runner framework.CommandRunner, workdir string, timeout time.Duration, symbols SymbolProvider) []framework.Tool {
	return []framework.Tool{
		&ReadFileTool{Policy: policy},
		&WriteFileTool{Policy: policy, Backup: true},
		&ListFilesTool{Policy: policy},
		&ExecuteCommandTool{Policy: policy, Runner: runner, Workdir: workdir, Timeout: timeout},
		&AnalyzeCodeTool{Policy: policy, Symbols: symbols},
		&AnalyzeImageTool{Policy: policy},
	}
}

// RegisterBuiltins registers the default set, honoring an optional
// enabled-names filter (empty means all).
func RegisterBuiltins(reg *framework.Registry, all []framework.Tool, enabled []string) error {
	allow := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		allow[name] = true
	}
	for _, tool := range all {
		if len(allow) > 0 && !allow[tool.Name()] {
			continue
		}
		if err := reg.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

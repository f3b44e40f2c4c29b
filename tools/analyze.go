package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/lexcodex/aicode/framework"
)

// Symbol is one entry in a source outline.
type Symbol struct {
	Name string
	Kind string
	Line int
}

// SymbolProvider produces a source outline, typically backed by a language
// server. Optional: analysis degrades to textual metrics without one.
type SymbolProvider interface {
	DocumentSymbols(ctx context.Context, path string) ([]Symbol, error)
}

// AnalyzeCodeTool reports structural metrics for a source file or an inline
// snippet. Pure text analysis, no side effects; an attached SymbolProvider
// adds a language-server outline for files.
type AnalyzeCodeTool struct {
	Policy  *framework.SafetyPolicy
	Symbols SymbolProvider
}

func (t *AnalyzeCodeTool) Name() string { return "analyze_code" }
func (t *AnalyzeCodeTool) Description() string {
	return "Analyzes a source file or code snippet: line counts, functions, imports, and an outline when a language server is available."
}
func (t *AnalyzeCodeTool) Danger() framework.DangerLevel { return framework.DangerSafe }
func (t *AnalyzeCodeTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{
		{Name: "path", Type: "string", Description: "workspace-relative source file"},
		{Name: "code", Type: "string", Description: "inline code snippet, used when no path is given"},
		{Name: "language", Type: "string", Description: "language hint (go, python, javascript, ...)"},
	}
}

func (t *AnalyzeCodeTool) Execute(ctx context.Context, args map[string]string) (*framework.ToolResult, error) {
	code := args["code"]
	label := "snippet"
	path := ""
	if p := args["path"]; p != "" {
		resolved, err := t.Policy.ResolvePath(p)
		if err != nil {
			return nil, err
		}
		res, err := (&ReadFileTool{Policy: t.Policy}).Execute(ctx, map[string]string{"path": p})
		if err != nil {
			return nil, err
		}
		code = res.Output
		label = p
		path = resolved
	}
	if code == "" {
		return nil, framework.NewToolError(framework.FailureInvalidArguments,
			"analyze_code needs either path or code")
	}
	if !utf8.ValidString(code) {
		return nil, framework.NewToolError(framework.FailureInvalidArguments,
			"code is not valid utf-8")
	}

	lang := args["language"]
	if lang == "" && path != "" {
		lang = languageFromExtension(path)
	}
	metrics := analyzeSource(code, lang)

	var b strings.Builder
	fmt.Fprintf(&b, "analysis of %s", label)
	if lang != "" {
		fmt.Fprintf(&b, " (%s)", lang)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "  lines: %d total, %d code, %d comment, %d blank\n",
		metrics.Total, metrics.Code, metrics.Comment, metrics.Blank)
	fmt.Fprintf(&b, "  functions: %d, imports: %d\n", metrics.Functions, metrics.Imports)
	fmt.Fprintf(&b, "  longest line: %d chars", metrics.LongestLine)
	if metrics.Todos > 0 {
		fmt.Fprintf(&b, "\n  TODO/FIXME markers: %d", metrics.Todos)
	}

	if t.Symbols != nil && path != "" {
		if symbols, err := t.Symbols.DocumentSymbols(ctx, path); err == nil && len(symbols) > 0 {
			b.WriteString("\n  outline:")
			for _, sym := range symbols {
				fmt.Fprintf(&b, "\n    %s %s (line %d)", sym.Kind, sym.Name, sym.Line)
			}
		}
	}

	return &framework.ToolResult{
		Success: true,
		Output:  b.String(),
		Metadata: map[string]interface{}{
			"lines":     metrics.Total,
			"functions": metrics.Functions,
			"language":  lang,
		},
	}, nil
}

// SourceMetrics summarizes one body of source text.
type SourceMetrics struct {
	Total       int
	Code        int
	Comment     int
	Blank       int
	Functions   int
	Imports     int
	LongestLine int
	Todos       int
}

var functionPatterns = map[string]*regexp.Regexp{
	"go":         regexp.MustCompile(`^\s*func\s+[\w(]`),
	"python":     regexp.MustCompile(`^\s*(async\s+)?def\s+\w+`),
	"javascript": regexp.MustCompile(`^\s*(export\s+)?(async\s+)?function\s+\w+|=>`),
	"typescript": regexp.MustCompile(`^\s*(export\s+)?(async\s+)?function\s+\w+|=>`),
	"rust":       regexp.MustCompile(`^\s*(pub\s+)?(async\s+)?fn\s+\w+`),
	"c":          regexp.MustCompile(`^\w[\w\s*]*\([^;]*\)\s*\{?\s*$`),
}

var genericFunctionPattern = regexp.MustCompile(`^\s*(func|def|fn|function)\s`)

var importPatterns = map[string]*regexp.Regexp{
	"go":         regexp.MustCompile(`^\s*import\s|^\s*"[\w./-]+"$|^\s*\w+\s+"[\w./-]+"$`),
	"python":     regexp.MustCompile(`^\s*(import|from)\s+\w`),
	"javascript": regexp.MustCompile(`^\s*(import\s|const\s.*=\s*require\()`),
	"typescript": regexp.MustCompile(`^\s*import\s`),
	"rust":       regexp.MustCompile(`^\s*use\s+\w`),
}

var todoPattern = regexp.MustCompile(`\b(TODO|FIXME|XXX)\b`)

func analyzeSource(code, lang string) SourceMetrics {
	var m SourceMetrics
	fnPattern, ok := functionPatterns[lang]
	if !ok {
		fnPattern = genericFunctionPattern
	}
	importPattern := importPatterns[lang]

	inBlockComment := false
	for _, line := range strings.Split(code, "\n") {
		m.Total++
		if len(line) > m.LongestLine {
			m.LongestLine = len(line)
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			m.Blank++
			continue
		}
		if todoPattern.MatchString(line) {
			m.Todos++
		}
		if inBlockComment {
			m.Comment++
			if strings.Contains(trimmed, "*/") {
				inBlockComment = false
			}
			continue
		}
		switch {
		case strings.HasPrefix(trimmed, "//"), strings.HasPrefix(trimmed, "#"):
			m.Comment++
			continue
		case strings.HasPrefix(trimmed, "/*"):
			m.Comment++
			if !strings.Contains(trimmed, "*/") {
				inBlockComment = true
			}
			continue
		}
		m.Code++
		if fnPattern.MatchString(line) {
			m.Functions++
		}
		if importPattern != nil && importPattern.MatchString(line) {
			m.Imports++
		}
	}
	return m
}

var extensionLanguages = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".rs":   "rust",
	".c":    "c",
	".h":    "c",
	".sh":   "shell",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
	".md":   "markdown",
}

func languageFromExtension(path string) string {
	return extensionLanguages[strings.ToLower(filepath.Ext(path))]
}

// SupportedLanguages lists the languages with dedicated analysis patterns,
// sorted for stable help output.
func SupportedLanguages() []string {
	langs := make([]string, 0, len(functionPatterns))
	for lang := range functionPatterns {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

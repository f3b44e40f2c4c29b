package agent

import (
	"fmt"
	"strings"

	"github.com/lexcodex/aicode/framework"
)

// contextPromptLines caps how much of the workspace context file is folded
// into the system prompt.
const contextPromptLines = 10

// BuildSystemPrompt assembles the system message from the registered tools
// and the workspace context file content (empty when there is none).
func BuildSystemPrompt(reg *framework.Registry, contextFile string) string {
	var lines []string
	for _, tool := range reg.List() {
		lines = append(lines, toolLine(tool))
	}
	prompt := fmt.Sprintf(`You are AiCode, a helpful coding assistant optimized for small local models.
Be concise, practical, and focus on actionable solutions.

Available tools:
%s

To use a tool, put a directive on its own line:
TOOL: tool_name(param="value", other="value")
For example: TOOL: read_file(path="main.go")

Calls run in order, top to bottom, and each result is returned to you before
the conversation continues. Quote every value; escape quotes inside values
as \". Anything outside TOOL: lines is shown to the user.

Keep responses under 200 words unless explaining complex concepts.`, strings.Join(lines, "\n"))

	if excerpt := contextExcerpt(contextFile); excerpt != "" {
		prompt += "\n\nProject context:\n" + excerpt
	}
	return prompt
}

// toolLine renders one tool for the prompt: name, signature, description,
// and whether it will ask the user first.
func toolLine(tool framework.Tool) string {
	var params []string
	for _, p := range tool.Parameters() {
		part := fmt.Sprintf("%s: %s", p.Name, p.Type)
		if !p.Required {
			part += "?"
		}
		params = append(params, part)
	}
	line := fmt.Sprintf("- %s(%s): %s", tool.Name(), strings.Join(params, ", "), tool.Description())
	if tool.Danger() == framework.DangerConfirm {
		line += " (asks the user for confirmation)"
	}
	return line
}

// contextExcerpt keeps the leading lines of the context file.
func contextExcerpt(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	lines := strings.Split(content, "\n")
	if len(lines) > contextPromptLines {
		lines = lines[:contextPromptLines]
	}
	return strings.Join(lines, "\n")
}

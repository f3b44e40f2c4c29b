package tui

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lexcodex/aicode/agent"
	"github.com/lexcodex/aicode/framework"
	"github.com/lexcodex/aicode/llm"
)

// CommandHandler mutates model state for /commands typed into the prompt.
type CommandHandler func(Model, []string) (Model, tea.Cmd)

// Command describes a slash command entry.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Handler     CommandHandler
}

var commandRegistry = map[string]Command{}

func init() {
	registerCommand(Command{
		Name:        "help",
		Aliases:     []string{"h", "?"},
		Description: "Show available commands",
		Usage:       "/help [command]",
		Handler:     handleHelp,
	})
	registerCommand(Command{
		Name:        "models",
		Aliases:     []string{"m"},
		Description: "Probe the active endpoint for its models",
		Usage:       "/models",
		Handler:     handleModels,
	})
	registerCommand(Command{
		Name:        "switch",
		Aliases:     []string{"sw"},
		Description: "Switch to another endpoint or model",
		Usage:       "/switch <endpoint|model>",
		Handler:     handleSwitch,
	})
	registerCommand(Command{
		Name:        "tools",
		Description: "List registered tools",
		Usage:       "/tools",
		Handler:     handleTools,
	})
	registerCommand(Command{
		Name:        "reload-tools",
		Aliases:     []string{"reload"},
		Description: "Reload the custom tool manifest",
		Usage:       "/reload-tools",
		Handler:     handleReloadTools,
	})
	registerCommand(Command{
		Name:        "clear",
		Aliases:     []string{"cls"},
		Description: "Clear the conversation history",
		Usage:       "/clear",
		Handler:     handleClear,
	})
	registerCommand(Command{
		Name:        "history",
		Description: "Show the conversation history",
		Usage:       "/history",
		Handler:     handleHistory,
	})
	registerCommand(Command{
		Name:        "context",
		Aliases:     []string{"ctx"},
		Description: "Show context window usage",
		Usage:       "/context",
		Handler:     handleContext,
	})
	registerCommand(Command{
		Name:        "image",
		Aliases:     []string{"img"},
		Description: "Analyze an image and attach it to the next message",
		Usage:       "/image <path>",
		Handler:     handleImage,
	})
	registerCommand(Command{
		Name:        "analyze",
		Description: "Analyze a source file",
		Usage:       "/analyze <path>",
		Handler:     handleAnalyze,
	})
	registerCommand(Command{
		Name:        "debug",
		Description: "Toggle debug payload logging",
		Usage:       "/debug",
		Handler:     handleDebug,
	})
	registerCommand(Command{
		Name:        "save",
		Description: "Save the session under a name",
		Usage:       "/save <name>",
		Handler:     handleSave,
	})
	registerCommand(Command{
		Name:        "load",
		Description: "Load a saved session",
		Usage:       "/load <name>",
		Handler:     handleLoad,
	})
	registerCommand(Command{
		Name:        "sessions",
		Description: "List saved sessions",
		Usage:       "/sessions",
		Handler:     handleSessions,
	})
	registerCommand(Command{
		Name:        "status",
		Aliases:     []string{"st"},
		Description: "Show session status",
		Usage:       "/status",
		Handler:     handleStatus,
	})
	registerCommand(Command{
		Name:        "config",
		Aliases:     []string{"cfg"},
		Description: "Show the effective configuration",
		Usage:       "/config",
		Handler:     handleConfig,
	})
	registerCommand(Command{
		Name:        "exit",
		Aliases:     []string{"quit", "q"},
		Description: "Leave the shell",
		Usage:       "/exit",
		Handler:     handleExit,
	})
}

func registerCommand(cmd Command) {
	commandRegistry[cmd.Name] = cmd
}

// parseCommand splits slash-prefixed input into command + args.
func parseCommand(input string) (string, []string) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return "", nil
	}
	if !strings.HasPrefix(parts[0], "/") {
		return "", nil
	}
	name := strings.TrimPrefix(parts[0], "/")
	return name, parts[1:]
}

// resolveCommand finds the registered command, falling back to aliases.
func resolveCommand(name string) (Command, bool) {
	if cmd, ok := commandRegistry[name]; ok {
		return cmd, true
	}
	for _, registered := range commandRegistry {
		for _, alias := range registered.Aliases {
			if alias == name {
				return registered, true
			}
		}
	}
	return Command{}, false
}

func handleCommand(m Model, name string, args []string) (Model, tea.Cmd) {
	if name == "" {
		return m, nil
	}
	cmd, ok := resolveCommand(name)
	if !ok {
		return m.errorLine("unknown command /%s, try /help", name), nil
	}
	return cmd.Handler(m, args)
}

func handleHelp(m Model, args []string) (Model, tea.Cmd) {
	if len(args) > 0 {
		if cmd, ok := resolveCommand(args[0]); ok {
			return m.pushBlock(infoStyle.Render(fmt.Sprintf("%s - %s\nUsage: %s", cmd.Name, cmd.Description, cmd.Usage))), nil
		}
		return m.errorLine("unknown command /%s", args[0]), nil
	}
	names := make([]string, 0, len(commandRegistry))
	for name := range commandRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, name := range names {
		cmd := commandRegistry[name]
		b.WriteString(fmt.Sprintf("  %-26s %s\n", cmd.Usage, cmd.Description))
	}
	b.WriteString("Anything without a leading / is sent to the model.")
	return m.pushBlock(infoStyle.Render(b.String())), nil
}

func handleModels(m Model, args []string) (Model, tea.Cmd) {
	m = m.dimLine("probing %s", m.deps.Session.Endpoint)
	return m, probeCmd(m.deps.Session.Endpoint)
}

func handleSwitch(m Model, args []string) (Model, tea.Cmd) {
	if m.waiting {
		return m.warnLine("a turn is still running, try again when it finishes"), nil
	}
	if len(args) == 0 {
		names := m.deps.Config.EndpointNames()
		return m.pushBlock(infoStyle.Render(fmt.Sprintf(
			"usage: /switch <endpoint|model>\nendpoints: %s\nany other value is treated as a model name",
			strings.Join(names, ", ")))), nil
	}
	target := args[0]
	if url, ok := m.deps.Config.Endpoints[target]; ok {
		m.deps.Config.ActiveEndpoint = target
		m.deps.Session.Endpoint = url
		m = m.replaceClient(url, m.deps.Session.ModelName)
		m = m.infoLine("switched to endpoint %s (%s)", target, url)
		m = m.refreshStatus()
		return m, probeCmd(url)
	}
	m.deps.Config.Model = target
	m.deps.Session.ModelName = target
	m = m.replaceClient(m.deps.Session.Endpoint, target)
	m = m.infoLine("switched to model %s", target)
	return m.refreshStatus(), nil
}

func handleTools(m Model, args []string) (Model, tea.Cmd) {
	tools := m.deps.Session.Executor.Registry.List()
	if len(tools) == 0 {
		return m.warnLine("no tools registered"), nil
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%d tools registered:\n", len(tools)))
	for _, tool := range tools {
		marker := ""
		if tool.Danger() == framework.DangerConfirm {
			marker = " [confirm]"
		}
		b.WriteString(fmt.Sprintf("  %s%s: %s\n", tool.Name(), marker, tool.Description()))
	}
	return m.pushBlock(infoStyle.Render(strings.TrimRight(b.String(), "\n"))), nil
}

func handleReloadTools(m Model, args []string) (Model, tea.Cmd) {
	if m.waiting {
		return m.warnLine("a turn is still running, try again when it finishes"), nil
	}
	if m.deps.ReloadTools == nil {
		return m.warnLine("tool reload is not available"), nil
	}
	added, skipped, err := m.deps.ReloadTools()
	if err != nil {
		return m.errorLine("reload failed: %v", err), nil
	}
	m.deps.Session.Context.SetSystem(m.systemPrompt())
	m = m.infoLine("reloaded tools: %d custom added", len(added))
	if len(skipped) > 0 {
		m = m.warnLine("skipped (name collides with a builtin): %s", strings.Join(skipped, ", "))
	}
	return m.refreshStatus(), nil
}

func handleClear(m Model, args []string) (Model, tea.Cmd) {
	if m.waiting {
		return m.warnLine("a turn is still running, try again when it finishes"), nil
	}
	m.deps.Session.Context.Clear()
	m.lines = nil
	m = m.infoLine("history cleared")
	return m.refreshStatus(), nil
}

func handleHistory(m Model, args []string) (Model, tea.Cmd) {
	history := m.deps.Session.Context.History()
	if len(history) == 0 {
		return m.dimLine("history is empty"), nil
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%d messages:\n", len(history)))
	for i, msg := range history {
		label := string(msg.Role)
		if msg.Tool != "" {
			label = "tool:" + msg.Tool
		}
		b.WriteString(fmt.Sprintf("  %2d %-9s %s\n", i+1, label, firstLine(msg.Content, 80)))
	}
	return m.pushBlock(helpStyle.Render(strings.TrimRight(b.String(), "\n"))), nil
}

func handleContext(m Model, args []string) (Model, tea.Cmd) {
	sess := m.deps.Session
	avail := sess.Budget.Available()
	used := framework.EstimateMessagesTokens(sess.Context.Render(avail))
	var b strings.Builder
	b.WriteString(fmt.Sprintf("context window: %d of %d tokens (%s)\n", used, avail, sess.Budget.State(used)))
	b.WriteString(fmt.Sprintf("history: %d messages, %d retained verbatim during eviction\n",
		sess.Context.Len(), m.deps.Config.Settings.RetainRecent))
	b.WriteString(fmt.Sprintf("system prompt: %d chars\n", len(sess.Context.System().Content)))
	if m.contextText != "" {
		b.WriteString(fmt.Sprintf("context file: %s folded into the prompt\n", agent.ContextFileName))
	} else {
		b.WriteString("context file: none\n")
	}
	b.WriteString(fmt.Sprintf("pending images: %d", len(m.pendingImages)))
	return m.pushBlock(infoStyle.Render(b.String())), nil
}

func handleImage(m Model, args []string) (Model, tea.Cmd) {
	if len(args) == 0 {
		return m.warnLine("usage: /image <path>"), nil
	}
	path := args[0]
	m = m.dimLine("analyzing %s", path)
	return m, attachImageCmd(m.deps.Session.Executor, m.deps.Policy, path)
}

func handleAnalyze(m Model, args []string) (Model, tea.Cmd) {
	if len(args) == 0 {
		return m.warnLine("usage: /analyze <path>"), nil
	}
	return m, execToolCmd(m.deps.Session.Executor, "analyze_code", map[string]string{"path": args[0]})
}

func handleDebug(m Model, args []string) (Model, tea.Cmd) {
	m.debug = !m.debug
	if m.deps.Client != nil {
		m.deps.Client.SetDebugLogging(m.debug)
	}
	state := "off"
	if m.debug {
		state = "on"
	}
	m = m.infoLine("debug payload logging %s", state)
	return m.refreshStatus(), nil
}

func handleSave(m Model, args []string) (Model, tea.Cmd) {
	if m.deps.Store == nil {
		return m.warnLine("session store is not available"), nil
	}
	if len(args) == 0 {
		return m.warnLine("usage: /save <name>"), nil
	}
	name := args[0]
	snap := m.deps.Session.Export(name)
	return m, saveSessionCmd(m.deps.Store, snap)
}

func handleLoad(m Model, args []string) (Model, tea.Cmd) {
	if m.waiting {
		return m.warnLine("a turn is still running, try again when it finishes"), nil
	}
	if m.deps.Store == nil {
		return m.warnLine("session store is not available"), nil
	}
	if len(args) == 0 {
		return m.warnLine("usage: /load <name>"), nil
	}
	return m, loadSessionCmd(m.deps.Store, args[0])
}

func handleSessions(m Model, args []string) (Model, tea.Cmd) {
	if m.deps.Store == nil {
		return m.warnLine("session store is not available"), nil
	}
	return m, listSessionsCmd(m.deps.Store)
}

func handleStatus(m Model, args []string) (Model, tea.Cmd) {
	sess := m.deps.Session
	avail := sess.Budget.Available()
	used := framework.EstimateMessagesTokens(sess.Context.Render(avail))
	mode := "off"
	if m.deps.Policy != nil && m.deps.Policy.SafeMode {
		mode = "on"
	}
	debug := "off"
	if m.debug {
		debug = "on"
	}
	store := "unavailable"
	if m.deps.Store != nil {
		store = "available"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("endpoint: %s (%s)\n", m.endpointLabel(), sess.Endpoint))
	b.WriteString(fmt.Sprintf("model: %s\n", sess.ModelName))
	b.WriteString(fmt.Sprintf("phase: %s, %d turns completed\n", sess.Phase(), sess.Turns()))
	b.WriteString(fmt.Sprintf("context: %d/%d tokens (%s)\n", used, avail, sess.Budget.State(used)))
	b.WriteString(fmt.Sprintf("safe mode: %s, debug: %s\n", mode, debug))
	b.WriteString(fmt.Sprintf("workspace: %s\n", m.deps.Workspace))
	b.WriteString(fmt.Sprintf("session store: %s", store))
	return m.pushBlock(infoStyle.Render(b.String())), nil
}

func handleConfig(m Model, args []string) (Model, tea.Cmd) {
	cfg := m.deps.Config
	var b strings.Builder
	if m.deps.ConfigPath != "" {
		b.WriteString(fmt.Sprintf("config file: %s\n", m.deps.ConfigPath))
	}
	b.WriteString(fmt.Sprintf("active_endpoint: %s\nmodel: %s\nendpoints:\n", cfg.ActiveEndpoint, cfg.Model))
	for _, name := range cfg.EndpointNames() {
		b.WriteString(fmt.Sprintf("  %s = %s\n", name, cfg.Endpoints[name]))
	}
	b.WriteString(fmt.Sprintf("temperature: %g, max_tokens: %d, context_length: %d\n",
		cfg.Settings.Temperature, cfg.Settings.MaxTokens, cfg.Settings.ContextLength))
	b.WriteString(fmt.Sprintf("timeout_seconds: %d, retain_recent: %d, safe_mode: %t, debug: %t\n",
		cfg.Settings.TimeoutSeconds, cfg.Settings.RetainRecent, cfg.Settings.SafeMode, cfg.Settings.Debug))
	if len(cfg.Tools.Enabled) > 0 {
		b.WriteString(fmt.Sprintf("tools enabled: %s\n", strings.Join(cfg.Tools.Enabled, ", ")))
	} else {
		b.WriteString("tools enabled: all builtins\n")
	}
	b.WriteString(fmt.Sprintf("custom manifest: %s", cfg.Tools.CustomManifest))
	return m.pushBlock(helpStyle.Render(b.String())), nil
}

func handleExit(m Model, args []string) (Model, tea.Cmd) {
	return m, tea.Quit
}

// replaceClient swaps in a fresh model client pointed at the given endpoint,
// carrying the configured sampling settings and the current debug flag.
func (m Model) replaceClient(endpoint, model string) Model {
	client := llm.NewClient(endpoint, model)
	client.Temperature = m.deps.Config.Settings.Temperature
	client.MaxTokens = m.deps.Config.Settings.MaxTokens
	client.SetTimeout(m.deps.Config.Settings.Timeout())
	client.SetDebugLogging(m.debug)
	m.deps.Client = client
	m.deps.Session.Client = client
	return m
}

// endpointLabel resolves the active endpoint URL back to its configured name
// where possible.
func (m Model) endpointLabel() string {
	for name, url := range m.deps.Config.Endpoints {
		if url == m.deps.Session.Endpoint {
			return name
		}
	}
	return m.deps.Session.Endpoint
}

func firstLine(content string, limit int) string {
	line := strings.TrimSpace(strings.SplitN(content, "\n", 2)[0])
	if len(line) > limit {
		line = line[:limit-1] + "…"
	}
	return line
}

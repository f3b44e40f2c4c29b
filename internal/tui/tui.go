// Package tui implements the interactive chat shell: a bubbletea loop that
// feeds user input to the agent session, shows tool activity, and answers
// safe-mode confirmation prompts. One turn runs at a time; the turn itself
// executes in a background goroutine and reports back as a message.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lexcodex/aicode/agent"
	"github.com/lexcodex/aicode/framework"
	"github.com/lexcodex/aicode/internal/config"
	"github.com/lexcodex/aicode/llm"
	"github.com/lexcodex/aicode/parser"
	"github.com/lexcodex/aicode/persistence"
	"github.com/lexcodex/aicode/tools"
)

// Deps carries the wired services the shell drives. Session and Config are
// required; everything else degrades gracefully when absent.
type Deps struct {
	Session    *agent.Session
	Client     *llm.Client
	Config     *config.Config
	ConfigPath string
	Policy     *framework.SafetyPolicy
	Broker     *framework.ConfirmBroker
	Store      persistence.SessionStore
	Workspace  string

	// ContextText is the aicode.md content loaded at startup.
	ContextText string

	// ReloadTools rebuilds the registry from builtins plus the custom
	// manifest and swaps it into the executor. Returns the custom tool
	// names added and the ones skipped over builtin collisions.
	ReloadTools func() (added []string, skipped []string, err error)
}

// Run starts the chat shell and blocks until the user leaves it.
func Run(ctx context.Context, deps Deps) error {
	if deps.Session == nil {
		return fmt.Errorf("session is required")
	}
	if deps.Config == nil {
		return fmt.Errorf("config is required")
	}
	m := newModel(ctx, deps)

	if deps.Workspace != "" {
		events := m.events
		err := agent.WatchContextFile(ctx, deps.Workspace, func(content string) {
			select {
			case events <- contextReloadMsg{content: content}:
			default:
			}
		})
		if err != nil {
			log.Printf("[watch] context file watcher disabled: %v", err)
		}
	}

	program := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
	_, err := program.Run()
	return err
}

// pendingImage is a vision payload staged for the next user message.
type pendingImage struct {
	path    string
	payload string
}

const (
	// chromeRows are the fixed rows around the viewport: title, notice,
	// input, status bar.
	chromeRows = 4

	maxChatLines     = 500
	toolDisplayLines = 12
)

// Model is the bubbletea model for the chat shell.
type Model struct {
	deps Deps
	ctx  context.Context

	input    textinput.Model
	viewport viewport.Model
	spin     spinner.Model
	status   StatusBar

	lines      []string
	waiting    bool
	turnCancel context.CancelFunc

	confirm      *framework.ConfirmRequest
	confirmQueue []framework.ConfirmRequest

	pendingImages []pendingImage
	contextText   string
	debug         bool

	events chan tea.Msg

	width  int
	height int
	ready  bool
}

func newModel(ctx context.Context, deps Deps) Model {
	if ctx == nil {
		ctx = context.Background()
	}
	input := textinput.New()
	input.Placeholder = "Ask something, or /help for commands"
	input.CharLimit = 4096
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	m := Model{
		deps:        deps,
		ctx:         ctx,
		input:       input,
		viewport:    viewport.New(0, 0),
		spin:        sp,
		contextText: deps.ContextText,
		debug:       deps.Config.Settings.Debug,
		events:      make(chan tea.Msg, 8),
	}
	m = m.infoLine("chatting with %s via %s", deps.Session.ModelName, m.endpointLabel())
	m = m.dimLine("type /help for commands")
	if deps.Policy != nil && deps.Policy.SafeMode {
		m = m.dimLine("safe mode is on, confirm-required tools will ask first")
	}
	return m.refreshStatus()
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, listenEvents(m.events)}
	if m.deps.Broker != nil {
		cmds = append(cmds, listenConfirm(m.deps.Broker))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 4
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - chromeRows
		if m.viewport.Height < 1 {
			m.viewport.Height = 1
		}
		m.ready = true
		return m.refreshViewport(), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m.refreshStatus(), cmd

	case turnDoneMsg:
		return m.finishTurn(msg), nil

	case confirmRequestMsg:
		m = m.enqueueConfirm(msg.req)
		return m, listenConfirm(m.deps.Broker)

	case contextReloadMsg:
		m.contextText = msg.content
		m.deps.Session.Context.SetSystem(m.systemPrompt())
		m = m.dimLine("%s changed, system prompt rebuilt", agent.ContextFileName)
		return m.refreshStatus(), listenEvents(m.events)

	case probeDoneMsg:
		return m.showProbe(msg.report), nil

	case toolDoneMsg:
		return m.appendToolResult(msg.result).refreshStatus(), nil

	case imageReadyMsg:
		return m.attachImage(msg), nil

	case sessionSavedMsg:
		if msg.err != nil {
			return m.errorLine("save failed: %v", msg.err), nil
		}
		return m.infoLine("saved session %q (%d messages)", msg.name, msg.count), nil

	case sessionLoadedMsg:
		return m.loadSnapshot(msg), nil

	case sessionListMsg:
		return m.showSessions(msg), nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if !m.ready {
		return "starting aicode"
	}
	var b strings.Builder
	b.WriteString(m.titleLine())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.noticeLine())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.status.View(m.width))
	return b.String()
}

func (m Model) titleLine() string {
	return titleStyle.Render("AiCode") + " " + helpStyle.Render(truncateLabel(m.deps.Workspace, 60))
}

// noticeLine is the row between viewport and input: the confirmation prompt
// when one is pending, progress while a turn runs, key help otherwise.
func (m Model) noticeLine() string {
	switch {
	case m.confirm != nil:
		extra := ""
		if n := len(m.confirmQueue); n > 0 {
			extra = fmt.Sprintf(" (+%d queued)", n)
		}
		return confirmStyle.Render(fmt.Sprintf("run %s? y runs it, n skips%s", m.confirm.Summary, extra))
	case m.waiting:
		return m.spin.View() + " " + helpStyle.Render(m.deps.Session.Phase().String()+", esc cancels")
	default:
		return helpStyle.Render("enter sends, /help for commands, pgup/pgdn scroll, esc quits")
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if m.confirm != nil {
		switch msg.String() {
		case "y", "Y":
			return m.resolveConfirm(true), nil
		case "n", "N", "esc":
			return m.resolveConfirm(false), nil
		case "ctrl+c":
			return m, tea.Quit
		}
		return m, nil
	}

	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		if m.waiting && m.turnCancel != nil {
			m.turnCancel()
			return m, nil
		}
		return m, tea.Quit
	case "enter":
		return m.submit()
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit routes the prompt line: slash input goes to the command registry,
// anything else starts a turn.
func (m Model) submit() (Model, tea.Cmd) {
	value := strings.TrimSpace(m.input.Value())
	if value == "" {
		return m, nil
	}
	if strings.HasPrefix(value, "/") {
		m.input.SetValue("")
		m = m.pushLine(userStyle.Render("> " + value))
		name, args := parseCommand(value)
		return handleCommand(m, name, args)
	}
	if m.waiting {
		return m.warnLine("still waiting on the model, hang on"), nil
	}

	m.input.SetValue("")
	m = m.pushLine(userStyle.Render("> " + value))

	images := make([]string, 0, len(m.pendingImages))
	for _, img := range m.pendingImages {
		images = append(images, img.payload)
	}
	m.pendingImages = nil

	m.waiting = true
	turnCtx, cancel := context.WithCancel(m.ctx)
	m.turnCancel = cancel
	m = m.refreshStatus()
	return m, tea.Batch(m.spin.Tick, runTurnCmd(turnCtx, m.deps.Session, value, images))
}

func (m Model) finishTurn(msg turnDoneMsg) Model {
	m.waiting = false
	if m.turnCancel != nil {
		m.turnCancel()
		m.turnCancel = nil
	}
	if msg.result != nil {
		if msg.result.Reply != "" {
			m = m.pushBlock(msg.result.Reply)
		}
		for _, res := range msg.result.Results {
			m = m.appendToolResult(res)
		}
	}
	if msg.err != nil {
		switch {
		case errors.Is(msg.err, context.Canceled):
			m = m.warnLine("turn cancelled")
		case errors.Is(msg.err, llm.ErrConnection):
			m = m.errorLine("model error: %v", msg.err)
			m = m.dimLine("is the endpoint running? /models probes it, /switch changes it")
		case errors.Is(msg.err, llm.ErrTimeout):
			m = m.errorLine("model error: %v", msg.err)
			m = m.dimLine("raise timeout_seconds in the config or retry with a smaller prompt")
		default:
			m = m.errorLine("model error: %v", msg.err)
		}
	}
	return m.refreshStatus().refreshViewport()
}

func (m Model) appendToolResult(res *framework.ToolResult) Model {
	if res == nil {
		return m
	}
	if !res.Success {
		return m.errorLine("%s failed (%s): %s", res.Call.Name, res.Failure, res.Error)
	}
	m = m.pushLine(toolStyle.Render(fmt.Sprintf("%s ok in %s", res.Call.Name, res.Duration.Round(time.Millisecond))))
	out := strings.TrimRight(res.Output, "\n")
	if out == "" {
		return m
	}
	lines := strings.Split(out, "\n")
	if len(lines) > toolDisplayLines {
		hidden := len(lines) - toolDisplayLines
		lines = append(lines[:toolDisplayLines], helpStyle.Render(fmt.Sprintf("(%d more lines kept in context)", hidden)))
	}
	for _, line := range lines {
		m.lines = append(m.lines, "  "+toolStyle.Render(line))
	}
	return m.refreshViewport()
}

func (m Model) enqueueConfirm(req framework.ConfirmRequest) Model {
	if m.confirm == nil {
		m.confirm = &req
		return m
	}
	m.confirmQueue = append(m.confirmQueue, req)
	return m
}

func (m Model) resolveConfirm(approved bool) Model {
	if m.confirm == nil {
		return m
	}
	m.deps.Broker.Resolve(m.confirm.ID, approved)
	verdict := "approved"
	if !approved {
		verdict = "denied"
	}
	m = m.dimLine("%s %s", verdict, m.confirm.Summary)
	m.confirm = nil
	if len(m.confirmQueue) > 0 {
		next := m.confirmQueue[0]
		m.confirmQueue = m.confirmQueue[1:]
		m.confirm = &next
	}
	return m
}

func (m Model) showProbe(report llm.ProbeReport) Model {
	if !report.Healthy {
		m = m.errorLine("endpoint %s is unreachable: %s", report.Endpoint, report.Error)
		return m.dimLine("check the server is running, or /switch to another endpoint")
	}
	if len(report.Models) == 0 {
		return m.warnLine("endpoint is up but lists no models")
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%d models at %s:\n", len(report.Models), report.Endpoint))
	for _, name := range report.Models {
		marker := ""
		if name == m.deps.Session.ModelName {
			marker = "  (active)"
		}
		b.WriteString(fmt.Sprintf("  %s%s\n", name, marker))
	}
	b.WriteString("switch with /switch <model>")
	return m.pushBlock(infoStyle.Render(b.String()))
}

func (m Model) attachImage(msg imageReadyMsg) Model {
	m = m.appendToolResult(msg.result)
	if msg.payload == "" {
		if msg.result != nil && msg.result.Success {
			m = m.warnLine("no vision payload built, the model gets the metrics above only")
		}
		return m
	}
	m.pendingImages = append(m.pendingImages, pendingImage{path: msg.path, payload: msg.payload})
	return m.infoLine("%s will be attached to your next message", msg.path)
}

func (m Model) loadSnapshot(msg sessionLoadedMsg) Model {
	if msg.err != nil {
		if errors.Is(msg.err, persistence.ErrNotFound) {
			return m.warnLine("no session named %q, /sessions lists them", msg.name)
		}
		return m.errorLine("load failed: %v", msg.err)
	}
	if m.waiting {
		return m.warnLine("a turn started while loading, session %q was not applied", msg.name)
	}
	snap := msg.snap
	if err := m.deps.Session.Import(snap); err != nil {
		return m.errorLine("load failed: %v", err)
	}
	if snap.Endpoint != "" && snap.Model != "" {
		m = m.replaceClient(snap.Endpoint, snap.Model)
		m.deps.Config.Model = snap.Model
		for name, url := range m.deps.Config.Endpoints {
			if url == snap.Endpoint {
				m.deps.Config.ActiveEndpoint = name
				break
			}
		}
	}
	m.lines = nil
	m = m.infoLine("loaded session %q: %d messages, %d turns, model %s",
		snap.Name, len(snap.Messages), snap.Turns, snap.Model)
	for _, message := range m.deps.Session.Context.History() {
		m = m.replayMessage(message)
	}
	return m.refreshStatus()
}

// replayMessage re-renders one restored history entry into the chat log,
// keeping its original timestamp.
func (m Model) replayMessage(msg framework.Message) Model {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	switch msg.Role {
	case framework.RoleUser:
		return m.pushStamped(ts, userStyle.Render("> "+firstLine(msg.Content, 100)))
	case framework.RoleAssistant:
		return m.pushBlockStamped(ts, msg.Content)
	case framework.RoleTool:
		label := msg.Tool
		if label == "" {
			label = "tool"
		}
		return m.pushStamped(ts, toolStyle.Render(fmt.Sprintf("%s: %s", label, firstLine(msg.Content, 100))))
	}
	return m
}

func (m Model) showSessions(msg sessionListMsg) Model {
	if msg.err != nil {
		return m.errorLine("listing sessions failed: %v", msg.err)
	}
	if len(msg.infos) == 0 {
		return m.dimLine("no saved sessions yet, /save <name> writes one")
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%d saved sessions:\n", len(msg.infos)))
	for _, info := range msg.infos {
		b.WriteString(fmt.Sprintf("  %-20s %-18s %3d msgs %3d turns  %s\n",
			info.Name, info.Model, info.Messages, info.Turns, info.SavedAt.Local().Format("2006-01-02 15:04")))
	}
	b.WriteString("restore one with /load <name>")
	return m.pushBlock(infoStyle.Render(b.String()))
}

func (m Model) systemPrompt() string {
	return agent.BuildSystemPrompt(m.deps.Session.Executor.Registry, m.contextText)
}

func (m Model) refreshStatus() Model {
	sess := m.deps.Session
	avail := sess.Budget.Available()
	used := framework.EstimateMessagesTokens(sess.Context.Render(avail))
	m.status = StatusBar{
		endpoint: m.endpointLabel(),
		model:    sess.ModelName,
		phase:    sess.Phase().String(),
		used:     used,
		avail:    avail,
		state:    sess.Budget.State(used),
		turns:    sess.Turns(),
		safeMode: m.deps.Policy != nil && m.deps.Policy.SafeMode,
		debug:    m.debug,
	}
	return m
}

func (m Model) refreshViewport() Model {
	if !m.ready {
		return m
	}
	content := strings.Join(m.lines, "\n")
	if m.viewport.Width > 0 {
		content = lipgloss.NewStyle().Width(m.viewport.Width).Render(content)
	}
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
	return m
}

func (m Model) pushStamped(ts time.Time, line string) Model {
	m.lines = append(m.lines, ts.Format(time.Kitchen)+" · "+line)
	if len(m.lines) > maxChatLines {
		m.lines = m.lines[len(m.lines)-maxChatLines:]
	}
	return m.refreshViewport()
}

func (m Model) pushLine(line string) Model {
	return m.pushStamped(time.Now(), line)
}

// pushBlock stamps the first line and indents the rest under it.
func (m Model) pushBlock(text string) Model {
	return m.pushBlockStamped(time.Now(), text)
}

func (m Model) pushBlockStamped(ts time.Time, text string) Model {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	m = m.pushStamped(ts, lines[0])
	for _, line := range lines[1:] {
		m.lines = append(m.lines, "  "+line)
	}
	if len(m.lines) > maxChatLines {
		m.lines = m.lines[len(m.lines)-maxChatLines:]
	}
	return m.refreshViewport()
}

func (m Model) infoLine(format string, args ...any) Model {
	return m.pushLine(infoStyle.Render(fmt.Sprintf(format, args...)))
}

func (m Model) warnLine(format string, args ...any) Model {
	return m.pushLine(warnStyle.Render(fmt.Sprintf(format, args...)))
}

func (m Model) errorLine(format string, args ...any) Model {
	return m.pushLine(errorStyle.Render(fmt.Sprintf(format, args...)))
}

func (m Model) dimLine(format string, args ...any) Model {
	return m.pushLine(helpStyle.Render(fmt.Sprintf(format, args...)))
}

// Commands

type turnDoneMsg struct {
	result *agent.TurnResult
	err    error
}

func runTurnCmd(ctx context.Context, sess *agent.Session, input string, images []string) tea.Cmd {
	return func() tea.Msg {
		result, err := sess.RunTurn(ctx, input, images)
		return turnDoneMsg{result: result, err: err}
	}
}

type confirmRequestMsg struct {
	req framework.ConfirmRequest
}

func listenConfirm(broker *framework.ConfirmBroker) tea.Cmd {
	if broker == nil {
		return nil
	}
	return func() tea.Msg {
		req, ok := <-broker.Requests()
		if !ok {
			return nil
		}
		return confirmRequestMsg{req: req}
	}
}

type contextReloadMsg struct {
	content string
}

func listenEvents(ch chan tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

type probeDoneMsg struct {
	report llm.ProbeReport
}

func probeCmd(endpoint string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return probeDoneMsg{report: llm.Probe(ctx, endpoint)}
	}
}

type toolDoneMsg struct {
	result *framework.ToolResult
}

func execToolCmd(exec *framework.Executor, name string, args map[string]string) tea.Cmd {
	return func() tea.Msg {
		call := parser.ToolCall{Name: name, Args: args}
		return toolDoneMsg{result: exec.Execute(context.Background(), call)}
	}
}

type imageReadyMsg struct {
	path    string
	payload string
	result  *framework.ToolResult
}

func attachImageCmd(exec *framework.Executor, policy *framework.SafetyPolicy, path string) tea.Cmd {
	return func() tea.Msg {
		call := parser.ToolCall{Name: "analyze_image", Args: map[string]string{"path": path}}
		res := exec.Execute(context.Background(), call)
		payload := ""
		if res.Success {
			if p, err := tools.VisionPayload(policy, path); err == nil {
				payload = p
			}
		}
		return imageReadyMsg{path: path, payload: payload, result: res}
	}
}

type sessionSavedMsg struct {
	name  string
	count int
	err   error
}

func saveSessionCmd(store persistence.SessionStore, snap *persistence.SessionSnapshot) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return sessionSavedMsg{name: snap.Name, count: len(snap.Messages), err: store.Save(ctx, snap)}
	}
}

type sessionLoadedMsg struct {
	name string
	snap *persistence.SessionSnapshot
	err  error
}

func loadSessionCmd(store persistence.SessionStore, name string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		snap, err := store.Load(ctx, name)
		return sessionLoadedMsg{name: name, snap: snap, err: err}
	}
}

type sessionListMsg struct {
	infos []persistence.SessionInfo
	err   error
}

func listSessionsCmd(store persistence.SessionStore) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		infos, err := store.List(ctx)
		return sessionListMsg{infos: infos, err: err}
	}
}

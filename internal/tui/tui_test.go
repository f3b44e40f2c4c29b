package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lexcodex/aicode/agent"
	"github.com/lexcodex/aicode/framework"
	"github.com/lexcodex/aicode/internal/config"
	"github.com/lexcodex/aicode/llm"
	"github.com/lexcodex/aicode/parser"
	"github.com/lexcodex/aicode/persistence"
	"github.com/lexcodex/aicode/tools"
)

type scriptedCaller struct {
	reply string
	err   error
	calls [][]llm.ChatMessage
}

func (s *scriptedCaller) Chat(_ context.Context, messages []llm.ChatMessage) (*llm.ChatResponse, error) {
	s.calls = append(s.calls, messages)
	if s.err != nil {
		return nil, s.err
	}
	return &llm.ChatResponse{Text: s.reply}, nil
}

func newTestModel(t *testing.T, caller agent.ModelCaller) Model {
	t.Helper()
	root := t.TempDir()
	policy, err := framework.NewSafetyPolicy(root, true)
	if err != nil {
		t.Fatalf("safety policy: %v", err)
	}
	reg := framework.NewRegistry()
	for _, tool := range []framework.Tool{
		&tools.ReadFileTool{Policy: policy},
		&tools.WriteFileTool{Policy: policy, Backup: true},
		&tools.AnalyzeCodeTool{Policy: policy},
	} {
		if err := reg.Register(tool); err != nil {
			t.Fatalf("register %s: %v", tool.Name(), err)
		}
	}
	exec := framework.NewExecutor(reg, policy)
	exec.Confirm = framework.StaticConfirmer(true)

	cm := framework.NewContextManager(agent.BuildSystemPrompt(reg, ""), 6)
	sess := agent.NewSession(cm, framework.ContextBudget{Limit: 4096, Reserve: 512}, exec, caller)
	cfg := config.DefaultConfig()
	sess.Endpoint = cfg.Endpoints[cfg.ActiveEndpoint]
	sess.ModelName = cfg.Model

	return newModel(context.Background(), Deps{
		Session:   sess,
		Config:    &cfg,
		Policy:    policy,
		Workspace: root,
	})
}

func chatText(m Model) string {
	return strings.Join(m.lines, "\n")
}

func seedWorkspaceFile(t *testing.T, root, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0o644); err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}
}

// runTurnFromBatch executes the command submit returned and digs the turn
// result out of the spinner/turn batch.
func runTurnFromBatch(t *testing.T, cmd tea.Cmd) turnDoneMsg {
	t.Helper()
	if cmd == nil {
		t.Fatalf("expected a command starting the turn")
	}
	msg := cmd()
	if done, ok := msg.(turnDoneMsg); ok {
		return done
	}
	batch, ok := msg.(tea.BatchMsg)
	if !ok {
		t.Fatalf("expected a batch, got %T", msg)
	}
	for _, c := range batch {
		if c == nil {
			continue
		}
		if done, ok := c().(turnDoneMsg); ok {
			return done
		}
	}
	t.Fatalf("no turn result in batch")
	return turnDoneMsg{}
}

func TestStartupGreetingNamesEndpoint(t *testing.T) {
	m := newTestModel(t, &scriptedCaller{})
	chat := chatText(m)
	if !strings.Contains(chat, "chatting with qwen2.5-coder via ollama") {
		t.Fatalf("greeting missing:\n%s", chat)
	}
	if !strings.Contains(chat, "safe mode is on") {
		t.Fatalf("safe mode notice missing:\n%s", chat)
	}
}

func TestTurnRoundTripShowsReplyAndTools(t *testing.T) {
	m := newTestModel(t, &scriptedCaller{reply: "Let me look.\nTOOL: read_file(path=\"main.go\")"})
	seedWorkspaceFile(t, m.deps.Workspace, "main.go", "package main\n\nfunc main() {}\n")

	m.input.SetValue("what is in main.go?")
	nextAny, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	next := nextAny.(Model)
	if !next.waiting {
		t.Fatalf("expected a turn in flight")
	}

	done := runTurnFromBatch(t, cmd)
	if done.err != nil {
		t.Fatalf("turn failed: %v", done.err)
	}

	nextAny, _ = next.Update(done)
	next = nextAny.(Model)
	if next.waiting {
		t.Fatalf("turn should be finished")
	}
	chat := chatText(next)
	if !strings.Contains(chat, "Let me look.") {
		t.Fatalf("reply missing from chat log:\n%s", chat)
	}
	if !strings.Contains(chat, "read_file ok in") {
		t.Fatalf("tool result missing from chat log:\n%s", chat)
	}
	if !strings.Contains(chat, "package main") {
		t.Fatalf("tool output missing from chat log:\n%s", chat)
	}
	if got := next.deps.Session.Turns(); got != 1 {
		t.Fatalf("expected 1 completed turn, got %d", got)
	}
}

func TestSubmitRoutesSlashCommands(t *testing.T) {
	m := newTestModel(t, &scriptedCaller{})
	m.input.SetValue("/help")
	nextAny, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	next := nextAny.(Model)
	if next.waiting {
		t.Fatalf("slash commands must not start a turn")
	}
	if next.input.Value() != "" {
		t.Fatalf("input should clear, got %q", next.input.Value())
	}
	chat := chatText(next)
	if !strings.Contains(chat, "> /help") {
		t.Fatalf("command echo missing:\n%s", chat)
	}
	if !strings.Contains(chat, "Available commands:") {
		t.Fatalf("help output missing:\n%s", chat)
	}
}

func TestSubmitKeepsInputWhileTurnRuns(t *testing.T) {
	m := newTestModel(t, &scriptedCaller{reply: "ok"})
	m.waiting = true
	m.input.SetValue("second question")
	nextAny, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	next := nextAny.(Model)
	if !strings.Contains(chatText(next), "still waiting") {
		t.Fatalf("expected the busy warning:\n%s", chatText(next))
	}
	if next.input.Value() != "second question" {
		t.Fatalf("typed input should survive the refusal, got %q", next.input.Value())
	}
}

func TestSubmitSendsStagedImages(t *testing.T) {
	caller := &scriptedCaller{reply: "I see a screenshot."}
	m := newTestModel(t, caller)
	m.pendingImages = []pendingImage{{path: "shot.png", payload: "b64data"}}

	m.input.SetValue("what is on screen?")
	nextAny, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	next := nextAny.(Model)
	if len(next.pendingImages) != 0 {
		t.Fatalf("staged images should drain into the turn")
	}

	done := runTurnFromBatch(t, cmd)
	if done.err != nil {
		t.Fatalf("turn failed: %v", done.err)
	}
	if len(caller.calls) != 1 {
		t.Fatalf("expected one model call, got %d", len(caller.calls))
	}
	sent := caller.calls[0]
	last := sent[len(sent)-1]
	if len(last.Images) != 1 || last.Images[0] != "b64data" {
		t.Fatalf("image payload not sent with the user message: %+v", last)
	}
}

func TestConnectionErrorSuggestsProbe(t *testing.T) {
	m := newTestModel(t, &scriptedCaller{err: fmt.Errorf("endpoint down: %w", llm.ErrConnection)})
	m.input.SetValue("hello")
	nextAny, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	next := nextAny.(Model)

	done := runTurnFromBatch(t, cmd)
	nextAny, _ = next.Update(done)
	next = nextAny.(Model)

	chat := chatText(next)
	if !strings.Contains(chat, "model error") {
		t.Fatalf("expected a model error line:\n%s", chat)
	}
	if !strings.Contains(chat, "/models probes it") {
		t.Fatalf("expected the endpoint hint:\n%s", chat)
	}
	if next.waiting {
		t.Fatalf("waiting should clear on error")
	}
	if got := next.deps.Session.Turns(); got != 0 {
		t.Fatalf("a failed turn should not count, got %d", got)
	}
}

func TestEscCancelsRunningTurn(t *testing.T) {
	m := newTestModel(t, &scriptedCaller{})
	cancelled := false
	m.waiting = true
	m.turnCancel = func() { cancelled = true }

	nextAny, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	next := nextAny.(Model)
	if !cancelled {
		t.Fatalf("esc should cancel the turn context")
	}
	if cmd != nil {
		t.Fatalf("cancelling must not quit the program")
	}
	if !next.waiting {
		t.Fatalf("the turn stays in flight until it reports back")
	}
}

func TestEscQuitsWhenIdle(t *testing.T) {
	m := newTestModel(t, &scriptedCaller{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Fatalf("expected quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected quit, got %T", cmd())
	}
}

func TestConfirmPromptApproveFlow(t *testing.T) {
	m := newTestModel(t, &scriptedCaller{})
	broker := framework.NewConfirmBroker(time.Minute)
	m.deps.Broker = broker

	answers := make(chan bool, 1)
	go func() {
		approved, err := broker.Confirm(context.Background(), framework.ConfirmRequest{
			Tool:    "write_file",
			Summary: `write_file(path="main.go")`,
		})
		if err != nil {
			t.Errorf("confirm: %v", err)
		}
		answers <- approved
	}()

	msg := listenConfirm(broker)()
	nextAny, cmd := m.Update(msg)
	next := nextAny.(Model)
	if next.confirm == nil {
		t.Fatalf("expected a pending confirmation")
	}
	if cmd == nil {
		t.Fatalf("expected the listener to re-arm")
	}
	if !strings.Contains(next.noticeLine(), "write_file") {
		t.Fatalf("notice should show the call summary, got %q", next.noticeLine())
	}

	nextAny, _ = next.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	next = nextAny.(Model)
	if next.confirm != nil {
		t.Fatalf("confirmation should clear after answering")
	}

	select {
	case approved := <-answers:
		if !approved {
			t.Fatalf("expected the approval to reach the tool")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("tool never received the verdict")
	}
}

func TestConfirmQueueHoldsFollowup(t *testing.T) {
	m := newTestModel(t, &scriptedCaller{})
	broker := framework.NewConfirmBroker(time.Minute)
	m.deps.Broker = broker

	verdicts := make(chan bool, 2)
	ask := func(summary string) {
		go func() {
			approved, _ := broker.Confirm(context.Background(), framework.ConfirmRequest{
				Tool:    "execute_command",
				Summary: summary,
			})
			verdicts <- approved
		}()
	}

	ask(`execute_command(command="ls")`)
	nextAny, _ := m.Update(listenConfirm(broker)())
	next := nextAny.(Model)

	ask(`execute_command(command="rm old.log")`)
	nextAny, _ = next.Update(listenConfirm(broker)())
	next = nextAny.(Model)

	if next.confirm == nil || len(next.confirmQueue) != 1 {
		t.Fatalf("expected one active and one queued request, got queue=%d", len(next.confirmQueue))
	}
	if !strings.Contains(next.noticeLine(), "+1 queued") {
		t.Fatalf("notice should count the queue, got %q", next.noticeLine())
	}

	nextAny, _ = next.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})
	next = nextAny.(Model)
	if next.confirm == nil || len(next.confirmQueue) != 0 {
		t.Fatalf("the queued request should become active after the first verdict")
	}

	nextAny, _ = next.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	next = nextAny.(Model)
	if next.confirm != nil {
		t.Fatalf("no confirmations should remain")
	}

	first, second := <-verdicts, <-verdicts
	if first == second {
		t.Fatalf("expected one denial and one approval, got %v and %v", first, second)
	}
}

func TestContextReloadRebuildsSystemPrompt(t *testing.T) {
	m := newTestModel(t, &scriptedCaller{})
	nextAny, cmd := m.Update(contextReloadMsg{content: "Project uses spaces, not tabs."})
	next := nextAny.(Model)

	sys := next.deps.Session.Context.System().Content
	if !strings.Contains(sys, "Project uses spaces, not tabs.") {
		t.Fatalf("system prompt should fold in the new context file:\n%s", sys)
	}
	if cmd == nil {
		t.Fatalf("expected the event listener to re-arm")
	}
	if !strings.Contains(chatText(next), "system prompt rebuilt") {
		t.Fatalf("reload should be announced:\n%s", chatText(next))
	}
}

func TestAttachImageStagesPayload(t *testing.T) {
	m := newTestModel(t, &scriptedCaller{})
	res := &framework.ToolResult{
		Call:    parser.ToolCall{Name: "analyze_image"},
		Success: true,
		Output:  "screenshot.png: 640x480 png",
	}
	nextAny, _ := m.Update(imageReadyMsg{path: "screenshot.png", payload: "base64bytes", result: res})
	next := nextAny.(Model)
	if len(next.pendingImages) != 1 {
		t.Fatalf("expected one staged image, got %d", len(next.pendingImages))
	}
	if !strings.Contains(chatText(next), "attached to your next message") {
		t.Fatalf("staging announcement missing:\n%s", chatText(next))
	}
}

func TestAttachImageWithoutPayloadWarns(t *testing.T) {
	m := newTestModel(t, &scriptedCaller{})
	res := &framework.ToolResult{
		Call:    parser.ToolCall{Name: "analyze_image"},
		Success: true,
		Output:  "huge.png: 4000x3000 png",
	}
	nextAny, _ := m.Update(imageReadyMsg{path: "huge.png", result: res})
	next := nextAny.(Model)
	if len(next.pendingImages) != 0 {
		t.Fatalf("nothing should be staged without a payload")
	}
	if !strings.Contains(chatText(next), "no vision payload built") {
		t.Fatalf("expected the degraded-mode warning:\n%s", chatText(next))
	}
}

func TestLoadSnapshotRestoresSessionAndClient(t *testing.T) {
	m := newTestModel(t, &scriptedCaller{})
	snap := &persistence.SessionSnapshot{
		Name:     "alpha",
		Endpoint: "http://localhost:1234/v1/chat/completions",
		Model:    "llama3.2-vision",
		Turns:    2,
		Messages: []framework.Message{
			framework.NewMessage(framework.RoleSystem, "You are AiCode."),
			framework.NewMessage(framework.RoleUser, "hello there"),
			framework.NewMessage(framework.RoleAssistant, "Hi, what are we building?"),
		},
	}

	nextAny, _ := m.Update(sessionLoadedMsg{name: "alpha", snap: snap})
	next := nextAny.(Model)

	if got := next.deps.Session.ModelName; got != "llama3.2-vision" {
		t.Fatalf("model not restored, got %q", got)
	}
	if got := next.deps.Session.Turns(); got != 2 {
		t.Fatalf("turns not restored, got %d", got)
	}
	client, ok := next.deps.Session.Client.(*llm.Client)
	if !ok {
		t.Fatalf("expected a rebuilt llm client, got %T", next.deps.Session.Client)
	}
	if client.Endpoint != snap.Endpoint || client.Model != snap.Model {
		t.Fatalf("client not pointed at the snapshot target: %s %s", client.Endpoint, client.Model)
	}
	if client.Temperature != next.deps.Config.Settings.Temperature {
		t.Fatalf("sampling settings dropped on rebuild")
	}
	if got := next.deps.Config.ActiveEndpoint; got != "lmstudio" {
		t.Fatalf("active endpoint should resolve to lmstudio, got %q", got)
	}

	chat := chatText(next)
	if !strings.Contains(chat, `loaded session "alpha"`) {
		t.Fatalf("load announcement missing:\n%s", chat)
	}
	if !strings.Contains(chat, "> hello there") {
		t.Fatalf("user history not replayed:\n%s", chat)
	}
	if !strings.Contains(chat, "Hi, what are we building?") {
		t.Fatalf("assistant history not replayed:\n%s", chat)
	}
}

func TestLoadMissingSessionWarns(t *testing.T) {
	m := newTestModel(t, &scriptedCaller{})
	err := fmt.Errorf("load session %q: %w", "ghost", persistence.ErrNotFound)
	nextAny, _ := m.Update(sessionLoadedMsg{name: "ghost", err: err})
	next := nextAny.(Model)
	if !strings.Contains(chatText(next), `no session named "ghost"`) {
		t.Fatalf("expected the not-found hint:\n%s", chatText(next))
	}
}

func TestWindowSizeReadiesView(t *testing.T) {
	m := newTestModel(t, &scriptedCaller{})
	if m.ready {
		t.Fatalf("model should wait for the first resize")
	}
	nextAny, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	next := nextAny.(Model)
	if !next.ready {
		t.Fatalf("resize should ready the view")
	}
	if next.viewport.Height != 30-chromeRows {
		t.Fatalf("viewport height = %d, want %d", next.viewport.Height, 30-chromeRows)
	}
	view := next.View()
	if !strings.Contains(view, "AiCode") {
		t.Fatalf("view missing the title:\n%s", view)
	}
}

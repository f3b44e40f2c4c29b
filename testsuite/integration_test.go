package testsuite

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lexcodex/aicode/agent"
	"github.com/lexcodex/aicode/framework"
	"github.com/lexcodex/aicode/llm"
	"github.com/lexcodex/aicode/tools"
)

func TestTurnExecutesParsedToolCall(t *testing.T) {
	workspace := t.TempDir()
	endpoint := &scriptedEndpoint{replies: []string{
		"Writing the plan now.\nTOOL: write_file(path=\"notes/plan.md\", content=\"draft the parser first\")",
	}}
	sess, audit := newTurnSession(t, workspace, endpoint)

	result, err := sess.RunTurn(context.Background(), "start a plan file", nil)
	if err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if result.Reply != "Writing the plan now." {
		t.Fatalf("unexpected reply: %q", result.Reply)
	}
	if len(result.Results) != 1 || !result.Results[0].Success {
		t.Fatalf("expected one successful call, got %+v", result.Results)
	}

	data, err := os.ReadFile(filepath.Join(workspace, "notes", "plan.md"))
	if err != nil {
		t.Fatalf("tool side effect missing on disk: %v", err)
	}
	if string(data) != "draft the parser first" {
		t.Fatalf("unexpected file content: %q", data)
	}

	if audit.Len() != 1 {
		t.Fatalf("expected one audit record, got %d", audit.Len())
	}
	rec := audit.Recent(1)[0]
	if rec.Tool != "write_file" || !rec.Success {
		t.Fatalf("unexpected audit record: %+v", rec)
	}

	sent := endpoint.request(0)
	if len(sent) == 0 || sent[0].Role != "system" {
		t.Fatalf("request missing leading system message: %+v", sent)
	}
	if !strings.Contains(sent[0].Content, "write_file") {
		t.Fatal("system prompt does not advertise the tool that was called")
	}
}

func TestToolResultFeedsNextModelRequest(t *testing.T) {
	workspace := t.TempDir()
	if err := os.WriteFile(filepath.Join(workspace, "config.toml"), []byte("retries = 4\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	endpoint := &scriptedEndpoint{replies: []string{
		"TOOL: read_file(path=\"config.toml\")",
		"The config sets retries to 4.",
	}}
	sess, _ := newTurnSession(t, workspace, endpoint)

	first, err := sess.RunTurn(context.Background(), "what does the config say?", nil)
	if err != nil {
		t.Fatalf("first turn failed: %v", err)
	}
	if len(first.Results) != 1 || !first.Results[0].Success {
		t.Fatalf("read_file call did not succeed: %+v", first.Results)
	}

	second, err := sess.RunTurn(context.Background(), "summarize it", nil)
	if err != nil {
		t.Fatalf("second turn failed: %v", err)
	}
	if second.Reply != "The config sets retries to 4." {
		t.Fatalf("unexpected final reply: %q", second.Reply)
	}

	replay := endpoint.request(1)
	var sawToolOutput bool
	for _, msg := range replay {
		if msg.Role == "tool" && strings.Contains(msg.Content, "retries = 4") {
			sawToolOutput = true
		}
	}
	if !sawToolOutput {
		t.Fatalf("second request never replayed the tool output: %+v", replay)
	}
}

func TestFailedCallIsReportedNotFatal(t *testing.T) {
	workspace := t.TempDir()
	endpoint := &scriptedEndpoint{replies: []string{
		"Let me check that file.\nTOOL: read_file(path=\"missing.txt\")",
	}}
	sess, audit := newTurnSession(t, workspace, endpoint)

	result, err := sess.RunTurn(context.Background(), "read missing.txt", nil)
	if err != nil {
		t.Fatalf("turn should not fail on a tool error: %v", err)
	}
	if len(result.Results) != 1 || result.Results[0].Success {
		t.Fatalf("expected a failed result, got %+v", result.Results)
	}
	if audit.Len() != 1 || audit.Recent(1)[0].Success {
		t.Fatal("failed call missing from audit log")
	}

	var sawError bool
	for _, msg := range sess.Context.History() {
		if msg.Role == framework.RoleTool && strings.Contains(msg.Content, "error") {
			sawError = true
		}
	}
	if !sawError {
		t.Fatal("tool failure never entered the conversation history")
	}
}

func newTurnSession(t *testing.T, workspace string, endpoint *scriptedEndpoint) (*agent.Session, *framework.MemoryAuditLog) {
	t.Helper()
	srv := httptest.NewServer(endpoint.handler(t))
	t.Cleanup(srv.Close)

	policy, err := framework.NewSafetyPolicy(workspace, false)
	if err != nil {
		t.Fatalf("safety policy: %v", err)
	}
	reg := framework.NewRegistry()
	for _, tool := range tools.Builtins(policy, &framework.ShellRunner{}, workspace, 10*time.Second, nil) {
		if err := reg.Register(tool); err != nil {
			t.Fatalf("register %s: %v", tool.Name(), err)
		}
	}
	audit := framework.NewMemoryAuditLog(0)
	exec := framework.NewExecutor(reg, policy)
	exec.Audit = audit

	client := llm.NewClient(srv.URL, "test-model")
	cm := framework.NewContextManager(agent.BuildSystemPrompt(reg, ""), 0)
	sess := agent.NewSession(cm, framework.ContextBudget{Limit: 8192, Reserve: 512}, exec, client)
	return sess, audit
}

// scriptedEndpoint serves queued assistant replies in the OpenAI
// chat-completions shape and records every request it decodes.
type scriptedEndpoint struct {
	mu       sync.Mutex
	replies  []string
	requests [][]replayedMessage
}

type replayedMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *scriptedEndpoint) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []replayedMessage `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode chat request: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.requests = append(s.requests, req.Messages)
		reply := "done"
		if len(s.replies) > 0 {
			reply = s.replies[0]
			s.replies = s.replies[1:]
		}
		s.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]interface{}{
			"model": "test-model",
			"choices": []map[string]interface{}{{
				"message":       map[string]interface{}{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
		})
	}
}

func (s *scriptedEndpoint) request(i int) []replayedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.requests) {
		return nil
	}
	return s.requests[i]
}

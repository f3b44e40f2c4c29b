package testsuite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/lexcodex/aicode/agent"
	"github.com/lexcodex/aicode/framework"
	"github.com/lexcodex/aicode/llm"
	"github.com/lexcodex/aicode/persistence"
)

func TestSessionSurvivesStoreRoundTrip(t *testing.T) {
	workspace := t.TempDir()
	sess := newScriptedSession(t, workspace, "noted, starting with the parser")
	if _, err := sess.RunTurn(context.Background(), "remember: parser first", nil); err != nil {
		t.Fatalf("turn failed: %v", err)
	}

	store, err := persistence.NewSQLiteSessionStore(filepath.Join(workspace, ".aicode", "sessions.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, sess.Export("handoff")); err != nil {
		t.Fatalf("save session: %v", err)
	}

	snap, err := store.Load(ctx, "handoff")
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	restored := newScriptedSession(t, workspace, "picking up where we left off")
	if err := restored.Import(snap); err != nil {
		t.Fatalf("import snapshot: %v", err)
	}
	if restored.Turns() != 1 {
		t.Fatalf("turn count lost in round trip: %d", restored.Turns())
	}
	if restored.ModelName != "qwen2.5-coder" || restored.Endpoint == "" {
		t.Fatalf("endpoint state lost: model=%s endpoint=%s", restored.ModelName, restored.Endpoint)
	}

	var sawReply bool
	for _, msg := range restored.Context.History() {
		if msg.Role == framework.RoleAssistant && msg.Content == "noted, starting with the parser" {
			sawReply = true
		}
	}
	if !sawReply {
		t.Fatal("restored history missing the assistant reply")
	}

	if _, err := restored.RunTurn(ctx, "continue", nil); err != nil {
		t.Fatalf("turn after restore failed: %v", err)
	}
	if restored.Turns() != 2 {
		t.Fatalf("restored session stopped counting turns: %d", restored.Turns())
	}
}

func TestStoreListsSavedSessions(t *testing.T) {
	workspace := t.TempDir()
	store, err := persistence.NewSQLiteSessionStore(filepath.Join(workspace, "sessions.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	for _, name := range []string{"alpha", "beta"} {
		sess := newScriptedSession(t, workspace, "reply for "+name)
		if _, err := sess.RunTurn(ctx, "hello "+name, nil); err != nil {
			t.Fatalf("turn for %s: %v", name, err)
		}
		if err := store.Save(ctx, sess.Export(name)); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}

	infos, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected two sessions, got %d", len(infos))
	}
	for _, info := range infos {
		// every saved turn carries a user message and an assistant reply
		if info.Messages < 2 {
			t.Fatalf("session %s lists %d messages", info.Name, info.Messages)
		}
	}
}

func newScriptedSession(t *testing.T, workspace string, replies ...string) *agent.Session {
	t.Helper()
	policy, err := framework.NewSafetyPolicy(workspace, false)
	if err != nil {
		t.Fatalf("safety policy: %v", err)
	}
	exec := framework.NewExecutor(framework.NewRegistry(), policy)
	cm := framework.NewContextManager("You are a coding assistant.", 0)
	sess := agent.NewSession(cm, framework.ContextBudget{Limit: 8192, Reserve: 256}, exec, &queuedCaller{replies: replies})
	sess.Endpoint = "http://localhost:11434/v1/chat/completions"
	sess.ModelName = "qwen2.5-coder"
	return sess
}

// queuedCaller feeds canned assistant replies without a network hop.
type queuedCaller struct {
	replies []string
}

func (q *queuedCaller) Chat(context.Context, []llm.ChatMessage) (*llm.ChatResponse, error) {
	if len(q.replies) == 0 {
		return &llm.ChatResponse{Text: "ok"}, nil
	}
	next := q.replies[0]
	q.replies = q.replies[1:]
	return &llm.ChatResponse{Text: next}, nil
}

// Package agent drives the conversation loop: user input goes to the model,
// tool calls in the reply are executed, and everything lands back in the
// shared history.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lexcodex/aicode/framework"
	"github.com/lexcodex/aicode/llm"
	"github.com/lexcodex/aicode/parser"
	"github.com/lexcodex/aicode/persistence"
)

// Phase reports where a session currently is inside a turn.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingModel
	PhaseParsing
	PhaseExecutingTools
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingModel:
		return "waiting on model"
	case PhaseParsing:
		return "parsing reply"
	case PhaseExecutingTools:
		return "running tools"
	default:
		return "idle"
	}
}

// ModelCaller is the slice of llm.Client the session needs. Tests swap in a
// scripted fake.
type ModelCaller interface {
	Chat(ctx context.Context, messages []llm.ChatMessage) (*llm.ChatResponse, error)
}

// toolOutputLimit bounds how much of a tool result enters the history, so a
// large file read cannot flood the context window.
const toolOutputLimit = 4000

// Session owns one conversation: the message history, the model client, and
// the executor its tool calls route through. One turn runs at a time.
type Session struct {
	Context  *framework.ContextManager
	Budget   framework.ContextBudget
	Executor *framework.Executor
	Client   ModelCaller

	// Endpoint and ModelName mirror the active configuration into
	// snapshots; /switch updates them alongside the client.
	Endpoint  string
	ModelName string

	mu    sync.Mutex
	phase Phase
	turns int
}

// NewSession wires a session around an existing history, budget, executor,
// and model client.
func NewSession(cm *framework.ContextManager, budget framework.ContextBudget, exec *framework.Executor, client ModelCaller) *Session {
	return &Session{
		Context:  cm,
		Budget:   budget,
		Executor: exec,
		Client:   client,
	}
}

// TurnResult is what one turn produced: the assistant's conversational reply
// with tool-call syntax stripped, and the outcome of each call in order.
type TurnResult struct {
	Reply   string
	Results []*framework.ToolResult
}

// RunTurn processes one user input end to end: append it, send the bounded
// context to the model, parse the reply, execute tool calls sequentially,
// and record everything in history.
//
// A model failure returns a nil result with the error; the pending user
// message stays in history so a retry resends it. Cancellation while tools
// are running returns the partial result alongside the context error, with
// completed results already appended.
func (s *Session) RunTurn(ctx context.Context, input string, images []string) (*TurnResult, error) {
	defer s.setPhase(PhaseIdle)

	userMsg := framework.NewMessage(framework.RoleUser, input)
	userMsg.Images = images
	s.Context.Append(userMsg)

	s.setPhase(PhaseAwaitingModel)
	window := s.Context.Render(s.Budget.Available())
	resp, err := s.Client.Chat(ctx, wireMessages(window))
	if err != nil {
		return nil, err
	}

	s.setPhase(PhaseParsing)
	parsed := parser.Parse(resp.Text)
	if parsed.Remainder != "" {
		s.Context.Append(framework.NewMessage(framework.RoleAssistant, parsed.Remainder))
	}

	result := &TurnResult{Reply: parsed.Remainder}
	if len(parsed.Calls) > 0 {
		s.setPhase(PhaseExecutingTools)
		for _, call := range parsed.Calls {
			if ctx.Err() != nil {
				s.finishTurn()
				return result, ctx.Err()
			}
			res := s.Executor.Execute(ctx, call)
			result.Results = append(result.Results, res)
			s.Context.Append(resultMessage(res))
		}
	}
	s.finishTurn()
	return result, nil
}

// Phase reports the current turn phase for status display.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Turns reports how many turns have completed.
func (s *Session) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turns
}

func (s *Session) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

func (s *Session) finishTurn() {
	s.mu.Lock()
	s.turns++
	s.mu.Unlock()
}

// Export captures the session under the given name for persistence.
func (s *Session) Export(name string) *persistence.SessionSnapshot {
	return &persistence.SessionSnapshot{
		Name:     name,
		Endpoint: s.Endpoint,
		Model:    s.ModelName,
		Turns:    s.Turns(),
		Messages: s.Context.Snapshot(),
	}
}

// Import replaces the session state with a stored snapshot. The caller
// points the model client at the snapshot's endpoint afterwards.
func (s *Session) Import(snap *persistence.SessionSnapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	s.Context.Restore(snap.Messages)
	s.Endpoint = snap.Endpoint
	s.ModelName = snap.Model
	s.mu.Lock()
	s.turns = snap.Turns
	s.mu.Unlock()
	return nil
}

// wireMessages converts history entries to the request shape.
func wireMessages(history []framework.Message) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(history))
	for _, msg := range history {
		out = append(out, llm.ChatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
			Images:  msg.Images,
		})
	}
	return out
}

// resultMessage folds a tool result into the conversation so the model sees
// what its call produced, failures included.
func resultMessage(res *framework.ToolResult) framework.Message {
	content := res.Output
	if !res.Success {
		content = fmt.Sprintf("error (%s): %s", res.Failure, res.Error)
	}
	if content == "" {
		content = "(no output)"
	}
	if len(content) > toolOutputLimit {
		content = content[:toolOutputLimit] + "\n[output truncated]"
	}
	msg := framework.NewMessage(framework.RoleTool, content)
	msg.Tool = res.Call.Name
	return msg
}

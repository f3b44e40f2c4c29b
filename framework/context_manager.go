package framework

import (
	"sync"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in the conversation. Order is semantically
// meaningful: history is replayed to the model verbatim, oldest first.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Tool      string    `json:"tool,omitempty"`
	Images    []string  `json:"images,omitempty"`
}

// NewMessage stamps a message with the current time.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now().UTC()}
}

// DefaultRetainRecent is how many trailing messages truncation tries to
// keep whole before it starts compressing the system context.
const DefaultRetainRecent = 6

// ContextManager owns the bounded conversation history. Appends are cheap;
// Render produces the token-limited sequence actually sent to the model.
// The persistent system message survives Clear and, whenever possible,
// truncation. History is append-only within a turn: Render never reorders
// or mutates stored entries, it only selects a suffix.
type ContextManager struct {
	mu         sync.RWMutex
	system     Message
	messages   []Message
	retain     int
	summarizer Summarizer
}

// NewContextManager builds a manager seeded with the persistent system
// message. retainRecent <= 0 falls back to DefaultRetainRecent.
func NewContextManager(systemContent string, retainRecent int) *ContextManager {
	if retainRecent <= 0 {
		retainRecent = DefaultRetainRecent
	}
	return &ContextManager{
		system:     NewMessage(RoleSystem, systemContent),
		retain:     retainRecent,
		summarizer: PlaceholderSummarizer{},
	}
}

// SetSummarizer swaps the compression backend used for the system message.
func (m *ContextManager) SetSummarizer(s Summarizer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s != nil {
		m.summarizer = s
	}
}

// SetSystem replaces the persistent system message content.
func (m *ContextManager) SetSystem(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.system = NewMessage(RoleSystem, content)
}

// System returns the persistent system message.
func (m *ContextManager) System() Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.system
}

// Append adds a message to the history.
func (m *ContextManager) Append(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

// Len reports the history length, system message excluded.
func (m *ContextManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}

// History returns a copy of the full history, system message excluded.
func (m *ContextManager) History() []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Clear resets the history to empty. The system message survives.
func (m *ContextManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

// compressedSystemChars bounds the placeholder the system message collapses
// to under pressure.
const compressedSystemChars = 120

// Render returns the sequence to send to the model, fitting the token
// budget. The eviction ladder, in order:
//
//  1. Drop the oldest messages while the total is over budget and more than
//     retainRecent remain.
//  2. Compress the system message to a fixed-size placeholder instead of
//     dropping it.
//  3. Keep evicting below retainRecent, always keeping the newest message.
//
// A dominating system message (more than half the budget by itself) is
// compressed up front. Render is a pure function of (history, budget):
// calling it twice on an unchanged history yields identical output.
func (m *ContextManager) Render(budget int) []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	system := m.system
	msgs := m.messages
	compressed := false

	systemCost := 0
	if system.Content != "" {
		systemCost = EstimateMessageTokens(system)
		if systemCost > budget/2 {
			system = m.compressSystem(system)
			systemCost = EstimateMessageTokens(system)
			compressed = true
		}
	}

	total := systemCost + EstimateMessagesTokens(msgs)
	start := 0
	for total > budget && len(msgs)-start > m.retain {
		total -= EstimateMessageTokens(msgs[start])
		start++
	}
	if total > budget && !compressed && system.Content != "" {
		total -= systemCost
		system = m.compressSystem(system)
		systemCost = EstimateMessageTokens(system)
		total += systemCost
	}
	for total > budget && len(msgs)-start > 1 {
		total -= EstimateMessageTokens(msgs[start])
		start++
	}

	out := make([]Message, 0, len(msgs)-start+1)
	if system.Content != "" {
		out = append(out, system)
	}
	out = append(out, msgs[start:]...)
	return out
}

func (m *ContextManager) compressSystem(system Message) Message {
	s := m.summarizer
	if s == nil {
		s = PlaceholderSummarizer{}
	}
	out := system
	out.Content = s.Summarize(system.Content, compressedSystemChars)
	return out
}

// Snapshot copies the history for persistence, system message first.
func (m *ContextManager) Snapshot() []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Message, 0, len(m.messages)+1)
	if m.system.Content != "" {
		out = append(out, m.system)
	}
	out = append(out, m.messages...)
	return out
}

// Restore replaces the state from a snapshot produced by Snapshot. A
// leading system message becomes the persistent one; without it the current
// system message is kept.
func (m *ContextManager) Restore(msgs []Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(msgs) > 0 && msgs[0].Role == RoleSystem {
		m.system = msgs[0]
		msgs = msgs[1:]
	}
	m.messages = make([]Message, len(msgs))
	copy(m.messages, msgs)
}

package framework

import (
	"sync"
	"time"
)

// AuditRecord captures one tool execution for the session trail.
type AuditRecord struct {
	Timestamp time.Time         `json:"timestamp"`
	Tool      string            `json:"tool"`
	Args      map[string]string `json:"args,omitempty"`
	Success   bool              `json:"success"`
	Failure   FailureKind       `json:"failure,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Duration  time.Duration     `json:"duration"`
}

// AuditLogger records tool executions.
type AuditLogger interface {
	Record(record AuditRecord)
}

// MemoryAuditLog keeps the most recent records in a bounded buffer so the
// shell can show what ran without unbounded growth.
type MemoryAuditLog struct {
	mu     sync.RWMutex
	buffer []AuditRecord
	limit  int
}

// NewMemoryAuditLog builds a log holding up to limit records.
func NewMemoryAuditLog(limit int) *MemoryAuditLog {
	if limit <= 0 {
		limit = 256
	}
	return &MemoryAuditLog{
		buffer: make([]AuditRecord, 0, limit),
		limit:  limit,
	}
}

// Record appends, dropping the oldest entry once the limit is reached.
func (l *MemoryAuditLog) Record(record AuditRecord) {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.buffer) == l.limit {
		l.buffer = l.buffer[1:]
	}
	l.buffer = append(l.buffer, record)
}

// Recent returns up to n records, oldest first.
func (l *MemoryAuditLog) Recent(n int) []AuditRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || n > len(l.buffer) {
		n = len(l.buffer)
	}
	out := make([]AuditRecord, n)
	copy(out, l.buffer[len(l.buffer)-n:])
	return out
}

// Len reports how many records are retained.
func (l *MemoryAuditLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buffer)
}

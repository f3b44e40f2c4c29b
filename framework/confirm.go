package framework

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ConfirmRequest captures a pending approval for a confirm-required call.
type ConfirmRequest struct {
	ID          string            `json:"id"`
	Tool        string            `json:"tool"`
	Summary     string            `json:"summary"`
	Args        map[string]string `json:"args,omitempty"`
	RequestedAt time.Time         `json:"requested_at"`
}

// Confirmer decides whether a confirm-required tool may run. Confirm blocks
// until the user answers, the context is cancelled, or the implementation
// gives up.
type Confirmer interface {
	Confirm(ctx context.Context, req ConfirmRequest) (bool, error)
}

// ConfirmFunc adapts a function to the Confirmer interface.
type ConfirmFunc func(ctx context.Context, req ConfirmRequest) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, req ConfirmRequest) (bool, error) {
	return f(ctx, req)
}

// StaticConfirmer answers every request the same way. Used by the one-shot
// CLI path and tests.
type StaticConfirmer bool

func (s StaticConfirmer) Confirm(context.Context, ConfirmRequest) (bool, error) {
	return bool(s), nil
}

// ConfirmBroker bridges the executor, which blocks inside the turn
// goroutine, and the shell UI, which answers from its event loop. Requests
// flow out through a channel; the UI resolves them by ID.
type ConfirmBroker struct {
	timeout time.Duration
	pending chan ConfirmRequest
	seq     atomic.Int64
	mu      sync.Mutex
	waiters map[string]chan bool
	clock   func() time.Time
}

// NewConfirmBroker builds a broker with the supplied answer timeout.
func NewConfirmBroker(timeout time.Duration) *ConfirmBroker {
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &ConfirmBroker{
		timeout: timeout,
		pending: make(chan ConfirmRequest, 4),
		waiters: make(map[string]chan bool),
		clock:   time.Now,
	}
}

// Requests returns the channel the UI consumes prompts from.
func (b *ConfirmBroker) Requests() <-chan ConfirmRequest {
	return b.pending
}

// Confirm publishes the request and waits for a decision. An unanswered
// prompt counts as a denial once the timeout or context fires.
func (b *ConfirmBroker) Confirm(ctx context.Context, req ConfirmRequest) (bool, error) {
	req.ID = fmt.Sprintf("confirm-%d", b.seq.Add(1))
	req.RequestedAt = b.clock()

	waitCh := make(chan bool, 1)
	b.mu.Lock()
	b.waiters[req.ID] = waitCh
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.waiters, req.ID)
		b.mu.Unlock()
	}()

	select {
	case b.pending <- req:
	case <-ctx.Done():
		return false, ctx.Err()
	}

	select {
	case approved := <-waitCh:
		return approved, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(b.timeout):
		return false, fmt.Errorf("confirmation for %s timed out", req.Tool)
	}
}

// Resolve answers a pending request. Unknown IDs are ignored; the waiter
// may already have timed out.
func (b *ConfirmBroker) Resolve(id string, approved bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.waiters[id]; ok {
		ch <- approved
		close(ch)
		delete(b.waiters, id)
	}
}

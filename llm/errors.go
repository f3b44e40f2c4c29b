package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel failure classes for model calls. Callers branch on these with
// errors.Is; the concrete transport error stays in the chain underneath.
var (
	// ErrConnection covers refused, reset, and unresolvable endpoints. The
	// only class worth retrying: the server may simply still be loading.
	ErrConnection = errors.New("connection failed")
	// ErrTimeout means the server accepted the request but never finished
	// answering. Retrying a hung model server just hangs again.
	ErrTimeout = errors.New("request timed out")
	// ErrBadResponse covers non-2xx statuses and bodies no known chat shape
	// could be decoded from.
	ErrBadResponse = errors.New("unusable response")
)

// Error ties a failure to the endpoint and operation it came from.
type Error struct {
	Endpoint string
	Op       string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm %s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether a second attempt could plausibly succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConnection)
}

// classifyTransport folds an http.Client.Do error into the sentinel
// taxonomy. Context cancellation passes through untouched so an interrupted
// turn is not mistaken for a flaky server.
func classifyTransport(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}

package framework

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmBrokerApprove(t *testing.T) {
	broker := NewConfirmBroker(time.Second)

	go func() {
		req := <-broker.Requests()
		broker.Resolve(req.ID, true)
	}()

	approved, err := broker.Confirm(context.Background(), ConfirmRequest{Tool: "write_file"})
	require.NoError(t, err)
	assert.True(t, approved)
}

func TestConfirmBrokerDeny(t *testing.T) {
	broker := NewConfirmBroker(time.Second)

	go func() {
		req := <-broker.Requests()
		broker.Resolve(req.ID, false)
	}()

	approved, err := broker.Confirm(context.Background(), ConfirmRequest{Tool: "execute_command"})
	require.NoError(t, err)
	assert.False(t, approved)
}

func TestConfirmBrokerTimeoutDenies(t *testing.T) {
	broker := NewConfirmBroker(20 * time.Millisecond)

	// nobody consumes the prompt
	approved, err := broker.Confirm(context.Background(), ConfirmRequest{Tool: "write_file"})
	assert.False(t, approved)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestConfirmBrokerContextCancel(t *testing.T) {
	broker := NewConfirmBroker(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		<-broker.Requests()
		cancel()
	}()

	approved, err := broker.Confirm(ctx, ConfirmRequest{Tool: "write_file"})
	assert.False(t, approved)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfirmBrokerAssignsSequentialIDs(t *testing.T) {
	broker := NewConfirmBroker(time.Second)
	ids := make(chan string, 2)

	go func() {
		for i := 0; i < 2; i++ {
			req := <-broker.Requests()
			ids <- req.ID
			broker.Resolve(req.ID, true)
		}
	}()

	_, err := broker.Confirm(context.Background(), ConfirmRequest{Tool: "a"})
	require.NoError(t, err)
	_, err = broker.Confirm(context.Background(), ConfirmRequest{Tool: "b"})
	require.NoError(t, err)

	assert.Equal(t, "confirm-1", <-ids)
	assert.Equal(t, "confirm-2", <-ids)
}

func TestConfirmBrokerResolveUnknownIDIsNoop(t *testing.T) {
	broker := NewConfirmBroker(time.Second)
	assert.NotPanics(t, func() {
		broker.Resolve("confirm-999", true)
	})
}

func TestStaticConfirmer(t *testing.T) {
	approved, err := StaticConfirmer(true).Confirm(context.Background(), ConfirmRequest{})
	require.NoError(t, err)
	assert.True(t, approved)

	approved, err = StaticConfirmer(false).Confirm(context.Background(), ConfirmRequest{})
	require.NoError(t, err)
	assert.False(t, approved)
}

func TestConfirmFuncAdapter(t *testing.T) {
	var seen ConfirmRequest
	fn := ConfirmFunc(func(_ context.Context, req ConfirmRequest) (bool, error) {
		seen = req
		return true, nil
	})

	approved, err := fn.Confirm(context.Background(), ConfirmRequest{Tool: "list_files"})
	require.NoError(t, err)
	assert.True(t, approved)
	assert.Equal(t, "list_files", seen.Tool)
}

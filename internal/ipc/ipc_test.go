package ipc

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, handler Handler) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ctl.sock")
	srv, err := Listen(path, handler)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return path
}

func TestRoundTrip(t *testing.T) {
	path := startServer(t, func(ctx context.Context, req Request) Response {
		require.Equal(t, OpSay, req.Op)
		require.Equal(t, "hello", req.Text)
		return Ok()
	})

	resp, err := Send(path, Request{Op: OpSay, Text: "hello"}, time.Second)
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Empty(t, resp.Error)
}

func TestStatusPayload(t *testing.T) {
	path := startServer(t, func(ctx context.Context, req Request) Response {
		return Response{OK: true, Status: &Status{Recording: true, QueueDepth: 2}}
	})

	resp, err := Send(path, Request{Op: OpStatus}, time.Second)
	require.NoError(t, err)
	require.NotNil(t, resp.Status)
	assert.True(t, resp.Status.Recording)
	assert.Equal(t, 2, resp.Status.QueueDepth)
}

func TestErrorResponse(t *testing.T) {
	path := startServer(t, func(ctx context.Context, req Request) Response {
		return Fail(errors.New("engine busy"))
	})

	resp, err := Send(path, Request{Op: OpCommand}, time.Second)
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Equal(t, "engine busy", resp.Error)
}

func TestListenReplacesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctl.sock")

	first, err := Listen(path, func(ctx context.Context, req Request) Response { return Ok() })
	require.NoError(t, err)
	first.Close()

	// A crashed daemon leaves the socket file behind; a new Listen must
	// take over the path.
	second, err := Listen(path, func(ctx context.Context, req Request) Response { return Ok() })
	require.NoError(t, err)
	second.Close()
}

func TestServeStopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctl.sock")
	srv, err := Listen(path, func(ctx context.Context, req Request) Response { return Ok() })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not stop")
	}

	_, err = net.Dial("unix", path)
	assert.Error(t, err)
}

func TestSendToMissingDaemon(t *testing.T) {
	_, err := Send(filepath.Join(t.TempDir(), "nope.sock"), Request{Op: OpStatus}, 200*time.Millisecond)
	assert.Error(t, err)
}

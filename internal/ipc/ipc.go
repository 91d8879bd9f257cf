// Package ipc is the daemon's control plane: one JSON request and one JSON
// response per connection over a unix socket. whisperctl is the only
// intended client, but any tool that can write JSON to a socket works.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"time"
)

// Op names one control operation.
type Op string

const (
	OpStatus     Op = "status"
	OpMute       Op = "mute"
	OpUnmute     Op = "unmute"
	OpToggleMute Op = "toggle-mute"
	OpCommand    Op = "command"
	OpDictate    Op = "dictate"
	OpStop       Op = "stop"
	OpSay        Op = "say"
)

// Request is one control message.
type Request struct {
	Op Op `json:"op"`

	// Text carries the payload for say.
	Text string `json:"text,omitempty"`
}

// Status is the engine snapshot returned by the status op.
type Status struct {
	Recording     bool      `json:"recording"`
	Muted         bool      `json:"muted"`
	QueueDepth    int       `json:"queue_depth"`
	LastProcessed time.Time `json:"last_processed,omitzero"`
}

// Response answers one request.
type Response struct {
	OK     bool    `json:"ok"`
	Error  string  `json:"error,omitempty"`
	Status *Status `json:"status,omitempty"`
}

// Ok is the plain success response.
func Ok() Response { return Response{OK: true} }

// Fail wraps an error into a response.
func Fail(err error) Response { return Response{Error: err.Error()} }

// Handler processes one request. It runs on the connection's goroutine, so
// slow work should be handed off.
type Handler func(ctx context.Context, req Request) Response

// Server owns the control socket.
type Server struct {
	ln      net.Listener
	handler Handler
}

// Listen binds the unix socket at path, replacing a stale socket file left
// by a previous run.
func Listen(path string, handler Handler) (*Server, error) {
	os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", path, err)
	}
	return &Server{ln: ln, handler: handler}, nil
}

// Serve accepts connections until ctx is cancelled or the listener is
// closed, then returns nil.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn("control accept failed", "err", err)
			continue
		}
		go s.handle(ctx, conn)
	}
}

func (s *Server) Close() error { return s.ln.Close() }

// Addr returns the socket path.
func (s *Server) Addr() string { return s.ln.Addr().String() }

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(30 * time.Second))

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		log.Debug("undecodable control request", "err", err)
		return
	}

	resp := s.handler(ctx, req)
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		log.Debug("control response not sent", "err", err)
	}
}

// Send performs one request/response exchange with the daemon at path.
func Send(path string, req Request, timeout time.Duration) (Response, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return Response{}, fmt.Errorf("dial %s: %w", path, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

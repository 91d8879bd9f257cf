package tts

import (
	"context"
	"encoding/json"
	"fmt"
	log "log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

// AudioSink plays a WAV payload to completion. The cue player satisfies it.
type AudioSink interface {
	PlayWAV(data []byte) error
}

// synthesisRequest is the neural server's wire format: a JSON request in,
// one binary WAV message back.
type synthesisRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// Neural speaks through a remote neural-voice server over a websocket. The
// connection is dialed lazily and redialed once per utterance after a
// failure; a server that stays down surfaces as an error the Fallback
// chain turns into `say`.
type Neural struct {
	url     string
	voice   string
	sink    AudioSink
	timeout time.Duration

	mu   sync.Mutex
	conn *ws.Conn
}

type NeuralOptions struct {
	// Voice names the server-side voice. Empty uses the server default.
	Voice string
	// Timeout bounds one synthesis round trip. Zero means 30 seconds.
	Timeout time.Duration
}

func NewNeural(url string, sink AudioSink, opts NeuralOptions) *Neural {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Neural{
		url:     url,
		voice:   opts.Voice,
		sink:    sink,
		timeout: timeout,
	}
}

func (n *Neural) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	n.mu.Lock()
	data, err := n.synthesize(ctx, text)
	if err != nil {
		// One redial covers a server restart between utterances.
		n.drop()
		data, err = n.synthesize(ctx, text)
	}
	if err != nil {
		n.drop()
		n.mu.Unlock()
		return err
	}
	n.mu.Unlock()

	return n.sink.PlayWAV(data)
}

// Close shuts the connection down; Speak after Close redials.
func (n *Neural) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.drop()
	return nil
}

// synthesize runs one request/reply on the shared connection. Caller holds
// the mutex.
func (n *Neural) synthesize(ctx context.Context, text string) ([]byte, error) {
	if err := n.ensureConn(ctx); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(synthesisRequest{Text: text, Voice: n.voice})
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(n.timeout)
	n.conn.SetWriteDeadline(deadline)
	if err := n.conn.WriteMessage(ws.TextMessage, payload); err != nil {
		return nil, fmt.Errorf("send synthesis request: %w", err)
	}

	n.conn.SetReadDeadline(deadline)
	for {
		kind, msg, err := n.conn.ReadMessage()
		if err != nil {
			if isClosed(err) {
				return nil, fmt.Errorf("voice server closed connection: %w", err)
			}
			return nil, fmt.Errorf("read synthesis reply: %w", err)
		}
		if kind == ws.BinaryMessage {
			return msg, nil
		}
		// Servers may interleave JSON status frames before the audio.
		log.Debug("voice server status", "msg", string(msg))
	}
}

func (n *Neural) ensureConn(ctx context.Context) error {
	if n.conn != nil {
		return nil
	}
	dialer := *ws.DefaultDialer
	dialer.HandshakeTimeout = n.timeout
	conn, _, err := dialer.DialContext(ctx, n.url, nil)
	if err != nil {
		return fmt.Errorf("dial voice server %s: %w", n.url, err)
	}
	n.conn = conn
	return nil
}

func (n *Neural) drop() {
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
}

func isClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}

package tts

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSayPassesVoiceAndText(t *testing.T) {
	var gotName string
	var gotArgs []string
	s := NewSay("Samantha")
	s.run = func(ctx context.Context, name string, args ...string) error {
		gotName = name
		gotArgs = args
		return nil
	}

	require.NoError(t, s.Speak(context.Background(), "hello there"))
	assert.Equal(t, "say", gotName)
	assert.Equal(t, []string{"-v", "Samantha", "hello there"}, gotArgs)
}

func TestSayEmptyTextIsNoop(t *testing.T) {
	s := NewSay("")
	s.run = func(ctx context.Context, name string, args ...string) error {
		t.Fatal("run must not be called for empty text")
		return nil
	}
	assert.NoError(t, s.Speak(context.Background(), ""))
}

type scriptedSpeaker struct {
	err   error
	calls int
}

func (s *scriptedSpeaker) Speak(ctx context.Context, text string) error {
	s.calls++
	return s.err
}

func TestFallbackPrefersFirstSpeaker(t *testing.T) {
	first := &scriptedSpeaker{}
	second := &scriptedSpeaker{}
	f := NewFallback(first, second)

	require.NoError(t, f.Speak(context.Background(), "hi"))
	assert.Equal(t, 1, first.calls)
	assert.Zero(t, second.calls)
}

func TestFallbackDegrades(t *testing.T) {
	first := &scriptedSpeaker{err: errors.New("server down")}
	second := &scriptedSpeaker{}
	f := NewFallback(first, second)

	require.NoError(t, f.Speak(context.Background(), "hi"))
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestFallbackReportsLastError(t *testing.T) {
	boom := errors.New("boom")
	f := NewFallback(&scriptedSpeaker{err: errors.New("first")}, &scriptedSpeaker{err: boom})
	assert.ErrorIs(t, f.Speak(context.Background(), "hi"), boom)
}

type captureSink struct {
	data []byte
}

func (c *captureSink) PlayWAV(data []byte) error {
	c.data = data
	return nil
}

// voiceServer fakes the neural server: read one JSON request, answer with
// a binary frame echoing the requested text.
func voiceServer(t *testing.T) *httptest.Server {
	t.Helper()
	up := ws.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req synthesisRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if err := conn.WriteMessage(ws.BinaryMessage, []byte("WAV:"+req.Text)); err != nil {
				return
			}
		}
	}))
}

func TestNeuralSpeakRoundTrip(t *testing.T) {
	srv := voiceServer(t)
	defer srv.Close()

	sink := &captureSink{}
	n := NewNeural("ws"+strings.TrimPrefix(srv.URL, "http"), sink, NeuralOptions{Voice: "nova"})
	defer n.Close()

	require.NoError(t, n.Speak(context.Background(), "good morning"))
	assert.Equal(t, []byte("WAV:good morning"), sink.data)

	// The connection is reused across utterances.
	require.NoError(t, n.Speak(context.Background(), "again"))
	assert.Equal(t, []byte("WAV:again"), sink.data)
}

func TestNeuralRedialsAfterClose(t *testing.T) {
	srv := voiceServer(t)
	defer srv.Close()

	sink := &captureSink{}
	n := NewNeural("ws"+strings.TrimPrefix(srv.URL, "http"), sink, NeuralOptions{})
	defer n.Close()

	require.NoError(t, n.Speak(context.Background(), "one"))
	require.NoError(t, n.Close())
	require.NoError(t, n.Speak(context.Background(), "two"))
	assert.Equal(t, []byte("WAV:two"), sink.data)
}

func TestNeuralUnreachableServer(t *testing.T) {
	n := NewNeural("ws://127.0.0.1:1/synthesize", &captureSink{}, NeuralOptions{})
	assert.Error(t, n.Speak(context.Background(), "hello"))
}

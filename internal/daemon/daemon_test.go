package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/audio"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/config"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/ipc"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/nlu"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/pkg/stt"
)

type fakeSTT struct {
	text string
	err  error
}

func (f *fakeSTT) Transcribe(ctx context.Context, pcm []int16, rate int) (stt.Result, error) {
	return stt.Result{Text: f.text, Confidence: 0.9}, f.err
}

func (f *fakeSTT) TranscribeFile(ctx context.Context, path string) (stt.Result, error) {
	return stt.Result{Text: f.text, Confidence: 0.9}, f.err
}

type fakeInterp struct {
	intent nlu.Intent
	err    error
	got    string
}

func (f *fakeInterp) Interpret(ctx context.Context, transcript string) (nlu.Intent, error) {
	f.got = transcript
	return f.intent, f.err
}

type fakeDesktop struct {
	mu       sync.Mutex
	typed    []string
	executed []nlu.Intent
	reply    string
	err      error
}

func (f *fakeDesktop) Execute(ctx context.Context, in nlu.Intent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, in)
	return f.reply, f.err
}

func (f *fakeDesktop) TypeText(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typed = append(f.typed, text)
	return f.err
}

type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
}

func (f *fakeSpeaker) Speak(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
	return nil
}

func (f *fakeSpeaker) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

func noDevice(sampleRate, frameSize int) (audio.Device, error) {
	return nil, errors.New("no device in tests")
}

type testEngine struct {
	*Engine
	sttc    *fakeSTT
	interp  *fakeInterp
	desktop *fakeDesktop
	speaker *fakeSpeaker
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	cfg := config.Default()
	cfg.Server.SocketPath = filepath.Join(t.TempDir(), "whisperd.sock")
	cfg.Server.MetricsAddr = ""
	cfg.Audio.TempDir = t.TempDir()

	sttc := &fakeSTT{}
	interp := &fakeInterp{}
	desktop := &fakeDesktop{}
	speaker := &fakeSpeaker{}

	e, err := New(Options{
		Config:      cfg,
		STT:         sttc,
		Interpreter: interp,
		Desktop:     desktop,
		Speaker:     speaker,
		OpenDevice:  noDevice,
	})
	require.NoError(t, err)
	t.Cleanup(func() { e.ctl.Close() })

	return &testEngine{Engine: e, sttc: sttc, interp: interp, desktop: desktop, speaker: speaker}
}

func captureFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.wav")
	require.NoError(t, audio.WriteWAV(path, make([]int16, 4096), 16000))
	return path
}

func TestConsumeRoutesDictation(t *testing.T) {
	e := newTestEngine(t)
	e.sttc.text = "hello world"

	path := captureFile(t)
	e.queue.Enqueue(audio.SessionResult{Path: path, Mode: audio.ModeDictation})
	e.queue.Close()
	e.consume(context.Background())

	assert.Equal(t, []string{"hello world"}, e.desktop.typed)
	assert.NoFileExists(t, path, "consumer owns the file and must remove it")
	assert.False(t, e.st.LastProcessed().IsZero())
}

func TestConsumeRoutesCommand(t *testing.T) {
	e := newTestEngine(t)
	e.sttc.text = "open safari"
	e.interp.intent = nlu.Intent{Action: "open_app", App: "Safari"}
	e.desktop.reply = "Opening Safari"

	e.queue.Enqueue(audio.SessionResult{Path: captureFile(t), Mode: audio.ModeCommand})
	e.queue.Close()
	e.consume(context.Background())

	assert.Equal(t, "open safari", e.interp.got)
	require.Len(t, e.desktop.executed, 1)
	assert.Equal(t, "open_app", e.desktop.executed[0].Action)
	assert.Equal(t, []string{"Opening Safari"}, e.speaker.all())
}

func TestConsumeSkipsEmptyTranscript(t *testing.T) {
	e := newTestEngine(t)
	e.sttc.text = "  ... "

	path := captureFile(t)
	e.queue.Enqueue(audio.SessionResult{Path: path, Mode: audio.ModeCommand})
	e.queue.Close()
	e.consume(context.Background())

	assert.Empty(t, e.desktop.executed)
	assert.Empty(t, e.speaker.all())
	assert.NoFileExists(t, path)
}

func TestCommandInterpreterFailureIsSpoken(t *testing.T) {
	e := newTestEngine(t)
	e.interp.err = errors.New("api down")

	e.handleCommand(context.Background(), "open safari")

	got := e.speaker.all()
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "interpreter")
}

func TestUnknownIntentIsSpoken(t *testing.T) {
	e := newTestEngine(t)
	e.interp.intent = nlu.Intent{Action: "unknown"}

	e.handleCommand(context.Background(), "gibberish")

	assert.Empty(t, e.desktop.executed)
	require.Len(t, e.speaker.all(), 1)
}

func TestExecutionFailureIsSpoken(t *testing.T) {
	e := newTestEngine(t)
	e.interp.intent = nlu.Intent{Action: "close_window"}
	e.desktop.err = errors.New("yabai not running")

	e.handleCommand(context.Background(), "close the window")

	got := e.speaker.all()
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "did not work")
}

func TestControlStatus(t *testing.T) {
	e := newTestEngine(t)
	e.st.SetMuted(true)

	resp := e.handleControl(context.Background(), ipc.Request{Op: ipc.OpStatus})
	require.True(t, resp.OK)
	require.NotNil(t, resp.Status)
	assert.True(t, resp.Status.Muted)
	assert.False(t, resp.Status.Recording)
	assert.Zero(t, resp.Status.QueueDepth)
}

func TestControlMuteOps(t *testing.T) {
	e := newTestEngine(t)

	require.True(t, e.handleControl(context.Background(), ipc.Request{Op: ipc.OpMute}).OK)
	assert.True(t, e.st.Muted())

	require.True(t, e.handleControl(context.Background(), ipc.Request{Op: ipc.OpUnmute}).OK)
	assert.False(t, e.st.Muted())

	require.True(t, e.handleControl(context.Background(), ipc.Request{Op: ipc.OpToggleMute}).OK)
	assert.True(t, e.st.Muted())
}

func TestControlStopClearsRecording(t *testing.T) {
	e := newTestEngine(t)
	require.True(t, e.st.TryStartRecording())

	resp := e.handleControl(context.Background(), ipc.Request{Op: ipc.OpStop})
	assert.True(t, resp.OK)
	assert.False(t, e.st.Recording())
}

func TestControlSayRejectsEmptyText(t *testing.T) {
	e := newTestEngine(t)
	resp := e.handleControl(context.Background(), ipc.Request{Op: ipc.OpSay, Text: "   "})
	assert.False(t, resp.OK)
}

func TestControlUnknownOp(t *testing.T) {
	e := newTestEngine(t)
	resp := e.handleControl(context.Background(), ipc.Request{Op: "reboot"})
	assert.False(t, resp.OK)
	assert.NotEmpty(t, resp.Error)
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []audio.StartOptions
	modes []audio.Mode
	done  chan struct{}
}

func (f *fakeRecorder) Record(ctx context.Context, mode audio.Mode, opts audio.StartOptions) (audio.SessionResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	f.modes = append(f.modes, mode)
	f.mu.Unlock()
	f.done <- struct{}{}
	return audio.SessionResult{Mode: mode}, nil
}

func TestControlCommandForceStartsSession(t *testing.T) {
	e := newTestEngine(t)
	rec := &fakeRecorder{done: make(chan struct{}, 1)}
	e.rec = rec

	resp := e.handleControl(context.Background(), ipc.Request{Op: ipc.OpCommand})
	require.True(t, resp.OK)

	select {
	case <-rec.done:
	case <-time.After(2 * time.Second):
		t.Fatal("session never started")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.calls, 1)
	assert.True(t, rec.calls[0].Force)
	assert.Equal(t, audio.ModeCommand, rec.modes[0])
}

func TestRunStopsOnCancel(t *testing.T) {
	e := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	// The listener fails fast on the fake opener, which cancels the group.
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("run did not stop")
	}
	cancel()

	// Cancellation closed the queue; the consumer must have drained out.
	_, ok := e.queue.Dequeue()
	assert.False(t, ok)

	_ = os.Remove(e.cfg.Server.SocketPath)
}

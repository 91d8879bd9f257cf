package audio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/state"
)

// probeTuning keeps utterance boundaries short enough for scripted devices.
func probeTuning() Tuning {
	return Tuning{
		Energy:      100,
		MaxSilence:  frameDur(2),
		MinDuration: 0,
		MaxDuration: frameDur(100),
	}
}

func newTestListener(st *state.Shared, dev Device, openErr error, onUtterance func()) (*Listener, *Ring) {
	ring := NewRing(RingCapacity(SampleRate, FrameSize, WindowSeconds))
	l := NewListener(st, ring, openerFor(dev, openErr), onUtterance, ListenerConfig{
		Tuning:  probeTuning(),
		Poll:    time.Millisecond,
		Backoff: time.Millisecond,
	})
	return l, ring
}

func awaitRun(t *testing.T, ctx context.Context, l *Listener) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
		return nil
	}
}

func TestListenerFiresOnUtteranceEnd(t *testing.T) {
	st := state.New()
	dev := &fakeDevice{
		frames: [][]int16{
			speechFrame(FrameSize, 2000),
			speechFrame(FrameSize, 2000),
			speechFrame(FrameSize, 2000),
			silenceFrame(FrameSize),
			silenceFrame(FrameSize),
		},
		after: silenceFrame(FrameSize),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := 0
	l, ring := newTestListener(st, dev, nil, func() {
		fired++
		cancel()
	})

	require.NoError(t, awaitRun(t, ctx, l))
	assert.Equal(t, 1, fired)
	assert.Equal(t, 5, ring.Len())
	// Speech began on the very first appended frame.
	assert.Equal(t, 0, ring.SpeechStart())
}

func TestListenerDiscardsWhileMuted(t *testing.T) {
	st := state.New()
	st.SetMuted(true)

	dev := &fakeDevice{
		frames: [][]int16{
			speechFrame(FrameSize, 2000),
			speechFrame(FrameSize, 2000),
			speechFrame(FrameSize, 2000),
			speechFrame(FrameSize, 2000),
			speechFrame(FrameSize, 2000),
			speechFrame(FrameSize, 2000),
			silenceFrame(FrameSize),
			silenceFrame(FrameSize),
		},
		after: silenceFrame(FrameSize),
	}
	dev.onRead = func(readNo int) {
		if readNo == 5 {
			st.SetMuted(false)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := 0
	l, ring := newTestListener(st, dev, nil, func() {
		fired++
		cancel()
	})

	require.NoError(t, awaitRun(t, ctx, l))
	assert.Equal(t, 1, fired)
	// Only the frames read after unmuting reached the buffer.
	assert.Equal(t, 4, ring.Len())
	assert.Equal(t, 0, ring.SpeechStart())
}

func TestListenerPausesWhileRecording(t *testing.T) {
	st := state.New()
	require.True(t, st.TryStartRecording())

	dev := &fakeDevice{
		frames: [][]int16{
			speechFrame(FrameSize, 2000),
			speechFrame(FrameSize, 2000),
			silenceFrame(FrameSize),
			silenceFrame(FrameSize),
		},
		after: silenceFrame(FrameSize),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := 0
	l, _ := newTestListener(st, dev, nil, func() {
		fired++
		cancel()
	})

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, dev.reads, "device must be idle while the flag is held")

	st.StopRecording()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not resume after the flag cleared")
	}
	assert.Equal(t, 1, fired)
}

func TestListenerRetriesAfterReadError(t *testing.T) {
	st := state.New()
	dev := &fakeDevice{
		frames: [][]int16{
			speechFrame(FrameSize, 2000),
			speechFrame(FrameSize, 2000),
			silenceFrame(FrameSize),
			silenceFrame(FrameSize),
		},
		after: silenceFrame(FrameSize),
		errAt: map[int]error{2: errors.New("glitch")},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := 0
	l, ring := newTestListener(st, dev, nil, func() {
		fired++
		cancel()
	})

	require.NoError(t, awaitRun(t, ctx, l))
	assert.Equal(t, 1, fired)
	assert.Equal(t, 4, ring.Len())
}

func TestListenerRetriesAfterOverflow(t *testing.T) {
	st := state.New()
	dev := &fakeDevice{
		frames: [][]int16{
			speechFrame(FrameSize, 2000),
			speechFrame(FrameSize, 2000),
			silenceFrame(FrameSize),
			silenceFrame(FrameSize),
		},
		after: silenceFrame(FrameSize),
		errAt: map[int]error{3: portaudio.InputOverflowed},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := 0
	l, _ := newTestListener(st, dev, nil, func() {
		fired++
		cancel()
	})

	require.NoError(t, awaitRun(t, ctx, l))
	assert.Equal(t, 1, fired)
}

func TestListenerSkipsShortReads(t *testing.T) {
	st := state.New()
	dev := &fakeDevice{
		frames: [][]int16{
			speechFrame(FrameSize/2, 2000),
			speechFrame(FrameSize, 2000),
			speechFrame(FrameSize, 2000),
			silenceFrame(FrameSize),
			silenceFrame(FrameSize),
		},
		after: silenceFrame(FrameSize),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := 0
	l, ring := newTestListener(st, dev, nil, func() {
		fired++
		cancel()
	})

	require.NoError(t, awaitRun(t, ctx, l))
	assert.Equal(t, 1, fired)
	assert.Equal(t, 4, ring.Len(), "the truncated frame must not be buffered")
}

func TestListenerFailsWhenDeviceWontOpen(t *testing.T) {
	st := state.New()
	l, _ := newTestListener(st, nil, errors.New("no input device"), func() {})

	err := l.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open input device")
}

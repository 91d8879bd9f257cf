package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnergy(t *testing.T) {
	assert.Equal(t, 0.0, Energy(nil))
	assert.Equal(t, 0.0, Energy([]int16{0, 0, 0, 0}))
	assert.Equal(t, 200.0, Energy([]int16{200, -200, 200, -200}))
	assert.Equal(t, 150.0, Energy([]int16{100, -200}))
}

func TestClassify(t *testing.T) {
	d := NewDetector(16000, 4, Tuning{Energy: 100})

	act, err := d.Classify([]int16{500, -500, 500, -500})
	require.NoError(t, err)
	assert.Equal(t, Speech, act)

	act, err = d.Classify([]int16{10, -10, 10, -10})
	require.NoError(t, err)
	assert.Equal(t, Silence, act)

	// An all-zero frame (muted hardware) is silence, not an error.
	act, err = d.Classify([]int16{0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, Silence, act)
}

func TestClassifyRejectsShortFrame(t *testing.T) {
	d := NewDetector(16000, 4, Tuning{Energy: 100})

	_, err := d.Classify([]int16{1, 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidFrame)

	_, err = d.Classify(make([]int16, 8))
	assert.ErrorIs(t, err, ErrInvalidFrame, "oversized frames are a mismatch too")
}

func TestMaxSilenceFrames(t *testing.T) {
	d := NewDetector(16000, 1024, Tuning{MaxSilence: time.Second})
	assert.Equal(t, 15, d.MaxSilenceFrames())

	d = NewDetector(16000, 1024, Tuning{MaxSilence: 10 * time.Millisecond})
	assert.Equal(t, 1, d.MaxSilenceFrames(), "silence window never rounds to zero frames")
}

func TestUtteranceEnded(t *testing.T) {
	d := NewDetector(16000, 1024, Tuning{
		Energy:      100,
		MaxSilence:  time.Second,
		MinDuration: 0,
	})
	limit := d.MaxSilenceFrames()

	assert.False(t, d.UtteranceEnded(limit, limit, false), "no speech seen yet")
	assert.False(t, d.UtteranceEnded(limit-1, limit, true), "silence run too short")
	assert.True(t, d.UtteranceEnded(limit, limit, true))
}

func TestUtteranceEndedMinDurationFloor(t *testing.T) {
	d := NewDetector(SampleRate, FrameSize, DefaultTuning(ModeCommand))

	// Silence run is long enough at 1.5 s of capture, but the command floor
	// is 3.0 s: the capture must keep going.
	frames15 := int(1.5*SampleRate) / FrameSize
	run := d.MaxSilenceFrames()
	assert.False(t, d.UtteranceEnded(run, frames15, true))

	frames35 := int(3.5*SampleRate) / FrameSize
	assert.True(t, d.UtteranceEnded(run, frames35, true))
}

func TestDefaultTuningTable(t *testing.T) {
	cmd := DefaultTuning(ModeCommand)
	assert.Equal(t, 100.0, cmd.Energy)
	assert.Equal(t, CommandMinDuration, cmd.MinDuration)
	assert.Equal(t, 10*time.Second, cmd.MaxDuration)

	dict := DefaultTuning(ModeDictation)
	assert.Equal(t, 2*time.Second, dict.MaxSilence)
	assert.Equal(t, 500*time.Millisecond, dict.MinDuration)

	probe := DefaultTuning(ModeTriggerProbe)
	assert.Equal(t, 150.0, probe.Energy)
	assert.Equal(t, time.Duration(0), probe.MinDuration)
}

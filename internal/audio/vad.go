package audio

import (
	"fmt"
	"time"
)

// Activity is the VAD classification of a single frame.
type Activity int

const (
	Silence Activity = iota
	Speech
)

func (a Activity) String() string {
	if a == Speech {
		return "speech"
	}
	return "silence"
}

// Detector is the stateless voice-activity classifier for one tuning policy.
// Callers keep their own run counters (frames captured, silence run, speech
// seen) and ask UtteranceEnded when the run should stop; the detector itself
// holds nothing but configuration.
type Detector struct {
	sampleRate int
	frameSize  int
	tuning     Tuning
}

func NewDetector(sampleRate, frameSize int, tuning Tuning) Detector {
	return Detector{
		sampleRate: sampleRate,
		frameSize:  frameSize,
		tuning:     tuning,
	}
}

// Classify labels one frame by mean absolute amplitude. A frame whose size
// does not match the configured frame size is a producer/consumer mismatch
// and is rejected, never zero-padded. An all-zero frame is ordinary silence.
func (d Detector) Classify(frame []int16) (Activity, error) {
	if len(frame) != d.frameSize {
		return Silence, fmt.Errorf("%w: got %d samples, want %d", ErrInvalidFrame, len(frame), d.frameSize)
	}
	if Energy(frame) > d.tuning.Energy {
		return Speech, nil
	}
	return Silence, nil
}

// UtteranceEnded reports whether a capture run should stop on silence: the
// silence run must reach the tuning's maximum, speech must have been observed
// at all, and the run must already cover the tuning's minimum duration. The
// duration clause keeps command mode from clipping utterances with a
// mid-sentence pause (see CommandMinDuration).
func (d Detector) UtteranceEnded(silenceRun, framesCaptured int, speechSeen bool) bool {
	if !speechSeen {
		return false
	}
	if silenceRun < d.MaxSilenceFrames() {
		return false
	}
	return d.captured(framesCaptured) >= d.tuning.MinDuration
}

// MaxSilenceFrames converts the tuning's silence window into whole frames,
// with a floor of one frame.
func (d Detector) MaxSilenceFrames() int {
	n := int(d.tuning.MaxSilence.Seconds() * float64(d.sampleRate) / float64(d.frameSize))
	if n < 1 {
		n = 1
	}
	return n
}

// MaxDurationFrames converts the tuning's hard cap into whole frames.
func (d Detector) MaxDurationFrames() int {
	n := int(d.tuning.MaxDuration.Seconds() * float64(d.sampleRate) / float64(d.frameSize))
	if n < 1 {
		n = 1
	}
	return n
}

func (d Detector) Tuning() Tuning { return d.tuning }

// captured converts a frame count into captured wall time.
func (d Detector) captured(frames int) time.Duration {
	return time.Duration(float64(frames*d.frameSize) / float64(d.sampleRate) * float64(time.Second))
}

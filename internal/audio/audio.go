package audio

import (
	"errors"
	"time"
)

// Capture format shared by the listener and every recording session. Frames
// are mono 16-bit PCM; a frame is the unit of buffering, VAD classification
// and duration accounting.
const (
	SampleRate    = 16000
	FrameSize     = 1024
	WindowSeconds = 5
)

// CommandMinDuration suppresses silence-based early stop in command mode
// until this much audio has been captured, so commands with a mid-utterance
// pause are not clipped. Hand-tuned; not derived from any other setting.
const CommandMinDuration = 3 * time.Second

var (
	ErrAlreadyRecording  = errors.New("recording already in progress")
	ErrDeviceUnavailable = errors.New("input device unavailable")
	ErrNoAudioCaptured   = errors.New("no audio captured")
	ErrInvalidFrame      = errors.New("invalid frame size")
)

// Mode selects the tuning policy for a capture.
type Mode int

const (
	// ModeCommand records a spoken command for the interpreter.
	ModeCommand Mode = iota
	// ModeDictation records free text to be typed out. Dictation is the
	// default when no trigger phrase matches.
	ModeDictation
	// ModeTriggerProbe is the rolling-buffer endpointing policy used by the
	// continuous listener; it favors quicker cutoffs than the session modes.
	ModeTriggerProbe
)

func (m Mode) String() string {
	switch m {
	case ModeCommand:
		return "command"
	case ModeDictation:
		return "dictation"
	case ModeTriggerProbe:
		return "trigger"
	default:
		return "unknown"
	}
}

// Tuning is the per-mode quadruple that drives endpointing decisions.
type Tuning struct {
	// Energy is the mean-absolute-amplitude speech threshold for int16
	// samples.
	Energy float64
	// MaxSilence is the silence run that ends an utterance.
	MaxSilence time.Duration
	// MinDuration suppresses silence-based stop until this much audio exists.
	MinDuration time.Duration
	// MaxDuration hard-stops a capture regardless of VAD state.
	MaxDuration time.Duration
}

// DefaultTuning returns the canonical tuning for a mode.
func DefaultTuning(m Mode) Tuning {
	switch m {
	case ModeCommand:
		return Tuning{
			Energy:      100,
			MaxSilence:  1 * time.Second,
			MinDuration: CommandMinDuration,
			MaxDuration: 10 * time.Second,
		}
	case ModeDictation:
		return Tuning{
			Energy:      100,
			MaxSilence:  2 * time.Second,
			MinDuration: 500 * time.Millisecond,
			MaxDuration: 30 * time.Second,
		}
	case ModeTriggerProbe:
		return Tuning{
			Energy:      150,
			MaxSilence:  500 * time.Millisecond,
			MinDuration: 0,
			MaxDuration: 5 * time.Second,
		}
	default:
		return Tuning{}
	}
}

// Energy returns the mean absolute amplitude of a frame.
func Energy(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		if s < 0 {
			sum -= float64(s)
		} else {
			sum += float64(s)
		}
	}
	return sum / float64(len(frame))
}

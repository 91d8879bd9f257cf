package audio

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"os"

	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/observe"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/state"
)

// minSessionBytes is the size below which a finished capture file is flagged
// as suspicious. Short dictation snippets can legitimately be smaller, so
// this is logged, never enforced.
const minSessionBytes = 1000

// SessionResult describes one finished capture, handed to the dispatch
// queue. Ownership of the file transfers with it.
type SessionResult struct {
	Path           string
	Mode           Mode
	DurationFrames int
	Trigger        bool
}

// ResultSink receives completed session results. Enqueue must not block.
type ResultSink interface {
	Enqueue(SessionResult)
}

// Cues receives session lifecycle sounds. Implementations must not block.
type Cues interface {
	RecordingStarted(Mode)
	RecordingStopped(Mode)
	RecordingFailed(Mode)
}

// NopCues silences all session sounds.
type NopCues struct{}

func (NopCues) RecordingStarted(Mode) {}
func (NopCues) RecordingStopped(Mode) {}
func (NopCues) RecordingFailed(Mode)  {}

// Phase is the lifecycle position of a session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseArming
	PhaseCapturing
	PhaseFinalizing
	PhaseCompleted
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseArming:
		return "arming"
	case PhaseCapturing:
		return "capturing"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseCompleted:
		return "completed"
	case PhaseAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// StartOptions modify how a session claims the microphone.
type StartOptions struct {
	// Force preempts an active session by clearing its claim first.
	Force bool
	// Trigger marks the session as started by the trigger dispatcher.
	Trigger bool
	// Claimed means the caller already holds the recording flag (the
	// dispatcher's speculative claim) and hands it to the session.
	Claimed bool
}

// RecorderConfig carries the capture format and collaborators of a Recorder.
// Zero values fall back to the package defaults.
type RecorderConfig struct {
	SampleRate int
	FrameSize  int
	// TempDir receives capture files; empty means the OS temp dir.
	TempDir string
	// Tuning overrides per mode; missing modes use DefaultTuning.
	Tuning  map[Mode]Tuning
	Cues    Cues
	Metrics *observe.Metrics
}

// Recorder runs recording sessions: one bounded capture from device-open to
// WAV on disk, ending with the result enqueued and the recording flag
// released, in that order.
type Recorder struct {
	st      *state.Shared
	open    DeviceOpener
	sink    ResultSink
	cues    Cues
	metrics *observe.Metrics
	rate    int
	frame   int
	dir     string
	tunings map[Mode]Tuning
}

func NewRecorder(st *state.Shared, open DeviceOpener, sink ResultSink, cfg RecorderConfig) *Recorder {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = SampleRate
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = FrameSize
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.Cues == nil {
		cfg.Cues = NopCues{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.Default()
	}
	return &Recorder{
		st:      st,
		open:    open,
		sink:    sink,
		cues:    cfg.Cues,
		metrics: cfg.Metrics,
		rate:    cfg.SampleRate,
		frame:   cfg.FrameSize,
		dir:     cfg.TempDir,
		tunings: cfg.Tuning,
	}
}

func (r *Recorder) tuningFor(m Mode) Tuning {
	if t, ok := r.tunings[m]; ok {
		return t
	}
	return DefaultTuning(m)
}

// Record runs one session to completion on the calling goroutine. Contention
// is reported as ErrAlreadyRecording without side effects; capture failures
// abort the session, release the claim and play the failure cue.
func (r *Recorder) Record(ctx context.Context, mode Mode, opts StartOptions) (SessionResult, error) {
	if mode != ModeCommand && mode != ModeDictation {
		return SessionResult{}, fmt.Errorf("mode %s cannot be recorded", mode)
	}

	if !opts.Claimed && !r.claim(opts.Force) {
		r.metrics.RecordSession(ctx, mode.String(), "busy")
		return SessionResult{}, ErrAlreadyRecording
	}

	s := &session{mode: mode, trigger: opts.Trigger, phase: PhaseIdle}
	res, err := r.run(ctx, s)
	if err != nil {
		r.cues.RecordingFailed(mode)
		r.metrics.RecordSession(ctx, mode.String(), outcomeOf(err))
		log.Error("recording session failed", "mode", mode.String(), "err", err)
		return SessionResult{}, err
	}
	r.metrics.RecordSession(ctx, mode.String(), "completed")
	return res, nil
}

// claim takes the recording flag, preempting the current holder when force
// is set.
func (r *Recorder) claim(force bool) bool {
	if r.st.TryStartRecording() {
		return true
	}
	if !force {
		return false
	}
	r.st.StopRecording()
	return r.st.TryStartRecording()
}

type session struct {
	mode    Mode
	trigger bool
	phase   Phase
}

func (s *session) to(p Phase) {
	log.Debug("session phase", "mode", s.mode.String(), "phase", p.String())
	s.phase = p
}

func (r *Recorder) run(ctx context.Context, s *session) (SessionResult, error) {
	s.to(PhaseArming)

	dev, err := r.open(r.rate, r.frame)
	if err != nil {
		r.abort(s)
		return SessionResult{}, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	defer dev.Close()

	if err := dev.Start(); err != nil {
		r.abort(s)
		return SessionResult{}, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	// A zero-sample first read means the device is present but dead.
	frame := make([]int16, r.frame)
	n, err := dev.Read(frame)
	if err != nil {
		r.abort(s)
		return SessionResult{}, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if n == 0 {
		r.abort(s)
		return SessionResult{}, ErrDeviceUnavailable
	}

	s.to(PhaseCapturing)
	r.cues.RecordingStarted(s.mode)

	det := NewDetector(r.rate, r.frame, r.tuningFor(s.mode))
	pcm := make([]int16, 0, r.rate)
	var (
		frames     int
		speechSeen bool
		silenceRun int
		reason     string
	)

	take := func(f []int16) error {
		act, err := det.Classify(f)
		if err != nil {
			return err
		}
		pcm = append(pcm, f...)
		frames++
		if act == Speech {
			speechSeen = true
			silenceRun = 0
		} else if speechSeen {
			silenceRun++
		}
		return nil
	}

	if err := take(frame[:n]); err != nil {
		r.abort(s)
		return SessionResult{}, err
	}

	for {
		if frames >= det.MaxDurationFrames() {
			reason = "max duration"
			break
		}
		if !r.st.Recording() {
			reason = "stopped"
			break
		}
		if det.UtteranceEnded(silenceRun, frames, speechSeen) {
			reason = "utterance ended"
			break
		}
		if ctx.Err() != nil {
			reason = "cancelled"
			break
		}

		n, err := dev.Read(frame)
		if err != nil {
			if IsOverflow(err) {
				continue
			}
			log.Warn("session read failed", "err", err)
			reason = "read error"
			break
		}
		if n == 0 {
			reason = "device stalled"
			break
		}
		if err := take(frame[:n]); err != nil {
			r.abort(s)
			return SessionResult{}, err
		}
	}

	s.to(PhaseFinalizing)
	r.cues.RecordingStopped(s.mode)
	log.Info("capture finished", "mode", s.mode.String(), "frames", frames, "reason", reason)

	if frames == 0 {
		r.abort(s)
		return SessionResult{}, ErrNoAudioCaptured
	}

	f, err := os.CreateTemp(r.dir, "capture-*.wav")
	if err != nil {
		r.abort(s)
		return SessionResult{}, fmt.Errorf("create session file: %w", err)
	}
	path := f.Name()
	f.Close()

	if err := WriteWAV(path, pcm, r.rate); err != nil {
		os.Remove(path)
		r.abort(s)
		return SessionResult{}, err
	}
	if fi, err := os.Stat(path); err == nil && fi.Size() < minSessionBytes {
		log.Warn("session file suspiciously small", "path", path, "bytes", fi.Size())
	}

	res := SessionResult{
		Path:           path,
		Mode:           s.mode,
		DurationFrames: frames,
		Trigger:        s.trigger,
	}
	r.sink.Enqueue(res)
	// An externally stopped session no longer owns the flag; a force-started
	// successor may already hold it.
	if reason != "stopped" {
		r.st.StopRecording()
	}
	s.to(PhaseCompleted)
	return res, nil
}

func (r *Recorder) abort(s *session) {
	s.to(PhaseAborted)
	r.st.StopRecording()
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, ErrDeviceUnavailable):
		return "device_unavailable"
	case errors.Is(err, ErrNoAudioCaptured):
		return "no_audio"
	default:
		return "error"
	}
}

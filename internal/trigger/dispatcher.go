package trigger

import (
	"context"
	log "log/slog"
	"sync"
	"time"

	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/audio"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/observe"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/state"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/pkg/stt"
)

// DefaultCooldown is the minimum spacing between accepted dispatches,
// measured from the previous dispatch's start regardless of its outcome. It
// keeps the system's own cues and speech from re-entering the microphone as
// a fresh trigger.
const DefaultCooldown = 4 * time.Second

// SessionStarter starts one recording session. Satisfied by audio.Recorder.
type SessionStarter interface {
	Record(ctx context.Context, mode audio.Mode, opts audio.StartOptions) (audio.SessionResult, error)
}

// Dispatcher turns utterance-end events from the capture loop into recording
// sessions: it snapshots the rolling buffer, transcribes the snapshot,
// matches trigger phrases and starts a session for the matched mode. At most
// one dispatch cycle runs at a time.
type Dispatcher struct {
	st      *state.Shared
	ring    *audio.Ring
	client  stt.Client
	rec     SessionStarter
	matcher *Matcher
	metrics *observe.Metrics

	rate     int
	cooldown time.Duration

	mu       sync.Mutex
	inflight bool
	last     time.Time
}

type DispatcherConfig struct {
	SampleRate int
	Cooldown   time.Duration
	Matcher    *Matcher
	Metrics    *observe.Metrics
}

func NewDispatcher(st *state.Shared, ring *audio.Ring, client stt.Client, rec SessionStarter, cfg DispatcherConfig) *Dispatcher {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.SampleRate
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Matcher == nil {
		cfg.Matcher = NewMatcher(nil, nil)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.Default()
	}
	return &Dispatcher{
		st:       st,
		ring:     ring,
		client:   client,
		rec:      rec,
		matcher:  cfg.Matcher,
		metrics:  cfg.Metrics,
		rate:     cfg.SampleRate,
		cooldown: cfg.Cooldown,
	}
}

// Dispatch runs one cycle for the utterance that just ended. It is called
// from the capture loop and returns quickly: transcription and the session
// run on their own goroutine. A refused dispatch discards the utterance so
// stale audio cannot leak into the next snapshot.
func (d *Dispatcher) Dispatch(ctx context.Context) {
	d.mu.Lock()
	if d.inflight {
		d.mu.Unlock()
		d.refuse(ctx, "busy", "cycle in flight")
		return
	}
	if since := time.Since(d.last); since < d.cooldown {
		d.mu.Unlock()
		d.refuse(ctx, "cooldown", "cooling down")
		return
	}
	// Claim the recording flag up front: it pauses the capture loop while
	// the snapshot is transcribed and reserves the device for the session
	// that may follow.
	if !d.st.TryStartRecording() {
		d.mu.Unlock()
		d.refuse(ctx, "busy", "recording flag held")
		return
	}
	d.inflight = true
	d.last = time.Now()
	d.mu.Unlock()

	snapshot := d.ring.Snapshot()
	d.ring.ClearSpeechStart()

	go d.process(ctx, snapshot)
}

func (d *Dispatcher) refuse(ctx context.Context, outcome, reason string) {
	d.ring.ClearSpeechStart()
	d.metrics.RecordDispatch(ctx, outcome)
	log.Debug("dispatch refused", "reason", reason)
}

func (d *Dispatcher) process(ctx context.Context, snapshot []int16) {
	defer func() {
		d.mu.Lock()
		d.inflight = false
		d.mu.Unlock()
	}()

	begin := time.Now()
	res, err := d.client.Transcribe(ctx, snapshot, d.rate)
	d.metrics.STTDuration.Record(ctx, time.Since(begin).Seconds())
	if err != nil {
		// A missed trigger is recoverable on the next utterance.
		d.st.StopRecording()
		d.metrics.RecordDispatch(ctx, "error")
		log.Warn("trigger transcription failed", "err", err)
		return
	}

	det := d.matcher.Detect(res.Text)
	if !det.Detected {
		d.st.StopRecording()
		d.metrics.RecordDispatch(ctx, "no_trigger")
		log.Debug("probe produced no usable text", "text", res.Text)
		return
	}

	d.metrics.RecordDispatch(ctx, "accepted")
	log.Info("trigger detected",
		"mode", det.Mode,
		"trigger", det.Trigger,
		"text", det.Text,
		"confidence", res.Confidence)

	// The session inherits the claim taken at dispatch time.
	if _, err := d.rec.Record(ctx, det.Mode, audio.StartOptions{Claimed: true, Trigger: true}); err != nil {
		log.Debug("triggered session failed", "mode", det.Mode, "err", err)
	}
}

package audio

import (
	"context"
	"fmt"
	log "log/slog"
	"time"

	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/observe"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/state"
)

// Listener runs the continuous capture loop for the process lifetime: it
// fills the rolling buffer, tracks speech under the trigger-probe tuning and
// fires the utterance callback on each detected speech offset. While the
// recording flag is held it pauses and cedes the device to the active
// session; while muted it keeps draining the device but discards the audio.
type Listener struct {
	st          *state.Shared
	ring        *Ring
	det         Detector
	open        DeviceOpener
	onUtterance func()
	metrics     *observe.Metrics
	rate        int
	frame       int
	poll        time.Duration
	backoff     time.Duration
}

// ListenerConfig carries the capture format and loop timing. Zero values
// fall back to package defaults.
type ListenerConfig struct {
	SampleRate int
	FrameSize  int
	// Tuning is the trigger-probe policy for the rolling buffer.
	Tuning Tuning
	// Poll is the pause while a session holds the device.
	Poll time.Duration
	// Backoff follows a transient read failure.
	Backoff time.Duration
	Metrics *observe.Metrics
}

func NewListener(st *state.Shared, ring *Ring, open DeviceOpener, onUtterance func(), cfg ListenerConfig) *Listener {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = SampleRate
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = FrameSize
	}
	if cfg.Tuning == (Tuning{}) {
		cfg.Tuning = DefaultTuning(ModeTriggerProbe)
	}
	if cfg.Poll <= 0 {
		cfg.Poll = 100 * time.Millisecond
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 250 * time.Millisecond
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.Default()
	}
	if onUtterance == nil {
		onUtterance = func() {}
	}
	return &Listener{
		st:          st,
		ring:        ring,
		det:         NewDetector(cfg.SampleRate, cfg.FrameSize, cfg.Tuning),
		open:        open,
		onUtterance: onUtterance,
		metrics:     cfg.Metrics,
		rate:        cfg.SampleRate,
		frame:       cfg.FrameSize,
		poll:        cfg.Poll,
		backoff:     cfg.Backoff,
	}
}

// Run blocks until ctx is cancelled. Failure to open the device is fatal and
// reported upward; read failures after that are retried with backoff.
func (l *Listener) Run(ctx context.Context) error {
	dev, err := l.open(l.rate, l.frame)
	if err != nil {
		return fmt.Errorf("open input device: %w", err)
	}
	defer dev.Close()

	if err := dev.Start(); err != nil {
		return fmt.Errorf("start input device: %w", err)
	}

	log.Info("listening", "rate", l.rate, "frame", l.frame, "window_frames", l.ring.Cap())

	frame := make([]int16, l.frame)
	var (
		frames     int
		speechSeen bool
		silenceRun int
	)
	reset := func() {
		frames, speechSeen, silenceRun = 0, false, 0
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		// A session owns the device; poll until it releases the flag.
		if l.st.Recording() {
			l.ring.ClearSpeechStart()
			reset()
			time.Sleep(l.poll)
			continue
		}

		n, err := dev.Read(frame)
		if err != nil {
			if IsOverflow(err) {
				continue
			}
			log.Warn("input read failed", "err", err)
			time.Sleep(l.backoff)
			continue
		}
		if n != len(frame) {
			log.Warn("short input read", "samples", n)
			time.Sleep(l.backoff)
			continue
		}

		if l.st.Muted() {
			l.ring.ClearSpeechStart()
			reset()
			continue
		}

		evicted := l.ring.Append(frame)
		l.metrics.FramesCaptured.Add(ctx, 1)
		if evicted {
			l.metrics.FramesEvicted.Add(ctx, 1)
		}

		act, err := l.det.Classify(frame)
		if err != nil {
			return fmt.Errorf("classify frame: %w", err)
		}
		frames++
		if act == Speech {
			l.ring.MarkSpeechStart()
			speechSeen = true
			silenceRun = 0
		} else if speechSeen {
			silenceRun++
		}

		if l.det.UtteranceEnded(silenceRun, frames, speechSeen) {
			l.onUtterance()
			reset()
		}
	}
}

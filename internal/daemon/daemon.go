// Package daemon wires the capture engine to its collaborators and runs
// everything under one supervision group: the continuous listener, the
// queue consumer, the control socket and the metrics endpoint.
package daemon

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/audio"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/config"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/cue"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/dispatch"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/ipc"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/nlu"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/notify"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/observe"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/state"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/trigger"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/tts"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/pkg/stt"
)

// Interpreter maps a command transcript to an intent.
type Interpreter interface {
	Interpret(ctx context.Context, transcript string) (nlu.Intent, error)
}

// Desktop executes intents and types dictated text.
type Desktop interface {
	Execute(ctx context.Context, in nlu.Intent) (string, error)
	TypeText(ctx context.Context, text string) error
}

// recorder is the session surface the engine drives. audio.Recorder
// satisfies it.
type recorder interface {
	Record(ctx context.Context, mode audio.Mode, opts audio.StartOptions) (audio.SessionResult, error)
}

// Options carries the engine's collaborators. Config and STT are required;
// the rest degrade to no-ops or defaults when nil.
type Options struct {
	Config      *config.Config
	STT         stt.Client
	Interpreter Interpreter
	Desktop     Desktop
	Speaker     tts.Speaker
	Cues        *cue.Player
	Notifier    *notify.Notifier

	// OpenDevice substitutes the capture backend; nil uses portaudio.
	OpenDevice audio.DeviceOpener

	Metrics *observe.Metrics
}

// Engine is the assembled daemon.
type Engine struct {
	cfg      *config.Config
	st       *state.Shared
	ring     *audio.Ring
	listener *audio.Listener
	rec      recorder
	disp     *trigger.Dispatcher
	queue    *dispatch.Queue
	ctl      *ipc.Server

	sttc     stt.Client
	interp   Interpreter
	desktop  Desktop
	speaker  tts.Speaker
	cues     *cue.Player
	notifier *notify.Notifier
	metrics  *observe.Metrics

	// runCtx is installed at the top of Run, before any goroutine that
	// consults it can exist.
	runCtx context.Context
}

// New assembles the engine and binds the control socket. It does not start
// anything; call Run.
func New(opts Options) (*Engine, error) {
	if opts.Config == nil {
		return nil, errors.New("daemon: nil config")
	}
	if opts.STT == nil {
		return nil, errors.New("daemon: nil stt client")
	}
	if opts.OpenDevice == nil {
		opts.OpenDevice = audio.OpenInputDevice
	}
	if opts.Metrics == nil {
		opts.Metrics = observe.Default()
	}
	cfg := opts.Config

	e := &Engine{
		cfg:      cfg,
		st:       state.New(),
		sttc:     opts.STT,
		interp:   opts.Interpreter,
		desktop:  opts.Desktop,
		speaker:  opts.Speaker,
		cues:     opts.Cues,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		runCtx:   context.Background(),
	}

	e.ring = audio.NewRing(audio.RingCapacity(cfg.Audio.SampleRate, cfg.Audio.FrameSize, cfg.Audio.WindowSeconds))
	e.queue = dispatch.NewQueue(e.metrics)

	e.rec = audio.NewRecorder(e.st, opts.OpenDevice, e.queue, audio.RecorderConfig{
		SampleRate: cfg.Audio.SampleRate,
		FrameSize:  cfg.Audio.FrameSize,
		TempDir:    cfg.Audio.TempDir,
		Tuning:     cfg.Tunings(),
		Cues:       opts.Cues.Sessions(),
		Metrics:    e.metrics,
	})

	e.disp = trigger.NewDispatcher(e.st, e.ring, e.sttc, e.rec, trigger.DispatcherConfig{
		SampleRate: cfg.Audio.SampleRate,
		Cooldown:   cfg.Cooldown(),
		Matcher:    trigger.NewMatcher(cfg.Triggers.Command, cfg.Triggers.Dictation),
		Metrics:    e.metrics,
	})

	e.listener = audio.NewListener(e.st, e.ring, opts.OpenDevice, func() {
		e.disp.Dispatch(e.runCtx)
	}, audio.ListenerConfig{
		SampleRate: cfg.Audio.SampleRate,
		FrameSize:  cfg.Audio.FrameSize,
		Tuning:     cfg.TuningFor(audio.ModeTriggerProbe),
		Metrics:    e.metrics,
	})

	// Mute changes get an audible acknowledgement.
	e.st.Subscribe(func(chg state.Change) {
		if chg.Field != state.FieldMuted {
			return
		}
		if chg.Muted {
			e.cues.Play(cue.Muted)
		} else {
			e.cues.Play(cue.Unmuted)
		}
	})

	ctl, err := ipc.Listen(cfg.Server.SocketPath, e.handleControl)
	if err != nil {
		return nil, err
	}
	e.ctl = ctl

	return e, nil
}

// Run blocks until ctx is cancelled or the capture loop fails fatally. On
// the way out it closes the queue so the consumer drains pending captures.
func (e *Engine) Run(ctx context.Context) error {
	e.runCtx = ctx

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return e.listener.Run(ctx) })
	g.Go(func() error { e.consume(ctx); return nil })
	g.Go(func() error { return e.ctl.Serve(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		e.queue.Close()
		return nil
	})

	if addr := e.cfg.Server.MetricsAddr; addr != "" {
		srv := &http.Server{Addr: addr, Handler: metricsMux()}
		g.Go(func() error {
			log.Info("metrics listening", "addr", addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return srv.Shutdown(shutCtx)
		})
	}

	e.cues.Play(cue.Start)
	log.Info("engine running", "socket", e.cfg.Server.SocketPath)

	return g.Wait()
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observe.Handler())
	return mux
}

// consume drains the dispatch queue. It owns each dequeued file and removes
// it once processed.
func (e *Engine) consume(ctx context.Context) {
	for {
		res, ok := e.queue.Dequeue()
		if !ok {
			return
		}
		e.process(ctx, res)
		if err := os.Remove(res.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("capture file not removed", "path", res.Path, "err", err)
		}
		e.st.MarkProcessed(time.Now())
	}
}

func (e *Engine) process(ctx context.Context, res audio.SessionResult) {
	begin := time.Now()
	tr, err := e.sttc.TranscribeFile(ctx, res.Path)
	e.metrics.STTDuration.Record(ctx, time.Since(begin).Seconds())
	if err != nil {
		log.Error("capture transcription failed", "path", res.Path, "err", err)
		e.cues.Play(cue.Failure)
		return
	}

	text := strings.TrimSpace(tr.Text)
	if text == "" {
		log.Info("capture held no speech", "path", res.Path)
		return
	}
	log.Info("capture transcribed", "mode", res.Mode.String(), "text", text, "confidence", tr.Confidence)

	switch res.Mode {
	case audio.ModeDictation:
		e.handleDictation(ctx, text)
	case audio.ModeCommand:
		e.handleCommand(ctx, text)
	default:
		log.Warn("capture with unexpected mode", "mode", res.Mode.String())
	}
}

func (e *Engine) handleDictation(ctx context.Context, text string) {
	if e.desktop == nil {
		log.Warn("no desktop executor, dropping dictation", "text", text)
		return
	}
	if err := e.desktop.TypeText(ctx, text); err != nil {
		log.Error("dictation typing failed", "err", err)
		e.cues.Play(cue.Failure)
		return
	}
	e.notifier.Notify(ctx, "Typed: "+text)
}

func (e *Engine) handleCommand(ctx context.Context, text string) {
	if e.interp == nil || e.desktop == nil {
		log.Warn("no interpreter wired, dropping command", "text", text)
		return
	}

	begin := time.Now()
	intent, err := e.interp.Interpret(ctx, text)
	e.metrics.LLMDuration.Record(ctx, time.Since(begin).Seconds())
	if err != nil {
		log.Error("command interpretation failed", "text", text, "err", err)
		e.speak(ctx, "Sorry, I could not reach the interpreter.")
		return
	}
	if intent.Action == "unknown" || intent.Action == "none" {
		log.Info("command not understood", "text", text)
		e.speak(ctx, "Sorry, I did not catch that.")
		return
	}

	reply, err := e.desktop.Execute(ctx, intent)
	if err != nil {
		log.Error("command execution failed", "action", intent.Action, "err", err)
		e.speak(ctx, "Sorry, that did not work.")
		return
	}
	e.notifier.Notify(ctx, text)
	e.speak(ctx, reply)
}

func (e *Engine) speak(ctx context.Context, text string) {
	if e.speaker == nil || text == "" {
		return
	}
	begin := time.Now()
	err := e.speaker.Speak(ctx, text)
	e.metrics.TTSDuration.Record(ctx, time.Since(begin).Seconds())
	if err != nil {
		log.Warn("speech failed", "err", err)
	}
}

// handleControl serves the whisperctl verbs.
func (e *Engine) handleControl(ctx context.Context, req ipc.Request) ipc.Response {
	log.Debug("control request", "op", req.Op)
	switch req.Op {
	case ipc.OpStatus:
		return ipc.Response{OK: true, Status: &ipc.Status{
			Recording:     e.st.Recording(),
			Muted:         e.st.Muted(),
			QueueDepth:    e.queue.Len(),
			LastProcessed: e.st.LastProcessed(),
		}}
	case ipc.OpMute:
		e.st.SetMuted(true)
		return ipc.Ok()
	case ipc.OpUnmute:
		e.st.SetMuted(false)
		return ipc.Ok()
	case ipc.OpToggleMute:
		e.st.ToggleMuted()
		return ipc.Ok()
	case ipc.OpCommand:
		return e.startSession(audio.ModeCommand)
	case ipc.OpDictate:
		return e.startSession(audio.ModeDictation)
	case ipc.OpStop:
		e.st.StopRecording()
		return ipc.Ok()
	case ipc.OpSay:
		if strings.TrimSpace(req.Text) == "" {
			return ipc.Fail(errors.New("say: empty text"))
		}
		go e.speak(e.runCtx, req.Text)
		return ipc.Ok()
	default:
		return ipc.Fail(fmt.Errorf("unknown op %q", req.Op))
	}
}

// startSession force-starts an explicit session on its own goroutine; the
// response only acknowledges the attempt.
func (e *Engine) startSession(mode audio.Mode) ipc.Response {
	go func() {
		if _, err := e.rec.Record(e.runCtx, mode, audio.StartOptions{Force: true}); err != nil {
			log.Error("explicit session failed", "mode", mode.String(), "err", err)
		}
	}()
	return ipc.Ok()
}

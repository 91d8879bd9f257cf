// Package cue plays the short sounds that mark engine events: recording
// started or stopped, mute toggled, a failed attempt. Every cue is
// fire-and-forget; a system without working audio output just runs silent.
package cue

import (
	"bytes"
	"fmt"
	"io"
	log "log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/generators"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"

	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/audio"
)

// Kind names one cue sound.
type Kind int

const (
	Start Kind = iota
	Stop
	Command
	Dictation
	Muted
	Unmuted
	Failure
)

func (k Kind) String() string {
	switch k {
	case Start:
		return "start"
	case Stop:
		return "stop"
	case Command:
		return "command"
	case Dictation:
		return "dictation"
	case Muted:
		return "muted"
	case Unmuted:
		return "unmuted"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// ParseKind maps a config key to its Kind.
func ParseKind(s string) (Kind, bool) {
	for k := Start; k <= Failure; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// toneSpec is the synthesized fallback when no asset file is configured:
// a short sine burst, pitched so the kinds are tellable apart by ear.
type toneSpec struct {
	freq int
	dur  time.Duration
}

var tones = map[Kind]toneSpec{
	Start:     {freq: 880, dur: 120 * time.Millisecond},
	Stop:      {freq: 660, dur: 120 * time.Millisecond},
	Command:   {freq: 990, dur: 150 * time.Millisecond},
	Dictation: {freq: 770, dur: 150 * time.Millisecond},
	Muted:     {freq: 440, dur: 180 * time.Millisecond},
	Unmuted:   {freq: 550, dur: 180 * time.Millisecond},
	Failure:   {freq: 220, dur: 250 * time.Millisecond},
}

const defaultRate = beep.SampleRate(44100)

// Config selects cue assets. Kinds without an asset get a synthesized tone.
type Config struct {
	// Assets maps kinds to wav/mp3/ogg files.
	Assets map[Kind]string

	// SampleRate is the playback rate. Zero means 44100.
	SampleRate int
}

// Player holds every cue pre-decoded in memory and plays them through the
// shared speaker. A nil Player is valid and silent.
type Player struct {
	rate beep.SampleRate
	bufs map[Kind]*beep.Buffer

	once    sync.Once
	initErr error

	// play is swapped out by tests; the default initializes the speaker
	// lazily so headless test runs never touch the audio device.
	play func(s beep.Streamer) error
}

// NewPlayer decodes the configured assets and synthesizes tones for the
// rest. An unreadable asset is logged and falls back to its tone.
func NewPlayer(cfg Config) (*Player, error) {
	rate := defaultRate
	if cfg.SampleRate > 0 {
		rate = beep.SampleRate(cfg.SampleRate)
	}

	p := &Player{rate: rate, bufs: make(map[Kind]*beep.Buffer, len(tones))}
	p.play = p.speakerPlay

	for kind, tone := range tones {
		if path := cfg.Assets[kind]; path != "" {
			buf, err := p.decodeAsset(path)
			if err == nil {
				p.bufs[kind] = buf
				continue
			}
			log.Warn("cue asset unusable, synthesizing", "kind", kind.String(), "path", path, "err", err)
		}
		buf, err := p.synthesize(tone)
		if err != nil {
			return nil, fmt.Errorf("synthesize %s cue: %w", kind, err)
		}
		p.bufs[kind] = buf
	}
	return p, nil
}

// Play starts the cue and returns immediately. Playback problems are
// logged, never surfaced.
func (p *Player) Play(kind Kind) {
	if p == nil {
		return
	}
	buf, ok := p.bufs[kind]
	if !ok {
		return
	}
	if err := p.play(buf.Streamer(0, buf.Len())); err != nil {
		log.Debug("cue not played", "kind", kind.String(), "err", err)
	}
}

// PlayWAV decodes an in-memory WAV (the neural voice server's reply
// format) and plays it to completion.
func (p *Player) PlayWAV(data []byte) error {
	if p == nil {
		return fmt.Errorf("no cue player")
	}
	s, format, err := wav.Decode(io.NopCloser(bytes.NewReader(data)))
	if err != nil {
		return fmt.Errorf("decode wav: %w", err)
	}
	var str beep.Streamer = s
	if format.SampleRate != p.rate {
		str = beep.Resample(4, format.SampleRate, p.rate, s)
	}

	done := make(chan struct{})
	if err := p.play(beep.Seq(str, beep.Callback(func() { close(done) }))); err != nil {
		return err
	}
	<-done
	return nil
}

func (p *Player) speakerPlay(s beep.Streamer) error {
	p.once.Do(func() {
		p.initErr = speaker.Init(p.rate, p.rate.N(time.Second/10))
	})
	if p.initErr != nil {
		return p.initErr
	}
	speaker.Play(s)
	return nil
}

func (p *Player) decodeAsset(path string) (*beep.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		s, format, err = wav.Decode(f)
	case ".mp3":
		s, format, err = mp3.Decode(f)
	case ".ogg":
		s, format, err = vorbis.Decode(f)
	default:
		return nil, fmt.Errorf("unsupported cue format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	defer s.Close()

	var str beep.Streamer = s
	if format.SampleRate != p.rate {
		str = beep.Resample(4, format.SampleRate, p.rate, s)
	}
	buf := beep.NewBuffer(beep.Format{SampleRate: p.rate, NumChannels: format.NumChannels, Precision: format.Precision})
	buf.Append(str)
	return buf, nil
}

func (p *Player) synthesize(tone toneSpec) (*beep.Buffer, error) {
	s, err := generators.SinTone(p.rate, tone.freq)
	if err != nil {
		return nil, err
	}
	buf := beep.NewBuffer(beep.Format{SampleRate: p.rate, NumChannels: 2, Precision: 2})
	buf.Append(beep.Take(p.rate.N(tone.dur), s))
	return buf, nil
}

// Sessions adapts the player to the recorder's cue hooks: mode-specific
// start sounds, one stop sound, one failure sound.
func (p *Player) Sessions() SessionCues { return SessionCues{p: p} }

// SessionCues satisfies audio.Cues on top of a Player.
type SessionCues struct {
	p *Player
}

var _ audio.Cues = SessionCues{}

func (c SessionCues) RecordingStarted(m audio.Mode) {
	if m == audio.ModeDictation {
		c.p.Play(Dictation)
	} else {
		c.p.Play(Command)
	}
}

func (c SessionCues) RecordingStopped(audio.Mode) { c.p.Play(Stop) }

func (c SessionCues) RecordingFailed(audio.Mode) { c.p.Play(Failure) }

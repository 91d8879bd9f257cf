// Package tts speaks the assistant's responses. Say shells out to the
// macOS speech synthesizer; Neural streams text to a remote neural-voice
// server and plays the returned audio; Fallback prefers neural and degrades
// to say when the server is unreachable.
package tts

import (
	"context"
	"fmt"
	log "log/slog"
	"os/exec"
)

// Speaker voices one piece of text, blocking until playback finishes.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Say speaks through the macOS `say` binary.
type Say struct {
	voice string
	run   func(ctx context.Context, name string, args ...string) error
}

func NewSay(voice string) *Say {
	return &Say{
		voice: voice,
		run: func(ctx context.Context, name string, args ...string) error {
			if err := exec.CommandContext(ctx, name, args...).Run(); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		},
	}
}

func (s *Say) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	args := []string{}
	if s.voice != "" {
		args = append(args, "-v", s.voice)
	}
	args = append(args, text)
	return s.run(ctx, "say", args...)
}

// Fallback tries each speaker in order until one succeeds.
type Fallback struct {
	speakers []Speaker
}

func NewFallback(speakers ...Speaker) *Fallback {
	return &Fallback{speakers: speakers}
}

func (f *Fallback) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	var last error
	for _, s := range f.speakers {
		if s == nil {
			continue
		}
		err := s.Speak(ctx, text)
		if err == nil {
			return nil
		}
		last = err
		log.Warn("speaker failed, trying next", "err", err)
	}
	if last == nil {
		return fmt.Errorf("no speakers configured")
	}
	return last
}

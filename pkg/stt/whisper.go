package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/pkg/audioconv"
)

// WhisperOptions tune the in-process transcriber.
type WhisperOptions struct {
	Language      string // "auto" detects per utterance
	TranslateToEn bool
	Threads       int // <=0 means NumCPU
	InitialPrompt string
	BeamSize      int // >0 enables beam search
}

// Whisper runs whisper.cpp in-process against a ggml model.
type Whisper struct {
	model whisper.Model
	opts  WhisperOptions
}

var _ Client = (*Whisper)(nil)

func NewWhisper(modelPath string, opts WhisperOptions) (*Whisper, error) {
	if modelPath == "" {
		return nil, errors.New("empty model path")
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	if opts.Language == "" {
		opts.Language = "auto"
	}
	return &Whisper{model: m, opts: opts}, nil
}

func (w *Whisper) Close() error {
	if w.model == nil {
		return nil
	}
	return w.model.Close()
}

func (w *Whisper) Transcribe(ctx context.Context, pcm []int16, sampleRate int) (Result, error) {
	if len(pcm) == 0 {
		return Result{}, errors.New("no audio samples")
	}
	x := Samples(pcm)
	if sampleRate > 0 && sampleRate != whisper.SampleRate {
		x = audioconv.Resample(x, sampleRate, whisper.SampleRate)
	}
	return w.process(ctx, x)
}

func (w *Whisper) TranscribeFile(ctx context.Context, path string) (Result, error) {
	x, err := audioconv.DecodeFile(ctx, path, audioconv.Target{SampleRate: whisper.SampleRate})
	if err != nil {
		return Result{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if len(x) == 0 {
		return Result{}, errors.New("no audio samples")
	}
	return w.process(ctx, x)
}

func (w *Whisper) process(ctx context.Context, pcm []float32) (Result, error) {
	if w.model == nil {
		return Result{}, errors.New("nil model")
	}
	wctx, err := w.model.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("new context: %w", err)
	}

	if err := wctx.SetLanguage(w.opts.Language); err != nil {
		return Result{}, fmt.Errorf("set language: %w", err)
	}
	wctx.SetTranslate(w.opts.TranslateToEn)

	threads := w.opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))

	if w.opts.BeamSize > 0 {
		wctx.SetBeamSize(w.opts.BeamSize)
	}
	if w.opts.InitialPrompt != "" {
		wctx.SetInitialPrompt(w.opts.InitialPrompt)
	}

	if err := wctx.Process(pcm, nil, nil, nil); err != nil {
		return Result{}, fmt.Errorf("process: %w", err)
	}

	var (
		parts  []string
		pSum   float64
		tokens int
	)
	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}

		seg, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("next segment: %w", err)
		}
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
		for _, tok := range seg.Tokens {
			pSum += float64(tok.P)
			tokens++
		}
	}

	res := Result{Text: strings.Join(parts, " "), Confidence: 1}
	if tokens > 0 {
		res.Confidence = pSum / float64(tokens)
	}
	return res, nil
}

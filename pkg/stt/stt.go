// Package stt turns captured speech into text. Two clients are provided: an
// in-process whisper.cpp transcriber and an HTTP client for a remote whisper
// service. Both consume mono 16-bit PCM.
package stt

import "context"

// Result is one finished transcription.
type Result struct {
	Text       string
	Confidence float64
}

// Client is implemented by every transcription backend.
type Client interface {
	// Transcribe recognizes raw mono PCM at the given sample rate.
	Transcribe(ctx context.Context, pcm []int16, sampleRate int) (Result, error)
	// TranscribeFile recognizes an audio file on disk.
	TranscribeFile(ctx context.Context, path string) (Result, error)
}

// Samples converts mono int16 PCM to the normalized float32 layout whisper
// consumes.
func Samples(pcm []int16) []float32 {
	out := make([]float32, len(pcm))
	for i, s := range pcm {
		out[i] = float32(s) / 32768.0
	}
	return out
}

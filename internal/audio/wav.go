package audio

import (
	"errors"
	"fmt"
	"os"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV writes mono 16-bit PCM samples to path as a standard WAV file.
func WriteWAV(path string, pcm []int16, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}

	data := make([]int, len(pcm))
	for i, s := range pcm {
		data[i] = int(s)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		f.Close()
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalize wav: %w", err)
	}
	return f.Close()
}

// ReadWAV reads a mono 16-bit WAV back into samples plus its sample rate.
func ReadWAV(path string) ([]int16, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, errors.New("invalid wav")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}
	if buf == nil || buf.Data == nil {
		return nil, 0, errors.New("empty wav")
	}

	pcm := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		pcm[i] = int16(v)
	}

	rate := int(dec.SampleRate)
	if buf.Format != nil && buf.Format.SampleRate > 0 {
		rate = buf.Format.SampleRate
	}
	return pcm, rate, nil
}

// Package audioconv decodes common audio containers into mono float32 PCM
// at a caller-chosen sample rate, the layout speech models consume.
// Supported inputs: WAV, MP3, Ogg Vorbis and Ogg Opus; files with unknown
// extensions are sniffed by magic bytes.
package audioconv

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

// Target describes the desired output PCM.
type Target struct {
	// SampleRate of the output. Zero means 16000.
	SampleRate int
	// MaxSamples caps the output length. Zero means unbounded.
	MaxSamples int
}

func (t Target) rate() int {
	if t.SampleRate <= 0 {
		return 16000
	}
	return t.SampleRate
}

// DecodeFile reads the audio file at path and returns mono PCM conforming to
// the target.
func DecodeFile(_ context.Context, path string, t Target) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return decodeWAV(f, t)
	case ".mp3":
		return decodeMP3(f, t)
	case ".ogg", ".oga":
		return decodeOgg(f, t)
	default:
		return sniff(f, t)
	}
}

// sniff dispatches on the container's magic bytes when the extension says
// nothing.
func sniff(f *os.File, t Target) ([]float32, error) {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return nil, fmt.Errorf("unreadable audio file: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	switch string(magic) {
	case "RIFF":
		return decodeWAV(f, t)
	case "OggS":
		return decodeOgg(f, t)
	default:
		return nil, fmt.Errorf("unsupported audio format in %s", filepath.Base(f.Name()))
	}
}

// decodeOgg tries Vorbis first, then rewinds and tries Opus: both live in
// the same container and the extension does not distinguish them.
func decodeOgg(f *os.File, t Target) ([]float32, error) {
	if out, err := decodeVorbis(f, t); err == nil {
		return out, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	out, err := decodeOpus(f, t)
	if err != nil {
		return nil, fmt.Errorf("ogg container is neither vorbis nor opus: %w", err)
	}
	return out, nil
}

func decodeWAV(r io.ReadSeeker, t Target) ([]float32, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if pb == nil || len(pb.Data) == 0 {
		return nil, errors.New("empty wav")
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = 16
	}
	x := floatsFromInts(pb.Data, depth)

	channels, rate := 1, 44100
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			channels = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			rate = pb.Format.SampleRate
		}
	}
	return conform(x, channels, rate, t), nil
}

func decodeMP3(r io.Reader, t Target) ([]float32, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return nil, err
	}

	rate := dec.SampleRate()
	if rate <= 0 {
		rate = 44100
	}
	// The decoder always emits interleaved 16-bit stereo.
	return conform(floatsFromInt16s(ints), 2, rate, t), nil
}

func decodeVorbis(r io.Reader, t Target) ([]float32, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, errors.New("invalid ogg/vorbis stream")
	}
	return conform(pcm, format.Channels, format.SampleRate, t), nil
}

func decodeOpus(rs io.ReadSeeker, t Target) ([]float32, error) {
	dec, err := popus.NewDecoder(rs)
	if err != nil {
		return nil, err
	}
	defer dec.Destroy()

	channels := dec.ChannelCount()
	if channels <= 0 {
		channels = 1
	}

	// Opus always decodes at 48 kHz; read roughly half a second at a time.
	var pcm []float32
	buf := make([]int16, 48_000*channels/2)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			pcm = append(pcm, floatsFromInt16s(buf[:n*channels])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	if len(pcm) == 0 {
		return nil, nil
	}
	return conform(pcm, channels, 48000, t), nil
}

// conform downmixes, resamples and caps decoded PCM to the target.
func conform(x []float32, channels, sourceRate int, t Target) []float32 {
	if channels > 1 {
		x = downmix(x, channels)
	}
	if sourceRate != t.rate() {
		x = Resample(x, sourceRate, t.rate())
	}
	if t.MaxSamples > 0 && len(x) > t.MaxSamples {
		x = x[:t.MaxSamples]
	}
	return x
}

func floatsFromInts(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		out[i] = float32(clamp(float64(v)*scale, -1.0, 1.0))
	}
	return out
}

func floatsFromInt16s(data []int16) []float32 {
	out := make([]float32, len(data))
	const scale = 1.0 / 32768.0
	for i, v := range data {
		out[i] = float32(float64(v) * scale)
	}
	return out
}

// downmix averages interleaved channels into mono.
func downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	frames := len(in) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += float64(in[base+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// Resample converts between rates by linear interpolation. Good enough for
// speech; not meant for music.
func Resample(in []float32, inRate, outRate int) []float32 {
	if inRate == outRate || len(in) == 0 {
		return in
	}
	ratio := float64(outRate) / float64(inRate)
	outN := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, outN)
	for i := 0; i < outN; i++ {
		src := float64(i) / ratio
		i0 := int(math.Floor(src))
		if i0 >= len(in) {
			out[i] = in[len(in)-1]
			continue
		}
		i1 := i0 + 1
		if i1 >= len(in) {
			out[i] = in[i0]
			continue
		}
		a := float32(src - float64(i0))
		out[i] = in[i0]*(1-a) + in[i1]*a
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

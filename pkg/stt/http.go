package stt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// HTTP posts captures to a remote whisper service as a multipart WAV upload
// and reads back a {"text", "confidence"} JSON body.
type HTTP struct {
	url    string
	client *http.Client
}

var _ Client = (*HTTP)(nil)

type HTTPOptions struct {
	// Timeout bounds one request. Zero means 30 seconds.
	Timeout time.Duration
	// Client overrides the transport, e.g. to route through a proxy.
	Client *http.Client
}

func NewHTTP(url string, opts HTTPOptions) *HTTP {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTP{url: url, client: client}
}

func (h *HTTP) Transcribe(ctx context.Context, pcm []int16, sampleRate int) (Result, error) {
	return h.post(ctx, "capture.wav", bytes.NewReader(wavBytes(pcm, sampleRate)))
}

func (h *HTTP) TranscribeFile(ctx context.Context, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()
	return h.post(ctx, filepath.Base(path), f)
}

func (h *HTTP) post(ctx context.Context, name string, audio io.Reader) (Result, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return Result{}, err
	}
	if _, err := io.Copy(part, audio); err != nil {
		return Result{}, err
	}
	if err := mw.Close(); err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, body)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := h.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("post %s: %w", h.url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("transcription service returned %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	var out struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}
	return Result{Text: out.Text, Confidence: out.Confidence}, nil
}

// wavBytes frames pcm as a standard PCM WAV in memory. Hand-rolled because
// the wav encoder wants a seeker, which a plain buffer is not, and every
// size is known up front anyway.
func wavBytes(pcm []int16, sampleRate int) []byte {
	dataLen := len(pcm) * 2
	buf := bytes.NewBuffer(make([]byte, 0, 44+dataLen))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(buf, binary.LittleEndian, uint16(2))
	binary.Write(buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	binary.Write(buf, binary.LittleEndian, pcm)

	return buf.Bytes()
}

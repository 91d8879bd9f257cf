package audio

import (
	"errors"

	"github.com/gordonklaus/portaudio"
)

// Device is one open capture stream. Read fills dst with mono int16 samples
// and blocks on hardware I/O; it reports how many samples were written.
type Device interface {
	Start() error
	Read(dst []int16) (int, error)
	Close() error
}

// DeviceOpener opens a capture stream. Production code uses OpenInputDevice;
// tests substitute fakes.
type DeviceOpener func(sampleRate, frameSize int) (Device, error)

// Init initializes the audio backend. Call once at boot, pair with
// Terminate.
func Init() error { return portaudio.Initialize() }

func Terminate() error { return portaudio.Terminate() }

type inputDevice struct {
	stream *portaudio.Stream
	buf    []int16
}

// OpenInputDevice opens the default input device for mono capture at the
// given rate, with the read buffer bound to one frame.
func OpenInputDevice(sampleRate, frameSize int) (Device, error) {
	buf := make([]int16, frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(buf), buf)
	if err != nil {
		return nil, err
	}
	return &inputDevice{stream: stream, buf: buf}, nil
}

func (d *inputDevice) Start() error { return d.stream.Start() }

func (d *inputDevice) Read(dst []int16) (int, error) {
	if err := d.stream.Read(); err != nil {
		return 0, err
	}
	return copy(dst, d.buf), nil
}

func (d *inputDevice) Close() error {
	d.stream.Stop()
	return d.stream.Close()
}

// IsOverflow reports whether a read failed only because the hardware buffer
// overflowed while the listener was paused; such reads are retried
// immediately.
func IsOverflow(err error) bool {
	return errors.Is(err, portaudio.InputOverflowed)
}

package state

import (
	"sync"
	"time"
)

// Field identifies which flag changed in a notification.
type Field int

const (
	FieldRecording Field = iota
	FieldMuted
)

// Change is delivered to subscribers after a flag actually changes value.
type Change struct {
	Field     Field
	Recording bool
	Muted     bool
}

// Shared holds the process-wide recording flags. One instance is created at
// boot and handed to every component that needs it. The recording flag is the
// arbiter of microphone ownership: whoever wins TryStartRecording owns the
// input device until StopRecording, and the continuous listener pauses while
// it is held.
type Shared struct {
	mu            sync.Mutex
	recording     bool
	muted         bool
	lastProcessed time.Time
	subs          []func(Change)
}

func New() *Shared { return &Shared{} }

// TryStartRecording claims the recording flag, returning false if another
// session already holds it.
func (s *Shared) TryStartRecording() bool {
	s.mu.Lock()
	if s.recording {
		s.mu.Unlock()
		return false
	}
	s.recording = true
	subs, chg := s.pending(FieldRecording)
	s.mu.Unlock()

	deliver(subs, chg)
	return true
}

// StopRecording releases the recording flag. Calling it while not recording
// is a no-op, so an external stop and a session's own finalization can race
// harmlessly.
func (s *Shared) StopRecording() {
	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		return
	}
	s.recording = false
	subs, chg := s.pending(FieldRecording)
	s.mu.Unlock()

	deliver(subs, chg)
}

func (s *Shared) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

func (s *Shared) SetMuted(muted bool) {
	s.mu.Lock()
	if s.muted == muted {
		s.mu.Unlock()
		return
	}
	s.muted = muted
	subs, chg := s.pending(FieldMuted)
	s.mu.Unlock()

	deliver(subs, chg)
}

// ToggleMuted flips the muted flag and returns the new value.
func (s *Shared) ToggleMuted() bool {
	s.mu.Lock()
	s.muted = !s.muted
	muted := s.muted
	subs, chg := s.pending(FieldMuted)
	s.mu.Unlock()

	deliver(subs, chg)
	return muted
}

func (s *Shared) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// MarkProcessed records when the downstream consumer last finished an item.
func (s *Shared) MarkProcessed(t time.Time) {
	s.mu.Lock()
	s.lastProcessed = t
	s.mu.Unlock()
}

func (s *Shared) LastProcessed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastProcessed
}

// Subscribe registers fn for change notifications. Callbacks are invoked
// outside the lock, so they may call back into Shared without deadlocking.
func (s *Shared) Subscribe(fn func(Change)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// pending snapshots the subscriber list and change under the held lock.
func (s *Shared) pending(f Field) ([]func(Change), Change) {
	subs := make([]func(Change), len(s.subs))
	copy(subs, s.subs)
	return subs, Change{Field: f, Recording: s.recording, Muted: s.muted}
}

func deliver(subs []func(Change), chg Change) {
	for _, fn := range subs {
		fn(chg)
	}
}

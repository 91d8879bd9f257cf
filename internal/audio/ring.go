package audio

import "sync"

// SpeechStartUnset is the sentinel value of the speech-start index while no
// utterance is in progress.
const SpeechStartUnset = -1

// Ring is the bounded sliding window of frames filled by the continuous
// listener. Appends evict the oldest frame once the window is full. The
// speech-start index is kept buffer-relative: eviction shifts it down with
// the window, flooring at the unset sentinel, so a snapshot always covers the
// utterance currently believed to be in progress.
//
// One mutex guards both the frames and the index, keeping snapshots
// consistent with the speech-start position. Critical sections are plain
// memory copies; no I/O happens under the lock.
type Ring struct {
	mu          sync.Mutex
	frames      [][]int16
	head        int
	count       int
	speechStart int
}

func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		frames:      make([][]int16, capacity),
		speechStart: SpeechStartUnset,
	}
}

// RingCapacity derives the frame capacity of a window of windowSeconds.
func RingCapacity(sampleRate, frameSize int, windowSeconds float64) int {
	if sampleRate <= 0 || frameSize <= 0 || windowSeconds <= 0 {
		return 1
	}
	n := int(float64(sampleRate) * windowSeconds / float64(frameSize))
	if n < 1 {
		n = 1
	}
	return n
}

// Append copies frame into the window, evicting the oldest frame when full.
// Returns true when an eviction happened.
func (r *Ring) Append(frame []int16) bool {
	cp := make([]int16, len(frame))
	copy(cp, frame)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count < len(r.frames) {
		r.frames[(r.head+r.count)%len(r.frames)] = cp
		r.count++
		return false
	}

	r.frames[r.head] = cp
	r.head = (r.head + 1) % len(r.frames)
	if r.speechStart > SpeechStartUnset {
		r.speechStart--
	}
	return true
}

// MarkSpeechStart pins the speech-start index to the newest frame the first
// time speech is observed; while an utterance is in progress further calls
// are no-ops.
func (r *Ring) MarkSpeechStart() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.speechStart == SpeechStartUnset && r.count > 0 {
		r.speechStart = r.count - 1
	}
}

func (r *Ring) ClearSpeechStart() {
	r.mu.Lock()
	r.speechStart = SpeechStartUnset
	r.mu.Unlock()
}

// SpeechStart returns the buffer-relative index of the current utterance, or
// SpeechStartUnset.
func (r *Ring) SpeechStart() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.speechStart
}

// Snapshot flattens the frames from the speech-start index (or the window
// start when unset) through the newest frame into one freshly allocated
// sample slice.
func (r *Ring) Snapshot() []int16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotFrom(r.speechStart)
}

// SnapshotFrom is Snapshot with an explicit start index.
func (r *Ring) SnapshotFrom(start int) []int16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotFrom(start)
}

func (r *Ring) snapshotFrom(start int) []int16 {
	if start < 0 {
		start = 0
	}
	if start >= r.count {
		return nil
	}

	total := 0
	for i := start; i < r.count; i++ {
		total += len(r.frames[(r.head+i)%len(r.frames)])
	}
	out := make([]int16, 0, total)
	for i := start; i < r.count; i++ {
		out = append(out, r.frames[(r.head+i)%len(r.frames)]...)
	}
	return out
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *Ring) Cap() int { return len(r.frames) }

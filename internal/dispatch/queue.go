// Package dispatch hands finished captures from the audio engine to the
// command pipeline.
package dispatch

import (
	"context"
	log "log/slog"
	"sync"

	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/audio"
	"github.com/0xrin1/whisper-yabai-mac-os-x-sub000/internal/observe"
)

// Queue is an unbounded FIFO between recording sessions and the consumer.
// Enqueue never blocks the audio path; Dequeue blocks until an item arrives
// or the queue is closed and drained.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []audio.SessionResult
	closed  bool
	metrics *observe.Metrics
}

var _ audio.ResultSink = (*Queue)(nil)

func NewQueue(m *observe.Metrics) *Queue {
	if m == nil {
		m = observe.Default()
	}
	q := &Queue{metrics: m}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends res and wakes one waiter. Items offered after Close are
// dropped.
func (q *Queue) Enqueue(res audio.SessionResult) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		log.Debug("queue closed, dropping capture", "path", res.Path)
		return
	}
	q.items = append(q.items, res)
	q.metrics.QueueDepth.Add(context.Background(), 1)
	log.Debug("capture queued", "path", res.Path, "mode", res.Mode, "depth", len(q.items))
	q.cond.Signal()
}

// Dequeue blocks until an item is available and pops it in FIFO order. After
// Close it keeps draining pending items, then reports ok=false.
func (q *Queue) Dequeue() (audio.SessionResult, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return audio.SessionResult{}, false
	}
	res := q.items[0]
	q.items = q.items[1:]
	q.metrics.QueueDepth.Add(context.Background(), -1)
	return res, true
}

// Close stops accepting items and wakes every blocked Dequeue. Safe to call
// more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

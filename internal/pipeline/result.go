// Package pipeline ties recording and transcription together: the
// Idle/Recording state machine, the background transcription worker,
// and the queue that carries results back to the polling consumer.
package pipeline

import (
	"sync"
	"time"
)

// Result is one transcription outcome: recognized text, or a failure
// message. Exactly one is produced per completed capture session.
type Result struct {
	SessionID string
	Text      string
	Err       string
	Artifact  string
	Model     string
	Language  string
	Audio     time.Duration
	Inference time.Duration
}

// Ok reports whether the transcription succeeded.
func (r Result) Ok() bool { return r.Err == "" }

// ResultQueue is an unbounded FIFO carrying results from transcription
// workers to the single polling consumer. Multi-producer safe; order
// of arrival is order of completion.
type ResultQueue struct {
	mu    sync.Mutex
	items []Result
}

func NewResultQueue() *ResultQueue {
	return &ResultQueue{}
}

func (q *ResultQueue) Push(r Result) {
	q.mu.Lock()
	q.items = append(q.items, r)
	q.mu.Unlock()
}

// Drain removes and returns all queued results in FIFO order. An
// empty queue drains to nil with no side effects.
func (q *ResultQueue) Drain() []Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

// Len reports the number of queued results.
func (q *ResultQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

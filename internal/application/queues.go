package application

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// defaultMaxRedeliveries bounds how many consecutive failed drains a batch
// survives before it is dropped with a loud log. Unbounded re-prepend would
// grow without limit against a sink that stays down.
const defaultMaxRedeliveries = 10

// Queue is a mutex-guarded multi-producer, single-consumer buffer drained by
// a periodic task. Producers never block on the sink.
type Queue[T any] struct {
	name string
	max  int

	mu       sync.Mutex
	items    []T
	failures int
}

// NewQueue creates a named queue with the default redelivery ceiling.
func NewQueue[T any](name string) *Queue[T] {
	return &Queue[T]{name: name, max: defaultMaxRedeliveries}
}

// Push appends one item to the tail.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
}

// DrainAll removes and returns everything currently queued.
func (q *Queue[T]) DrainAll() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Requeue re-prepends a failed batch so the next drain retries it first.
// After the redelivery ceiling the batch is dropped.
func (q *Queue[T]) Requeue(batch []T) {
	if len(batch) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	q.failures++
	if q.failures > q.max {
		log.Error().Str("queue", q.name).Int("dropped", len(batch)).
			Int("attempts", q.failures).
			Msg("Redelivery ceiling reached, dropping batch")
		q.failures = 0
		return
	}
	q.items = append(batch, q.items...)
}

// Delivered resets the failure counter after a successful drain.
func (q *Queue[T]) Delivered() {
	q.mu.Lock()
	q.failures = 0
	q.mu.Unlock()
}

// Len reports the current depth.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

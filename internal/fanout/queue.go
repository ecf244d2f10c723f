package fanout

import (
	"sync/atomic"

	"github.com/movinesta/swipe-ingest/internal/models"
)

// Queue is a bounded, non-blocking queue of accepted batches with an atomic
// depth gauge so readiness probes can read pressure without locking.
type Queue struct {
	ch       chan *models.AcceptedBatch
	depth    atomic.Int64
	capacity int
}

func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ch:       make(chan *models.AcceptedBatch, capacity),
		capacity: capacity,
	}
}

// TryEnqueue returns false when the queue is full.
func (q *Queue) TryEnqueue(b *models.AcceptedBatch) bool {
	select {
	case q.ch <- b:
		q.depth.Add(1)
		return true
	default:
		return false
	}
}

// Chan is for consumers running a range loop; they call MarkDequeued after
// every receive.
func (q *Queue) Chan() <-chan *models.AcceptedBatch {
	return q.ch
}

func (q *Queue) MarkDequeued() {
	q.depth.Add(-1)
}

func (q *Queue) Depth() int {
	return int(q.depth.Load())
}

func (q *Queue) Capacity() int {
	return q.capacity
}

// close ends every range loop once the buffered batches are drained.
func (q *Queue) close() {
	close(q.ch)
}

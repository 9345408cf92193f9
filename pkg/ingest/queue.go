// Package ingest moves measurement rows from dispatch-side producers to a
// single background writer that batches them into the time-series store.
package ingest

import (
	"sync"
	"time"

	"github.com/zhaopengme/statsbot/pkg/metrics"
)

// Row is one time-series row. Symbols are low-cardinality string tags;
// Columns hold int, int64, float64, string, bool or time.Time values.
// A zero At means the writer stamps the row when it writes it.
type Row struct {
	Table   string
	Symbols map[string]string
	Columns map[string]any
	At      time.Time
}

// Enqueuer is the producer side of the queue.
type Enqueuer interface {
	Enqueue(row Row)
}

// Queue is an unbounded multi-producer, single-consumer row queue.
// Enqueue never blocks; nothing bounds memory if the consumer stalls.
type Queue struct {
	mu    sync.Mutex
	items []Row
	head  int
	wake  chan struct{}
}

func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

func (q *Queue) Enqueue(row Row) {
	q.mu.Lock()
	q.items = append(q.items, row)
	n := len(q.items) - q.head
	q.mu.Unlock()

	metrics.QueueDepth.Set(float64(n))

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of queued rows.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Pop removes the oldest row, waiting up to wait for one to arrive.
// Only one goroutine may call Pop.
func (q *Queue) Pop(wait time.Duration) (Row, bool) {
	if row, ok := q.tryPop(); ok {
		return row, true
	}
	if wait <= 0 {
		return Row{}, false
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-q.wake:
			if row, ok := q.tryPop(); ok {
				return row, true
			}
		case <-timer.C:
			return q.tryPop()
		}
	}
}

func (q *Queue) tryPop() (Row, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.items) {
		return Row{}, false
	}

	row := q.items[q.head]
	q.items[q.head] = Row{}
	q.head++

	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head > 1024 && q.head > len(q.items)/2:
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}

	metrics.QueueDepth.Set(float64(len(q.items) - q.head))
	return row, true
}

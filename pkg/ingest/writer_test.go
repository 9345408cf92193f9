package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu       sync.Mutex
	buffer   []Row
	stamps   []time.Time
	batches  [][]Row
	closed   bool
	writeErr func(Row) error
	flushErr error
}

func (s *recordingSender) Write(_ context.Context, row Row, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		if err := s.writeErr(row); err != nil {
			return err
		}
	}
	s.buffer = append(s.buffer, row)
	s.stamps = append(s.stamps, at)
	return nil
}

func (s *recordingSender) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.buffer
	s.buffer = nil
	if s.flushErr != nil {
		return s.flushErr
	}
	s.batches = append(s.batches, batch)
	return nil
}

func (s *recordingSender) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSender) flushedBatches() [][]Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Row, len(s.batches))
	copy(out, s.batches)
	return out
}

func (s *recordingSender) buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

func testRow(i int) Row {
	return Row{
		Table:   "channel_members",
		Symbols: map[string]string{"chat_id": "-100"},
		Columns: map[string]any{"members": i},
	}
}

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue()
	for i := 0; i < 5; i++ {
		q.Enqueue(testRow(i))
	}
	assert.Equal(t, 5, q.Len())

	for i := 0; i < 5; i++ {
		row, ok := q.Pop(0)
		require.True(t, ok)
		assert.Equal(t, i, row.Columns["members"])
	}
	_, ok := q.Pop(0)
	assert.False(t, ok)
}

func TestQueue_PopWaitsForProducer(t *testing.T) {
	q := NewQueue()

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Enqueue(testRow(1))
	}()

	row, ok := q.Pop(time.Second)
	require.True(t, ok)
	assert.Equal(t, 1, row.Columns["members"])
}

func TestQueue_PopTimesOut(t *testing.T) {
	q := NewQueue()
	start := time.Now()
	_, ok := q.Pop(30 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestQueue_ConcurrentProducersKeepPerProducerOrder(t *testing.T) {
	q := NewQueue()
	const producers, perProducer = 8, 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(Row{Table: fmt.Sprintf("p%d", p), Columns: map[string]any{"seq": i}})
			}
		}(p)
	}
	wg.Wait()

	last := make(map[string]int)
	count := 0
	for {
		row, ok := q.Pop(0)
		if !ok {
			break
		}
		count++
		seq := row.Columns["seq"].(int)
		if prev, seen := last[row.Table]; seen {
			require.Greater(t, seq, prev, "producer %s out of order", row.Table)
		}
		last[row.Table] = seq
	}
	assert.Equal(t, producers*perProducer, count)
}

func TestWriter_TimeBasedFlush(t *testing.T) {
	q := NewQueue()
	s := &recordingSender{}
	w := NewWriter(q, s, WriterConfig{
		Watermark:     1024,
		FlushInterval: 300 * time.Millisecond,
		PollWait:      10 * time.Millisecond,
	})
	w.Start()
	defer w.Close()

	for i := 0; i < 5; i++ {
		q.Enqueue(testRow(i))
	}

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, s.flushedBatches(), "flushed before the interval elapsed")

	require.Eventually(t, func() bool {
		return len(s.flushedBatches()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// No more rows, no more flushes.
	time.Sleep(400 * time.Millisecond)
	batches := s.flushedBatches()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 5)
	assert.Equal(t, 0, s.buffered())
}

func TestWriter_WatermarkFlush(t *testing.T) {
	q := NewQueue()
	s := &recordingSender{}
	w := NewWriter(q, s, WriterConfig{
		Watermark:     1024,
		FlushInterval: time.Hour,
		PollWait:      10 * time.Millisecond,
	})
	w.Start()

	for i := 0; i < 1030; i++ {
		q.Enqueue(testRow(i))
	}

	require.Eventually(t, func() bool {
		return len(s.flushedBatches()) >= 1
	}, 2*time.Second, 5*time.Millisecond)

	batches := s.flushedBatches()
	assert.Len(t, batches[0], 1024)

	w.Close()

	batches = s.flushedBatches()
	require.Len(t, batches, 2)
	assert.Len(t, batches[1], 6)
	assert.Equal(t, uint64(1030), w.Stats().Written)
}

func TestWriter_ShutdownFlushesQueuedRows(t *testing.T) {
	q := NewQueue()
	s := &recordingSender{}
	w := NewWriter(q, s, WriterConfig{FlushInterval: time.Hour, PollWait: 10 * time.Millisecond})
	w.Start()

	for i := 0; i < 10; i++ {
		q.Enqueue(testRow(i))
	}
	w.Close()

	total := 0
	for _, b := range s.flushedBatches() {
		total += len(b)
	}
	assert.Equal(t, 10, total)
	assert.True(t, s.closed)

	// The worker is gone; later rows are not processed.
	q.Enqueue(testRow(99))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, q.Len())
}

func TestWriter_StampsRowsWithoutTimestamp(t *testing.T) {
	q := NewQueue()
	s := &recordingSender{}
	w := NewWriter(q, s, WriterConfig{FlushInterval: time.Hour, PollWait: 5 * time.Millisecond})
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	explicit := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	q.Enqueue(Row{Table: "t", Columns: map[string]any{"v": 1}, At: explicit})
	q.Enqueue(Row{Table: "t", Columns: map[string]any{"v": 2}})

	w.Start()
	w.Close()

	require.Len(t, s.stamps, 2)
	assert.Equal(t, explicit, s.stamps[0])
	assert.Equal(t, fixed, s.stamps[1])
}

func TestWriter_RejectedRowIsDropped(t *testing.T) {
	q := NewQueue()
	s := &recordingSender{writeErr: func(r Row) error {
		if r.Table == "bad" {
			return errors.New("unsupported column type")
		}
		return nil
	}}
	w := NewWriter(q, s, WriterConfig{FlushInterval: time.Hour, PollWait: 5 * time.Millisecond})

	q.Enqueue(testRow(1))
	q.Enqueue(Row{Table: "bad"})
	q.Enqueue(testRow(2))

	w.Start()
	w.Close()

	stats := w.Stats()
	assert.Equal(t, uint64(2), stats.Written)
	assert.Equal(t, uint64(1), stats.Dropped)
	require.Len(t, s.flushedBatches(), 1)
	assert.Len(t, s.flushedBatches()[0], 2)
}

func TestWriter_FailedFlushDropsBufferedRows(t *testing.T) {
	q := NewQueue()
	s := &recordingSender{flushErr: errors.New("connection reset")}
	w := NewWriter(q, s, WriterConfig{Watermark: 3, FlushInterval: time.Hour, PollWait: 5 * time.Millisecond})

	for i := 0; i < 4; i++ {
		q.Enqueue(testRow(i))
	}
	w.Start()
	w.Close()

	stats := w.Stats()
	assert.Equal(t, uint64(4), stats.Written)
	assert.Equal(t, uint64(4), stats.Dropped)
	assert.Equal(t, uint64(2), stats.Flushes)
}

func TestWriter_CloseWithoutStart(t *testing.T) {
	w := NewWriter(NewQueue(), &recordingSender{}, WriterConfig{})
	done := make(chan struct{})
	go func() {
		w.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on a writer that never started")
	}
}

func TestWriter_StartAfterStopIsNoop(t *testing.T) {
	sender := &recordingSender{}
	w := NewWriter(NewQueue(), sender, WriterConfig{PollWait: 10 * time.Millisecond})
	w.Stop()
	w.Start()

	done := make(chan struct{})
	go func() {
		w.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait blocked on a writer started after Stop")
	}
}

package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhaopengme/statsbot/pkg/botapi"
)

type fakeSource struct {
	batches  [][]int
	errs     []error
	offsets  []int
	timeouts []time.Duration
	call     int
}

func (f *fakeSource) GetUpdates(ctx context.Context, offset int, timeout time.Duration) ([]botapi.RawUpdate, error) {
	f.offsets = append(f.offsets, offset)
	f.timeouts = append(f.timeouts, timeout)
	i := f.call
	f.call++

	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.batches) {
		return nil, nil
	}
	var out []botapi.RawUpdate
	for _, id := range f.batches[i] {
		out = append(out, botapi.RawUpdate{UpdateID: id})
	}
	return out, nil
}

func TestCursor_ZeroValue(t *testing.T) {
	var c Cursor
	_, set := c.LastSeen()
	assert.False(t, set)
	assert.Equal(t, 0, c.Offset())
}

func TestCursor_NeverMovesBackwards(t *testing.T) {
	var c Cursor
	c.Advance(10)
	c.Advance(5)
	last, set := c.LastSeen()
	require.True(t, set)
	assert.Equal(t, 10, last)
	assert.Equal(t, 11, c.Offset())
}

func TestFetchBatch_AdvancesCursor(t *testing.T) {
	src := &fakeSource{batches: [][]int{{101, 102}, {}}}
	p := NewLongPoller(src, 30*time.Second, time.Second)

	updates, err := p.FetchBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, 101, updates[0].UpdateID)
	assert.Equal(t, 102, updates[1].UpdateID)

	cur := p.Cursor()
	last, _ := cur.LastSeen()
	assert.Equal(t, 102, last)
	assert.Equal(t, 103, cur.Offset())

	updates, err = p.FetchBatch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, updates)

	// First request omits the offset, second carries last_seen + 1.
	assert.Equal(t, []int{0, 103}, src.offsets)
	assert.Equal(t, 30*time.Second, src.timeouts[0])
}

func TestFetchBatch_EmptyLeavesCursor(t *testing.T) {
	src := &fakeSource{batches: [][]int{{5}, {}, {}}}
	p := NewLongPoller(src, time.Second, 0)

	for i := 0; i < 3; i++ {
		_, err := p.FetchBatch(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, []int{0, 6, 6}, src.offsets)
}

func TestFetchBatch_CursorIsMaxSeen(t *testing.T) {
	batches := [][]int{{1, 2, 3}, {4}, {10, 11}, {12, 15}}
	src := &fakeSource{batches: batches}
	p := NewLongPoller(src, time.Second, 0)

	maxSeen := 0
	for _, b := range batches {
		_, err := p.FetchBatch(context.Background())
		require.NoError(t, err)
		for _, id := range b {
			maxSeen = max(maxSeen, id)
		}
		last, _ := p.Cursor().LastSeen()
		assert.Equal(t, maxSeen, last)
	}
	assert.Equal(t, []int{0, 4, 5, 12}, src.offsets)
}

func TestLongPoller_CursorCopyIsReadable(t *testing.T) {
	src := &fakeSource{batches: [][]int{{101, 102}}}
	p := NewLongPoller(src, time.Second, 0)

	_, err := p.FetchBatch(context.Background())
	require.NoError(t, err)

	last, set := p.Cursor().LastSeen()
	require.True(t, set)
	assert.Equal(t, 102, last)
	assert.Equal(t, 103, p.Cursor().Offset())
}

func TestFetchBatch_ErrorPropagatesAndKeepsCursor(t *testing.T) {
	boom := errors.New("network down")
	src := &fakeSource{
		batches: [][]int{{7}, nil, {8}},
		errs:    []error{nil, boom, nil},
	}
	p := NewLongPoller(src, time.Second, 0)

	_, err := p.FetchBatch(context.Background())
	require.NoError(t, err)

	_, err = p.FetchBatch(context.Background())
	require.ErrorIs(t, err, boom)

	_, err = p.FetchBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 8, 8}, src.offsets)
}

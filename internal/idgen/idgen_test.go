package idgen

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestNew_NodeIDRange(t *testing.T) {
	for _, node := range []int{-1, MaxNodeID + 1, 5000} {
		_, err := New(node)
		assert.ErrorIs(t, err, ErrInvalidNodeID, "node %d", node)
	}
	for _, node := range []int{0, 1, MaxNodeID} {
		g, err := New(node)
		require.NoError(t, err)
		assert.Equal(t, node, g.NodeID())
	}
}

func TestNext_StrictlyIncreasingSequential(t *testing.T) {
	g, err := New(1)
	require.NoError(t, err)

	var last int64 = -1
	for i := 0; i < 20000; i++ {
		id, err := g.Next()
		require.NoError(t, err)
		require.Greater(t, id, last)
		last = id
	}
}

func TestNext_ConcurrentDistinct(t *testing.T) {
	g, err := New(7)
	require.NoError(t, err)

	const workers = 8
	const perWorker = 1250

	results := make([][]int64, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ids := make([]int64, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				id, err := g.Next()
				if err != nil {
					t.Errorf("Next: %v", err)
					return
				}
				ids = append(ids, id)
			}
			results[w] = ids
		}(w)
	}
	wg.Wait()

	seen := make(map[int64]struct{}, workers*perWorker)
	for _, ids := range results {
		for i, id := range ids {
			if i > 0 {
				assert.Greater(t, id, ids[i-1], "ids issued to one goroutine must increase")
			}
			seen[id] = struct{}{}
		}
	}
	assert.Len(t, seen, workers*perWorker)
}

func TestNextID_DecimalString(t *testing.T) {
	g, err := New(3)
	require.NoError(t, err)

	s, err := g.NextID()
	require.NoError(t, err)
	id, err := strconv.ParseInt(s, 10, 64)
	require.NoError(t, err)
	assert.Positive(t, id)
	assert.Equal(t, 3, g.Decode(id).NodeID)
}

func TestNext_ClockMovedBackwards(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	g, err := New(1, WithClock(clock.Now))
	require.NoError(t, err)

	first, err := g.Next()
	require.NoError(t, err)

	clock.Set(start.Add(-5 * time.Millisecond))
	_, err = g.Next()
	require.ErrorIs(t, err, ErrClockMovedBackwards)

	clock.Set(start.Add(time.Millisecond))
	next, err := g.Next()
	require.NoError(t, err)
	assert.Greater(t, next, first)
}

func TestNext_SequenceOverflowWaitsForNextMillisecond(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	var sleeps []time.Duration
	g, err := New(2,
		WithClock(clock.Now),
		WithSleep(func(d time.Duration) {
			sleeps = append(sleeps, d)
			clock.Advance(d)
		}),
	)
	require.NoError(t, err)

	var last int64
	for i := 0; i <= maxSequence; i++ {
		id, err := g.Next()
		require.NoError(t, err)
		last = id
	}
	p := g.Decode(last)
	assert.Equal(t, maxSequence, p.Sequence)
	assert.Empty(t, sleeps)

	id, err := g.Next()
	require.NoError(t, err)
	assert.Greater(t, id, last)
	p = g.Decode(id)
	assert.Equal(t, 0, p.Sequence)
	assert.True(t, p.Time.Equal(start.Add(time.Millisecond)))
	require.Len(t, sleeps, 1)
	assert.LessOrEqual(t, sleeps[0], time.Millisecond)
}

func TestNext_ClockBackwardsDuringOverflowWait(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	g, err := New(2,
		WithClock(clock.Now),
		WithSleep(func(time.Duration) { clock.Set(start.Add(-time.Second)) }),
	)
	require.NoError(t, err)

	issued := make(map[int64]struct{})
	for i := 0; i <= maxSequence; i++ {
		id, err := g.Next()
		require.NoError(t, err)
		issued[id] = struct{}{}
	}

	_, err = g.Next()
	require.ErrorIs(t, err, ErrClockMovedBackwards)

	// Once the clock is back at the exhausted millisecond, the generator must
	// not reuse a sequence number from it.
	clock.Set(start)
	_, err = g.Next()
	require.ErrorIs(t, err, ErrClockMovedBackwards)

	clock.Set(start.Add(time.Millisecond))
	id, err := g.Next()
	require.NoError(t, err)
	assert.NotContains(t, issued, id)
}

func TestNext_BeforeEpoch(t *testing.T) {
	g, err := New(1, WithClock(func() time.Time { return DefaultEpoch.Add(-time.Hour) }))
	require.NoError(t, err)

	_, err = g.Next()
	assert.ErrorIs(t, err, ErrTimestampOverflow)
}

func TestDecode_Layout(t *testing.T) {
	epoch := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	at := epoch.Add(1500 * time.Millisecond)
	g, err := New(MaxNodeID, WithEpoch(epoch), WithClock(func() time.Time { return at }))
	require.NoError(t, err)

	id, err := g.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(1500)<<22|int64(MaxNodeID)<<12, id)

	p := g.Decode(id)
	assert.Equal(t, MaxNodeID, p.NodeID)
	assert.Equal(t, 0, p.Sequence)
	assert.True(t, p.Time.Equal(at))
}

func TestNext_DistinctNodesNeverCollide(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return at }
	a, err := New(1, WithClock(clock))
	require.NoError(t, err)
	b, err := New(2, WithClock(clock))
	require.NoError(t, err)

	seen := make(map[int64]struct{})
	for i := 0; i < 1000; i++ {
		x, err := a.Next()
		require.NoError(t, err)
		y, err := b.Next()
		require.NoError(t, err)
		seen[x] = struct{}{}
		seen[y] = struct{}{}
	}
	assert.Len(t, seen, 2000)
}

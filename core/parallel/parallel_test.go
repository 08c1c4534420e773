package parallel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkers(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		items     int
		want      int
	}{
		{"explicit", 4, 10, 4},
		{"capped by items", 8, 3, 3},
		{"single", 1, 100, 1},
		{"no items keeps request", 4, 0, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Workers(tt.requested, tt.items))
		})
	}
	assert.GreaterOrEqual(t, Workers(0, 1000), 1)
}

func TestParallelizeCoversEveryItemOnce(t *testing.T) {
	const items = 103
	seen := make([]int32, items)
	Parallelize(items, 4, func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&seen[i], 1)
		}
	})
	for i, c := range seen {
		assert.Equal(t, int32(1), c, "item %d", i)
	}
}

func TestParallelizeWithThresholdSequential(t *testing.T) {
	calls := 0
	ParallelizeWithThreshold(10, 100, 8, func(start, end int) {
		calls++
		assert.Equal(t, 0, start)
		assert.Equal(t, 10, end)
	})
	assert.Equal(t, 1, calls)

	calls = 0
	ParallelizeWithThreshold(1000, 10, 1, func(start, end int) { calls++ })
	assert.Equal(t, 1, calls)
}

func TestForEachSequentialOrder(t *testing.T) {
	var order []int
	err := ForEach(context.Background(), 6, 1, func(_ context.Context, i int) error {
		order = append(order, i)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, order)
}

func TestForEachIndexSlots(t *testing.T) {
	const n = 50
	out := make([]int, n)
	err := ForEach(context.Background(), n, 8, func(_ context.Context, i int) error {
		out[i] = i * i
		return nil
	})
	require.NoError(t, err)
	for i := range out {
		assert.Equal(t, i*i, out[i])
	}
}

func TestForEachBoundsConcurrency(t *testing.T) {
	var running, peak int32
	var mu sync.Mutex
	err := ForEach(context.Background(), 40, 3, func(_ context.Context, _ int) error {
		cur := atomic.AddInt32(&running, 1)
		mu.Lock()
		if cur > peak {
			peak = cur
		}
		mu.Unlock()
		defer atomic.AddInt32(&running, -1)
		for j := 0; j < 1000; j++ {
			_ = j * j
		}
		return nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak, int32(3))
}

func TestForEachStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	var ran int32
	err := ForEach(context.Background(), 100, 1, func(_ context.Context, i int) error {
		atomic.AddInt32(&ran, 1)
		if i == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(3), ran, "indices after the failure are not dispatched")
}

func TestForEachParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var ran int32
	err := ForEach(ctx, 10, 2, func(_ context.Context, _ int) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), ran)
}

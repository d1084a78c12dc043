package speculative_test

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/exascience/accel/speculative"
)

func TestAnd(t *testing.T) {
	yes := func() bool { return true }
	no := func() bool { return false }
	require.True(t, speculative.And())
	require.True(t, speculative.And(yes))
	require.False(t, speculative.And(no))
	require.True(t, speculative.And(yes, yes, yes, yes, yes))
	require.False(t, speculative.And(yes, yes, no, yes, yes))
	require.False(t, speculative.And(no, yes, yes))
}

func TestRangeAnd(t *testing.T) {
	data := make([]int, 100000)
	for i := range data {
		data[i] = i
	}
	sorted := func(low, high int) bool {
		for i := max(low, 1); i < high; i++ {
			if data[i] < data[i-1] {
				return false
			}
		}
		return true
	}
	require.True(t, speculative.RangeAnd(0, len(data), 0, sorted))
	require.True(t, speculative.RangeAnd(0, len(data), 7, sorted))
	data[5000] = -1
	require.False(t, speculative.RangeAnd(0, len(data), 0, sorted))
	require.False(t, speculative.RangeAnd(0, len(data), 1, sorted))
}

func TestRangeAndCoversRange(t *testing.T) {
	var sum atomic.Int64
	require.True(t, speculative.RangeAnd(3, 1003, 9, func(low, high int) bool {
		for i := low; i < high; i++ {
			sum.Add(int64(i))
		}
		return true
	}))
	require.Equal(t, int64(1002*1003/2-3), sum.Load())
}

func TestPanics(t *testing.T) {
	require.Panics(t, func() {
		speculative.And(func() bool { return true }, func() bool { panic("boom") })
	})
	require.Panics(t, func() {
		speculative.RangeAnd(0, 10, -1, func(int, int) bool { return true })
	})
}

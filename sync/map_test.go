package sync_test

import (
	"sort"
	stdsync "sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/exascience/accel/sync"
)

type intKey int

func (k intKey) Hash() uint64 { return uint64(k) * 0x9e3779b97f4a7c15 }

func TestLoadOrStore(t *testing.T) {
	m := sync.NewMap[intKey, string](4)

	_, ok := m.Load(1)
	require.False(t, ok)

	actual, loaded := m.LoadOrStore(1, "one")
	require.False(t, loaded)
	require.Equal(t, "one", actual)

	actual, loaded = m.LoadOrStore(1, "uno")
	require.True(t, loaded)
	require.Equal(t, "one", actual)

	value, ok := m.Load(1)
	require.True(t, ok)
	require.Equal(t, "one", value)
	require.Equal(t, 1, m.Len())
}

func TestLoadOrComputeConcurrent(t *testing.T) {
	m := sync.NewMap[intKey, *int](0)
	var winners atomic.Int32
	results := make([]*int, 64)

	var wg stdsync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			actual, loaded := m.LoadOrCompute(7, func() *int { v := i; return &v })
			if !loaded {
				winners.Add(1)
			}
			results[i] = actual
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), winners.Load())
	for _, r := range results {
		require.Same(t, results[0], r)
	}
}

func TestRange(t *testing.T) {
	m := sync.NewMap[intKey, int](3)
	for i := 0; i < 10; i++ {
		m.LoadOrStore(intKey(i), i*i)
	}
	var keys []int
	m.Range(func(key intKey, value int) bool {
		require.Equal(t, int(key)*int(key), value)
		keys = append(keys, int(key))
		return true
	})
	sort.Ints(keys)
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, keys)

	visited := 0
	m.Range(func(intKey, int) bool {
		visited++
		return false
	})
	require.Equal(t, 1, visited)
}

/*
Package sync provides synchronization primitives similar to the sync
package of Go's standard library, however here with a focus on
parallel performance rather than concurrency. So far, this package
only provides support for a parallel map, which the kernel cache uses
to store one entry per algorithm key without serializing lookups of
unrelated keys. For other synchronization primitivies, such as
condition variables, mutual exclusion locks, object pools, or atomic
memory primitives, please use the standard library.
*/
package sync

import (
	"runtime"
	"sync"
)

/*
A Hasher represents an object that has a hash value, which is needed
by Map.

If Go would allow access to the predefined hash functions for Go
types, this interface would not be needed.
*/
type Hasher interface {
	Hash() uint64
}

// A Key is a comparable Hasher that can be used as a key in a Map.
type Key interface {
	comparable
	Hasher
}

/*
A Split is a partial map that belongs to a larger Map, which can be
individually locked. Its enclosed map can then be individually
accessed without blocking accesses to other splits.
*/
type Split[K Key, V any] struct {
	sync.RWMutex
	Map map[K]V
}

/*
A Map is a parallel map that consists of several split maps that can
be individually locked and accessed.

The zero Map is not valid.
*/
type Map[K Key, V any] struct {
	splits []Split[K, V]
}

/*
NewMap returns a map with size splits.

If size is <= 0, runtime.GOMAXPROCS(0) is used instead.
*/
func NewMap[K Key, V any](size int) *Map[K, V] {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	splits := make([]Split[K, V], size)
	for i := range splits {
		splits[i].Map = make(map[K]V)
	}
	return &Map[K, V]{splits}
}

/*
Split retrieves the split for a particular key.

The split must be locked/unlocked properly by user programs to safely
access its contents. In many cases, it is easier to use one of the
high-level methods, like Load, LoadOrStore, and LoadOrCompute, which
implicitly take care of proper locking.
*/
func (m *Map[K, V]) Split(key K) *Split[K, V] {
	splits := m.splits
	return &splits[key.Hash()%uint64(len(splits))]
}

/*
Load returns the value stored in the map for a key, or the zero value
if no value is present. The ok result indicates whether value was
found in the map.
*/
func (m *Map[K, V]) Load(key K) (value V, ok bool) {
	split := m.Split(key)
	split.RLock()
	value, ok = split.Map[key]
	split.RUnlock()
	return
}

/*
LoadOrStore returns the existing value for the key if
present. Otherwise, it stores and returns the given value. The loaded
result is true if the value was loaded, false if stored.
*/
func (m *Map[K, V]) LoadOrStore(key K, value V) (actual V, loaded bool) {
	split := m.Split(key)
	split.RLock()
	actual, loaded = split.Map[key]
	split.RUnlock()
	if loaded {
		return
	}
	split.Lock()
	if actual, loaded = split.Map[key]; !loaded {
		actual = value
		split.Map[key] = value
	}
	split.Unlock()
	return
}

/*
LoadOrCompute returns the existing value for the key if
present. Otherwise, it calls computer, and then stores and returns the
computed value. The loaded result is true if the value was loaded,
false if stored.

The computer function is invoked either zero times or once. While
computer is executing no locks related to this map are being held.

The computed value may not be stored and returned, since a parallel
thread may have successfully stored a value for the key in the
meantime. In that case, the value stored by the parallel thread is
returned instead, so computer must be cheap and free of side
effects.
*/
func (m *Map[K, V]) LoadOrCompute(key K, computer func() V) (actual V, loaded bool) {
	split := m.Split(key)
	split.RLock()
	actual, loaded = split.Map[key]
	split.RUnlock()
	if loaded {
		return
	}
	value := computer()
	split.Lock()
	if actual, loaded = split.Map[key]; !loaded {
		actual = value
		split.Map[key] = actual
	}
	split.Unlock()
	return
}

func (split *Split[K, V]) splitRange(f func(key K, value V) bool) bool {
	split.RLock()
	defer split.RUnlock()
	for key, value := range split.Map {
		if !f(key, value) {
			return false
		}
	}
	return true
}

/*
Range calls f sequentially for each key and value present in the
map. If f returns false, Range stops the iteration.

Range does not necessarily correspond to any consistent snapshot of
the Map's contents: no key will be visited more than once, but if the
value for any key is stored concurrently, Range may reflect any
mapping for that key from any point during the Range call.

f must not modify the map.
*/
func (m *Map[K, V]) Range(f func(key K, value V) bool) {
	for i := range m.splits {
		if !m.splits[i].splitRange(f) {
			return
		}
	}
}

// Len returns the number of entries in the map.
func (m *Map[K, V]) Len() (n int) {
	for i := range m.splits {
		split := &m.splits[i]
		split.RLock()
		n += len(split.Map)
		split.RUnlock()
	}
	return
}

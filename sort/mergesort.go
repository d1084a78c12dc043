package sort

import (
	"slices"
	"sync"

	"github.com/exascience/accel/parallel"
)

const msortGrainSize = 0x3000

// binarySearchEq returns the first index in src[p:r+1] whose element
// does not order before x.
func binarySearchEq[T any](x T, src []T, less func(x, y T) bool, p, r int) int {
	low, high := p, r+1
	if low > high {
		return low
	}
	for low < high {
		mid := (low + high) / 2
		if !less(src[mid], x) {
			high = mid
		} else {
			low = mid + 1
		}
	}
	return high
}

// binarySearchNeq returns the first index in src[p:r+1] whose element x
// orders before.
func binarySearchNeq[T any](x T, src []T, less func(x, y T) bool, p, r int) int {
	low, high := p, r+1
	if low > high {
		return low
	}
	for low < high {
		mid := (low + high) / 2
		if less(x, src[mid]) {
			high = mid
		} else {
			low = mid + 1
		}
	}
	return high
}

// sMerge merges the sorted runs src[p1:r1+1] and src[p2:r2+1] into dst
// from index p3 on.
func sMerge[T any](src []T, less func(x, y T) bool, p1, r1, p2, r2 int, dst []T, p3 int) {
	for {
		if p2 > r2 {
			copy(dst[p3:], src[p1:r1+1])
			return
		}

		q1 := p1
		for (p1 <= r1) && !less(src[p2], src[p1]) {
			p1++
		}
		p3 += copy(dst[p3:], src[q1:p1])

		if p1 > r1 {
			copy(dst[p3:], src[p2:r2+1])
			return
		}

		q2 := p2
		for (p2 <= r2) && less(src[p2], src[p1]) {
			p2++
		}
		p3 += copy(dst[p3:], src[q2:p2])
	}
}

func pMerge[T any](src []T, less func(x, y T) bool, p1, r1, p2, r2 int, dst []T, p3 int) {
	n1 := r1 - p1 + 1
	n2 := r2 - p2 + 1
	if (n1 + n2) < msortGrainSize {
		sMerge(src, less, p1, r1, p2, r2, dst, p3)
		return
	}
	if n1 > n2 {
		if n1 == 0 {
			return
		}
		q1 := (p1 + r1) / 2
		q2 := binarySearchEq(src[q1], src, less, p2, r2)
		q3 := p3 + (q1 - p1) + (q2 - p2)
		dst[q3] = src[q1]
		parallel.Do(
			func() { pMerge(src, less, p1, q1-1, p2, q2-1, dst, p3) },
			func() { pMerge(src, less, q1+1, r1, q2, r2, dst, q3+1) },
		)
	} else {
		if n2 == 0 {
			return
		}
		q2 := (p2 + r2) / 2
		q1 := binarySearchNeq(src[q2], src, less, p1, r1)
		q3 := p3 + (q1 - p1) + (q2 - p2)
		dst[q3] = src[q2]
		parallel.Do(
			func() { pMerge(src, less, p1, q1-1, p2, q2-1, dst, p3) },
			func() { pMerge(src, less, q1, r1, q2+1, r2, dst, q3+1) },
		)
	}
}

// cilksort is a parallel merge sort. It sorts quarters in parallel,
// merges them pairwise into a temporary slice, and merges the two
// halves back.
func cilksort[T any](data []T, less func(x, y T) bool) {
	// See https://en.wikipedia.org/wiki/Introduction_to_Algorithms and
	// https://www.clear.rice.edu/comp422/lecture-notes/ for details on the algorithm.
	cmp := compare(less)
	size := len(data)
	if size < msortGrainSize {
		slices.SortStableFunc(data, cmp)
		return
	}
	var temp []T
	var allocated sync.WaitGroup
	allocated.Add(1)
	go func() {
		defer allocated.Done()
		temp = make([]T, size)
	}()
	var pSort func(int, int)
	pSort = func(index, size int) {
		if size < msortGrainSize {
			slices.SortStableFunc(data[index:index+size], cmp)
		} else {
			q1 := size / 4
			q2 := q1 + q1
			q3 := q2 + q1
			parallel.Do(
				func() { pSort(index, q1) },
				func() { pSort(index+q1, q1) },
				func() { pSort(index+q2, q1) },
				func() { pSort(index+q3, size-q3) },
			)
			allocated.Wait()
			parallel.Do(
				func() { pMerge(data, less, index, index+q1-1, index+q1, index+q2-1, temp, index) },
				func() { pMerge(data, less, index+q2, index+q3-1, index+q3, index+size-1, temp, index+q2) },
			)
			pMerge(temp, less, index, index+q2-1, index+q2, index+size-1, data, index)
		}
	}
	pSort(0, size)
}

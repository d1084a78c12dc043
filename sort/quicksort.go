package sort

import (
	"slices"

	"github.com/exascience/accel/parallel"
)

const qsortGrainSize = 0x500

func medianOfThree[T any](data []T, less func(x, y T) bool, l, m, r int) int {
	if less(data[l], data[m]) {
		if less(data[m], data[r]) {
			return m
		} else if less(data[l], data[r]) {
			return r
		}
	} else if less(data[r], data[m]) {
		return m
	} else if less(data[r], data[l]) {
		return r
	}
	return l
}

func pseudoMedianOfNine[T any](data []T, less func(x, y T) bool) int {
	size := len(data)
	offset := size / 8
	return medianOfThree(data, less,
		medianOfThree(data, less, 0, offset, offset*2),
		medianOfThree(data, less, offset*3, offset*4, offset*5),
		medianOfThree(data, less, offset*6, offset*7, size-1),
	)
}

// quicksort is a parallel quicksort. Partitions below the grain size
// are sorted serially.
func quicksort[T any](data []T, less func(x, y T) bool) {
	cmp := compare(less)
	var pSort func([]T)
	pSort = func(data []T) {
		size := len(data)
		if size < qsortGrainSize {
			slices.SortFunc(data, cmp)
			return
		}
		if m := pseudoMedianOfNine(data, less); m > 0 {
			data[0], data[m] = data[m], data[0]
		}
		i, j := 0, size
	outer:
		for {
			for {
				j--
				if !less(data[0], data[j]) {
					break
				}
			}
			for {
				if i == j {
					break outer
				}
				i++
				if !less(data[i], data[0]) {
					break
				}
			}
			if i == j {
				break outer
			}
			data[i], data[j] = data[j], data[i]
		}
		data[j], data[0] = data[0], data[j]
		parallel.Do(
			func() { pSort(data[:j]) },
			func() { pSort(data[j+1:]) },
		)
	}
	pSort(data)
}

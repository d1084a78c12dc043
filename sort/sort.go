/*
Package sort provides sorting algorithms that run on the host or on an
accelerator device, depending on the size of the input and the
execution context.

Sort and StableSort order a slice in place by a comparison functor,
which must be a strict weak ordering. StableSort keeps equal elements
in their original order; Sort does so only on the device, where both
use the same stable algorithm.

On the host cores, Sort uses a parallel quicksort, and StableSort a
parallel merge sort, also known as cilksort. On the device, every
block of one wave of work-items is sorted in local memory with an
odd-even transposition sort, and adjacent sorted runs are then merged
pairwise, doubling the run width with every launch, until one run is
left. Each element of a merge finds its output position by a binary
search in the other run.
*/
package sort

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/exascience/accel/control"
	"github.com/exascience/accel/dispatch"
	"github.com/exascience/accel/functional"
	"github.com/exascience/accel/speculative"
)

const serialCutoff = 10

// compare turns a less function into a three-way comparison for the
// slices package.
func compare[T any](less func(x, y T) bool) func(x, y T) int {
	return func(x, y T) int {
		switch {
		case less(x, y):
			return -1
		case less(y, x):
			return 1
		default:
			return 0
		}
	}
}

/*
IsSorted determines in parallel whether data is already sorted by
less. It attempts to terminate early when the return value is false.
*/
func IsSorted[S ~[]T, T any](data S, less functional.Compare[T]) bool {
	xs, lt := []T(data), less.Fn
	size := len(xs)
	if size < qsortGrainSize {
		return slices.IsSortedFunc(xs, compare(lt))
	}
	for i := 1; i < serialCutoff; i++ {
		if lt(xs[i], xs[i-1]) {
			return false
		}
	}
	var done atomic.Bool
	defer done.Store(true)
	return speculative.RangeAnd(serialCutoff, size, 0, func(low, high int) bool {
		for i := low; i < high; i++ {
			if i%1024 == 0 && done.Load() {
				return false
			}
			if lt(xs[i], xs[i-1]) {
				return false
			}
		}
		return true
	})
}

// Sort sorts data in place by less, using the default execution
// context.
func Sort[S ~[]T, T any](data S, less functional.Compare[T]) error {
	return SortWithControl(context.Background(), control.Default(), data, less)
}

// SortWithControl sorts data in place by less, using the execution
// context ctl. If the device path fails, data is left unchanged.
func SortWithControl[S ~[]T, T any](ctx context.Context, ctl *control.Control, data S, less functional.Compare[T]) error {
	xs := []T(data)
	if len(xs) <= 1 {
		return nil
	}
	ctx, cancel := ctl.WithTimeout(ctx)
	defer cancel()
	_, err := dispatch.Run[struct{}](ctx, ctl.Policy(dispatch.Sort), dispatch.Sort, len(xs), dispatch.Funcs[struct{}]{
		OnSerial: func(context.Context) (struct{}, error) {
			slices.SortFunc(xs, compare(less.Fn))
			return struct{}{}, nil
		},
		OnMultiCore: func(context.Context) (struct{}, error) {
			if !IsSorted(xs, less) {
				quicksort(xs, less.Fn)
			}
			return struct{}{}, nil
		},
		OnDevice: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, deviceSort(ctx, ctl, xs, less)
		},
	}, ctl)
	return err
}

// StableSort sorts data in place by less, keeping equal elements in
// their original order, using the default execution context.
func StableSort[S ~[]T, T any](data S, less functional.Compare[T]) error {
	return StableSortWithControl(context.Background(), control.Default(), data, less)
}

// StableSortWithControl sorts data in place by less, keeping equal
// elements in their original order, using the execution context ctl.
// The host multi-core path needs a temporary copy of data.
func StableSortWithControl[S ~[]T, T any](ctx context.Context, ctl *control.Control, data S, less functional.Compare[T]) error {
	xs := []T(data)
	if len(xs) <= 1 {
		return nil
	}
	ctx, cancel := ctl.WithTimeout(ctx)
	defer cancel()
	_, err := dispatch.Run[struct{}](ctx, ctl.Policy(dispatch.Sort), dispatch.Sort, len(xs), dispatch.Funcs[struct{}]{
		OnSerial: func(context.Context) (struct{}, error) {
			slices.SortStableFunc(xs, compare(less.Fn))
			return struct{}{}, nil
		},
		OnMultiCore: func(context.Context) (struct{}, error) {
			cilksort(xs, less.Fn)
			return struct{}{}, nil
		},
		OnDevice: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, deviceSort(ctx, ctl, xs, less)
		},
	}, ctl)
	return err
}

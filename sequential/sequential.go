// Package sequential provides sequential implementations of the
// functions provided by the parallel package, and of the algorithms
// that the device kernels implement. The accel algorithms use this
// package as their serial execution path for small inputs, and the
// tests use it as the reference against which the parallel and
// device paths are checked.
package sequential

import (
	"fmt"

	"github.com/exascience/accel/internal"
)

// Do receives zero or more thunks and executes them sequentially.
func Do(thunks ...func()) {
	for _, thunk := range thunks {
		thunk()
	}
}

// Range receives a range, a batch count n, and a range function f,
// divides the range into batches, and invokes the range function for
// each of these batches sequentially, covering the half-open interval
// from low to high, including low but excluding high.
//
// The range is specified by a low and high integer, with low <=
// high. The batches are determined by dividing up the size of the
// range (high - low) by n. If n is 0, a reasonable default is used
// that takes runtime.GOMAXPROCS(0) into account.
//
// Range panics if high < low, or if n < 0.
func Range(low, high, n int, f func(low, high int)) {
	var recur func(int, int, int)
	recur = func(low, high, n int) {
		switch {
		case n == 1:
			f(low, high)
		case n > 1:
			batchSize := ((high - low - 1) / n) + 1
			half := n / 2
			mid := low + batchSize*half
			if mid >= high {
				f(low, high)
				return
			}
			recur(low, mid, half)
			recur(mid, high, n-half)
		default:
			panic(fmt.Sprintf("invalid number of batches: %v", n))
		}
	}
	recur(low, high, internal.ComputeNofBatches(low, high, n))
}

// RangeReduce receives a range, a batch count, a range reducer reduce,
// and a pair reducer pair, divides the range into batches, and
// invokes the range reducer for each of these batches sequentially,
// covering the half-open interval from low to high, including low but
// excluding high. The results of the range reducer invocations are
// then combined by repeated invocations of the pair reducer.
//
// RangeReduce panics if high < low, or if n < 0.
func RangeReduce[T any](
	low, high, n int,
	reduce func(low, high int) T,
	pair func(x, y T) T,
) T {
	var recur func(int, int, int) T
	recur = func(low, high, n int) T {
		switch {
		case n == 1:
			return reduce(low, high)
		case n > 1:
			batchSize := ((high - low - 1) / n) + 1
			half := n / 2
			mid := low + batchSize*half
			if mid >= high {
				return reduce(low, high)
			}
			left := recur(low, mid, half)
			right := recur(mid, high, n-half)
			return pair(left, right)
		default:
			panic(fmt.Sprintf("invalid number of batches: %v", n))
		}
	}
	return recur(low, high, internal.ComputeNofBatches(low, high, n))
}

// Fold combines init and all elements of data from left to right:
// op(...op(op(init, data[0]), data[1])..., data[n-1]).
func Fold[T any](data []T, init T, op func(x, y T) T) T {
	acc := init
	for _, x := range data {
		acc = op(acc, x)
	}
	return acc
}

// TransformReduce applies f to every element of data and folds the
// results from left to right, starting with init.
func TransformReduce[T, U any](data []T, init U, f func(T) U, op func(x, y U) U) U {
	acc := init
	for _, x := range data {
		acc = op(acc, f(x))
	}
	return acc
}

// InclusiveScan stores in out[i] the fold of in[0..i] under op. The
// output may alias the input. InclusiveScan returns the number of
// elements written.
func InclusiveScan[T any](in, out []T, op func(x, y T) T) int {
	if len(in) == 0 {
		return 0
	}
	acc := in[0]
	out[0] = acc
	for i := 1; i < len(in); i++ {
		acc = op(acc, in[i])
		out[i] = acc
	}
	return len(in)
}

// ExclusiveScan stores in out[i] the fold of init and in[0..i), so
// that out[0] is init. The output may alias the input. ExclusiveScan
// returns the number of elements written.
func ExclusiveScan[T any](in, out []T, init T, op func(x, y T) T) int {
	acc := init
	for i := 0; i < len(in); i++ {
		x := in[i]
		out[i] = acc
		acc = op(acc, x)
	}
	return len(in)
}

// Transform stores f(in[i]) in out[i] for every element of in.
func Transform[T, U any](in []T, out []U, f func(T) U) {
	for i, x := range in {
		out[i] = f(x)
	}
}

// TransformBinary stores f(in1[i], in2[i]) in out[i] for every element
// of in1.
func TransformBinary[T1, T2, U any](in1 []T1, in2 []T2, out []U, f func(T1, T2) U) {
	for i, x := range in1 {
		out[i] = f(x, in2[i])
	}
}

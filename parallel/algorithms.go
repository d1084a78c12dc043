package parallel

import "github.com/exascience/accel/internal"

// Reduce folds all elements of data with op on all host cores and
// combines the result with init, so that init enters the computation
// exactly once. Each batch is seeded with its own first element, which
// is why op must be associative, but no identity element is needed.
//
// The batch count n is interpreted as in Range.
func Reduce[T any](data []T, init T, n int, op func(x, y T) T) T {
	if len(data) == 0 {
		return init
	}
	result := RangeReduce(0, len(data), n, func(low, high int) T {
		acc := data[low]
		for i := low + 1; i < high; i++ {
			acc = op(acc, data[i])
		}
		return acc
	}, op)
	return op(init, result)
}

// TransformReduce applies f to every element of data and folds the
// results with op on all host cores, combining the result with init.
func TransformReduce[T, U any](data []T, init U, n int, f func(T) U, op func(x, y U) U) U {
	if len(data) == 0 {
		return init
	}
	result := RangeReduce(0, len(data), n, func(low, high int) U {
		acc := f(data[low])
		for i := low + 1; i < high; i++ {
			acc = op(acc, f(data[i]))
		}
		return acc
	}, op)
	return op(init, result)
}

// Transform stores f(in[i]) in out[i] for every element of in, on all
// host cores.
func Transform[T, U any](in []T, out []U, n int, f func(T) U) {
	Range(0, len(in), n, func(low, high int) {
		for i := low; i < high; i++ {
			out[i] = f(in[i])
		}
	})
}

// TransformBinary stores f(in1[i], in2[i]) in out[i] for every element
// of in1, on all host cores.
func TransformBinary[T1, T2, U any](in1 []T1, in2 []T2, out []U, n int, f func(T1, T2) U) {
	Range(0, len(in1), n, func(low, high int) {
		for i := low; i < high; i++ {
			out[i] = f(in1[i], in2[i])
		}
	})
}

// InclusiveScan stores in out[i] the fold of in[0..i] under op, on all
// host cores. The output may alias the input. InclusiveScan returns
// the number of elements written.
//
// The scan runs in two parallel passes: the first computes the total
// of every batch, the second rescans every batch seeded with the
// combined totals of all batches to its left.
func InclusiveScan[T any](in, out []T, n int, op func(x, y T) T) int {
	var zero T
	scan(in, out, zero, false, n, op)
	return len(in)
}

// ExclusiveScan stores in out[i] the fold of init and in[0..i), so
// that out[0] is init, on all host cores. The output may alias the
// input. ExclusiveScan returns the number of elements written.
func ExclusiveScan[T any](in, out []T, init T, n int, op func(x, y T) T) int {
	scan(in, out, init, true, n, op)
	return len(in)
}

func scan[T any](in, out []T, init T, exclusive bool, n int, op func(x, y T) T) {
	size := len(in)
	if size == 0 {
		return
	}
	batches := internal.ComputeNofBatches(0, size, n)
	batchSize := internal.CeilDiv(size, batches)
	batches = internal.CeilDiv(size, batchSize)

	totals := make([]T, batches)
	Range(0, batches, batches, func(low, high int) {
		for b := low; b < high; b++ {
			lo, hi := b*batchSize, min((b+1)*batchSize, size)
			acc := in[lo]
			for i := lo + 1; i < hi; i++ {
				acc = op(acc, in[i])
			}
			totals[b] = acc
		}
	})

	carries := make([]T, batches)
	hasCarry := make([]bool, batches)
	carry, has := init, exclusive
	for b := range totals {
		carries[b], hasCarry[b] = carry, has
		if has {
			carry = op(carry, totals[b])
		} else {
			carry, has = totals[b], true
		}
	}

	Range(0, batches, batches, func(low, high int) {
		for b := low; b < high; b++ {
			lo, hi := b*batchSize, min((b+1)*batchSize, size)
			switch {
			case exclusive:
				acc := carries[b]
				for i := lo; i < hi; i++ {
					x := in[i]
					out[i] = acc
					acc = op(acc, x)
				}
			case hasCarry[b]:
				acc := carries[b]
				for i := lo; i < hi; i++ {
					acc = op(acc, in[i])
					out[i] = acc
				}
			default:
				acc := in[lo]
				out[lo] = acc
				for i := lo + 1; i < hi; i++ {
					acc = op(acc, in[i])
					out[i] = acc
				}
			}
		}
	})
}

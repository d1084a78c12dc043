/*
Package reduce provides reduction algorithms that run on the host or on
an accelerator device, depending on the size of the input and the
execution context.

Reduce folds a slice with an associative binary functor, starting from
an init value that enters the computation exactly once. Small inputs
are folded sequentially, medium inputs on all host cores, and large
inputs on the device of the execution context, in two stages: every
work-group folds its share of the input into one block result, and the
host folds the block results in block order, starting from init.

On the device, each work-item folds the elements at its global id and
every global-size stride beyond it, and the partial results are then
combined in a tree. The order of combination therefore differs from a
left fold, and the functor must also be commutative for the result to
be independent of the path.

TransformReduce applies a unary functor to every element before
reducing.
*/
package reduce

import (
	"context"

	"github.com/exascience/accel"
	"github.com/exascience/accel/control"
	"github.com/exascience/accel/dispatch"
	"github.com/exascience/accel/functional"
	"github.com/exascience/accel/parallel"
	"github.com/exascience/accel/sequential"
)

// Reduce folds data with op, starting from init, using the default
// execution context.
func Reduce[S ~[]T, T any](data S, init T, op functional.Binary[T]) (T, error) {
	return ReduceWithControl(context.Background(), control.Default(), data, init, op)
}

// ReduceWithControl folds data with op, starting from init, using the
// execution context ctl. The result is op(...op(op(init, x0), x1)...,
// xn-1) up to reassociation, and init for empty data.
func ReduceWithControl[S ~[]T, T any](ctx context.Context, ctl *control.Control, data S, init T, op functional.Binary[T]) (T, error) {
	if len(data) == 0 {
		return init, nil
	}
	xs := []T(data)
	ctx, cancel := ctl.WithTimeout(ctx)
	defer cancel()
	return dispatch.Run[T](ctx, ctl.Policy(dispatch.Reduce), dispatch.Reduce, len(xs), dispatch.Funcs[T]{
		OnSerial: func(context.Context) (T, error) {
			return sequential.Fold(xs, init, op.Fn), nil
		},
		OnMultiCore: func(context.Context) (T, error) {
			return parallel.Reduce(xs, init, 0, op.Fn), nil
		},
		OnDevice: func(ctx context.Context) (T, error) {
			return deviceReduce(ctx, ctl, xs, init, op)
		},
	}, ctl)
}

// Sum returns the sum of all elements of data, using the default
// execution context.
func Sum[S ~[]T, T accel.Number](data S) (T, error) {
	var zero T
	return Reduce(data, zero, functional.Plus[T]())
}

// TransformReduce applies f to every element of data and folds the
// results with op, starting from init, using the default execution
// context.
func TransformReduce[S ~[]T, T, U any](data S, f functional.Unary[T, U], init U, op functional.Binary[U]) (U, error) {
	return TransformReduceWithControl(context.Background(), control.Default(), data, f, init, op)
}

// TransformReduceWithControl applies f to every element of data and
// folds the results with op, starting from init, using the execution
// context ctl.
func TransformReduceWithControl[S ~[]T, T, U any](ctx context.Context, ctl *control.Control, data S, f functional.Unary[T, U], init U, op functional.Binary[U]) (U, error) {
	if len(data) == 0 {
		return init, nil
	}
	xs := []T(data)
	ctx, cancel := ctl.WithTimeout(ctx)
	defer cancel()
	return dispatch.Run[U](ctx, ctl.Policy(dispatch.TransformReduce), dispatch.TransformReduce, len(xs), dispatch.Funcs[U]{
		OnSerial: func(context.Context) (U, error) {
			return sequential.TransformReduce(xs, init, f.Fn, op.Fn), nil
		},
		OnMultiCore: func(context.Context) (U, error) {
			return parallel.TransformReduce(xs, init, 0, f.Fn, op.Fn), nil
		},
		OnDevice: func(ctx context.Context) (U, error) {
			return deviceTransformReduce(ctx, ctl, xs, f, init, op)
		},
	}, ctl)
}

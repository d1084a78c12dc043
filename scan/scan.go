/*
Package scan provides prefix-sum algorithms that run on the host or on
an accelerator device, depending on the size of the input and the
execution context.

InclusiveScan stores in out[i] the fold of in[0..i]; ExclusiveScan
stores in out[i] the fold of init and in[0..i), so that out[0] is
init. The output may be the input itself. The binary functor must be
associative; it need not be commutative, since scans combine elements
in order on every path.

On the device, the input is scanned in blocks of one wave of
work-items each. The block totals are read back and scanned on the
host to obtain the carry of every block, and a second kernel combines
each element with the carry of its block.
*/
package scan

import (
	"context"

	"github.com/exascience/accel"
	"github.com/exascience/accel/control"
	"github.com/exascience/accel/dispatch"
	"github.com/exascience/accel/functional"
	"github.com/exascience/accel/parallel"
	"github.com/exascience/accel/sequential"
)

// InclusiveScan scans in into out with op, using the default execution
// context. It returns the number of elements written, len(in).
func InclusiveScan[S ~[]T, T any](in, out S, op functional.Binary[T]) (int, error) {
	return InclusiveScanWithControl(context.Background(), control.Default(), in, out, op)
}

// InclusiveScanWithControl scans in into out with op, using the
// execution context ctl. It returns the number of elements written,
// len(in). If out is shorter than in, it returns a
// *accel.SizeMismatchError and leaves out unchanged.
func InclusiveScanWithControl[S ~[]T, T any](ctx context.Context, ctl *control.Control, in, out S, op functional.Binary[T]) (int, error) {
	xs, ys := []T(in), []T(out)
	if err := accel.CheckOutput("inclusive_scan", len(ys), len(xs)); err != nil {
		return 0, err
	}
	if len(xs) <= 1 {
		return copy(ys, xs), nil
	}
	var zero T
	ctx, cancel := ctl.WithTimeout(ctx)
	defer cancel()
	return dispatch.Run[int](ctx, ctl.Policy(dispatch.Scan), dispatch.Scan, len(xs), dispatch.Funcs[int]{
		OnSerial: func(context.Context) (int, error) {
			return sequential.InclusiveScan(xs, ys, op.Fn), nil
		},
		OnMultiCore: func(context.Context) (int, error) {
			return parallel.InclusiveScan(xs, ys, 0, op.Fn), nil
		},
		OnDevice: func(ctx context.Context) (int, error) {
			return deviceScan(ctx, ctl, xs, ys, zero, false, op)
		},
	}, ctl)
}

// ExclusiveScan scans in into out with op, starting from init, using
// the default execution context. It returns the number of elements
// written, len(in).
func ExclusiveScan[S ~[]T, T any](in, out S, init T, op functional.Binary[T]) (int, error) {
	return ExclusiveScanWithControl(context.Background(), control.Default(), in, out, init, op)
}

// ExclusiveScanWithControl scans in into out with op, starting from
// init, using the execution context ctl. It returns the number of
// elements written, len(in). If out is shorter than in, it returns a
// *accel.SizeMismatchError and leaves out unchanged.
func ExclusiveScanWithControl[S ~[]T, T any](ctx context.Context, ctl *control.Control, in, out S, init T, op functional.Binary[T]) (int, error) {
	xs, ys := []T(in), []T(out)
	if err := accel.CheckOutput("exclusive_scan", len(ys), len(xs)); err != nil {
		return 0, err
	}
	if len(xs) <= 1 {
		return sequential.ExclusiveScan(xs, ys, init, op.Fn), nil
	}
	ctx, cancel := ctl.WithTimeout(ctx)
	defer cancel()
	return dispatch.Run[int](ctx, ctl.Policy(dispatch.Scan), dispatch.Scan, len(xs), dispatch.Funcs[int]{
		OnSerial: func(context.Context) (int, error) {
			return sequential.ExclusiveScan(xs, ys, init, op.Fn), nil
		},
		OnMultiCore: func(context.Context) (int, error) {
			return parallel.ExclusiveScan(xs, ys, init, 0, op.Fn), nil
		},
		OnDevice: func(ctx context.Context) (int, error) {
			return deviceScan(ctx, ctl, xs, ys, init, true, op)
		},
	}, ctl)
}

// InclusiveSum stores the running sums of in in out, using the default
// execution context.
func InclusiveSum[S ~[]T, T accel.Number](in, out S) (int, error) {
	return InclusiveScan(in, out, functional.Plus[T]())
}

/*
Package transform provides element-wise algorithms that run on the host
or on an accelerator device, depending on the size of the input and the
execution context.

Transform stores f(in[i]) in out[i]; TransformBinary stores
f(in1[i], in2[i]) in out[i]. The output may be one of the inputs.
*/
package transform

import (
	"context"
	"reflect"

	"github.com/exascience/accel"
	"github.com/exascience/accel/control"
	"github.com/exascience/accel/device"
	"github.com/exascience/accel/dispatch"
	"github.com/exascience/accel/functional"
	"github.com/exascience/accel/internal"
	"github.com/exascience/accel/kernel"
	"github.com/exascience/accel/parallel"
	"github.com/exascience/accel/sequential"
)

// Transform stores f(in[i]) in out[i] for every element of in, using
// the default execution context.
func Transform[S ~[]T, D ~[]U, T, U any](in S, out D, f functional.Unary[T, U]) error {
	return TransformWithControl(context.Background(), control.Default(), in, out, f)
}

// TransformWithControl stores f(in[i]) in out[i] for every element of
// in, using the execution context ctl. If out is shorter than in, it
// returns a *accel.SizeMismatchError and leaves out unchanged.
func TransformWithControl[S ~[]T, D ~[]U, T, U any](ctx context.Context, ctl *control.Control, in S, out D, f functional.Unary[T, U]) error {
	xs, ys := []T(in), []U(out)
	if err := accel.CheckOutput("transform", len(ys), len(xs)); err != nil {
		return err
	}
	if len(xs) == 0 {
		return nil
	}
	ctx, cancel := ctl.WithTimeout(ctx)
	defer cancel()
	_, err := dispatch.Run[struct{}](ctx, ctl.Policy(dispatch.Transform), dispatch.Transform, len(xs), dispatch.Funcs[struct{}]{
		OnSerial: func(context.Context) (struct{}, error) {
			sequential.Transform(xs, ys, f.Fn)
			return struct{}{}, nil
		},
		OnMultiCore: func(context.Context) (struct{}, error) {
			parallel.Transform(xs, ys, 0, f.Fn)
			return struct{}{}, nil
		},
		OnDevice: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, deviceTransform(ctx, ctl, xs, ys, f)
		},
	}, ctl)
	return err
}

// TransformBinary stores f(in1[i], in2[i]) in out[i] for every element
// of in1, using the default execution context.
func TransformBinary[S1 ~[]T1, S2 ~[]T2, D ~[]U, T1, T2, U any](in1 S1, in2 S2, out D, f functional.BinaryOf[T1, T2, U]) error {
	return TransformBinaryWithControl(context.Background(), control.Default(), in1, in2, out, f)
}

// TransformBinaryWithControl stores f(in1[i], in2[i]) in out[i] for
// every element of in1, using the execution context ctl. If in2 or out
// is shorter than in1, it returns a *accel.SizeMismatchError.
func TransformBinaryWithControl[S1 ~[]T1, S2 ~[]T2, D ~[]U, T1, T2, U any](ctx context.Context, ctl *control.Control, in1 S1, in2 S2, out D, f functional.BinaryOf[T1, T2, U]) error {
	xs1, xs2, ys := []T1(in1), []T2(in2), []U(out)
	if err := accel.CheckOutput("transform", len(xs2), len(xs1)); err != nil {
		return err
	}
	if err := accel.CheckOutput("transform", len(ys), len(xs1)); err != nil {
		return err
	}
	if len(xs1) == 0 {
		return nil
	}
	ctx, cancel := ctl.WithTimeout(ctx)
	defer cancel()
	_, err := dispatch.Run[struct{}](ctx, ctl.Policy(dispatch.Transform), dispatch.Transform, len(xs1), dispatch.Funcs[struct{}]{
		OnSerial: func(context.Context) (struct{}, error) {
			sequential.TransformBinary(xs1, xs2, ys, f.Fn)
			return struct{}{}, nil
		},
		OnMultiCore: func(context.Context) (struct{}, error) {
			parallel.TransformBinary(xs1, xs2, ys, 0, f.Fn)
			return struct{}{}, nil
		},
		OnDevice: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, deviceTransformBinary(ctx, ctl, xs1, xs2[:len(xs1)], ys, f)
		},
	}, ctl)
	return err
}

func transformBody[T, U any](g *device.Group, args []any) {
	input := args[0].([]T)
	output := args[1].([]U)
	n := int(args[2].(int32))
	f := args[3].([]functional.Unary[T, U])[0].Fn
	g.Lanes(func(lid int) {
		if gid := g.GlobalID(lid); gid < n {
			output[gid] = f(input[gid])
		}
	})
}

func binaryTransformBody[T1, T2, U any](g *device.Group, args []any) {
	input1 := args[0].([]T1)
	input2 := args[1].([]T2)
	output := args[2].([]U)
	n := int(args[3].(int32))
	f := args[4].([]functional.BinaryOf[T1, T2, U])[0].Fn
	g.Lanes(func(lid int) {
		if gid := g.GlobalID(lid); gid < n {
			output[gid] = f(input1[gid], input2[gid])
		}
	})
}

func launchRange(n int) device.NDRange {
	return device.NDRange{Global: internal.CeilDiv(n, kernel.WaveSize) * kernel.WaveSize, Local: kernel.WaveSize}
}

func deviceTransform[T, U any](ctx context.Context, ctl *control.Control, in []T, out []U, f functional.Unary[T, U]) error {
	rt := ctl.Runtime()
	d := rt.Dialect()
	valueType, err := device.TypeName[T](d)
	if err != nil {
		return err
	}
	outputType, err := device.TypeName[U](d)
	if err != nil {
		return err
	}
	code, err := f.Code(d)
	if err != nil {
		return err
	}
	compiled, err := kernel.CacheFor(rt).GetOrCompile(ctx, ctl, kernel.Request{
		Key: kernel.Key{
			Algorithm:   kernel.Transform,
			ValueType:   kernel.Join(valueType, outputType),
			FunctorType: code.TypeName,
			Host:        kernel.HostOf(reflect.TypeFor[T](), reflect.TypeFor[U]()),
		},
		UserSource: code.Source,
		Subs:       kernel.Substitutions{ValueType: valueType, OutputType: outputType, FunctorType: code.TypeName},
		Native:     transformBody[T, U],
	})
	if err != nil {
		return err
	}
	n := len(in)
	length, err := kernel.Length(n)
	if err != nil {
		return err
	}

	var bufs kernel.Buffers
	defer bufs.Release()
	input, err := bufs.Add(device.Wrap(rt, device.ReadOnly|device.UseHostPtr, in))
	if err != nil {
		return err
	}
	output, err := bufs.Add(device.Alloc[U](rt, device.WriteOnly, n))
	if err != nil {
		return err
	}
	functor, err := bufs.Add(device.Wrap(rt, device.ReadOnly|device.UseHostPtr, []functional.Unary[T, U]{f}))
	if err != nil {
		return err
	}
	if err = compiled.Run(ctx, ctl, launchRange(n), input, output, length, functor); err != nil {
		return err
	}
	result := make([]U, n)
	if err = device.Read(ctx, ctl.Queue(), output, result); err != nil {
		return err
	}
	copy(out, result)
	return nil
}

func deviceTransformBinary[T1, T2, U any](ctx context.Context, ctl *control.Control, in1 []T1, in2 []T2, out []U, f functional.BinaryOf[T1, T2, U]) error {
	rt := ctl.Runtime()
	d := rt.Dialect()
	firstType, err := device.TypeName[T1](d)
	if err != nil {
		return err
	}
	secondType, err := device.TypeName[T2](d)
	if err != nil {
		return err
	}
	outputType, err := device.TypeName[U](d)
	if err != nil {
		return err
	}
	code, err := f.Code(d)
	if err != nil {
		return err
	}
	compiled, err := kernel.CacheFor(rt).GetOrCompile(ctx, ctl, kernel.Request{
		Key: kernel.Key{
			Algorithm:   kernel.BinaryTransform,
			ValueType:   kernel.Join(firstType, secondType, outputType),
			FunctorType: code.TypeName,
			Host:        kernel.HostOf(reflect.TypeFor[T1](), reflect.TypeFor[T2](), reflect.TypeFor[U]()),
		},
		UserSource: code.Source,
		Subs: kernel.Substitutions{
			ValueType:   firstType,
			SecondType:  secondType,
			OutputType:  outputType,
			FunctorType: code.TypeName,
		},
		Native: binaryTransformBody[T1, T2, U],
	})
	if err != nil {
		return err
	}
	n := len(in1)
	length, err := kernel.Length(n)
	if err != nil {
		return err
	}

	var bufs kernel.Buffers
	defer bufs.Release()
	input1, err := bufs.Add(device.Wrap(rt, device.ReadOnly|device.UseHostPtr, in1))
	if err != nil {
		return err
	}
	input2, err := bufs.Add(device.Wrap(rt, device.ReadOnly|device.UseHostPtr, in2))
	if err != nil {
		return err
	}
	output, err := bufs.Add(device.Alloc[U](rt, device.WriteOnly, n))
	if err != nil {
		return err
	}
	functor, err := bufs.Add(device.Wrap(rt, device.ReadOnly|device.UseHostPtr, []functional.BinaryOf[T1, T2, U]{f}))
	if err != nil {
		return err
	}
	if err = compiled.Run(ctx, ctl, launchRange(n), input1, input2, output, length, functor); err != nil {
		return err
	}
	result := make([]U, n)
	if err = device.Read(ctx, ctl.Queue(), output, result); err != nil {
		return err
	}
	copy(out, result)
	return nil
}

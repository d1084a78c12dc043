package reduce

import (
	"context"
	"reflect"

	"github.com/exascience/accel/control"
	"github.com/exascience/accel/device"
	"github.com/exascience/accel/functional"
	"github.com/exascience/accel/internal"
	"github.com/exascience/accel/kernel"
)

// resultCount returns the number of work-groups, and thus of block
// results, of a device reduction of n elements.
func resultCount(ctl *control.Control, n int) int {
	count := ctl.Device().ComputeUnits * ctl.WGPerComputeUnit()
	if ctl.AutoTune()&control.AutoTuneWorkShape != 0 {
		count = min(count, internal.CeilDiv(n, kernel.WaveSize))
	}
	return max(count, 1)
}

// fold combines init with the non-empty block results in block order.
func fold[T any](init T, results []T, counts []int32, op func(x, y T) T) T {
	acc := init
	for i, result := range results {
		if counts[i] > 0 {
			acc = op(acc, result)
		}
	}
	return acc
}

// blockReduce is the work-group part of the reduction kernels: every
// lane folds load(i) for its grid-stride indices i < n, and the lane
// results are folded in a tree through scratch. Lane 0 ends up with the
// block result and its element count.
func blockReduce[T any](g *device.Group, n int, load func(i int) T, op func(x, y T) T, scratch []T, count []int32) (T, int32) {
	stride := g.GlobalSize()
	g.Lanes(func(lid int) {
		count[lid] = 0
		if gx := g.GlobalID(lid); gx < n {
			acc := load(gx)
			c := int32(1)
			for i := gx + stride; i < n; i += stride {
				acc = op(acc, load(i))
				c++
			}
			scratch[lid] = acc
			count[lid] = c
		}
	})
	for offset := g.Size / 2; offset > 0; offset /= 2 {
		g.Lanes(func(lid int) {
			if lid < offset && count[lid+offset] > 0 {
				if count[lid] > 0 {
					scratch[lid] = op(scratch[lid], scratch[lid+offset])
				} else {
					scratch[lid] = scratch[lid+offset]
				}
				count[lid] += count[lid+offset]
			}
		})
	}
	return scratch[0], count[0]
}

func reduceBody[T any](g *device.Group, args []any) {
	input := args[0].([]T)
	n := int(args[1].(int32))
	op := args[3].([]functional.Binary[T])[0].Fn
	result := args[4].([]T)
	blockCount := args[5].([]int32)
	scratch := args[6].([]T)
	count := args[7].([]int32)
	result[g.ID], blockCount[g.ID] = blockReduce(g, n, func(i int) T { return input[i] }, op, scratch, count)
}

func transformReduceBody[T, U any](g *device.Group, args []any) {
	input := args[0].([]T)
	n := int(args[1].(int32))
	f := args[3].([]functional.Unary[T, U])[0].Fn
	op := args[4].([]functional.Binary[U])[0].Fn
	result := args[5].([]U)
	blockCount := args[6].([]int32)
	scratch := args[7].([]U)
	count := args[8].([]int32)
	result[g.ID], blockCount[g.ID] = blockReduce(g, n, func(i int) U { return f(input[i]) }, op, scratch, count)
}

// readBlocks waits for the block results and their element counts.
func readBlocks[T any](ctx context.Context, ctl *control.Control, result, blockCount device.Buffer, groups int) ([]T, []int32, error) {
	results := make([]T, groups)
	counts := make([]int32, groups)
	if err := device.Read(ctx, ctl.Queue(), result, results); err != nil {
		return nil, nil, err
	}
	if err := device.Read(ctx, ctl.Queue(), blockCount, counts); err != nil {
		return nil, nil, err
	}
	return results, counts, nil
}

func deviceReduce[T any](ctx context.Context, ctl *control.Control, data []T, init T, op functional.Binary[T]) (result T, err error) {
	rt := ctl.Runtime()
	d := rt.Dialect()
	valueType, err := device.TypeName[T](d)
	if err != nil {
		return
	}
	code, err := op.Code(d)
	if err != nil {
		return
	}
	compiled, err := kernel.CacheFor(rt).GetOrCompile(ctx, ctl, kernel.Request{
		Key: kernel.Key{
			Algorithm:   kernel.Reduce,
			ValueType:   valueType,
			FunctorType: code.TypeName,
			Host:        kernel.HostOf(reflect.TypeFor[T]()),
		},
		UserSource: code.Source,
		Subs:       kernel.Substitutions{ValueType: valueType, FunctorType: code.TypeName},
		Native:     reduceBody[T],
	})
	if err != nil {
		return
	}
	length, err := kernel.Length(len(data))
	if err != nil {
		return
	}

	groups := resultCount(ctl, len(data))
	var bufs kernel.Buffers
	defer bufs.Release()
	input, err := bufs.Add(device.Wrap(rt, device.ReadOnly|device.UseHostPtr, data))
	if err != nil {
		return
	}
	functor, err := bufs.Add(device.Wrap(rt, device.ReadOnly|device.UseHostPtr, []functional.Binary[T]{op}))
	if err != nil {
		return
	}
	partial, err := bufs.Add(device.Alloc[T](rt, device.WriteOnly, groups))
	if err != nil {
		return
	}
	blockCount, err := bufs.Add(device.Alloc[int32](rt, device.WriteOnly, groups))
	if err != nil {
		return
	}
	if err = compiled.Run(ctx, ctl, device.NDRange{Global: groups * kernel.WaveSize, Local: kernel.WaveSize},
		input, length, init, functor, partial, blockCount,
		device.NewLocal[T](kernel.WaveSize), device.NewLocal[int32](kernel.WaveSize)); err != nil {
		return
	}
	results, counts, err := readBlocks[T](ctx, ctl, partial, blockCount, groups)
	if err != nil {
		return
	}
	return fold(init, results, counts, op.Fn), nil
}

func deviceTransformReduce[T, U any](ctx context.Context, ctl *control.Control, data []T, f functional.Unary[T, U], init U, op functional.Binary[U]) (result U, err error) {
	rt := ctl.Runtime()
	d := rt.Dialect()
	valueType, err := device.TypeName[T](d)
	if err != nil {
		return
	}
	outputType, err := device.TypeName[U](d)
	if err != nil {
		return
	}
	transformCode, err := f.Code(d)
	if err != nil {
		return
	}
	reduceCode, err := op.Code(d)
	if err != nil {
		return
	}
	userSource := transformCode.Source
	if reduceCode.Source != transformCode.Source {
		userSource += "\n" + reduceCode.Source
	}
	compiled, err := kernel.CacheFor(rt).GetOrCompile(ctx, ctl, kernel.Request{
		Key: kernel.Key{
			Algorithm:   kernel.TransformReduce,
			ValueType:   kernel.Join(valueType, outputType),
			FunctorType: kernel.Join(transformCode.TypeName, reduceCode.TypeName),
			Host:        kernel.HostOf(reflect.TypeFor[T](), reflect.TypeFor[U]()),
		},
		UserSource: userSource,
		Subs: kernel.Substitutions{
			ValueType:     valueType,
			OutputType:    outputType,
			TransformType: transformCode.TypeName,
			FunctorType:   reduceCode.TypeName,
		},
		Native: transformReduceBody[T, U],
	})
	if err != nil {
		return
	}
	length, err := kernel.Length(len(data))
	if err != nil {
		return
	}

	groups := resultCount(ctl, len(data))
	var bufs kernel.Buffers
	defer bufs.Release()
	input, err := bufs.Add(device.Wrap(rt, device.ReadOnly|device.UseHostPtr, data))
	if err != nil {
		return
	}
	transformFunctor, err := bufs.Add(device.Wrap(rt, device.ReadOnly|device.UseHostPtr, []functional.Unary[T, U]{f}))
	if err != nil {
		return
	}
	reduceFunctor, err := bufs.Add(device.Wrap(rt, device.ReadOnly|device.UseHostPtr, []functional.Binary[U]{op}))
	if err != nil {
		return
	}
	partial, err := bufs.Add(device.Alloc[U](rt, device.WriteOnly, groups))
	if err != nil {
		return
	}
	blockCount, err := bufs.Add(device.Alloc[int32](rt, device.WriteOnly, groups))
	if err != nil {
		return
	}
	if err = compiled.Run(ctx, ctl, device.NDRange{Global: groups * kernel.WaveSize, Local: kernel.WaveSize},
		input, length, init, transformFunctor, reduceFunctor, partial, blockCount,
		device.NewLocal[U](kernel.WaveSize), device.NewLocal[int32](kernel.WaveSize)); err != nil {
		return
	}
	results, counts, err := readBlocks[U](ctx, ctl, partial, blockCount, groups)
	if err != nil {
		return
	}
	return fold(init, results, counts, op.Fn), nil
}

package sort

import (
	"context"
	"reflect"
	"slices"

	"github.com/exascience/accel/control"
	"github.com/exascience/accel/device"
	"github.com/exascience/accel/functional"
	"github.com/exascience/accel/internal"
	"github.com/exascience/accel/kernel"
)

// sortBlockBody sorts one block in local memory with an odd-even
// transposition sort.
func sortBlockBody[T any](g *device.Group, args []any) {
	data := args[0].([]T)
	n := int(args[1].(int32))
	less := args[2].([]functional.Compare[T])[0].Fn
	lds := args[3].([]T)

	active := min(g.Size, n-g.ID*g.Size)
	g.Lanes(func(lid int) {
		if lid < active {
			lds[lid] = data[g.GlobalID(lid)]
		}
	})
	for phase := range g.Size {
		g.Lanes(func(lid int) {
			if lid&1 == phase&1 && lid+1 < active && less(lds[lid+1], lds[lid]) {
				lds[lid], lds[lid+1] = lds[lid+1], lds[lid]
			}
		})
	}
	g.Lanes(func(lid int) {
		if lid < active {
			data[g.GlobalID(lid)] = lds[lid]
		}
	})
}

func mergeBody[T any](g *device.Group, args []any) {
	input := args[0].([]T)
	output := args[1].([]T)
	n := int(args[2].(int32))
	width := int(args[3].(int32))
	less := args[4].([]functional.Compare[T])[0].Fn

	g.Lanes(func(lid int) {
		gid := g.GlobalID(lid)
		if gid >= n {
			return
		}
		start := gid / (2 * width) * (2 * width)
		mid := min(start+width, n)
		end := min(start+2*width, n)
		x := input[gid]
		if gid < mid {
			// equal elements of the right run go after x
			pos, _ := slices.BinarySearchFunc(input[mid:end], x, func(y, target T) int {
				if less(y, target) {
					return -1
				}
				return 1
			})
			output[gid+pos] = x
		} else {
			pos, _ := slices.BinarySearchFunc(input[start:mid], x, func(y, target T) int {
				if less(target, y) {
					return 1
				}
				return -1
			})
			output[gid-mid+start+pos] = x
		}
	})
}

// deviceSort sorts data stably on the device. data is only updated
// once all launches have succeeded.
func deviceSort[T any](ctx context.Context, ctl *control.Control, data []T, less functional.Compare[T]) error {
	rt := ctl.Runtime()
	d := rt.Dialect()
	valueType, err := device.TypeName[T](d)
	if err != nil {
		return err
	}
	code, err := less.Code(d)
	if err != nil {
		return err
	}
	cache := kernel.CacheFor(rt)
	request := func(algorithm string, body device.Body) kernel.Request {
		return kernel.Request{
			Key: kernel.Key{
				Algorithm:   algorithm,
				ValueType:   valueType,
				FunctorType: code.TypeName,
				Host:        kernel.HostOf(reflect.TypeFor[T]()),
			},
			UserSource: code.Source,
			Subs:       kernel.Substitutions{ValueType: valueType, FunctorType: code.TypeName},
			Native:     body,
		}
	}
	blockKernel, err := cache.GetOrCompile(ctx, ctl, request(kernel.SortBlock, sortBlockBody[T]))
	if err != nil {
		return err
	}
	mergeKernel, err := cache.GetOrCompile(ctx, ctl, request(kernel.SortMerge, mergeBody[T]))
	if err != nil {
		return err
	}

	n := len(data)
	length, err := kernel.Length(n)
	if err != nil {
		return err
	}
	groups := internal.CeilDiv(n, kernel.WaveSize)
	r := device.NDRange{Global: groups * kernel.WaveSize, Local: kernel.WaveSize}

	var bufs kernel.Buffers
	defer bufs.Release()
	src, err := bufs.Add(device.Wrap(rt, device.ReadWrite|device.CopyHostPtr, data))
	if err != nil {
		return err
	}
	functor, err := bufs.Add(device.Wrap(rt, device.ReadOnly|device.UseHostPtr, []functional.Compare[T]{less}))
	if err != nil {
		return err
	}
	if err = blockKernel.Run(ctx, ctl, r, src, length, functor, device.NewLocal[T](kernel.WaveSize)); err != nil {
		return err
	}
	if groups > 1 {
		dst, err := bufs.Add(device.Alloc[T](rt, device.ReadWrite, n))
		if err != nil {
			return err
		}
		for width := kernel.WaveSize; width < n; width *= 2 {
			if err = mergeKernel.Run(ctx, ctl, r, src, dst, length, int32(width), functor); err != nil {
				return err
			}
			src, dst = dst, src
		}
	}

	result := make([]T, n)
	if err = device.Read(ctx, ctl.Queue(), src, result); err != nil {
		return err
	}
	copy(data, result)
	return nil
}

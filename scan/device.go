package scan

import (
	"context"
	"reflect"

	"github.com/exascience/accel/control"
	"github.com/exascience/accel/device"
	"github.com/exascience/accel/functional"
	"github.com/exascience/accel/internal"
	"github.com/exascience/accel/kernel"
)

// scanBody scans one block in local memory, Hillis-Steele style. Only
// the lanes that hold an element of the input take part, so the last
// block needs no padding with an identity element.
func scanBody[T any](g *device.Group, args []any) {
	output := args[0].([]T)
	input := args[1].([]T)
	n := int(args[2].(int32))
	op := args[3].([]functional.Binary[T])[0].Fn
	blockSums := args[4].([]T)
	lds := args[5].([]T)

	active := min(g.Size, n-g.ID*g.Size)
	g.Lanes(func(lid int) {
		if lid < active {
			lds[lid] = input[g.GlobalID(lid)]
		}
	})
	sums := make([]T, g.Size)
	for offset := 1; offset < g.Size; offset *= 2 {
		g.Lanes(func(lid int) {
			if lid >= offset && lid < active {
				sums[lid] = op(lds[lid-offset], lds[lid])
			}
		})
		g.Lanes(func(lid int) {
			if lid >= offset && lid < active {
				lds[lid] = sums[lid]
			}
		})
	}
	g.Lanes(func(lid int) {
		if lid < active {
			output[g.GlobalID(lid)] = lds[lid]
		}
		if lid == active-1 {
			blockSums[g.ID] = lds[lid]
		}
	})
}

func scanCarryBody[T any](g *device.Group, args []any) {
	output := args[0].([]T)
	n := int(args[1].(int32))
	carries := args[2].([]T)
	firstCarried := int(args[3].(int32))
	op := args[4].([]functional.Binary[T])[0].Fn

	if g.ID < firstCarried {
		return
	}
	carry := carries[g.ID]
	g.Lanes(func(lid int) {
		if gid := g.GlobalID(lid); gid < n {
			output[gid] = op(carry, output[gid])
		}
	})
}

// carries scans the block totals on the host. For an exclusive scan,
// every block is carried, starting with init; otherwise the first block
// is not carried. carries returns the carries and the first carried
// block.
func carries[T any](sums []T, init T, exclusive bool, op func(x, y T) T) ([]T, int32) {
	result := make([]T, len(sums))
	if exclusive {
		acc := init
		for b, sum := range sums {
			result[b] = acc
			acc = op(acc, sum)
		}
		return result, 0
	}
	acc := sums[0]
	for b := 1; b < len(sums); b++ {
		result[b] = acc
		acc = op(acc, sums[b])
	}
	return result, 1
}

// deviceScan computes the inclusive scan of in, seeded with init if
// exclusive, and stores it in out, shifted by one element with init in
// front if exclusive.
func deviceScan[T any](ctx context.Context, ctl *control.Control, in, out []T, init T, exclusive bool, op functional.Binary[T]) (int, error) {
	rt := ctl.Runtime()
	d := rt.Dialect()
	valueType, err := device.TypeName[T](d)
	if err != nil {
		return 0, err
	}
	code, err := op.Code(d)
	if err != nil {
		return 0, err
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
	scanKernel, err := cache.GetOrCompile(ctx, ctl, request(kernel.Scan, scanBody[T]))
	if err != nil {
		return 0, err
	}
	carryKernel, err := cache.GetOrCompile(ctx, ctl, request(kernel.ScanCarry, scanCarryBody[T]))
	if err != nil {
		return 0, err
	}

	n := len(in)
	length, err := kernel.Length(n)
	if err != nil {
		return 0, err
	}
	groups := internal.CeilDiv(n, kernel.WaveSize)
	r := device.NDRange{Global: groups * kernel.WaveSize, Local: kernel.WaveSize}

	var bufs kernel.Buffers
	defer bufs.Release()
	input, err := bufs.Add(device.Wrap(rt, device.ReadOnly|device.UseHostPtr, in))
	if err != nil {
		return 0, err
	}
	output, err := bufs.Add(device.Alloc[T](rt, device.ReadWrite, n))
	if err != nil {
		return 0, err
	}
	functor, err := bufs.Add(device.Wrap(rt, device.ReadOnly|device.UseHostPtr, []functional.Binary[T]{op}))
	if err != nil {
		return 0, err
	}
	blockSums, err := bufs.Add(device.Alloc[T](rt, device.WriteOnly, groups))
	if err != nil {
		return 0, err
	}
	if err = scanKernel.Run(ctx, ctl, r, output, input, length, functor, blockSums, device.NewLocal[T](kernel.WaveSize)); err != nil {
		return 0, err
	}
	sums := make([]T, groups)
	if err = device.Read(ctx, ctl.Queue(), blockSums, sums); err != nil {
		return 0, err
	}

	blockCarries, firstCarried := carries(sums, init, exclusive, op.Fn)
	if int(firstCarried) < groups {
		var carryBuffer device.Buffer
		if carryBuffer, err = bufs.Add(device.Wrap(rt, device.ReadOnly|device.CopyHostPtr, blockCarries)); err != nil {
			return 0, err
		}
		if err = carryKernel.Run(ctx, ctl, r, output, length, carryBuffer, firstCarried, functor); err != nil {
			return 0, err
		}
	}

	result := make([]T, n)
	if err = device.Read(ctx, ctl.Queue(), output, result); err != nil {
		return 0, err
	}
	if exclusive {
		out[0] = init
		copy(out[1:n], result[:n-1])
	} else {
		copy(out, result)
	}
	return n, nil
}

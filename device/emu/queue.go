package emu

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/exascience/accel/device"
	"github.com/exascience/accel/internal"
)

// A queue executes its commands in submission order. Each command runs
// in its own goroutine once the previous command has completed.
type queue struct {
	rt     *Runtime
	device int

	mutex sync.Mutex
	tail  *event
}

type event struct {
	done chan struct{}
	err  error
}

func (e *event) Wait(ctx context.Context) error {
	select {
	case <-e.done:
		return e.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *queue) Device() int { return q.device }

func (q *queue) submit(ctx context.Context, command func() error) (device.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e := &event{done: make(chan struct{})}
	q.mutex.Lock()
	prev := q.tail
	q.tail = e
	q.mutex.Unlock()
	go func() {
		defer close(e.done)
		if prev != nil {
			<-prev.done
		}
		e.err = command()
	}()
	return e, nil
}

func (q *queue) Finish(ctx context.Context) error {
	q.mutex.Lock()
	tail := q.tail
	q.mutex.Unlock()
	if tail == nil {
		return nil
	}
	select {
	case <-tail.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *queue) Read(ctx context.Context, b device.Buffer, dst any) (device.Event, error) {
	buf, ok := b.(*buffer)
	if !ok || buf.rt != q.rt {
		return nil, fmt.Errorf("emu: buffer %T does not belong to runtime %v", b, q.rt.name)
	}
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Slice || v.Type().Elem() != buf.data.Type().Elem() {
		return nil, fmt.Errorf("emu: cannot read %v buffer into %T", buf.data.Type().Elem(), dst)
	}
	if v.Len() > buf.data.Len() {
		return nil, fmt.Errorf("emu: read of %v elements from buffer of %v", v.Len(), buf.data.Len())
	}
	return q.submit(ctx, func() error {
		reflect.Copy(v, buf.data)
		return nil
	})
}

func (q *queue) Enqueue(ctx context.Context, k device.Kernel, r device.NDRange, args ...any) (device.Event, error) {
	kern, ok := k.(*kernel)
	if !ok {
		return nil, fmt.Errorf("emu: kernel %T does not belong to runtime %v", k, q.rt.name)
	}
	info := q.rt.devices[q.device]
	switch {
	case r.Local <= 0 || r.Global <= 0 || r.Global%r.Local != 0:
		return nil, fmt.Errorf("emu: invalid range %v/%v for kernel %v", r.Global, r.Local, kern.name)
	case r.Local > info.MaxWorkGroupSize:
		return nil, fmt.Errorf("emu: work-group size %v exceeds %v on %v", r.Local, info.MaxWorkGroupSize, info.Name)
	}

	resolved := make([]any, len(args))
	var locals []int
	var localSize int64
	for i, arg := range args {
		switch arg := arg.(type) {
		case *buffer:
			if arg.rt != q.rt {
				return nil, fmt.Errorf("emu: argument %v of kernel %v belongs to another runtime", i, kern.name)
			}
			if arg.released.Load() {
				return nil, fmt.Errorf("emu: argument %v of kernel %v was released", i, kern.name)
			}
			resolved[i] = arg.data.Interface()
		case device.Buffer:
			return nil, fmt.Errorf("emu: argument %v of kernel %v is a foreign buffer %T", i, kern.name, arg)
		case device.Local:
			localSize += arg.Size()
			locals = append(locals, i)
			resolved[i] = arg
		default:
			resolved[i] = arg
		}
	}
	if localSize > info.LocalMemSize {
		return nil, &device.ResourceExhaustionError{
			Device:    info.Name,
			Resource:  "local memory",
			Requested: localSize,
			Available: info.LocalMemSize,
		}
	}

	return q.submit(ctx, func() error {
		groups := r.Groups()
		var eg errgroup.Group
		eg.SetLimit(info.ComputeUnits)
		for id := 0; id < groups; id++ {
			eg.Go(func() (err error) {
				defer func() {
					if p := recover(); p != nil {
						err = &device.LaunchError{Kernel: kern.name, Group: id, Err: internal.PanicError(p)}
					}
				}()
				groupArgs := resolved
				if len(locals) > 0 {
					groupArgs = append([]any(nil), resolved...)
					for _, i := range locals {
						l := resolved[i].(device.Local)
						groupArgs[i] = reflect.MakeSlice(reflect.SliceOf(l.Elem), l.Len, l.Len).Interface()
					}
				}
				kern.body(&device.Group{ID: id, Count: groups, Size: r.Local}, groupArgs)
				return nil
			})
		}
		return eg.Wait()
	})
}

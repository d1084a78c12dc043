//go:build webgpu

package webgpu

import (
	"context"
	"fmt"
	"reflect"

	"github.com/openfluke/webgpu/wgpu"

	"github.com/exascience/accel/device"
)

// A queue submits to the single queue of the device, which executes
// submissions in order.
type queue struct {
	rt *Runtime
}

func (q *queue) Device() int { return 0 }

type event struct {
	wait func(ctx context.Context) error
}

func (e event) Wait(ctx context.Context) error { return e.wait(ctx) }

// bindings returns the bind group entries for args, and the scalar
// buffers created for them.
func (q *queue) bindings(k *kernel, args []any) (entries []wgpu.BindGroupEntry, scalars []*wgpu.Buffer, err error) {
	var local int64
	defer func() {
		if err != nil {
			for _, scalar := range scalars {
				scalar.Release()
			}
		}
	}()
	for i, arg := range args {
		switch arg := arg.(type) {
		case *buffer:
			if arg.gpu == nil {
				continue
			}
			entries = append(entries, wgpu.BindGroupEntry{Binding: uint32(i), Buffer: arg.gpu, Size: arg.gpu.GetSize()})
		case device.Local:
			local += arg.Size()
		case device.Buffer:
			return nil, scalars, fmt.Errorf("webgpu: argument %v of %v is a %T buffer from another runtime", i, k.name, arg)
		default:
			v := reflect.ValueOf(arg)
			if !v.IsValid() || !plain(v.Type()) {
				return nil, scalars, fmt.Errorf("webgpu: argument %v of %v has no device representation: %T", i, k.name, arg)
			}
			one := reflect.MakeSlice(reflect.SliceOf(v.Type()), 1, 1)
			one.Index(0).Set(v)
			scalar, err := q.rt.upload(one)
			if err != nil {
				return nil, scalars, err
			}
			scalars = append(scalars, scalar)
			entries = append(entries, wgpu.BindGroupEntry{Binding: uint32(i), Buffer: scalar, Size: scalar.GetSize()})
		}
	}
	if local > q.rt.info.LocalMemSize {
		return nil, scalars, &device.ResourceExhaustionError{
			Device:    q.rt.info.Name,
			Resource:  "local memory",
			Requested: local,
			Available: q.rt.info.LocalMemSize,
		}
	}
	return entries, scalars, nil
}

// Enqueue records one compute pass over r.Groups() work-groups and
// submits it.
func (q *queue) Enqueue(ctx context.Context, k device.Kernel, r device.NDRange, args ...any) (device.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wk, ok := k.(*kernel)
	if !ok {
		return nil, fmt.Errorf("webgpu: cannot launch %T", k)
	}
	if r.Local != waveSize || r.Global%r.Local != 0 {
		return nil, fmt.Errorf("webgpu: invalid range %v/%v for %v", r.Global, r.Local, wk.name)
	}
	entries, scalars, err := q.bindings(wk, args)
	if err != nil {
		return nil, err
	}

	rt := q.rt
	rt.mu.Lock()
	defer rt.mu.Unlock()
	defer func() {
		for _, scalar := range scalars {
			scalar.Release()
		}
	}()
	bindGroup, err := rt.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   wk.name,
		Layout:  wk.pipeline.GetBindGroupLayout(0),
		Entries: entries,
	})
	if err != nil {
		return nil, &device.LaunchError{Kernel: wk.name, Err: err}
	}
	defer bindGroup.Release()
	encoder, err := rt.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, &device.LaunchError{Kernel: wk.name, Err: err}
	}
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(wk.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(uint32(r.Groups()), 1, 1)
	pass.End()
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return nil, &device.LaunchError{Kernel: wk.name, Err: err}
	}
	rt.queue.Submit(cmd)
	return event{wait: q.finish}, nil
}

// Read copies b into a mappable staging buffer, and copies the mapped
// contents into dst when the returned event is waited for.
func (q *queue) Read(ctx context.Context, b device.Buffer, dst any) (device.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, ok := b.(*buffer)
	if !ok || src.gpu == nil {
		return nil, fmt.Errorf("webgpu: cannot read %T", b)
	}
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Slice || v.Type().Elem() != src.elem {
		return nil, fmt.Errorf("webgpu: cannot read %v buffer into %T", src.elem, dst)
	}
	if v.Len() > src.n {
		return nil, fmt.Errorf("webgpu: reading %v elements from a buffer of %v", v.Len(), src.n)
	}
	out := bytesOf(v)
	if len(out) == 0 {
		return event{wait: func(context.Context) error { return nil }}, nil
	}
	size := storageSize(int64(len(out)))

	rt := q.rt
	rt.mu.Lock()
	staging, err := rt.device.CreateBuffer(&wgpu.BufferDescriptor{
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		rt.mu.Unlock()
		return nil, fmt.Errorf("webgpu: staging buffer: %w", err)
	}
	encoder, err := rt.device.CreateCommandEncoder(nil)
	if err == nil {
		encoder.CopyBufferToBuffer(src.gpu, 0, staging, 0, size)
		var cmd *wgpu.CommandBuffer
		if cmd, err = encoder.Finish(nil); err == nil {
			rt.queue.Submit(cmd)
		}
	}
	rt.mu.Unlock()
	if err != nil {
		staging.Destroy()
		return nil, fmt.Errorf("webgpu: copying to staging buffer: %w", err)
	}

	return event{wait: func(ctx context.Context) error {
		defer func() {
			rt.mu.Lock()
			staging.Destroy()
			rt.mu.Unlock()
		}()
		done := make(chan struct{})
		var mapErr error
		rt.mu.Lock()
		err := staging.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
			if status != wgpu.BufferMapAsyncStatusSuccess {
				mapErr = fmt.Errorf("webgpu: map failed: %v", status)
			}
			close(done)
		})
		rt.mu.Unlock()
		if err != nil {
			return fmt.Errorf("webgpu: map: %w", err)
		}
		if err := rt.poll(ctx, done); err != nil {
			return err
		}
		if mapErr != nil {
			return mapErr
		}
		rt.mu.Lock()
		defer rt.mu.Unlock()
		copy(out, staging.GetMappedRange(0, uint(len(out))))
		staging.Unmap()
		return nil
	}}, nil
}

// finish waits for all submitted work, or until ctx is done.
func (q *queue) finish(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.rt.mu.Lock()
		q.rt.device.Poll(true, nil)
		q.rt.mu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *queue) Finish(ctx context.Context) error { return q.finish(ctx) }

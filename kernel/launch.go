package kernel

import (
	"context"
	"fmt"
	"math"

	"github.com/exascience/accel/control"
	"github.com/exascience/accel/device"
)

// Launch enqueues the kernel on the queue of ctl over r, and records the
// launch with ctl. It does not wait for the kernel to complete.
func (c *Compiled) Launch(ctx context.Context, ctl *control.Control, r device.NDRange, args ...any) (device.Event, error) {
	ctl.KernelLaunched(c.EntryPoint, r)
	event, err := ctl.Queue().Enqueue(ctx, c.Kernel, r, args...)
	if err != nil {
		return nil, fmt.Errorf("kernel: launch of %v: %w", c.Key, err)
	}
	return event, nil
}

// Run launches the kernel like Launch, and waits for it to complete.
func (c *Compiled) Run(ctx context.Context, ctl *control.Control, r device.NDRange, args ...any) error {
	event, err := c.Launch(ctx, ctl, r, args...)
	if err != nil {
		return err
	}
	return event.Wait(ctx)
}

// Length converts an element count to the int scalar kernels take.
func Length(n int) (int32, error) {
	if n > math.MaxInt32 {
		return 0, fmt.Errorf("kernel: %v elements exceed the device index range", n)
	}
	return int32(n), nil
}

// Buffers collects the buffers of one algorithm call, so that they can
// be released together.
type Buffers struct {
	list []device.Buffer
}

// Add records b, unless err is non-nil. It returns its arguments, so
// that it can wrap an allocation:
//
//	in, err := bufs.Add(device.Wrap(rt, device.ReadOnly|device.UseHostPtr, data))
func (bufs *Buffers) Add(b device.Buffer, err error) (device.Buffer, error) {
	if err == nil {
		bufs.list = append(bufs.list, b)
	}
	return b, err
}

// Release releases all recorded buffers.
func (bufs *Buffers) Release() {
	for _, b := range bufs.list {
		b.Release()
	}
	bufs.list = nil
}

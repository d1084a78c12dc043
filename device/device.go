// Package device defines the contract between the accel algorithms and
// a device runtime: dialects, device descriptions, programs, kernels,
// buffers, in-order command queues, and events.
//
// A runtime builds kernel source written in its dialect into a
// program, from which kernels are obtained by entry-point name.
// Kernels are launched on a queue over an NDRange, with arguments that
// are bound positionally for that launch only, so a kernel can be
// shared by any number of concurrent callers. Commands on the same
// queue execute in submission order; there is no ordering between
// queues.
package device

import (
	"context"
	"reflect"
	"strings"
)

// A Dialect names the kernel source language a runtime accepts.
type Dialect string

const (
	// OpenCL is OpenCL C with C++ templates (clc++).
	OpenCL Dialect = "clc++"
	// WGSL is the WebGPU Shading Language.
	WGSL Dialect = "wgsl"
)

// Info describes a device of a runtime.
type Info struct {
	Index            int
	Name             string
	Vendor           string
	ComputeUnits     int
	MaxClockMHz      int
	WaveSize         int
	MaxWorkGroupSize int
	LocalMemSize     int64
	GlobalMemSize    int64
	Extensions       []string
}

// MemFlags specify how a buffer is accessed by kernels and how it
// relates to host memory.
type MemFlags uint

const (
	ReadWrite MemFlags = 1 << iota
	WriteOnly
	ReadOnly
	UseHostPtr
	AllocHostPtr
	CopyHostPtr
)

var memFlagNames = []string{"ReadWrite", "WriteOnly", "ReadOnly", "UseHostPtr", "AllocHostPtr", "CopyHostPtr"}

func (flags MemFlags) String() string {
	var names []string
	for i, name := range memFlagNames {
		if flags&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "0"
	}
	return strings.Join(names, "|")
}

// A Body is the native implementation of a kernel entry point. It is
// invoked once per work-group with the launch arguments: buffers are
// passed as their backing slices, Local arguments as a fresh slice of
// work-group local memory, and scalars as they are.
type Body func(g *Group, args []any)

// A Source is a complete kernel source in some dialect, together with
// the entry point to instantiate from it.
type Source struct {
	Label      string
	Dialect    Dialect
	Text       string
	EntryPoint string

	// Native is the Go implementation of the entry point, used by
	// runtimes that execute kernels on the host.
	Native Body
}

// BuildOptions control how a source is built.
type BuildOptions struct {
	// Options are passed to the device compiler.
	Options string
	// Devices lists the indices of the devices to build for. If empty,
	// the program is built for all devices of the runtime.
	Devices []int
}

// BuildStatus is the outcome of building a program for one device.
type BuildStatus int

const (
	BuildNone BuildStatus = iota
	BuildSuccess
	BuildFailure
)

func (status BuildStatus) String() string {
	switch status {
	case BuildSuccess:
		return "success"
	case BuildFailure:
		return "error"
	default:
		return "none"
	}
}

// A BuildLog is the compiler output for one device.
type BuildLog struct {
	Device     int
	DeviceName string
	Status     BuildStatus
	Options    string
	Log        string
}

// NDRange is a one-dimensional launch shape: Global work-items in
// work-groups of Local work-items each.
type NDRange struct {
	Global int
	Local  int
}

// Groups returns the number of work-groups of the range.
func (r NDRange) Groups() int {
	if r.Local <= 0 {
		return 0
	}
	return r.Global / r.Local
}

// Local is a kernel argument that reserves work-group local memory for
// Len elements of type Elem.
type Local struct {
	Elem reflect.Type
	Len  int
}

// NewLocal returns a Local argument for n elements of type T.
func NewLocal[T any](n int) Local {
	return Local{Elem: reflect.TypeFor[T](), Len: n}
}

// Size returns the number of bytes of local memory reserved.
func (l Local) Size() int64 {
	return int64(l.Elem.Size()) * int64(l.Len)
}

// A Runtime builds programs, allocates buffers, and provides queues for
// one or more devices.
type Runtime interface {
	Name() string
	Dialect() Dialect
	Devices() []Info
	Build(ctx context.Context, src Source, options BuildOptions) (Program, error)
	Alloc(flags MemFlags, elem reflect.Type, n int) (Buffer, error)
	Wrap(flags MemFlags, host any) (Buffer, error)
	DefaultQueue() Queue
	NewQueue(device int) (Queue, error)
}

// A Program is the result of a successful build.
type Program interface {
	Kernel(name string) (Kernel, error)
	Logs() []BuildLog
	// Temps returns the intermediate files kept by the compiler when the
	// program was built with -save-temps, keyed by file name.
	Temps() map[string]string
}

// A Kernel is an entry point of a program. Kernels are immutable and
// safe for concurrent use.
type Kernel interface {
	Name() string
}

// A Buffer is device-visible memory holding Len elements.
type Buffer interface {
	Len() int
	Size() int64
	Flags() MemFlags
	Release()
}

// A Queue executes commands for one device in submission order.
type Queue interface {
	Device() int
	// Enqueue launches k over r with the given arguments.
	Enqueue(ctx context.Context, k Kernel, r NDRange, args ...any) (Event, error)
	// Read copies the first len(dst) elements of b into the slice dst.
	Read(ctx context.Context, b Buffer, dst any) (Event, error)
	// Finish blocks until all commands submitted so far have completed.
	Finish(ctx context.Context) error
}

// An Event completes when its command has executed.
type Event interface {
	Wait(ctx context.Context) error
}

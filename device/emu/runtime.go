// Package emu provides an emulated accelerator that runs on the host.
//
// The emulated runtime accepts OpenCL C++ (clc++) kernel source. Its
// compiler checks build options, bracket structure, the presence of the
// instantiated entry point and its template, and the types that the
// instantiation refers to, and produces per-device build logs like a
// device compiler would. A successful build yields kernels that execute
// the native Go body attached to the source: the work-groups of a launch
// are spread over at most ComputeUnits goroutines, and the lanes of a
// work-group run in lockstep phases.
package emu

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/exascience/accel/device"
)

// Defaults for emulated devices.
const (
	DefaultWaveSize         = 64
	DefaultMaxWorkGroupSize = 256
	DefaultLocalMemSize     = 64 << 10
	DefaultMemoryLimit      = 4 << 30
)

// An Option configures a Runtime.
type Option func(*Runtime)

// WithDevices sets the number of emulated devices.
func WithDevices(n int) Option {
	return func(rt *Runtime) { rt.nofDevices = n }
}

// WithComputeUnits sets the number of compute units per device.
func WithComputeUnits(n int) Option {
	return func(rt *Runtime) { rt.computeUnits = n }
}

// WithMemoryLimit sets the global memory size shared by all devices.
func WithMemoryLimit(bytes int64) Option {
	return func(rt *Runtime) { rt.limit = bytes }
}

// WithLocalMemSize sets the local memory size per work-group.
func WithLocalMemSize(bytes int64) Option {
	return func(rt *Runtime) { rt.localMemSize = bytes }
}

// WithName sets the name of the runtime, which prefixes device names.
func WithName(name string) Option {
	return func(rt *Runtime) { rt.name = name }
}

// A Runtime is an emulated device runtime. It is safe for concurrent
// use.
type Runtime struct {
	name         string
	nofDevices   int
	computeUnits int
	localMemSize int64
	limit        int64

	devices   []device.Info
	allocated atomic.Int64
	builds    atomic.Int64

	queueOnce    sync.Once
	defaultQueue *queue
}

// New returns an emulated runtime. By default it has one device with
// runtime.NumCPU() compute units.
func New(options ...Option) *Runtime {
	rt := &Runtime{
		name:         "emu",
		nofDevices:   1,
		computeUnits: runtime.NumCPU(),
		localMemSize: DefaultLocalMemSize,
		limit:        DefaultMemoryLimit,
	}
	for _, option := range options {
		option(rt)
	}
	if rt.nofDevices < 1 {
		panic(fmt.Sprintf("invalid number of devices: %v", rt.nofDevices))
	}
	if rt.computeUnits < 1 {
		panic(fmt.Sprintf("invalid number of compute units: %v", rt.computeUnits))
	}
	extensions := hostExtensions()
	for i := 0; i < rt.nofDevices; i++ {
		rt.devices = append(rt.devices, device.Info{
			Index:            i,
			Name:             fmt.Sprintf("%v%v", rt.name, i),
			Vendor:           "accel",
			ComputeUnits:     rt.computeUnits,
			WaveSize:         DefaultWaveSize,
			MaxWorkGroupSize: DefaultMaxWorkGroupSize,
			LocalMemSize:     rt.localMemSize,
			GlobalMemSize:    rt.limit,
			Extensions:       extensions,
		})
	}
	return rt
}

// hostExtensions lists the vector extensions of the host, which the
// emulated devices inherit.
func hostExtensions() (extensions []string) {
	add := func(has bool, name string) {
		if has {
			extensions = append(extensions, name)
		}
	}
	switch runtime.GOARCH {
	case "amd64", "386":
		add(cpu.X86.HasSSE41, "sse4.1")
		add(cpu.X86.HasAVX, "avx")
		add(cpu.X86.HasAVX2, "avx2")
		add(cpu.X86.HasFMA, "fma")
		add(cpu.X86.HasAVX512F, "avx512f")
	case "arm64":
		add(cpu.ARM64.HasASIMD, "asimd")
		add(cpu.ARM64.HasFPHP, "fp16")
		add(cpu.ARM64.HasSVE, "sve")
	}
	return
}

func (rt *Runtime) Name() string { return rt.name }

func (rt *Runtime) Dialect() device.Dialect { return device.OpenCL }

func (rt *Runtime) Devices() []device.Info {
	return append([]device.Info(nil), rt.devices...)
}

// Builds returns the number of Build calls the runtime has executed.
func (rt *Runtime) Builds() int64 { return rt.builds.Load() }

// Allocated returns the number of bytes of device memory in use.
func (rt *Runtime) Allocated() int64 { return rt.allocated.Load() }

// Build compiles src for the requested devices. If the source fails to
// build for any device, Build returns a *device.BuildError carrying the
// logs of all requested devices.
func (rt *Runtime) Build(ctx context.Context, src device.Source, options device.BuildOptions) (device.Program, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rt.builds.Add(1)
	if src.Dialect != "" && src.Dialect != device.OpenCL {
		return nil, fmt.Errorf("emu: unsupported dialect %v", src.Dialect)
	}
	indices := options.Devices
	if len(indices) == 0 {
		for i := range rt.devices {
			indices = append(indices, i)
		}
	}
	p := &program{
		rt:      rt,
		kernels: make(map[string]*kernel),
	}
	failed := false
	for _, index := range indices {
		if index < 0 || index >= len(rt.devices) {
			return nil, fmt.Errorf("emu: invalid device index %v", index)
		}
		info := rt.devices[index]
		result := compile(src, options.Options, info)
		p.logs = append(p.logs, device.BuildLog{
			Device:     index,
			DeviceName: info.Name,
			Status:     result.status,
			Options:    options.Options,
			Log:        result.log,
		})
		if result.status == device.BuildFailure {
			failed = true
		}
		if p.temps == nil {
			p.temps = result.temps
		}
	}
	if failed {
		return nil, &device.BuildError{Label: src.Label, Logs: p.logs}
	}
	p.kernels[src.EntryPoint] = &kernel{name: src.EntryPoint, body: src.Native}
	return p, nil
}

// DefaultQueue returns the queue of device 0.
func (rt *Runtime) DefaultQueue() device.Queue {
	rt.queueOnce.Do(func() {
		rt.defaultQueue = &queue{rt: rt, device: 0}
	})
	return rt.defaultQueue
}

// NewQueue returns a new queue for the given device.
func (rt *Runtime) NewQueue(index int) (device.Queue, error) {
	if index < 0 || index >= len(rt.devices) {
		return nil, fmt.Errorf("emu: invalid device index %v", index)
	}
	return &queue{rt: rt, device: index}, nil
}

type program struct {
	rt      *Runtime
	logs    []device.BuildLog
	temps   map[string]string
	kernels map[string]*kernel
}

func (p *program) Kernel(name string) (device.Kernel, error) {
	if k, ok := p.kernels[name]; ok {
		return k, nil
	}
	return nil, fmt.Errorf("emu: no kernel named %v in program", name)
}

func (p *program) Logs() []device.BuildLog { return p.logs }

func (p *program) Temps() map[string]string { return p.temps }

type kernel struct {
	name string
	body device.Body
}

func (k *kernel) Name() string { return k.name }

type buffer struct {
	rt       *Runtime
	data     reflect.Value
	flags    device.MemFlags
	size     int64
	counted  bool
	released atomic.Bool
}

func (b *buffer) Len() int { return b.data.Len() }

func (b *buffer) Size() int64 { return b.size }

func (b *buffer) Flags() device.MemFlags { return b.flags }

func (b *buffer) Release() {
	if b.released.CompareAndSwap(false, true) && b.counted {
		b.rt.allocated.Add(-b.size)
	}
}

func (rt *Runtime) reserve(size int64) error {
	for {
		current := rt.allocated.Load()
		if current+size > rt.limit {
			return &device.ResourceExhaustionError{
				Device:    rt.devices[0].Name,
				Resource:  "global memory",
				Requested: size,
				Available: rt.limit - current,
			}
		}
		if rt.allocated.CompareAndSwap(current, current+size) {
			return nil
		}
	}
}

// Alloc allocates device memory for n elements of type elem.
func (rt *Runtime) Alloc(flags device.MemFlags, elem reflect.Type, n int) (device.Buffer, error) {
	if n < 0 {
		return nil, fmt.Errorf("emu: invalid buffer length %v", n)
	}
	size := int64(elem.Size()) * int64(n)
	if err := rt.reserve(size); err != nil {
		return nil, err
	}
	return &buffer{
		rt:      rt,
		data:    reflect.MakeSlice(reflect.SliceOf(elem), n, n),
		flags:   flags,
		size:    size,
		counted: true,
	}, nil
}

// Wrap makes the host slice visible to kernels. With UseHostPtr the
// buffer shares the memory of host and does not count against the
// device memory limit; otherwise the contents are copied into device
// memory.
func (rt *Runtime) Wrap(flags device.MemFlags, host any) (device.Buffer, error) {
	v := reflect.ValueOf(host)
	if v.Kind() != reflect.Slice {
		return nil, fmt.Errorf("emu: cannot wrap %T, need a slice", host)
	}
	size := int64(v.Type().Elem().Size()) * int64(v.Len())
	if flags&device.UseHostPtr != 0 {
		return &buffer{rt: rt, data: v, flags: flags, size: size}, nil
	}
	if err := rt.reserve(size); err != nil {
		return nil, err
	}
	data := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
	reflect.Copy(data, v)
	return &buffer{rt: rt, data: data, flags: flags, size: size, counted: true}, nil
}

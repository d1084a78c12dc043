//go:build webgpu

// Package webgpu implements a device runtime on WebGPU, for kernels
// written in WGSL.
//
// Kernel arguments are bound to the binding of their position in group
// 0: buffers as storage buffers, and scalars as small storage buffers
// holding one value. Local arguments are declared as workgroup arrays in
// the kernel source, and arguments that hold host functors have no
// device representation; neither is bound. WebGPU does not report the
// number of compute units of an adapter, so it is configured with
// WithComputeUnits.
//
// The package is only built with the webgpu build tag, since it needs
// the native wgpu library.
package webgpu

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/openfluke/webgpu/wgpu"

	"github.com/exascience/accel/device"
)

// DefaultComputeUnits is the number of compute units reported for an
// adapter unless WithComputeUnits is given.
const DefaultComputeUnits = 16

const waveSize = 64

// An Option configures a Runtime.
type Option func(*Runtime)

// WithComputeUnits sets the number of compute units reported for the
// adapter.
func WithComputeUnits(n int) Option {
	return func(rt *Runtime) { rt.computeUnits = n }
}

// WithPowerPreference selects the adapter to request.
func WithPowerPreference(preference wgpu.PowerPreference) Option {
	return func(rt *Runtime) { rt.preference = preference }
}

// A Runtime is a device runtime for one WebGPU adapter.
type Runtime struct {
	computeUnits int
	preference   wgpu.PowerPreference

	// mu serializes access to the device and its queue.
	mu       sync.Mutex
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	info     device.Info

	defaultQueue *queue
}

// New requests an adapter and a device from WebGPU.
func New(options ...Option) (*Runtime, error) {
	rt := &Runtime{
		computeUnits: DefaultComputeUnits,
		preference:   wgpu.PowerPreferenceHighPerformance,
	}
	for _, option := range options {
		option(rt)
	}
	rt.instance = wgpu.CreateInstance(nil)
	if rt.instance == nil {
		return nil, errors.New("webgpu: cannot create instance")
	}
	adapter, err := rt.instance.RequestAdapter(&wgpu.RequestAdapterOptions{PowerPreference: rt.preference})
	if err != nil || adapter == nil {
		rt.instance.Release()
		return nil, fmt.Errorf("webgpu: no adapter: %v", err)
	}
	rt.adapter = adapter
	rt.device, err = adapter.RequestDevice(&wgpu.DeviceDescriptor{})
	if err != nil || rt.device == nil {
		adapter.Release()
		rt.instance.Release()
		return nil, fmt.Errorf("webgpu: no device: %v", err)
	}
	rt.queue = rt.device.GetQueue()

	info := adapter.GetInfo()
	limits := adapter.GetLimits().Limits
	rt.info = device.Info{
		Index:            0,
		Name:             strings.TrimSpace(info.Name),
		Vendor:           strings.TrimSpace(info.VendorName),
		ComputeUnits:     rt.computeUnits,
		WaveSize:         waveSize,
		MaxWorkGroupSize: int(min(limits.MaxComputeInvocationsPerWorkgroup, limits.MaxComputeWorkgroupSizeX)),
		LocalMemSize:     int64(limits.MaxComputeWorkgroupStorageSize),
		GlobalMemSize:    int64(limits.MaxBufferSize),
	}
	rt.defaultQueue = &queue{rt: rt}
	return rt, nil
}

// Release releases the device, the adapter, and the instance.
func (rt *Runtime) Release() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.device.Release()
	rt.adapter.Release()
	rt.instance.Release()
}

func (rt *Runtime) Name() string { return "webgpu" }

func (rt *Runtime) Dialect() device.Dialect { return device.WGSL }

func (rt *Runtime) Devices() []device.Info { return []device.Info{rt.info} }

// Build creates a compute pipeline for the entry point of src. WGSL has
// no compiler options; a -save-temps=prefix option only keeps the
// source as a temporary file.
func (rt *Runtime) Build(ctx context.Context, src device.Source, options device.BuildOptions) (device.Program, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if src.Dialect != "" && src.Dialect != device.WGSL {
		return nil, fmt.Errorf("webgpu: unsupported dialect %v", src.Dialect)
	}
	for _, index := range options.Devices {
		if index != 0 {
			return nil, fmt.Errorf("webgpu: invalid device index %v", index)
		}
	}

	p := &program{kernels: make(map[string]*kernel)}
	for _, option := range strings.Fields(options.Options) {
		if prefix, ok := strings.CutPrefix(option, "-save-temps="); ok {
			p.temps = map[string]string{prefix + "_" + src.Label + ".wgsl": src.Text}
		}
	}

	rt.mu.Lock()
	pipeline, err := rt.createPipeline(src)
	rt.mu.Unlock()

	buildLog := device.BuildLog{
		Device:     0,
		DeviceName: rt.info.Name,
		Status:     device.BuildSuccess,
		Options:    options.Options,
	}
	if err != nil {
		buildLog.Status = device.BuildFailure
		buildLog.Log = err.Error()
	}
	p.logs = []device.BuildLog{buildLog}
	if err != nil {
		return nil, &device.BuildError{Label: src.Label, Logs: p.logs}
	}
	p.kernels[src.EntryPoint] = &kernel{name: src.EntryPoint, pipeline: pipeline}
	return p, nil
}

func (rt *Runtime) createPipeline(src device.Source) (*wgpu.ComputePipeline, error) {
	module, err := rt.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          src.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: src.Text},
	})
	if err != nil {
		return nil, err
	}
	defer module.Release()
	return rt.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   src.Label,
		Compute: wgpu.ProgrammableStageDescriptor{Module: module, EntryPoint: src.EntryPoint},
	})
}

func (rt *Runtime) DefaultQueue() device.Queue { return rt.defaultQueue }

func (rt *Runtime) NewQueue(index int) (device.Queue, error) {
	if index != 0 {
		return nil, fmt.Errorf("webgpu: invalid device index %v", index)
	}
	return &queue{rt: rt}, nil
}

type program struct {
	logs    []device.BuildLog
	temps   map[string]string
	kernels map[string]*kernel
}

func (p *program) Kernel(name string) (device.Kernel, error) {
	if k, ok := p.kernels[name]; ok {
		return k, nil
	}
	return nil, fmt.Errorf("webgpu: no kernel %v in program", name)
}

func (p *program) Logs() []device.BuildLog { return p.logs }

func (p *program) Temps() map[string]string { return p.temps }

type kernel struct {
	name     string
	pipeline *wgpu.ComputePipeline
}

func (k *kernel) Name() string { return k.name }

// plain reports whether values of type t consist of numbers only, and
// thus have a device representation.
func plain(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.Int8, reflect.Uint8, reflect.Int16, reflect.Uint16,
		reflect.Int32, reflect.Uint32, reflect.Int64, reflect.Uint64,
		reflect.Int, reflect.Uint, reflect.Float32, reflect.Float64:
		return true
	case reflect.Array:
		return plain(t.Elem())
	case reflect.Struct:
		for i := range t.NumField() {
			if !plain(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// bytesOf returns the memory of the slice v.
func bytesOf(v reflect.Value) []byte {
	size := v.Len() * int(v.Type().Elem().Size())
	if size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(v.UnsafePointer()), size)
}

// storageSize rounds a binding size up to the 4-byte alignment WebGPU
// requires, and to at least one word.
func storageSize(size int64) uint64 {
	return uint64(max((size+3)&^3, 4))
}

type buffer struct {
	rt    *Runtime
	gpu   *wgpu.Buffer
	elem  reflect.Type
	n     int
	flags device.MemFlags
	once  sync.Once
}

func (b *buffer) Len() int { return b.n }

func (b *buffer) Size() int64 { return int64(b.elem.Size()) * int64(b.n) }

func (b *buffer) Flags() device.MemFlags { return b.flags }

func (b *buffer) Release() {
	b.once.Do(func() {
		if b.gpu != nil {
			b.rt.mu.Lock()
			b.gpu.Destroy()
			b.rt.mu.Unlock()
		}
	})
}

const storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc

func (rt *Runtime) exhausted(size int64) error {
	return &device.ResourceExhaustionError{
		Device:    rt.info.Name,
		Resource:  "global memory",
		Requested: size,
		Available: rt.info.GlobalMemSize,
	}
}

// Alloc allocates a storage buffer for n elements of type elem.
func (rt *Runtime) Alloc(flags device.MemFlags, elem reflect.Type, n int) (device.Buffer, error) {
	if n < 0 {
		return nil, fmt.Errorf("webgpu: invalid buffer length %v", n)
	}
	if !plain(elem) {
		return nil, fmt.Errorf("webgpu: %v has no device representation", elem)
	}
	size := int64(elem.Size()) * int64(n)
	if size > rt.info.GlobalMemSize {
		return nil, rt.exhausted(size)
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	gpu, err := rt.device.CreateBuffer(&wgpu.BufferDescriptor{
		Size:  storageSize(size),
		Usage: storageUsage,
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: allocating %v bytes: %w", size, err)
	}
	return &buffer{rt: rt, gpu: gpu, elem: elem, n: n, flags: flags}, nil
}

// Wrap copies the host slice into a storage buffer. WebGPU cannot share
// host memory, so UseHostPtr behaves like CopyHostPtr. Slices of host
// functors have no device representation and are not bound at launch.
func (rt *Runtime) Wrap(flags device.MemFlags, host any) (device.Buffer, error) {
	v := reflect.ValueOf(host)
	if v.Kind() != reflect.Slice {
		return nil, fmt.Errorf("webgpu: cannot wrap %T, need a slice", host)
	}
	b := &buffer{rt: rt, elem: v.Type().Elem(), n: v.Len(), flags: flags}
	if !plain(b.elem) {
		return b, nil
	}
	if b.Size() > rt.info.GlobalMemSize {
		return nil, rt.exhausted(b.Size())
	}
	gpu, err := rt.upload(v)
	if err != nil {
		return nil, err
	}
	b.gpu = gpu
	return b, nil
}

func (rt *Runtime) upload(v reflect.Value) (*wgpu.Buffer, error) {
	contents := bytesOf(v)
	if padded := int(storageSize(int64(len(contents)))); padded != len(contents) {
		contents = append(make([]byte, 0, padded), contents...)
		contents = contents[:padded]
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	gpu, err := rt.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Contents: contents,
		Usage:    storageUsage,
	})
	if err != nil {
		return nil, fmt.Errorf("webgpu: uploading %v bytes: %w", len(contents), err)
	}
	return gpu, nil
}

// poll drives the device until done is closed or ctx is done.
func (rt *Runtime) poll(ctx context.Context, done <-chan struct{}) error {
	for {
		rt.mu.Lock()
		rt.device.Poll(false, nil)
		rt.mu.Unlock()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
			time.Sleep(100 * time.Microsecond)
		}
	}
}

// Package dispatch selects the execution path of an algorithm call.
//
// Every call of an accel algorithm is routed to one of three paths based
// on the number of elements n: a serial host path for small inputs, a
// host multi-core path for medium inputs, and the device for large
// inputs. The boundaries are two thresholds per algorithm family, which
// are configuration held by the execution context.
package dispatch

import (
	"context"
	"fmt"
)

// An Algorithm names an algorithm family for thresholds and metrics.
type Algorithm string

const (
	Reduce          Algorithm = "reduce"
	TransformReduce Algorithm = "transform_reduce"
	Scan            Algorithm = "scan"
	Transform       Algorithm = "transform"
	Sort            Algorithm = "sort"
)

// A Path is an execution path.
type Path int

const (
	Serial Path = iota
	MultiCore
	Device
)

func (p Path) String() string {
	switch p {
	case Serial:
		return "serial"
	case MultiCore:
		return "multicore"
	case Device:
		return "device"
	default:
		return fmt.Sprintf("Path(%d)", int(p))
	}
}

// A RunMode either leaves the choice of path to the thresholds, or
// forces one path for all inputs.
type RunMode int

const (
	Automatic RunMode = iota
	ForceSerial
	ForceMultiCore
	ForceDevice
)

func (m RunMode) String() string {
	switch m {
	case Automatic:
		return "auto"
	case ForceSerial:
		return "serial"
	case ForceMultiCore:
		return "multicore"
	case ForceDevice:
		return "device"
	default:
		return fmt.Sprintf("RunMode(%d)", int(m))
	}
}

// ParseRunMode parses the String form of a RunMode.
func ParseRunMode(s string) (RunMode, error) {
	for m := Automatic; m <= ForceDevice; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return Automatic, fmt.Errorf("dispatch: invalid run mode %q", s)
}

// Thresholds bound the execution paths: inputs with fewer than MultiCore
// elements run serially, inputs with fewer than Device elements run on
// the host cores, and all larger inputs run on the device.
type Thresholds struct {
	MultiCore int
	Device    int
}

// DefaultThresholds are the thresholds of an execution context that has
// not been configured otherwise.
var DefaultThresholds = Thresholds{MultiCore: 1 << 10, Device: 1 << 15}

// A Policy selects execution paths.
type Policy struct {
	Thresholds
	Mode RunMode
	// UseHost permits the host paths. Without it, every input that
	// needs any work at all runs on the device, unless Mode forces a
	// host path.
	UseHost bool
}

// Select returns the path for an input of n elements. Select is a pure
// function of the policy and n.
func (p Policy) Select(n int) Path {
	switch p.Mode {
	case ForceSerial:
		return Serial
	case ForceMultiCore:
		return MultiCore
	case ForceDevice:
		return Device
	}
	switch {
	case !p.UseHost:
		return Device
	case n < p.MultiCore:
		return Serial
	case n < p.Device:
		return MultiCore
	default:
		return Device
	}
}

// A Strategy implements one algorithm call on each of the paths.
type Strategy[R any] interface {
	Serial(ctx context.Context) (R, error)
	MultiCore(ctx context.Context) (R, error)
	Device(ctx context.Context) (R, error)
}

// Funcs is a Strategy built from three functions.
type Funcs[R any] struct {
	OnSerial    func(ctx context.Context) (R, error)
	OnMultiCore func(ctx context.Context) (R, error)
	OnDevice    func(ctx context.Context) (R, error)
}

func (f Funcs[R]) Serial(ctx context.Context) (R, error) { return f.OnSerial(ctx) }

func (f Funcs[R]) MultiCore(ctx context.Context) (R, error) { return f.OnMultiCore(ctx) }

func (f Funcs[R]) Device(ctx context.Context) (R, error) { return f.OnDevice(ctx) }

// A Recorder observes dispatch decisions.
type Recorder interface {
	Dispatched(algorithm Algorithm, n int, path Path)
}

// Run selects the path for n elements once, reports it to the recorder,
// and invokes the corresponding method of the strategy.
func Run[R any](ctx context.Context, policy Policy, algorithm Algorithm, n int, strategy Strategy[R], recorder Recorder) (R, error) {
	path := policy.Select(n)
	if recorder != nil {
		recorder.Dispatched(algorithm, n, path)
	}
	switch path {
	case Serial:
		return strategy.Serial(ctx)
	case MultiCore:
		return strategy.MultiCore(ctx)
	default:
		return strategy.Device(ctx)
	}
}

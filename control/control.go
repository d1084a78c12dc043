// Package control provides the execution context of the accel
// algorithms.
//
// A Control holds the device runtime and queue to use, whether the host
// may run algorithms, a forced run mode, debug flags, auto-tuning modes,
// the number of work-groups launched per compute unit, extra compile
// options, the dispatch thresholds per algorithm family, an optional
// timeout, the logger that receives debug output, and the metrics.
//
// The process-wide default Control is created on first use of Default,
// exactly once even under concurrent first use. New returns an
// independent copy of the default that can be changed without affecting
// any other Control. Setters are not synchronized: a Control must not be
// changed while algorithm calls that use it are in flight.
package control

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/exascience/accel/device"
	"github.com/exascience/accel/device/emu"
	"github.com/exascience/accel/dispatch"
)

// DebugFlags select debug output, which is written to the logger of a
// Control. Debug output is advisory and never changes results.
type DebugFlags uint

const (
	// DebugCompile logs the names of the algorithm, value type, and
	// functor type before a compilation, and the per-device build
	// status, options, and log after it.
	DebugCompile DebugFlags = 1 << iota
	// DebugShowCode logs the complete generated kernel source.
	DebugShowCode
	// DebugSaveCompilerTemps asks the compiler to keep intermediate
	// files, and logs them after a successful build.
	DebugSaveCompilerTemps
	// DebugKernelRun logs every kernel launch.
	DebugKernelRun
	// DebugAutoTune logs auto-tuning and dispatch decisions.
	DebugAutoTune
)

var debugFlagNames = []string{"compile", "showcode", "savetemps", "kernelrun", "autotune"}

func (flags DebugFlags) String() string {
	var names []string
	for i, name := range debugFlagNames {
		if flags&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// ParseDebugFlags parses a comma-separated list of debug flag names, as
// produced by DebugFlags.String.
func ParseDebugFlags(s string) (flags DebugFlags, err error) {
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" || name == "none" {
			continue
		}
		found := false
		for i, flagName := range debugFlagNames {
			if name == flagName {
				flags |= 1 << i
				found = true
			}
		}
		if !found {
			return 0, fmt.Errorf("control: invalid debug flag %q", name)
		}
	}
	return flags, nil
}

// AutoTune selects which parameters are tuned automatically.
type AutoTune uint

const (
	NoAutoTune AutoTune = 0
	// AutoTuneDevice selects the device with the most compute units when
	// a runtime is bound.
	AutoTuneDevice AutoTune = 1 << 0
	// AutoTuneWorkShape shrinks device launches to the number of
	// work-groups an input actually needs.
	AutoTuneWorkShape AutoTune = 1 << 1
	AutoTuneAll       AutoTune = AutoTuneDevice | AutoTuneWorkShape
)

// DefaultWGPerComputeUnit is the default number of work-groups launched
// per compute unit.
const DefaultWGPerComputeUnit = 8

// A Control is an execution context.
type Control struct {
	runtime              device.Runtime
	queue                device.Queue
	device               int
	useHost              bool
	runMode              dispatch.RunMode
	debug                DebugFlags
	autoTune             AutoTune
	wgPerComputeUnit     int
	compileOptions       string
	compileForAllDevices bool
	defaultThresholds    dispatch.Thresholds
	thresholds           map[dispatch.Algorithm]dispatch.Thresholds
	timeout              time.Duration
	logger               *zap.Logger
	metrics              *Metrics
}

var (
	defaultOnce    sync.Once
	defaultControl *Control
)

// Default returns the process-wide default Control. It is created on the
// first call, bound to an emulated runtime, and configured from the
// environment (see ApplyEnv).
func Default() *Control {
	defaultOnce.Do(func() {
		c := &Control{
			useHost:              true,
			runMode:              dispatch.Automatic,
			autoTune:             AutoTuneAll,
			wgPerComputeUnit:     DefaultWGPerComputeUnit,
			compileForAllDevices: true,
			defaultThresholds:    dispatch.DefaultThresholds,
			thresholds:           make(map[dispatch.Algorithm]dispatch.Thresholds),
			logger:               zap.NewNop(),
			metrics:              NewMetrics(),
		}
		c.SetRuntime(emu.New())
		if err := c.ApplyEnv(envLookup); err != nil {
			c.logger.Warn("ignoring invalid accel environment", zap.Error(err))
		}
		defaultControl = c
	})
	return defaultControl
}

// New returns a copy of the default Control. Changes to the copy do not
// affect the default, and vice versa. The copy shares the metrics of the
// default; use SetMetrics for separate metrics.
func New() *Control {
	return Default().Clone()
}

// Clone returns an independent copy of c.
func (c *Control) Clone() *Control {
	clone := *c
	clone.thresholds = maps.Clone(c.thresholds)
	return &clone
}

// Runtime returns the device runtime.
func (c *Control) Runtime() device.Runtime { return c.runtime }

// SetRuntime binds a runtime and its queue for the selected device. With
// AutoTuneDevice, the device with the most compute units is selected;
// otherwise device 0.
func (c *Control) SetRuntime(rt device.Runtime) {
	c.runtime = rt
	c.device = 0
	if c.autoTune&AutoTuneDevice != 0 {
		best := 0
		for _, info := range rt.Devices() {
			if info.ComputeUnits > best {
				best, c.device = info.ComputeUnits, info.Index
			}
		}
	}
	if c.device == 0 {
		c.queue = rt.DefaultQueue()
	} else if q, err := rt.NewQueue(c.device); err == nil {
		c.queue = q
	} else {
		c.device, c.queue = 0, rt.DefaultQueue()
	}
	if c.debug&DebugAutoTune != 0 {
		c.Logger().Debug("selected device",
			zap.String("runtime", rt.Name()),
			zap.Int("device", c.device),
			zap.String("name", c.Device().Name))
	}
}

// Queue returns the command queue.
func (c *Control) Queue() device.Queue { return c.queue }

// SetQueue sets the command queue, and selects the device of the queue.
func (c *Control) SetQueue(q device.Queue) {
	c.queue = q
	c.device = q.Device()
}

// Device returns the description of the selected device.
func (c *Control) Device() device.Info { return c.runtime.Devices()[c.device] }

// UseHost returns whether the host paths may be used.
func (c *Control) UseHost() bool { return c.useHost }

// SetUseHost sets whether the host paths may be used.
func (c *Control) SetUseHost(useHost bool) { c.useHost = useHost }

// RunMode returns the forced run mode.
func (c *Control) RunMode() dispatch.RunMode { return c.runMode }

// SetRunMode forces a path for all inputs, or restores automatic
// selection with dispatch.Automatic.
func (c *Control) SetRunMode(mode dispatch.RunMode) { c.runMode = mode }

// Debug returns the debug flags.
func (c *Control) Debug() DebugFlags { return c.debug }

// SetDebug sets the debug flags.
func (c *Control) SetDebug(flags DebugFlags) { c.debug = flags }

// AutoTune returns the auto-tuning mode.
func (c *Control) AutoTune() AutoTune { return c.autoTune }

// SetAutoTune sets the auto-tuning mode.
func (c *Control) SetAutoTune(mode AutoTune) { c.autoTune = mode }

// WGPerComputeUnit returns the number of work-groups launched per
// compute unit by the reduction engine.
func (c *Control) WGPerComputeUnit() int { return c.wgPerComputeUnit }

// SetWGPerComputeUnit sets the number of work-groups launched per
// compute unit. It panics if n < 1.
func (c *Control) SetWGPerComputeUnit(n int) {
	if n < 1 {
		panic(fmt.Sprintf("invalid number of work-groups per compute unit: %v", n))
	}
	c.wgPerComputeUnit = n
}

// CompileOptions returns the extra compile options.
func (c *Control) CompileOptions() string { return c.compileOptions }

// SetCompileOptions sets extra options that are appended to the options
// of every compilation.
func (c *Control) SetCompileOptions(options string) { c.compileOptions = options }

// CompileForAllDevices returns whether kernels are built for all devices
// of the runtime, or only for the selected device.
func (c *Control) CompileForAllDevices() bool { return c.compileForAllDevices }

// SetCompileForAllDevices sets whether kernels are built for all devices.
func (c *Control) SetCompileForAllDevices(all bool) { c.compileForAllDevices = all }

// Thresholds returns the dispatch thresholds for an algorithm family.
func (c *Control) Thresholds(algorithm dispatch.Algorithm) dispatch.Thresholds {
	if t, ok := c.thresholds[algorithm]; ok {
		return t
	}
	return c.defaultThresholds
}

// SetThresholds sets the dispatch thresholds for an algorithm family. It
// panics if the thresholds are negative or out of order.
func (c *Control) SetThresholds(algorithm dispatch.Algorithm, t dispatch.Thresholds) {
	checkThresholds(t)
	c.thresholds[algorithm] = t
}

// SetDefaultThresholds sets the dispatch thresholds for all algorithm
// families without thresholds of their own.
func (c *Control) SetDefaultThresholds(t dispatch.Thresholds) {
	checkThresholds(t)
	c.defaultThresholds = t
}

func checkThresholds(t dispatch.Thresholds) {
	if t.MultiCore < 0 || t.Device < t.MultiCore {
		panic(fmt.Sprintf("invalid thresholds: %v, %v", t.MultiCore, t.Device))
	}
}

// Policy returns the dispatch policy for an algorithm family.
func (c *Control) Policy(algorithm dispatch.Algorithm) dispatch.Policy {
	return dispatch.Policy{
		Thresholds: c.Thresholds(algorithm),
		Mode:       c.runMode,
		UseHost:    c.useHost,
	}
}

// Timeout returns the timeout of algorithm calls, or 0 for none.
func (c *Control) Timeout() time.Duration { return c.timeout }

// SetTimeout sets the timeout of algorithm calls. A call that exceeds it
// returns context.DeadlineExceeded; device work already submitted is not
// interrupted.
func (c *Control) SetTimeout(timeout time.Duration) { c.timeout = timeout }

// WithTimeout derives a context that applies the timeout of c, if any.
func (c *Control) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

// Logger returns the logger that receives debug output.
func (c *Control) Logger() *zap.Logger { return c.logger }

// SetLogger sets the logger. A nil logger discards all output.
func (c *Control) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c.logger = logger
}

// Metrics returns the metrics.
func (c *Control) Metrics() *Metrics { return c.metrics }

// SetMetrics sets the metrics.
func (c *Control) SetMetrics(metrics *Metrics) { c.metrics = metrics }

// Dispatched records a dispatch decision. It implements
// dispatch.Recorder.
func (c *Control) Dispatched(algorithm dispatch.Algorithm, n int, path dispatch.Path) {
	c.metrics.Dispatches.WithLabelValues(string(algorithm), path.String()).Inc()
	if c.debug&DebugAutoTune != 0 {
		c.logger.Debug("dispatch",
			zap.String("algorithm", string(algorithm)),
			zap.Int("n", n),
			zap.Stringer("path", path))
	}
}

// KernelLaunched records a kernel launch.
func (c *Control) KernelLaunched(kernel string, r device.NDRange) {
	c.metrics.Launches.WithLabelValues(kernel).Inc()
	if c.debug&DebugKernelRun != 0 {
		c.logger.Debug("kernel launch",
			zap.String("kernel", kernel),
			zap.Int("global", r.Global),
			zap.Int("local", r.Local),
			zap.Int("groups", r.Groups()),
			zap.Int("device", c.device))
	}
}

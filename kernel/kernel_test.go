package kernel_test

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/exascience/accel/control"
	"github.com/exascience/accel/device"
	"github.com/exascience/accel/device/emu"
	"github.com/exascience/accel/functional"
	"github.com/exascience/accel/kernel"
)

func TestKey(t *testing.T) {
	k := kernel.Key{Algorithm: kernel.Reduce, ValueType: "int", FunctorType: "plus<int>"}
	require.Equal(t, "reduceInstantiated", k.EntryPoint())
	require.Equal(t, "reduce<int, plus<int>>", k.String())
	require.Len(t, k.Digest(), 12)
	require.Equal(t, "reduce_"+k.Digest(), k.Label())
	require.Equal(t, k.Hash(), k.Hash())

	// Field boundaries are part of the hash.
	other := kernel.Key{Algorithm: kernel.Reduce, ValueType: "intplus", FunctorType: "<int>"}
	require.NotEqual(t, k.Digest(), other.Digest())
	require.Equal(t, "int, float", kernel.Join("int", "float"))
}

func fullSubstitutions(d device.Dialect) kernel.Substitutions {
	s := kernel.Substitutions{
		EntryPoint:    "testInstantiated",
		ValueType:     "int",
		SecondType:    "int",
		OutputType:    "int",
		FunctorType:   "plus<int>",
		TransformType: "square<int>",
		WaveSize:      kernel.WaveSize,
	}
	if d == device.WGSL {
		s.ValueType, s.SecondType, s.OutputType = "i32", "i32", "i32"
		s.FunctorType, s.TransformType = "plus_i32", "square_i32"
	}
	return s
}

func TestTemplates(t *testing.T) {
	algorithms := []string{kernel.Reduce, kernel.TransformReduce, kernel.Scan, kernel.ScanCarry, kernel.Transform, kernel.BinaryTransform, kernel.SortBlock, kernel.SortMerge}
	for _, d := range []device.Dialect{device.OpenCL, device.WGSL} {
		for _, algorithm := range algorithms {
			tmpl, err := kernel.Lookup(algorithm, d)
			require.NoError(t, err, "%v %v", d, algorithm)
			require.Equal(t, algorithm, tmpl.Algorithm)

			text, err := tmpl.Render(fullSubstitutions(d))
			require.NoError(t, err, "%v %v", d, algorithm)
			require.Contains(t, text, "testInstantiated")
			require.NotContains(t, text, "{{")

			missing := fullSubstitutions(d)
			missing.FunctorType = ""
			_, err = tmpl.Render(missing)
			require.Error(t, err, "%v %v", d, algorithm)
		}
	}
	_, err := kernel.Lookup("histogram", device.OpenCL)
	require.Error(t, err)
}

func TestParse(t *testing.T) {
	_, err := kernel.Parse("broken", device.OpenCL, `{{define "kernel"}}kernel{{end}}`)
	require.ErrorContains(t, err, `does not define "instantiation"`)
	_, err = kernel.Parse("broken", device.OpenCL, `{{define "kernel"}}{{.ValueType{{end}}`)
	require.Error(t, err)

	tmpl, err := kernel.Parse("custom", device.OpenCL, `{{define "kernel"}}K({{.ValueType}}){{end}}{{define "instantiation"}} I({{.EntryPoint}}){{end}}`)
	require.NoError(t, err)
	text, err := tmpl.Compose("// user", kernel.Substitutions{ValueType: "float", EntryPoint: "customInstantiated"})
	require.NoError(t, err)
	require.Equal(t, "// user\n\nK(float) I(customInstantiated)", text)
}

func newControl(rt device.Runtime) *control.Control {
	ctl := control.New()
	ctl.SetRuntime(rt)
	ctl.SetMetrics(control.NewMetrics())
	ctl.SetLogger(zap.NewNop())
	ctl.SetDebug(0)
	ctl.SetCompileOptions("")
	return ctl
}

func nopBody(*device.Group, []any) {}

func plusRequest(t *testing.T, native device.Body) kernel.Request {
	code, err := functional.Plus[int32]().Code(device.OpenCL)
	require.NoError(t, err)
	return kernel.Request{
		Key:        kernel.Key{Algorithm: kernel.Reduce, ValueType: "int", FunctorType: code.TypeName},
		UserSource: code.Source,
		Subs:       kernel.Substitutions{ValueType: "int", FunctorType: code.TypeName},
		Native:     native,
	}
}

func TestCompileOnce(t *testing.T) {
	rt := emu.New(emu.WithDevices(2))
	ctl := newControl(rt)
	cache := kernel.NewCache(rt)
	req := plusRequest(t, nopBody)

	const callers = 32
	results := make([]*kernel.Compiled, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			compiled, err := cache.GetOrCompile(context.Background(), ctl, req)
			require.NoError(t, err)
			results[i] = compiled
		}()
	}
	wg.Wait()

	require.Equal(t, int64(1), rt.Builds())
	require.Equal(t, 1, cache.Len())
	for _, compiled := range results {
		require.Same(t, results[0], compiled)
	}
	compiled := results[0]
	require.Equal(t, "reduceInstantiated", compiled.EntryPoint)
	require.Equal(t, "reduceInstantiated", compiled.Kernel.Name())
	require.Equal(t, "-x clc++ -cl-std=CL1.2", compiled.Options)
	require.True(t, strings.HasPrefix(compiled.Source, req.UserSource+"\n\n"))
	require.Len(t, compiled.Program.Logs(), 2)

	metrics := ctl.Metrics()
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues(kernel.Reduce, "miss")))
	require.Equal(t, float64(callers-1), testutil.ToFloat64(metrics.CacheLookups.WithLabelValues(kernel.Reduce, "hit")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Compilations.WithLabelValues(kernel.Reduce, "ok")))
}

func TestCompileForSelectedDevice(t *testing.T) {
	rt := emu.New(emu.WithDevices(3))
	ctl := newControl(rt)
	ctl.SetCompileForAllDevices(false)
	compiled, err := kernel.NewCache(rt).GetOrCompile(context.Background(), ctl, plusRequest(t, nopBody))
	require.NoError(t, err)
	require.Len(t, compiled.Program.Logs(), 1)
	require.Equal(t, ctl.Device().Index, compiled.Program.Logs()[0].Device)
}

func TestCompileFailureIsCached(t *testing.T) {
	rt := emu.New()
	ctl := newControl(rt)
	core, logs := observer.New(zap.ErrorLevel)
	ctl.SetLogger(zap.New(core))
	cache := kernel.NewCache(rt)
	req := plusRequest(t, nil)

	_, err := cache.GetOrCompile(context.Background(), ctl, req)
	var compileErr *kernel.CompileError
	require.ErrorAs(t, err, &compileErr)
	require.Equal(t, req.Key, compileErr.Key)
	require.Contains(t, compileErr.Source, "reduceInstantiated")
	require.Len(t, compileErr.Logs, 1)
	require.Equal(t, device.BuildFailure, compileErr.Logs[0].Status)
	require.Contains(t, compileErr.Logs[0].Log, "1 error generated.")
	var buildErr *device.BuildError
	require.ErrorAs(t, err, &buildErr)

	_, again := cache.GetOrCompile(context.Background(), ctl, req)
	require.Same(t, err, again)
	require.Equal(t, int64(1), rt.Builds())
	require.Equal(t, 1, logs.FilterMessage("kernel compilation failed").Len())
	require.Equal(t, 1.0, testutil.ToFloat64(ctl.Metrics().Compilations.WithLabelValues(kernel.Reduce, "error")))
}

func TestCompileOptions(t *testing.T) {
	rt := emu.New()
	ctl := newControl(rt)
	ctl.SetCompileOptions("-bogus")
	_, err := kernel.NewCache(rt).GetOrCompile(context.Background(), ctl, plusRequest(t, nopBody))
	var compileErr *kernel.CompileError
	require.ErrorAs(t, err, &compileErr)
	require.Equal(t, "-x clc++ -cl-std=CL1.2 -bogus", compileErr.Options)
	require.Contains(t, compileErr.Logs[0].Log, "invalid build option '-bogus'")
	require.Contains(t, err.Error(), "invalid build option '-bogus'")
}

func TestCompileTemplateError(t *testing.T) {
	rt := emu.New()
	ctl := newControl(rt)
	req := plusRequest(t, nopBody)
	req.Subs.FunctorType = ""
	_, err := kernel.NewCache(rt).GetOrCompile(context.Background(), ctl, req)
	var compileErr *kernel.CompileError
	require.ErrorAs(t, err, &compileErr)
	require.Empty(t, compileErr.Logs)
	require.Equal(t, int64(0), rt.Builds())
}

func TestCompileDebugOutput(t *testing.T) {
	rt := emu.New()
	ctl := newControl(rt)
	core, logs := observer.New(zap.DebugLevel)
	ctl.SetLogger(zap.New(core))
	ctl.SetDebug(control.DebugCompile | control.DebugShowCode | control.DebugSaveCompilerTemps)

	compiled, err := kernel.NewCache(rt).GetOrCompile(context.Background(), ctl, plusRequest(t, nopBody))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(compiled.Options, "-save-temps=accel "))
	require.Equal(t, 1, logs.FilterMessage("compiling kernel").Len())
	require.Equal(t, 1, logs.FilterMessage("build log").Len())

	sources := logs.FilterMessage("kernel source").All()
	require.Len(t, sources, 1)
	require.Equal(t, compiled.Source, sources[0].ContextMap()["source"])

	temps := logs.FilterMessage("saved compiler temporary").All()
	require.Len(t, temps, 2)
	label := compiled.Key.Label()
	for _, entry := range temps {
		file := entry.ContextMap()["file"].(string)
		require.True(t, file == "accel_"+label+".cl" || file == "accel_"+label+".i", file)
	}
}

// gatedRuntime holds every build until release is closed.
type gatedRuntime struct {
	*emu.Runtime
	release chan struct{}
}

func (rt gatedRuntime) Build(ctx context.Context, src device.Source, options device.BuildOptions) (device.Program, error) {
	<-rt.release
	return rt.Runtime.Build(ctx, src, options)
}

func TestCompileWaiterCancellation(t *testing.T) {
	inner := emu.New()
	rt := gatedRuntime{Runtime: inner, release: make(chan struct{})}
	ctl := newControl(rt)
	cache := kernel.NewCache(rt)
	req := plusRequest(t, nopBody)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cache.GetOrCompile(ctx, ctl, req)
	require.ErrorIs(t, err, context.Canceled)

	close(rt.release)
	compiled, err := cache.GetOrCompile(context.Background(), ctl, req)
	require.NoError(t, err)
	require.NotNil(t, compiled.Kernel)
	require.Equal(t, int64(1), inner.Builds())
}

func TestCacheFor(t *testing.T) {
	rt1, rt2 := emu.New(), emu.New()
	require.Same(t, kernel.CacheFor(rt1), kernel.CacheFor(rt1))
	require.NotSame(t, kernel.CacheFor(rt1), kernel.CacheFor(rt2))
}

func TestLength(t *testing.T) {
	n, err := kernel.Length(1000)
	require.NoError(t, err)
	require.Equal(t, int32(1000), n)
	if strconv.IntSize == 64 {
		tooLong := math.MaxInt32
		tooLong++
		_, err = kernel.Length(tooLong)
		require.Error(t, err)
	}
}

func TestBuffers(t *testing.T) {
	rt := emu.New(emu.WithMemoryLimit(1024))
	var bufs kernel.Buffers
	_, err := bufs.Add(device.Alloc[int64](rt, device.ReadWrite, 100))
	require.NoError(t, err)
	_, err = bufs.Add(device.Alloc[int64](rt, device.ReadWrite, 1000))
	var exhausted *device.ResourceExhaustionError
	require.True(t, errors.As(err, &exhausted))
	require.Equal(t, int64(800), rt.Allocated())
	bufs.Release()
	require.Equal(t, int64(0), rt.Allocated())
}

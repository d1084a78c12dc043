package kernel

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/exascience/accel/control"
	"github.com/exascience/accel/device"
	psync "github.com/exascience/accel/sync"
)

// A Request describes a kernel to obtain from a cache.
type Request struct {
	Key Key
	// Template is the algorithm template. If nil, the built-in template
	// for the algorithm of Key in the dialect of the runtime is used.
	Template *Template
	// UserSource is the device source of the functors, placed in front
	// of the template.
	UserSource string
	// Subs are the template substitutions. EntryPoint and WaveSize are
	// filled in by the cache.
	Subs Substitutions
	// Native is the Go implementation of the kernel for runtimes that run
	// kernels on the host.
	Native device.Body
}

// Compiled is a successfully built kernel.
type Compiled struct {
	Key        Key
	EntryPoint string
	Source     string
	Options    string
	Program    device.Program
	Kernel     device.Kernel
}

type entry struct {
	done     chan struct{}
	compiled *Compiled
	err      error
}

// A Cache holds the kernels built for one runtime. Each key is built at
// most once, no matter how many goroutines request it concurrently;
// build failures are cached as well.
type Cache struct {
	runtime device.Runtime
	entries *psync.Map[Key, *entry]
}

// NewCache returns an empty cache for rt.
func NewCache(rt device.Runtime) *Cache {
	return &Cache{runtime: rt, entries: psync.NewMap[Key, *entry](0)}
}

var caches struct {
	sync.Mutex
	m map[device.Runtime]*Cache
}

// CacheFor returns the process-wide cache of rt.
func CacheFor(rt device.Runtime) *Cache {
	caches.Lock()
	defer caches.Unlock()
	if caches.m == nil {
		caches.m = make(map[device.Runtime]*Cache)
	}
	c := caches.m[rt]
	if c == nil {
		c = NewCache(rt)
		caches.m[rt] = c
	}
	return c
}

// Len returns the number of keys in the cache, including failed ones.
func (c *Cache) Len() int { return c.entries.Len() }

// GetOrCompile returns the kernel for req.Key, building it on first use.
// Concurrent callers for the same key wait for the single build. The
// build itself is not cancelled by ctx: a caller whose ctx is done
// returns ctx.Err(), and the result stays available to later callers.
func (c *Cache) GetOrCompile(ctx context.Context, ctl *control.Control, req Request) (*Compiled, error) {
	e, loaded := c.entries.LoadOrCompute(req.Key, func() *entry {
		return &entry{done: make(chan struct{})}
	})
	result := "hit"
	if !loaded {
		result = "miss"
		go func() {
			defer close(e.done)
			e.compiled, e.err = c.compile(context.WithoutCancel(ctx), ctl, req)
		}()
	}
	ctl.Metrics().CacheLookups.WithLabelValues(req.Key.Algorithm, result).Inc()

	select {
	case <-e.done:
		return e.compiled, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) compile(ctx context.Context, ctl *control.Control, req Request) (*Compiled, error) {
	key := req.Key
	logger := ctl.Logger().With(zap.Stringer("key", key))
	debug := ctl.Debug()

	t := req.Template
	if t == nil {
		var err error
		if t, err = Lookup(key.Algorithm, c.runtime.Dialect()); err != nil {
			return nil, &CompileError{Key: key, Err: err}
		}
	}
	subs := req.Subs
	subs.EntryPoint = key.EntryPoint()
	subs.WaveSize = WaveSize
	source, err := t.Compose(req.UserSource, subs)
	if err != nil {
		return nil, &CompileError{Key: key, Err: err}
	}

	var options []string
	if debug&control.DebugSaveCompilerTemps != 0 {
		options = append(options, "-save-temps=accel")
	}
	if c.runtime.Dialect() == device.OpenCL {
		options = append(options, "-x clc++ -cl-std=CL1.2")
	}
	if o := ctl.CompileOptions(); o != "" {
		options = append(options, o)
	}
	buildOptions := device.BuildOptions{Options: strings.Join(options, " ")}
	if !ctl.CompileForAllDevices() {
		buildOptions.Devices = []int{ctl.Device().Index}
	}

	if debug&control.DebugCompile != 0 {
		logger.Debug("compiling kernel",
			zap.String("algorithm", key.Algorithm),
			zap.String("valueType", key.ValueType),
			zap.String("functorType", key.FunctorType),
			zap.String("options", buildOptions.Options))
	}
	if debug&control.DebugShowCode != 0 {
		logger.Debug("kernel source", zap.String("source", source))
	}

	start := time.Now()
	program, err := c.runtime.Build(ctx, device.Source{
		Label:      key.Label(),
		Dialect:    c.runtime.Dialect(),
		Text:       source,
		EntryPoint: subs.EntryPoint,
		Native:     req.Native,
	}, buildOptions)
	metrics := ctl.Metrics()
	metrics.CompileSeconds.WithLabelValues(key.Algorithm).Observe(time.Since(start).Seconds())

	var logs []device.BuildLog
	var buildErr *device.BuildError
	switch {
	case err == nil:
		logs = program.Logs()
	case errors.As(err, &buildErr):
		logs = buildErr.Logs
	}
	if debug&control.DebugCompile != 0 {
		for _, log := range logs {
			logger.Debug("build log",
				zap.String("device", log.DeviceName),
				zap.Stringer("status", log.Status),
				zap.String("options", log.Options),
				zap.String("log", log.Log))
		}
	}

	var k device.Kernel
	if err == nil {
		k, err = program.Kernel(subs.EntryPoint)
	}
	if err != nil {
		metrics.Compilations.WithLabelValues(key.Algorithm, "error").Inc()
		cerr := &CompileError{Key: key, Source: source, Options: buildOptions.Options, Logs: logs, Err: err}
		logger.Error("kernel compilation failed", zap.Error(cerr))
		return nil, cerr
	}
	metrics.Compilations.WithLabelValues(key.Algorithm, "ok").Inc()

	if debug&control.DebugSaveCompilerTemps != 0 {
		for name := range program.Temps() {
			logger.Debug("saved compiler temporary", zap.String("file", name))
		}
	}
	return &Compiled{
		Key:        key,
		EntryPoint: subs.EntryPoint,
		Source:     source,
		Options:    buildOptions.Options,
		Program:    program,
		Kernel:     k,
	}, nil
}

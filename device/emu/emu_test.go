package emu_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/exascience/accel/device"
	"github.com/exascience/accel/device/emu"
)

const doubleSource = `
// doubles every element
struct twice { int operator()(const int x) const { return 2 * x; } };

template<typename T, typename F>
kernel void doubleTemplate(global T* A, global F* f, const int length)
{
    int gid = get_global_id(0);
    if (gid < length) A[gid] = (*f)(A[gid]);
}

template __attribute__((mangled_name(doubleInstantiated)))
kernel void doubleTemplate(global int* A, global twice* f, const int length);
`

func doubleBody(g *device.Group, args []any) {
	data, length := args[0].([]int32), args[2].(int32)
	g.Lanes(func(lid int) {
		if gid := g.GlobalID(lid); gid < int(length) {
			data[gid] *= 2
		}
	})
}

func source(text string) device.Source {
	return device.Source{Label: "double", Text: text, EntryPoint: "doubleInstantiated", Native: doubleBody}
}

func TestBuildAndRun(t *testing.T) {
	rt := emu.New(emu.WithComputeUnits(3))
	ctx := context.Background()
	program, err := rt.Build(ctx, source(doubleSource), device.BuildOptions{Options: "-x clc++ -cl-std=CL1.2"})
	require.NoError(t, err)
	require.Len(t, program.Logs(), 1)
	require.Equal(t, device.BuildSuccess, program.Logs()[0].Status)
	require.Nil(t, program.Temps())

	k, err := program.Kernel("doubleInstantiated")
	require.NoError(t, err)
	_, err = program.Kernel("missing")
	require.Error(t, err)

	data := make([]int32, 100)
	for i := range data {
		data[i] = int32(i)
	}
	buf, err := device.Wrap(rt, device.ReadWrite|device.CopyHostPtr, data)
	require.NoError(t, err)
	defer buf.Release()
	functor, err := device.Wrap(rt, device.ReadOnly|device.UseHostPtr, []struct{}{{}})
	require.NoError(t, err)

	q := rt.DefaultQueue()
	_, err = q.Enqueue(ctx, k, device.NDRange{Global: 128, Local: 64}, buf, functor, int32(len(data)))
	require.NoError(t, err)
	result := make([]int32, len(data))
	require.NoError(t, device.Read(ctx, q, buf, result))
	for i, x := range result {
		require.Equal(t, int32(2*i), x)
	}
	require.Equal(t, int32(99), data[99])
}

func TestBuildErrors(t *testing.T) {
	rt := emu.New(emu.WithDevices(2))
	ctx := context.Background()

	cases := []struct {
		name, text, options, log string
	}{
		{"brace", strings.Replace(doubleSource, "A[gid]);\n}", "A[gid]);\n", 1), "", "unterminated '{'"},
		{"paren", strings.Replace(doubleSource, "(*f)", "*f)", 1), "", "unexpected ')'"},
		{"entry", strings.Replace(doubleSource, "doubleInstantiated", "otherName", 1), "", "no kernel named 'doubleInstantiated'"},
		{"template", strings.Replace(doubleSource, "kernel void doubleTemplate(global T*", "kernel void tripleTemplate(global T*", 1), "", "no template named 'doubleTemplate'"},
		{"type", strings.Replace(doubleSource, "struct twice", "struct thrice", 1), "", "unknown type name 'twice'"},
		{"option", doubleSource, "-fancy", "invalid build option '-fancy'"},
		{"language", doubleSource, "-x cuda", "unsupported source language 'cuda'"},
		{"std", doubleSource, "-cl-std=CL9.9", "invalid value 'CL9.9'"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := rt.Build(ctx, source(c.text), device.BuildOptions{Options: c.options})
			var buildErr *device.BuildError
			require.True(t, errors.As(err, &buildErr), "%v", err)
			require.Len(t, buildErr.Logs, 2)
			for i, log := range buildErr.Logs {
				require.Equal(t, i, log.Device)
				require.Equal(t, device.BuildFailure, log.Status)
				require.Contains(t, log.Log, c.log)
			}
		})
	}

	commented := doubleSource + "\n// unbalanced in a comment: {{{\n/* and here ( */\nconst char* s = \"}\";\n"
	_, err := rt.Build(ctx, source(commented), device.BuildOptions{})
	require.NoError(t, err)

	src := source(doubleSource)
	src.Native = nil
	_, err = rt.Build(ctx, src, device.BuildOptions{Devices: []int{1}})
	var buildErr *device.BuildError
	require.True(t, errors.As(err, &buildErr))
	require.Len(t, buildErr.Logs, 1)
	require.Equal(t, "emu1", buildErr.Logs[0].DeviceName)

	_, err = rt.Build(ctx, source(doubleSource), device.BuildOptions{Devices: []int{2}})
	require.Error(t, err)
	require.Equal(t, int64(11), rt.Builds())
}

func TestSaveTemps(t *testing.T) {
	rt := emu.New()
	program, err := rt.Build(context.Background(), source(doubleSource), device.BuildOptions{Options: "-save-temps=accel -x clc++"})
	require.NoError(t, err)
	temps := program.Temps()
	require.Equal(t, doubleSource, temps["accel_double.cl"])
	require.NotContains(t, temps["accel_double.i"], "doubles every element")
}

func TestMemoryLimit(t *testing.T) {
	rt := emu.New(emu.WithMemoryLimit(1024))
	a, err := device.Alloc[float64](rt, device.ReadWrite, 100)
	require.NoError(t, err)
	require.Equal(t, int64(800), rt.Allocated())

	_, err = device.Alloc[float64](rt, device.ReadWrite, 100)
	var exhausted *device.ResourceExhaustionError
	require.True(t, errors.As(err, &exhausted))
	require.Equal(t, int64(800), exhausted.Requested)
	require.Equal(t, int64(224), exhausted.Available)

	shared, err := device.Wrap(rt, device.ReadOnly|device.UseHostPtr, make([]float64, 1000))
	require.NoError(t, err)
	shared.Release()

	a.Release()
	a.Release()
	require.Equal(t, int64(0), rt.Allocated())
}

func TestLocalMemoryAndPanics(t *testing.T) {
	rt := emu.New(emu.WithLocalMemSize(256))
	ctx := context.Background()
	src := source(doubleSource)
	src.Native = func(g *device.Group, args []any) {
		scratch := args[0].([]int64)
		g.Lanes(func(lid int) { scratch[lid] = int64(lid) })
		if g.ID == 1 {
			panic("lane fault")
		}
	}
	program, err := rt.Build(ctx, src, device.BuildOptions{})
	require.NoError(t, err)
	k, err := program.Kernel("doubleInstantiated")
	require.NoError(t, err)
	q := rt.DefaultQueue()

	_, err = q.Enqueue(ctx, k, device.NDRange{Global: 128, Local: 64}, device.NewLocal[int64](64))
	var exhausted *device.ResourceExhaustionError
	require.True(t, errors.As(err, &exhausted))
	require.Equal(t, "local memory", exhausted.Resource)

	event, err := q.Enqueue(ctx, k, device.NDRange{Global: 64, Local: 32}, device.NewLocal[int64](32))
	require.NoError(t, err)
	err = event.Wait(ctx)
	var launch *device.LaunchError
	require.True(t, errors.As(err, &launch))
	require.Equal(t, 1, launch.Group)
	require.Contains(t, launch.Error(), "lane fault")

	_, err = q.Enqueue(ctx, k, device.NDRange{Global: 100, Local: 64})
	require.Error(t, err)
	_, err = q.Enqueue(ctx, k, device.NDRange{Global: 512, Local: 512})
	require.Error(t, err)
}

func TestQueueOrder(t *testing.T) {
	rt := emu.New()
	ctx := context.Background()
	var mutex sync.Mutex
	var order []int
	src := source(doubleSource)
	src.Native = func(g *device.Group, args []any) {
		mutex.Lock()
		order = append(order, args[0].(int))
		mutex.Unlock()
	}
	program, err := rt.Build(ctx, src, device.BuildOptions{})
	require.NoError(t, err)
	k, _ := program.Kernel("doubleInstantiated")
	q, err := rt.NewQueue(0)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		_, err := q.Enqueue(ctx, k, device.NDRange{Global: 1, Local: 1}, i)
		require.NoError(t, err)
	}
	require.NoError(t, q.Finish(ctx))
	for i, x := range order {
		require.Equal(t, i, x)
	}
	require.Len(t, order, 20)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = q.Enqueue(cancelled, k, device.NDRange{Global: 1, Local: 1}, 0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDevices(t *testing.T) {
	rt := emu.New(emu.WithDevices(3), emu.WithComputeUnits(5), emu.WithName("sim"))
	devices := rt.Devices()
	require.Len(t, devices, 3)
	require.Equal(t, "sim2", devices[2].Name)
	require.Equal(t, 5, devices[2].ComputeUnits)
	require.Equal(t, emu.DefaultWaveSize, devices[0].WaveSize)
	require.Equal(t, device.OpenCL, rt.Dialect())
	_, err := rt.NewQueue(3)
	require.Error(t, err)
	require.Panics(t, func() { emu.New(emu.WithComputeUnits(0)) })
}

package device_test

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/exascience/accel/device"
)

type celsius float32

type point struct{ X, Y float32 }

func TestTypeName(t *testing.T) {
	name, err := device.TypeName[int32](device.OpenCL)
	require.NoError(t, err)
	require.Equal(t, "int", name)

	name, err = device.TypeName[float64](device.OpenCL)
	require.NoError(t, err)
	require.Equal(t, "double", name)

	name, err = device.TypeName[int](device.OpenCL)
	require.NoError(t, err)
	if strconv.IntSize == 64 {
		require.Equal(t, "long", name)
	}

	name, err = device.TypeName[celsius](device.WGSL)
	require.NoError(t, err)
	require.Equal(t, "f32", name)

	_, err = device.TypeName[float64](device.WGSL)
	require.Error(t, err)

	_, err = device.TypeName[point](device.OpenCL)
	require.Error(t, err)

	device.RegisterTypeName[point](device.OpenCL, "Point")
	name, err = device.TypeName[point](device.OpenCL)
	require.NoError(t, err)
	require.Equal(t, "Point", name)
}

func TestMemFlags(t *testing.T) {
	require.Equal(t, "0", device.MemFlags(0).String())
	require.Equal(t, "ReadOnly|UseHostPtr", (device.ReadOnly | device.UseHostPtr).String())
}

func TestNDRange(t *testing.T) {
	require.Equal(t, 16, device.NDRange{Global: 1024, Local: 64}.Groups())
	require.Equal(t, 0, device.NDRange{Global: 1024}.Groups())
	require.Equal(t, int64(64*8), device.NewLocal[float64](64).Size())
}

func TestGroup(t *testing.T) {
	g := &device.Group{ID: 2, Count: 4, Size: 8}
	require.Equal(t, 19, g.GlobalID(3))
	require.Equal(t, 32, g.GlobalSize())

	var lanes []int
	g.Lanes(func(lid int) { lanes = append(lanes, lid) })
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, lanes)
}

func TestErrors(t *testing.T) {
	err := &device.BuildError{Label: "reduce", Logs: []device.BuildLog{
		{Device: 0, DeviceName: "dev0", Status: device.BuildSuccess},
		{Device: 1, DeviceName: "dev1", Status: device.BuildFailure, Log: "1:2: error: expected '}'\nmore"},
	}}
	require.Equal(t, "device: build of reduce failed on dev1: 1:2: error: expected '}'", err.Error())

	cause := errors.New("index out of range")
	var launch error = &device.LaunchError{Kernel: "scan", Group: 3, Err: cause}
	require.ErrorIs(t, launch, cause)

	exhausted := &device.ResourceExhaustionError{Device: "emu0", Resource: "global memory", Requested: 10, Available: 4}
	require.Equal(t, "device: emu0 out of global memory: requested 10 bytes, 4 available", exhausted.Error())
}

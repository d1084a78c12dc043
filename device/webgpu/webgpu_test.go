//go:build webgpu

package webgpu_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/exascience/accel/control"
	"github.com/exascience/accel/device/webgpu"
	"github.com/exascience/accel/dispatch"
	"github.com/exascience/accel/functional"
	"github.com/exascience/accel/reduce"
	"github.com/exascience/accel/scan"
	"github.com/exascience/accel/sort"
	"github.com/exascience/accel/transform"
)

func newControl(t *testing.T) *control.Control {
	rt, err := webgpu.New()
	if err != nil {
		t.Skipf("no WebGPU device: %v", err)
	}
	t.Cleanup(rt.Release)
	ctl := control.New()
	ctl.SetRuntime(rt)
	ctl.SetMetrics(control.NewMetrics())
	ctl.SetRunMode(dispatch.ForceDevice)
	ctl.SetCompileOptions("")
	return ctl
}

func TestAlgorithms(t *testing.T) {
	ctl := newControl(t)
	ctx := context.Background()

	ones := make([]int32, 1024)
	for i := range ones {
		ones[i] = 1
	}
	out := make([]int32, len(ones))
	_, err := scan.InclusiveScanWithControl(ctx, ctl, ones, out, functional.Plus[int32]())
	require.NoError(t, err)
	for i, x := range out {
		require.Equal(t, int32(i+1), x)
	}

	sum, err := reduce.ReduceWithControl(ctx, ctl, out, 0, functional.Plus[int32]())
	require.NoError(t, err)
	require.Equal(t, int32(524800), sum)

	squares := make([]float32, 100)
	require.NoError(t, transform.TransformWithControl(ctx, ctl, make([]float32, 100), squares, functional.Square[float32]()))
	require.Equal(t, make([]float32, 100), squares)

	keys := make([]int32, 1000)
	for i := range keys {
		keys[i] = int32((i * 7919) % 1009)
	}
	require.NoError(t, sort.StableSortWithControl(ctx, ctl, keys, functional.Less[int32]()))
	require.True(t, sort.IsSorted(keys, functional.Less[int32]()))
}

package sort_test

import (
	"context"
	"fmt"
	"slices"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/exascience/accel/control"
	"github.com/exascience/accel/device"
	"github.com/exascience/accel/device/emu"
	"github.com/exascience/accel/dispatch"
	"github.com/exascience/accel/functional"
	"github.com/exascience/accel/sort"
)

var sizes = []int{0, 1, 2, 31, 63, 64, 65, 128, 129, 1000, 4096, 20000}

var modes = []dispatch.RunMode{dispatch.ForceSerial, dispatch.ForceMultiCore, dispatch.ForceDevice}

func newControl(options ...emu.Option) *control.Control {
	ctl := control.New()
	ctl.SetRuntime(emu.New(options...))
	ctl.SetMetrics(control.NewMetrics())
	ctl.SetLogger(zap.NewNop())
	ctl.SetDebug(0)
	ctl.SetCompileOptions("")
	ctl.SetRunMode(dispatch.Automatic)
	ctl.SetUseHost(true)
	ctl.SetTimeout(0)
	return ctl
}

func makeData(n int) []int32 {
	data := make([]int32, n)
	for i := range data {
		data[i] = int32((i*7919)%1009) - 500
	}
	return data
}

func TestSort(t *testing.T) {
	ctl := newControl(emu.WithComputeUnits(4))
	for _, mode := range modes {
		ctl.SetRunMode(mode)
		for _, n := range sizes {
			data := makeData(n)
			want := slices.Clone(data)
			slices.Sort(want)
			require.NoError(t, sort.SortWithControl(context.Background(), ctl, data, functional.Less[int32]()), "mode %v, n %v", mode, n)
			require.Equal(t, want, data, "mode %v, n %v", mode, n)

			data = makeData(n)
			require.NoError(t, sort.StableSortWithControl(context.Background(), ctl, data, functional.Less[int32]()), "mode %v, n %v", mode, n)
			require.Equal(t, want, data, "stable, mode %v, n %v", mode, n)
		}
	}
}

func TestSortDescending(t *testing.T) {
	ctl := newControl()
	for _, mode := range modes {
		ctl.SetRunMode(mode)
		data := makeData(3000)
		require.NoError(t, sort.SortWithControl(context.Background(), ctl, data, functional.Greater[int32]()))
		require.True(t, sort.IsSorted(data, functional.Greater[int32]()), "mode %v", mode)
		require.False(t, sort.IsSorted(data, functional.Less[int32]()), "mode %v", mode)
	}
}

func TestSortSorted(t *testing.T) {
	ctl := newControl()
	for _, mode := range modes {
		ctl.SetRunMode(mode)
		data := make([]int32, 5000)
		for i := range data {
			data[i] = int32(i / 3)
		}
		want := slices.Clone(data)
		require.NoError(t, sort.SortWithControl(context.Background(), ctl, data, functional.Less[int32]()))
		require.Equal(t, want, data, "mode %v", mode)
	}
}

type person struct {
	Age int32
	ID  int32
}

func byAge() functional.Compare[person] {
	return functional.NewCompare(func(x, y person) bool { return x.Age < y.Age }, map[device.Dialect]functional.Code{
		device.OpenCL: {
			TypeName: "byAge",
			Source: `struct person { int age; int id; };
struct byAge {
    bool operator()(const person &lhs, const person &rhs) const { return lhs.age < rhs.age; }
};`,
		},
	})
}

func TestStableSort(t *testing.T) {
	device.RegisterTypeName[person](device.OpenCL, "person")
	ctl := newControl()
	for _, mode := range modes {
		ctl.SetRunMode(mode)
		for _, n := range []int{100, 1000, 40000} {
			people := make([]person, n)
			for i := range people {
				people[i] = person{Age: int32((i * 31) % 17), ID: int32(i)}
			}
			want := slices.Clone(people)
			slices.SortStableFunc(want, func(x, y person) int { return int(x.Age - y.Age) })
			require.NoError(t, sort.StableSortWithControl(context.Background(), ctl, people, byAge()), "mode %v, n %v", mode, n)
			require.Equal(t, want, people, "mode %v, n %v", mode, n)
		}
	}
}

func TestIsSorted(t *testing.T) {
	less := functional.Less[int32]()
	require.True(t, sort.IsSorted([]int32{}, less))
	require.True(t, sort.IsSorted([]int32{3}, less))
	for _, n := range []int{100, 100000} {
		data := make([]int32, n)
		for i := range data {
			data[i] = int32(i / 2)
		}
		require.True(t, sort.IsSorted(data, less), "n %v", n)
		data[n/2], data[n/2+2] = data[n/2+2], data[n/2]
		require.False(t, sort.IsSorted(data, less), "n %v", n)
		data[n/2], data[n/2+2] = data[n/2+2], data[n/2]
		data[1], data[2] = 5, 4
		require.False(t, sort.IsSorted(data, less), "n %v", n)
	}
}

func TestSortLaunches(t *testing.T) {
	ctl := newControl()
	ctl.SetRunMode(dispatch.ForceDevice)
	launches := ctl.Metrics().Launches

	// One block needs no merges.
	data := makeData(64)
	require.NoError(t, sort.SortWithControl(context.Background(), ctl, data, functional.Less[int32]()))
	require.Equal(t, 1.0, testutil.ToFloat64(launches.WithLabelValues("sortBlockInstantiated")))
	require.Equal(t, 0.0, testutil.ToFloat64(launches.WithLabelValues("sortMergeInstantiated")))

	// Four blocks are merged with run widths 64 and 128.
	data = makeData(200)
	require.NoError(t, sort.SortWithControl(context.Background(), ctl, data, functional.Less[int32]()))
	require.True(t, slices.IsSorted(data))
	require.Equal(t, 2.0, testutil.ToFloat64(launches.WithLabelValues("sortBlockInstantiated")))
	require.Equal(t, 2.0, testutil.ToFloat64(launches.WithLabelValues("sortMergeInstantiated")))
}

func TestSortNoDeviceCode(t *testing.T) {
	ctl := newControl()
	less := functional.HostCompare(func(x, y int32) bool { return x < y })
	data := []int32{3, 1, 2}
	ctl.SetRunMode(dispatch.ForceDevice)
	require.ErrorIs(t, sort.SortWithControl(context.Background(), ctl, data, less), functional.ErrNoDeviceCode)
	require.Equal(t, []int32{3, 1, 2}, data)

	ctl.SetRunMode(dispatch.ForceSerial)
	require.NoError(t, sort.SortWithControl(context.Background(), ctl, data, less))
	require.Equal(t, []int32{1, 2, 3}, data)
}

func TestSortShortInputsSkipDispatch(t *testing.T) {
	ctl := newControl()
	ctl.SetRunMode(dispatch.ForceDevice)
	require.NoError(t, sort.SortWithControl(context.Background(), ctl, []int32{4}, functional.Less[int32]()))
	require.NoError(t, sort.StableSortWithControl(context.Background(), ctl, []int32(nil), functional.Less[int32]()))
	require.Equal(t, 0, testutil.CollectAndCount(ctl.Metrics().Dispatches))
}

func ExampleStableSort() {
	type entry struct {
		Key   int
		Value string
	}
	entries := []entry{{2, "b"}, {1, "x"}, {2, "a"}, {1, "y"}}
	err := sort.StableSort(entries, functional.HostCompare(func(x, y entry) bool { return x.Key < y.Key }))
	fmt.Println(entries, err)

	// Output:
	// [{1 x} {1 y} {2 b} {2 a}] <nil>
}

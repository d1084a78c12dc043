package functional_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/exascience/accel/device"
	"github.com/exascience/accel/functional"
)

func TestStandardFunctors(t *testing.T) {
	require.Equal(t, 7, functional.Plus[int]().Fn(3, 4))
	require.Equal(t, -1, functional.Minus[int]().Fn(3, 4))
	require.Equal(t, 12.0, functional.Multiplies[float64]().Fn(3, 4))
	require.Equal(t, uint8(4), functional.Maximum[uint8]().Fn(3, 4))
	require.Equal(t, int16(3), functional.Minimum[int16]().Fn(3, 4))
	require.Equal(t, float32(-2.5), functional.Negate[float32]().Fn(2.5))
	require.Equal(t, 9, functional.Square[int]().Fn(-3))
	require.Equal(t, 5, functional.Identity[int]().Fn(5))
	require.True(t, functional.Less[int]().Fn(3, 4))
	require.False(t, functional.Less[int]().Fn(4, 4))
	require.True(t, functional.Greater[float64]().Fn(4, 3))
}

func TestStandardCode(t *testing.T) {
	code, err := functional.Plus[int32]().Code(device.OpenCL)
	require.NoError(t, err)
	require.Equal(t, "plus<int>", code.TypeName)
	require.Contains(t, code.Source, "struct plus {")
	require.Contains(t, code.Source, "return lhs + rhs;")

	code, err = functional.Maximum[float32]().Code(device.WGSL)
	require.NoError(t, err)
	require.Equal(t, "maximum_f32", code.TypeName)
	require.Contains(t, code.Source, "fn maximum_f32(lhs: f32, rhs: f32) -> f32")

	code, err = functional.Square[uint32]().Code(device.WGSL)
	require.NoError(t, err)
	require.Equal(t, "square_u32", code.TypeName)

	code, err = functional.Less[int64]().Code(device.OpenCL)
	require.NoError(t, err)
	require.Equal(t, "less<long>", code.TypeName)
	require.Contains(t, code.Source, "bool operator()(const T &lhs, const T &rhs) const { return lhs < rhs; }")

	code, err = functional.Greater[int32]().Code(device.WGSL)
	require.NoError(t, err)
	require.Equal(t, "greater_i32", code.TypeName)
	require.Contains(t, code.Source, "fn greater_i32(lhs: i32, rhs: i32) -> bool")

	_, err = functional.Plus[float64]().Code(device.WGSL)
	require.True(t, errors.Is(err, functional.ErrNoDeviceCode))
}

func TestUserFunctors(t *testing.T) {
	saxpy := functional.NewBinary(func(x, y float32) float32 { return 2*x + y }, map[device.Dialect]functional.Code{
		device.OpenCL: {TypeName: "saxpy", Source: "struct saxpy { float operator()(float x, float y) const { return 2*x + y; } };"},
	})
	require.Equal(t, float32(7), saxpy.Fn(2, 3))
	code, err := saxpy.Code(device.OpenCL)
	require.NoError(t, err)
	require.Equal(t, "saxpy", code.TypeName)
	_, err = saxpy.Code(device.WGSL)
	require.ErrorIs(t, err, functional.ErrNoDeviceCode)

	hostOnly := functional.HostBinary(func(x, y string) string { return x + y })
	_, err = hostOnly.Code(device.OpenCL)
	require.ErrorIs(t, err, functional.ErrNoDeviceCode)

	_, err = functional.HostUnary(func(x int) string { return "" }).Code(device.OpenCL)
	require.ErrorIs(t, err, functional.ErrNoDeviceCode)

	_, err = functional.HostCompare(func(x, y string) bool { return x < y }).Code(device.OpenCL)
	require.ErrorIs(t, err, functional.ErrNoDeviceCode)

	lifted := functional.Lift(functional.Plus[int64]())
	require.Equal(t, int64(5), lifted.Fn(2, 3))
	code, err = lifted.Code(device.OpenCL)
	require.NoError(t, err)
	require.Equal(t, "plus<long>", code.TypeName)
}

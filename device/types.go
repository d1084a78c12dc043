package device

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"sync"
)

var builtinTypeNames = map[Dialect]map[reflect.Kind]string{
	OpenCL: {
		reflect.Int8:    "char",
		reflect.Uint8:   "uchar",
		reflect.Int16:   "short",
		reflect.Uint16:  "ushort",
		reflect.Int32:   "int",
		reflect.Uint32:  "uint",
		reflect.Int64:   "long",
		reflect.Uint64:  "ulong",
		reflect.Float32: "float",
		reflect.Float64: "double",
	},
	WGSL: {
		reflect.Int32:   "i32",
		reflect.Uint32:  "u32",
		reflect.Float32: "f32",
	},
}

func init() {
	cl := builtinTypeNames[OpenCL]
	if strconv.IntSize == 64 {
		cl[reflect.Int], cl[reflect.Uint] = "long", "ulong"
	} else {
		cl[reflect.Int], cl[reflect.Uint] = "int", "uint"
	}
}

var typeNames struct {
	sync.RWMutex
	m map[reflect.Type]map[Dialect]string
}

// RegisterTypeName records the name of type T in the given dialect. It
// is needed for user-defined types, such as structs, that device source
// refers to; the name must match the type definition in that source.
// RegisterTypeName overrides the built-in name of numeric types.
func RegisterTypeName[T any](d Dialect, name string) {
	t := reflect.TypeFor[T]()
	typeNames.Lock()
	defer typeNames.Unlock()
	if typeNames.m == nil {
		typeNames.m = make(map[reflect.Type]map[Dialect]string)
	}
	names := typeNames.m[t]
	if names == nil {
		names = make(map[Dialect]string)
		typeNames.m[t] = names
	}
	names[d] = name
}

// TypeName returns the name of type T in the given dialect: a
// registered name if present, otherwise the built-in name of its
// numeric kind.
func TypeName[T any](d Dialect) (string, error) {
	return TypeNameOf(reflect.TypeFor[T](), d)
}

// TypeNameOf is like TypeName, for a reflect.Type.
func TypeNameOf(t reflect.Type, d Dialect) (string, error) {
	typeNames.RLock()
	name, ok := typeNames.m[t][d]
	typeNames.RUnlock()
	if ok {
		return name, nil
	}
	if name, ok = builtinTypeNames[d][t.Kind()]; ok {
		return name, nil
	}
	return "", fmt.Errorf("device: no %v type name for %v", d, t)
}

// Alloc allocates a buffer for n elements of type T.
func Alloc[T any](rt Runtime, flags MemFlags, n int) (Buffer, error) {
	return rt.Alloc(flags, reflect.TypeFor[T](), n)
}

// Wrap makes host visible to kernels as a buffer. With UseHostPtr the
// buffer shares the memory of host where the runtime supports it; with
// CopyHostPtr the contents of host are copied into the buffer.
func Wrap[T any](rt Runtime, flags MemFlags, host []T) (Buffer, error) {
	return rt.Wrap(flags, host)
}

// Read copies the first len(dst) elements of b into dst and blocks
// until the copy has completed.
func Read[T any](ctx context.Context, q Queue, b Buffer, dst []T) error {
	event, err := q.Read(ctx, b, dst)
	if err != nil {
		return err
	}
	return event.Wait(ctx)
}

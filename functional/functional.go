// Package functional provides functors: Go functions paired with the
// device source that implements the same operation in each kernel
// dialect.
//
// The host execution paths call the Go function; the device path splices
// the functor's source in front of the algorithm template and refers to
// the functor by its type name. Both must compute the same result, which
// is the caller's responsibility for user-defined functors.
//
// Binary operators passed to reduce and scan must be associative.
// Reduction on the device additionally combines partial results in an
// order that differs from a left fold, so its operator must also be
// commutative.
package functional

import (
	"errors"
	"fmt"

	"github.com/exascience/accel/device"
)

// ErrNoDeviceCode is returned when a functor has no source for the
// dialect of a runtime.
var ErrNoDeviceCode = errors.New("functional: no device code")

// Code is the device side of a functor in one dialect: the definition of
// the functor type (or function, in dialects without templates) and the
// name by which kernels refer to it.
type Code struct {
	TypeName string
	Source   string
}

type codeFunc func(device.Dialect) (Code, error)

func staticCode(code map[device.Dialect]Code) codeFunc {
	return func(d device.Dialect) (Code, error) {
		if c, ok := code[d]; ok {
			return c, nil
		}
		return Code{}, fmt.Errorf("%w for dialect %v", ErrNoDeviceCode, d)
	}
}

// A Binary functor combines two values of type T.
type Binary[T any] struct {
	Fn   func(x, y T) T
	code codeFunc
}

// NewBinary returns a binary functor with the given device code per
// dialect.
func NewBinary[T any](fn func(x, y T) T, code map[device.Dialect]Code) Binary[T] {
	return Binary[T]{Fn: fn, code: staticCode(code)}
}

// HostBinary returns a binary functor without device code. It can only
// be used on the host paths.
func HostBinary[T any](fn func(x, y T) T) Binary[T] {
	return Binary[T]{Fn: fn}
}

// Code returns the device code of the functor for dialect d.
func (b Binary[T]) Code(d device.Dialect) (Code, error) {
	if b.code == nil {
		return Code{}, fmt.Errorf("%w for dialect %v", ErrNoDeviceCode, d)
	}
	return b.code(d)
}

// A Unary functor maps a value of type T to a value of type U.
type Unary[T, U any] struct {
	Fn   func(x T) U
	code codeFunc
}

// NewUnary returns a unary functor with the given device code per
// dialect.
func NewUnary[T, U any](fn func(x T) U, code map[device.Dialect]Code) Unary[T, U] {
	return Unary[T, U]{Fn: fn, code: staticCode(code)}
}

// HostUnary returns a unary functor without device code.
func HostUnary[T, U any](fn func(x T) U) Unary[T, U] {
	return Unary[T, U]{Fn: fn}
}

// Code returns the device code of the functor for dialect d.
func (u Unary[T, U]) Code(d device.Dialect) (Code, error) {
	if u.code == nil {
		return Code{}, fmt.Errorf("%w for dialect %v", ErrNoDeviceCode, d)
	}
	return u.code(d)
}

// A BinaryOf functor combines a value of type T1 and a value of type T2
// into a value of type U. It is used by binary transforms.
type BinaryOf[T1, T2, U any] struct {
	Fn   func(x T1, y T2) U
	code codeFunc
}

// NewBinaryOf returns a heterogeneous binary functor with the given
// device code per dialect.
func NewBinaryOf[T1, T2, U any](fn func(x T1, y T2) U, code map[device.Dialect]Code) BinaryOf[T1, T2, U] {
	return BinaryOf[T1, T2, U]{Fn: fn, code: staticCode(code)}
}

// Code returns the device code of the functor for dialect d.
func (b BinaryOf[T1, T2, U]) Code(d device.Dialect) (Code, error) {
	if b.code == nil {
		return Code{}, fmt.Errorf("%w for dialect %v", ErrNoDeviceCode, d)
	}
	return b.code(d)
}

// Lift turns a homogeneous binary functor into a BinaryOf functor, so
// that it can be used by binary transforms.
func Lift[T any](b Binary[T]) BinaryOf[T, T, T] {
	return BinaryOf[T, T, T]{Fn: b.Fn, code: b.code}
}

// A Compare functor reports whether x orders before y. It must be a
// strict weak ordering.
type Compare[T any] struct {
	Fn   func(x, y T) bool
	code codeFunc
}

// NewCompare returns a comparison functor with the given device code per
// dialect.
func NewCompare[T any](fn func(x, y T) bool, code map[device.Dialect]Code) Compare[T] {
	return Compare[T]{Fn: fn, code: staticCode(code)}
}

// HostCompare returns a comparison functor without device code.
func HostCompare[T any](fn func(x, y T) bool) Compare[T] {
	return Compare[T]{Fn: fn}
}

// Code returns the device code of the functor for dialect d.
func (c Compare[T]) Code(d device.Dialect) (Code, error) {
	if c.code == nil {
		return Code{}, fmt.Errorf("%w for dialect %v", ErrNoDeviceCode, d)
	}
	return c.code(d)
}

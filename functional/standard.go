package functional

import (
	"fmt"

	"github.com/exascience/accel"
	"github.com/exascience/accel/device"
)

// binaryTemplate returns the code of a standard binary functor. In
// OpenCL it is a class template instantiated at the value type; in WGSL
// it is a function whose name carries the value type.
func binaryTemplate[T any](name, clExpr, wgslExpr string) codeFunc {
	return func(d device.Dialect) (Code, error) {
		typeName, err := device.TypeName[T](d)
		if err != nil {
			return Code{}, fmt.Errorf("%w: %v", ErrNoDeviceCode, err)
		}
		switch d {
		case device.OpenCL:
			return Code{
				TypeName: fmt.Sprintf("%v<%v>", name, typeName),
				Source: fmt.Sprintf("template<typename T>\nstruct %v {\n    T operator()(const T &lhs, const T &rhs) const { return %v; }\n};\n",
					name, clExpr),
			}, nil
		case device.WGSL:
			fn := fmt.Sprintf("%v_%v", name, typeName)
			return Code{
				TypeName: fn,
				Source: fmt.Sprintf("fn %v(lhs: %v, rhs: %v) -> %v {\n    return %v;\n}\n",
					fn, typeName, typeName, typeName, wgslExpr),
			}, nil
		}
		return Code{}, fmt.Errorf("%w for dialect %v", ErrNoDeviceCode, d)
	}
}

func unaryTemplate[T any](name, clExpr, wgslExpr string) codeFunc {
	return func(d device.Dialect) (Code, error) {
		typeName, err := device.TypeName[T](d)
		if err != nil {
			return Code{}, fmt.Errorf("%w: %v", ErrNoDeviceCode, err)
		}
		switch d {
		case device.OpenCL:
			return Code{
				TypeName: fmt.Sprintf("%v<%v>", name, typeName),
				Source: fmt.Sprintf("template<typename T>\nstruct %v {\n    T operator()(const T &x) const { return %v; }\n};\n",
					name, clExpr),
			}, nil
		case device.WGSL:
			fn := fmt.Sprintf("%v_%v", name, typeName)
			return Code{
				TypeName: fn,
				Source:   fmt.Sprintf("fn %v(x: %v) -> %v {\n    return %v;\n}\n", fn, typeName, typeName, wgslExpr),
			}, nil
		}
		return Code{}, fmt.Errorf("%w for dialect %v", ErrNoDeviceCode, d)
	}
}

func compareTemplate[T any](name, expr string) codeFunc {
	return func(d device.Dialect) (Code, error) {
		typeName, err := device.TypeName[T](d)
		if err != nil {
			return Code{}, fmt.Errorf("%w: %v", ErrNoDeviceCode, err)
		}
		switch d {
		case device.OpenCL:
			return Code{
				TypeName: fmt.Sprintf("%v<%v>", name, typeName),
				Source: fmt.Sprintf("template<typename T>\nstruct %v {\n    bool operator()(const T &lhs, const T &rhs) const { return %v; }\n};\n",
					name, expr),
			}, nil
		case device.WGSL:
			fn := fmt.Sprintf("%v_%v", name, typeName)
			return Code{
				TypeName: fn,
				Source:   fmt.Sprintf("fn %v(lhs: %v, rhs: %v) -> bool {\n    return %v;\n}\n", fn, typeName, typeName, expr),
			}, nil
		}
		return Code{}, fmt.Errorf("%w for dialect %v", ErrNoDeviceCode, d)
	}
}

// Plus returns the functor x + y.
func Plus[T accel.Number]() Binary[T] {
	return Binary[T]{
		Fn:   func(x, y T) T { return x + y },
		code: binaryTemplate[T]("plus", "lhs + rhs", "lhs + rhs"),
	}
}

// Minus returns the functor x - y.
func Minus[T accel.Number]() Binary[T] {
	return Binary[T]{
		Fn:   func(x, y T) T { return x - y },
		code: binaryTemplate[T]("minus", "lhs - rhs", "lhs - rhs"),
	}
}

// Multiplies returns the functor x * y.
func Multiplies[T accel.Number]() Binary[T] {
	return Binary[T]{
		Fn:   func(x, y T) T { return x * y },
		code: binaryTemplate[T]("multiplies", "lhs * rhs", "lhs * rhs"),
	}
}

// Maximum returns the functor max(x, y).
func Maximum[T accel.Number]() Binary[T] {
	return Binary[T]{
		Fn:   func(x, y T) T { return max(x, y) },
		code: binaryTemplate[T]("maximum", "(lhs < rhs) ? rhs : lhs", "max(lhs, rhs)"),
	}
}

// Minimum returns the functor min(x, y).
func Minimum[T accel.Number]() Binary[T] {
	return Binary[T]{
		Fn:   func(x, y T) T { return min(x, y) },
		code: binaryTemplate[T]("minimum", "(rhs < lhs) ? rhs : lhs", "min(lhs, rhs)"),
	}
}

// Negate returns the functor -x.
func Negate[T accel.Signed | accel.Float]() Unary[T, T] {
	return Unary[T, T]{
		Fn:   func(x T) T { return -x },
		code: unaryTemplate[T]("negate", "-x", "-x"),
	}
}

// Square returns the functor x * x.
func Square[T accel.Number]() Unary[T, T] {
	return Unary[T, T]{
		Fn:   func(x T) T { return x * x },
		code: unaryTemplate[T]("square", "x * x", "x * x"),
	}
}

// Identity returns the functor x.
func Identity[T accel.Number]() Unary[T, T] {
	return Unary[T, T]{
		Fn:   func(x T) T { return x },
		code: unaryTemplate[T]("identity", "x", "x"),
	}
}

// Less returns the comparison x < y.
func Less[T accel.Number]() Compare[T] {
	return Compare[T]{
		Fn:   func(x, y T) bool { return x < y },
		code: compareTemplate[T]("less", "lhs < rhs"),
	}
}

// Greater returns the comparison x > y.
func Greater[T accel.Number]() Compare[T] {
	return Compare[T]{
		Fn:   func(x, y T) bool { return x > y },
		code: compareTemplate[T]("greater", "lhs > rhs"),
	}
}

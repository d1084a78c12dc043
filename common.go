package accel

import "fmt"

type (
	// Signed is a constraint that permits any signed integer type.
	Signed interface {
		~int | ~int8 | ~int16 | ~int32 | ~int64
	}

	// Unsigned is a constraint that permits any unsigned integer type.
	Unsigned interface {
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
	}

	// Integer is a constraint that permits any integer type.
	Integer interface {
		Signed | Unsigned
	}

	// Float is a constraint that permits any floating-point type.
	Float interface {
		~float32 | ~float64
	}

	// Number is a constraint that permits any integer or floating-point
	// type. The standard arithmetic functors are defined for numbers.
	Number interface {
		Integer | Float
	}
)

// A SizeMismatchError is returned when an output range is shorter than the
// number of elements an algorithm has to write.
type SizeMismatchError struct {
	Algorithm string
	Have      int
	Want      int
}

func (err *SizeMismatchError) Error() string {
	return fmt.Sprintf("accel: %v: output range holds %v elements, need %v", err.Algorithm, err.Have, err.Want)
}

// CheckOutput returns a *SizeMismatchError if have < want.
func CheckOutput(algorithm string, have, want int) error {
	if have < want {
		return &SizeMismatchError{Algorithm: algorithm, Have: have, Want: want}
	}
	return nil
}

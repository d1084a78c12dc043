package kernel

import (
	"encoding/binary"
	"encoding/hex"
	"reflect"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm names of the kernels the accel algorithms compile. The entry
// point of a kernel is its algorithm name followed by "Instantiated".
const (
	Reduce          = "reduce"
	TransformReduce = "transformReduce"
	Scan            = "scan"
	ScanCarry       = "scanCarry"
	Transform       = "transform"
	BinaryTransform = "binaryTransform"
	SortBlock       = "sortBlock"
	SortMerge       = "sortMerge"
)

// A Key identifies a compiled kernel: the algorithm, the value type(s),
// and the functor type(s), all as named in the device dialect. Kernels
// with several value or functor types join the names with ", ".
//
// Host names the Go types the kernel is instantiated for. Distinct Go
// types can share a device type name, such as int and int64 on 64-bit
// hosts, and their native implementations differ.
type Key struct {
	Algorithm   string
	ValueType   string
	FunctorType string
	Host        string
}

// Join joins type names for a Key field.
func Join(names ...string) string {
	return strings.Join(names, ", ")
}

// HostOf returns the Host field for a kernel over the given Go types.
func HostOf(types ...reflect.Type) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.String()
	}
	return Join(names...)
}

func (k Key) sum() [32]byte {
	var buf []byte
	for _, s := range [...]string{k.Algorithm, k.ValueType, k.FunctorType, k.Host} {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
		buf = append(buf, s...)
	}
	return blake3.Sum256(buf)
}

// Hash returns a hash of the key, which selects its split in the cache.
func (k Key) Hash() uint64 {
	sum := k.sum()
	return binary.LittleEndian.Uint64(sum[:8])
}

// Digest returns a short stable hexadecimal digest of the key.
func (k Key) Digest() string {
	sum := k.sum()
	return hex.EncodeToString(sum[:6])
}

// EntryPoint returns the name of the instantiated kernel.
func (k Key) EntryPoint() string {
	return k.Algorithm + "Instantiated"
}

// Label returns a name for the key that is usable in file names.
func (k Key) Label() string {
	return k.Algorithm + "_" + k.Digest()
}

func (k Key) String() string {
	return k.Algorithm + "<" + k.ValueType + ", " + k.FunctorType + ">"
}

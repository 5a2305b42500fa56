// Package tensor provides the float32 tensor type shared by the network, the
// checkpoint readers and the export pipeline.
package tensor

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// DataType represents the element type of serialized tensor data.
//
// In memory every tensor is float32; the other types only appear in files
// (checkpoints written by other frameworks) and are converted on load.
type DataType int

// Supported data types.
const (
	Float32 DataType = iota
	Float64
	Float16
	BFloat16
	Int32
	Int64
	Uint8
	Bool
)

// Size returns the byte size of one element.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	case Float16, BFloat16:
		return 2
	case Uint8, Bool:
		return 1
	default:
		panic("unknown data type")
	}
}

// String returns the lower-case name used in JSON headers.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Float16:
		return "float16"
	case BFloat16:
		return "bfloat16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// IsFloat reports whether the type can be converted to float32 without
// reinterpretation.
func (dt DataType) IsFloat() bool {
	switch dt {
	case Float32, Float64, Float16, BFloat16:
		return true
	default:
		return false
	}
}

// ParseDataType converts the JSON name back to a DataType.
func ParseDataType(s string) (DataType, bool) {
	switch s {
	case "float32":
		return Float32, true
	case "float64":
		return Float64, true
	case "float16":
		return Float16, true
	case "bfloat16":
		return BFloat16, true
	case "int32":
		return Int32, true
	case "int64":
		return Int64, true
	case "uint8":
		return Uint8, true
	case "bool":
		return Bool, true
	default:
		return 0, false
	}
}

// DecodeFloat32 converts little-endian encoded floats of type dt into float32.
// Float32 input is reproduced bit-for-bit.
func DecodeFloat32(data []byte, dt DataType) ([]float32, error) {
	if !dt.IsFloat() {
		return nil, errors.Errorf("cannot decode %s data as float32", dt)
	}
	size := dt.Size()
	if len(data)%size != 0 {
		return nil, errors.Errorf("%d bytes is not a multiple of the %s element size %d", len(data), dt, size)
	}
	out := make([]float32, len(data)/size)
	for i := range out {
		chunk := data[i*size : (i+1)*size]
		switch dt {
		case Float32:
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(chunk))
		case Float64:
			out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(chunk)))
		case Float16:
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(chunk)).Float32()
		case BFloat16:
			out[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(chunk)) << 16)
		}
	}
	return out, nil
}

// EncodeFloat32 appends the little-endian encoding of values to dst.
func EncodeFloat32(dst []byte, values []float32) []byte {
	for _, v := range values {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

package tensor

import (
	"fmt"
	"math"
	"math/rand"
)

// RawTensor is a dense, row-major float32 tensor.
//
// The network only ever computes in float32, and the interchange format is
// float32 by contract, so there is no per-element type dispatch here.
type RawTensor struct {
	shape  Shape
	stride []int
	data   []float32
}

// NewRaw creates a zero-filled tensor with the given shape.
func NewRaw(shape Shape) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	return &RawTensor{
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		data:   make([]float32, shape.NumElements()),
	}, nil
}

// FromFloat32 creates a tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromFloat32(data []float32, shape Shape) (*RawTensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", []int(shape), shape.NumElements(), len(data))
	}
	t, err := NewRaw(shape)
	if err != nil {
		return nil, err
	}
	copy(t.data, data)
	return t, nil
}

// MustRaw is NewRaw for shapes known to be valid at compile time.
func MustRaw(shape Shape) *RawTensor {
	t, err := NewRaw(shape)
	if err != nil {
		panic(err)
	}
	return t
}

// Randn returns a tensor filled with standard-normal samples drawn from rng.
// Uses the Box-Muller transform.
func Randn(shape Shape, rng *rand.Rand) *RawTensor {
	t := MustRaw(shape)
	data := t.data
	for i := 0; i < len(data); i += 2 {
		u1 := rng.Float64()
		if u1 == 0 {
			u1 = math.SmallestNonzeroFloat64
		}
		u2 := rng.Float64()
		r := math.Sqrt(-2.0 * math.Log(u1))
		data[i] = float32(r * math.Cos(2.0*math.Pi*u2))
		if i+1 < len(data) {
			data[i+1] = float32(r * math.Sin(2.0*math.Pi*u2))
		}
	}
	return t
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's memory strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return len(r.data)
}

// ByteSize returns the serialized size in bytes.
func (r *RawTensor) ByteSize() int {
	return len(r.data) * Float32.Size()
}

// Data returns the underlying values. Mutating the slice mutates the tensor.
func (r *RawTensor) Data() []float32 {
	return r.data
}

// Bytes returns the little-endian encoding of the values.
func (r *RawTensor) Bytes() []byte {
	return EncodeFloat32(make([]byte, 0, r.ByteSize()), r.data)
}

// At returns the element at the given multi-dimensional index.
func (r *RawTensor) At(index ...int) float32 {
	if len(index) != len(r.shape) {
		panic(fmt.Sprintf("tensor: index rank %d != tensor rank %d", len(index), len(r.shape)))
	}
	flat := 0
	for i, idx := range index {
		if idx < 0 || idx >= r.shape[i] {
			panic(fmt.Sprintf("tensor: index %d out of range for dimension %d of size %d", idx, i, r.shape[i]))
		}
		flat += idx * r.stride[i]
	}
	return r.data[flat]
}

// Clone returns a deep copy.
func (r *RawTensor) Clone() *RawTensor {
	return &RawTensor{
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		data:   append([]float32(nil), r.data...),
	}
}

// Reshape returns a view with a new shape sharing the same data.
func (r *RawTensor) Reshape(shape Shape) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if shape.NumElements() != len(r.data) {
		return nil, fmt.Errorf("cannot reshape %v (%d elements) to %v (%d elements)",
			[]int(r.shape), len(r.data), []int(shape), shape.NumElements())
	}
	return &RawTensor{
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		data:   r.data,
	}, nil
}

// Squeeze0 drops a leading batch dimension of size 1.
func (r *RawTensor) Squeeze0() *RawTensor {
	if len(r.shape) < 2 || r.shape[0] != 1 {
		return r
	}
	out, err := r.Reshape(r.shape[1:])
	if err != nil {
		panic(err)
	}
	return out
}

// String returns a short description (shape only).
func (r *RawTensor) String() string {
	return fmt.Sprintf("RawTensor(shape=%v)", []int(r.shape))
}

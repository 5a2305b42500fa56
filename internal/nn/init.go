package nn

import (
	"math"
	"math/rand"

	"github.com/badgecnn/bridge/internal/tensor"
)

// Xavier (Glorot) initialization for weights.
//
// Initializes weights with values drawn from a uniform distribution:
// U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out)))
//
// rng makes initialization reproducible; a freshly initialized network is
// what `badgecnn init` writes as a starting checkpoint.
func Xavier(fanIn, fanOut int, shape tensor.Shape, rng *rand.Rand) *tensor.RawTensor {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))

	t := tensor.MustRaw(shape)
	data := t.Data()
	for i := range data {
		//nolint:gosec // Using math/rand for weight initialization (not security-critical)
		data[i] = float32((rng.Float64()*2.0 - 1.0) * bound)
	}
	return t
}

// Zeros creates a zero-filled tensor. Used for bias and running-mean init.
func Zeros(shape tensor.Shape) *tensor.RawTensor {
	return tensor.MustRaw(shape)
}

// Ones creates a tensor filled with ones. Used for batch-norm scale and
// running-variance init.
func Ones(shape tensor.Shape) *tensor.RawTensor {
	t := tensor.MustRaw(shape)
	for i := range t.Data() {
		t.Data()[i] = 1
	}
	return t
}

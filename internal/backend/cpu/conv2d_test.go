package cpu

import (
	"math/rand"
	"testing"

	"github.com/badgecnn/bridge/internal/parallel"
	"github.com/badgecnn/bridge/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(shape tensor.Shape) *tensor.RawTensor {
	raw := tensor.MustRaw(shape)
	for i := range raw.Data() {
		raw.Data()[i] = float32(i + 1)
	}
	return raw
}

func fill(shape tensor.Shape, v float32) *tensor.RawTensor {
	raw := tensor.MustRaw(shape)
	for i := range raw.Data() {
		raw.Data()[i] = v
	}
	return raw
}

// TestConv2D_BasicForward checks a diagonal 2x2 kernel over a 3x3 image.
func TestConv2D_BasicForward(t *testing.T) {
	backend := New()

	// 1 2 3
	// 4 5 6
	// 7 8 9
	input := seq(tensor.Shape{1, 1, 3, 3})
	kernel, err := tensor.FromFloat32([]float32{1, 0, 0, 1}, tensor.Shape{1, 1, 2, 2})
	require.NoError(t, err)

	output := backend.Conv2D(input, kernel, nil, 1, 0)

	require.Equal(t, tensor.Shape{1, 1, 2, 2}, output.Shape())
	assert.Equal(t, []float32{6, 8, 12, 14}, output.Data())
}

// TestConv2D_WithPaddingAndBias checks zero padding and the per-channel bias.
func TestConv2D_WithPaddingAndBias(t *testing.T) {
	backend := New()

	input := fill(tensor.Shape{1, 1, 3, 3}, 1)
	kernel := fill(tensor.Shape{2, 1, 3, 3}, 1)
	bias, err := tensor.FromFloat32([]float32{0, 10}, tensor.Shape{2})
	require.NoError(t, err)

	output := backend.Conv2D(input, kernel, bias, 1, 1)

	require.Equal(t, tensor.Shape{1, 2, 3, 3}, output.Shape())
	// Number of in-bounds neighbours per position: corners 4, edges 6, center 9.
	neighbours := []float32{4, 6, 4, 6, 9, 6, 4, 6, 4}
	assert.Equal(t, neighbours, output.Data()[:9])
	for i, n := range neighbours {
		assert.Equal(t, n+10, output.Data()[9+i])
	}
}

// TestConv2D_BatchAndChannels checks that batch elements are independent and
// input channels are summed.
func TestConv2D_BatchAndChannels(t *testing.T) {
	backend := New()

	input := tensor.MustRaw(tensor.Shape{2, 2, 2, 2})
	data := input.Data()
	for i := 0; i < 8; i++ {
		data[i] = 1 // batch 0: all ones
	}
	for i := 8; i < 16; i++ {
		data[i] = 2 // batch 1: all twos
	}
	kernel := fill(tensor.Shape{1, 2, 1, 1}, 0.5)

	output := backend.Conv2D(input, kernel, nil, 1, 0)

	require.Equal(t, tensor.Shape{2, 1, 2, 2}, output.Shape())
	assert.Equal(t, []float32{1, 1, 1, 1, 2, 2, 2, 2}, output.Data())
}

func TestConv2D_Stride(t *testing.T) {
	backend := New()
	input := seq(tensor.Shape{1, 1, 4, 4})
	kernel := fill(tensor.Shape{1, 1, 1, 1}, 1)

	output := backend.Conv2D(input, kernel, nil, 2, 0)

	require.Equal(t, tensor.Shape{1, 1, 2, 2}, output.Shape())
	assert.Equal(t, []float32{1, 3, 9, 11}, output.Data())
}

func TestConv2D_ShapeErrors(t *testing.T) {
	backend := New()
	assert.Panics(t, func() {
		backend.Conv2D(tensor.MustRaw(tensor.Shape{1, 3, 4}), tensor.MustRaw(tensor.Shape{1, 3, 3, 3}), nil, 1, 0)
	})
	assert.Panics(t, func() {
		backend.Conv2D(tensor.MustRaw(tensor.Shape{1, 2, 4, 4}), tensor.MustRaw(tensor.Shape{1, 3, 3, 3}), nil, 1, 0)
	})
	assert.Panics(t, func() {
		backend.Conv2D(tensor.MustRaw(tensor.Shape{1, 1, 2, 2}), tensor.MustRaw(tensor.Shape{1, 1, 3, 3}), nil, 1, 0)
	})
}

// TestConv2D_ParallelMatchesSequential checks that splitting output channels
// across workers gives bit-identical results.
func TestConv2D_ParallelMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	input := tensor.Randn(tensor.Shape{2, 16, 12, 12}, rng)
	kernel := tensor.Randn(tensor.Shape{64, 16, 3, 3}, rng)
	bias := tensor.Randn(tensor.Shape{64}, rng)

	sequential := NewWithConfig(parallel.Sequential()).Conv2D(input, kernel, bias, 1, 1)
	parallelOut := NewWithConfig(parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 8}).
		Conv2D(input, kernel, bias, 1, 1)
	assert.Equal(t, sequential.Data(), parallelOut.Data())
}

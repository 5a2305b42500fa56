package cpu

import (
	"testing"

	"github.com/badgecnn/bridge/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxPool2D_Values(t *testing.T) {
	backend := New()
	input := seq(tensor.Shape{1, 1, 4, 4})

	output := backend.MaxPool2D(input, 2, 2)

	require.Equal(t, tensor.Shape{1, 1, 2, 2}, output.Shape())
	assert.Equal(t, []float32{6, 8, 14, 16}, output.Data())
}

func TestMaxPool2D_NegativeInputs(t *testing.T) {
	backend := New()
	input, err := tensor.FromFloat32([]float32{-5, -3, -4, -9}, tensor.Shape{1, 1, 2, 2})
	require.NoError(t, err)

	output := backend.MaxPool2D(input, 2, 2)

	assert.Equal(t, []float32{-3}, output.Data())
}

func TestMaxPool2D_HalvesBadgeStages(t *testing.T) {
	backend := New()
	for _, tc := range []struct {
		in, out tensor.Shape
	}{
		{tensor.Shape{1, 16, 64, 64}, tensor.Shape{1, 16, 32, 32}},
		{tensor.Shape{1, 64, 8, 8}, tensor.Shape{1, 64, 4, 4}},
	} {
		output := backend.MaxPool2D(tensor.MustRaw(tc.in), 2, 2)
		assert.Equal(t, tc.out, output.Shape())
	}
}

func TestMaxPool2D_InvalidArgs(t *testing.T) {
	backend := New()
	assert.Panics(t, func() { backend.MaxPool2D(tensor.MustRaw(tensor.Shape{1, 1, 4, 4}), 0, 2) })
	assert.Panics(t, func() { backend.MaxPool2D(tensor.MustRaw(tensor.Shape{1, 1, 4, 4}), 2, 0) })
	assert.Panics(t, func() { backend.MaxPool2D(tensor.MustRaw(tensor.Shape{1, 1, 1, 1}), 2, 2) })
	assert.Panics(t, func() { backend.MaxPool2D(tensor.MustRaw(tensor.Shape{4, 4}), 2, 2) })
}

func TestGlobalAvgPool2D(t *testing.T) {
	backend := New()
	input := seq(tensor.Shape{1, 2, 2, 2})

	output := backend.GlobalAvgPool2D(input)

	require.Equal(t, tensor.Shape{1, 2, 1, 1}, output.Shape())
	assert.Equal(t, []float32{2.5, 6.5}, output.Data())
}

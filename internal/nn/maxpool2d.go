package nn

import (
	"fmt"

	"github.com/badgecnn/bridge/internal/tensor"
)

// MaxPool2D is a 2D max pooling layer. It has no learnable parameters.
//
// Input shape:  [batch, channels, height, width]
// Output shape: [batch, channels, out_height, out_width]
//
//	out_height = (height - kernelSize) / stride + 1
//	out_width = (width - kernelSize) / stride + 1
type MaxPool2D struct {
	kernelSize int
	stride     int
	backend    Backend
}

// NewMaxPool2D creates a new 2D max pooling layer.
//
// NewMaxPool2D(2, 2, backend) halves both spatial dimensions.
func NewMaxPool2D(kernelSize, stride int, backend Backend) *MaxPool2D {
	if kernelSize <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid kernel size %d", kernelSize))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid stride %d", stride))
	}
	return &MaxPool2D{kernelSize: kernelSize, stride: stride, backend: backend}
}

// Forward performs the forward pass.
func (m *MaxPool2D) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	return m.backend.MaxPool2D(input, m.kernelSize, m.stride)
}

// Parameters returns nil (MaxPool2D has no learnable parameters).
func (m *MaxPool2D) Parameters() []*Parameter {
	return nil
}

// String returns a string representation of the layer.
func (m *MaxPool2D) String() string {
	return fmt.Sprintf("MaxPool2D(kernel_size=%d, stride=%d)", m.kernelSize, m.stride)
}

// GlobalAvgPool2D averages each channel plane and flattens the result:
// [N, C, H, W] -> [N, C].
type GlobalAvgPool2D struct {
	backend Backend
}

// NewGlobalAvgPool2D creates a global average pooling layer.
func NewGlobalAvgPool2D(backend Backend) *GlobalAvgPool2D {
	return &GlobalAvgPool2D{backend: backend}
}

// Forward performs the forward pass.
func (g *GlobalAvgPool2D) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	pooled := g.backend.GlobalAvgPool2D(input)
	shape := pooled.Shape()
	flat, err := pooled.Reshape(tensor.Shape{shape[0], shape[1]})
	if err != nil {
		panic(err)
	}
	return flat
}

// Parameters returns nil.
func (g *GlobalAvgPool2D) Parameters() []*Parameter {
	return nil
}

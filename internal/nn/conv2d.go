package nn

import (
	"fmt"
	"math/rand"

	"github.com/badgecnn/bridge/internal/tensor"
)

// Conv2D is a 2D convolutional layer with bias.
//
// Input shape:  [batch, in_channels, height, width]
// Weight shape: [out_channels, in_channels, kernel, kernel]
// Bias shape:   [out_channels]
// Output shape: [batch, out_channels, out_h, out_w]
//
// Where:
//
//	out_h = (height + 2*padding - kernel) / stride + 1
//	out_w = (width + 2*padding - kernel) / stride + 1
//
// Example:
//
//	conv := nn.NewConv2D("conv1", 1, 16, 3, 1, 1, backend, rng)
//	output := conv.Forward(input) // [N, 1, 64, 64] -> [N, 16, 64, 64]
type Conv2D struct {
	inChannels  int
	outChannels int
	kernelSize  int
	stride      int
	padding     int

	weight *Parameter // [out_channels, in_channels, kernel, kernel]
	bias   *Parameter // [out_channels]

	backend Backend
}

// NewConv2D creates a new 2D convolutional layer with Xavier initialization.
// Parameters are named "<name>.weight" and "<name>.bias".
func NewConv2D(name string, inChannels, outChannels, kernelSize, stride, padding int, backend Backend, rng *rand.Rand) *Conv2D {
	if inChannels <= 0 || outChannels <= 0 {
		panic(fmt.Sprintf("conv2d: invalid channels in=%d, out=%d", inChannels, outChannels))
	}
	if kernelSize <= 0 {
		panic(fmt.Sprintf("conv2d: invalid kernel size %d", kernelSize))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("conv2d: invalid stride %d", stride))
	}
	if padding < 0 {
		panic(fmt.Sprintf("conv2d: invalid padding %d", padding))
	}

	// fan_in = in_channels * k * k, fan_out = out_channels * k * k
	fanIn := inChannels * kernelSize * kernelSize
	fanOut := outChannels * kernelSize * kernelSize
	weight := Xavier(fanIn, fanOut, tensor.Shape{outChannels, inChannels, kernelSize, kernelSize}, rng)

	return &Conv2D{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      stride,
		padding:     padding,
		weight:      NewParameter(name+".weight", weight),
		bias:        NewParameter(name+".bias", Zeros(tensor.Shape{outChannels})),
		backend:     backend,
	}
}

// Forward performs the forward pass.
func (c *Conv2D) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: expected 4D input [N,C,H,W], got %dD", len(inputShape)))
	}
	if inputShape[1] != c.inChannels {
		panic(fmt.Sprintf("conv2d: input channels %d != expected %d", inputShape[1], c.inChannels))
	}
	return c.backend.Conv2D(input, c.weight.Tensor(), c.bias.Tensor(), c.stride, c.padding)
}

// Parameters returns weight and bias.
func (c *Conv2D) Parameters() []*Parameter {
	return []*Parameter{c.weight, c.bias}
}

// Weight returns the weight parameter.
func (c *Conv2D) Weight() *Parameter {
	return c.weight
}

// Bias returns the bias parameter.
func (c *Conv2D) Bias() *Parameter {
	return c.bias
}

// String returns a string representation of the layer.
func (c *Conv2D) String() string {
	return fmt.Sprintf("Conv2D(in_channels=%d, out_channels=%d, kernel_size=%d, stride=%d, padding=%d)",
		c.inChannels, c.outChannels, c.kernelSize, c.stride, c.padding)
}

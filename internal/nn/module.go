// Package nn implements the inference-only network modules of the badge
// classifier.
//
// This package provides:
//   - Module interface: Forward plus ordered named parameters
//   - Parameter: a named tensor owned by a layer
//   - Conv2D, BatchNorm2D, ReLU, MaxPool2D, GlobalAvgPool2D, Linear (flattens its input)
//   - Sequential: container that chains modules
//   - StateDict / LoadStateDict: ordered save and strict restore
//
// Every parameter carries its fully qualified name ("conv1.weight") from the
// moment its layer is constructed, so Parameters() is already the ordered
// named stream the exporter consumes.
package nn

import (
	"github.com/badgecnn/bridge/internal/tensor"
)

// Backend is the set of kernels the modules need.
// The cpu backend implements it.
type Backend interface {
	Conv2D(input, kernel, bias *tensor.RawTensor, stride, padding int) *tensor.RawTensor
	BatchNorm2D(input, weight, bias, mean, variance *tensor.RawTensor, eps float32) *tensor.RawTensor
	MaxPool2D(input *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor
	GlobalAvgPool2D(input *tensor.RawTensor) *tensor.RawTensor
	ReLU(input *tensor.RawTensor) *tensor.RawTensor
	Linear(input, weight, bias *tensor.RawTensor) *tensor.RawTensor
}

// Module is the base interface for all network components.
//
// Modules compose:
//
//	block := nn.NewSequential("conv1",
//	    nn.NewConv2D("conv1", 1, 16, 3, 1, 1, backend, rng),
//	    nn.NewBatchNorm2D("batchnorm1", 16, backend),
//	    nn.NewReLU(backend),
//	    nn.NewMaxPool2D(2, 2, backend),
//	)
type Module interface {
	// Forward computes the output of the module for an NCHW (or [N, F]) input.
	Forward(input *tensor.RawTensor) *tensor.RawTensor

	// Parameters returns the trainable tensors in declaration order.
	// Modules without parameters return nil.
	Parameters() []*Parameter
}

// Buffered is implemented by modules that also hold non-trainable state,
// such as batch-norm running statistics.
type Buffered interface {
	Buffers() []*Parameter
}

// NamedTensor pairs a fully qualified name with a tensor.
// Slices of NamedTensor keep declaration order, unlike a map state dict.
type NamedTensor struct {
	Name   string
	Tensor *tensor.RawTensor
}

// NumElements sums the element counts of all tensors.
func NumElements(tensors []NamedTensor) int {
	total := 0
	for _, t := range tensors {
		total += t.Tensor.NumElements()
	}
	return total
}

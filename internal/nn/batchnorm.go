package nn

import (
	"fmt"

	"github.com/badgecnn/bridge/internal/tensor"
)

// DefaultBatchNormEps matches PyTorch's BatchNorm2d default.
const DefaultBatchNormEps = 1e-5

// BatchNorm2D is inference-mode batch normalization over NCHW input.
//
// Trainable parameters are weight (scale) and bias (shift); running_mean and
// running_var are buffers restored from the checkpoint.
type BatchNorm2D struct {
	numFeatures int
	eps         float32

	weight      *Parameter // [num_features], init 1
	bias        *Parameter // [num_features], init 0
	runningMean *Parameter // [num_features], init 0
	runningVar  *Parameter // [num_features], init 1

	backend Backend
}

// NewBatchNorm2D creates a batch-norm layer in its freshly initialized state.
func NewBatchNorm2D(name string, numFeatures int, backend Backend) *BatchNorm2D {
	if numFeatures <= 0 {
		panic(fmt.Sprintf("batchnorm2d: invalid num_features %d", numFeatures))
	}
	shape := tensor.Shape{numFeatures}
	return &BatchNorm2D{
		numFeatures: numFeatures,
		eps:         DefaultBatchNormEps,
		weight:      NewParameter(name+".weight", Ones(shape)),
		bias:        NewParameter(name+".bias", Zeros(shape)),
		runningMean: NewParameter(name+".running_mean", Zeros(shape)),
		runningVar:  NewParameter(name+".running_var", Ones(shape)),
		backend:     backend,
	}
}

// Forward normalizes with the running statistics.
func (b *BatchNorm2D) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	return b.backend.BatchNorm2D(input,
		b.weight.Tensor(), b.bias.Tensor(),
		b.runningMean.Tensor(), b.runningVar.Tensor(),
		b.eps)
}

// Parameters returns weight and bias.
func (b *BatchNorm2D) Parameters() []*Parameter {
	return []*Parameter{b.weight, b.bias}
}

// Buffers returns running_mean and running_var.
func (b *BatchNorm2D) Buffers() []*Parameter {
	return []*Parameter{b.runningMean, b.runningVar}
}

// String returns a string representation of the layer.
func (b *BatchNorm2D) String() string {
	return fmt.Sprintf("BatchNorm2D(%d, eps=%g)", b.numFeatures, b.eps)
}

package nn

import (
	"fmt"
	"math/rand"

	"github.com/badgecnn/bridge/internal/tensor"
)

// Linear implements a fully connected layer: y = x @ W.T + b.
//
//   - x has shape [batch_size, in_features]
//   - W has shape [out_features, in_features]
//   - b has shape [out_features]
type Linear struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter // [out_features, in_features]
	bias        *Parameter // [out_features]
	backend     Backend
}

// NewLinear creates a new Linear layer with Xavier weights and zero bias.
func NewLinear(name string, inFeatures, outFeatures int, backend Backend, rng *rand.Rand) *Linear {
	if inFeatures <= 0 || outFeatures <= 0 {
		panic(fmt.Sprintf("linear: invalid features in=%d, out=%d", inFeatures, outFeatures))
	}
	return &Linear{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter(name+".weight", Xavier(inFeatures, outFeatures, tensor.Shape{outFeatures, inFeatures}, rng)),
		bias:        NewParameter(name+".bias", Zeros(tensor.Shape{outFeatures})),
		backend:     backend,
	}
}

// Forward performs the forward pass. A 4D input is flattened first.
func (l *Linear) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	shape := input.Shape()
	if len(shape) != 2 {
		flat, err := input.Reshape(tensor.Shape{shape[0], shape.NumElements() / shape[0]})
		if err != nil {
			panic(err)
		}
		input = flat
	}
	return l.backend.Linear(input, l.weight.Tensor(), l.bias.Tensor())
}

// Parameters returns weight and bias.
func (l *Linear) Parameters() []*Parameter {
	return []*Parameter{l.weight, l.bias}
}

// InFeatures returns the number of input features.
func (l *Linear) InFeatures() int {
	return l.inFeatures
}

// OutFeatures returns the number of output features.
func (l *Linear) OutFeatures() int {
	return l.outFeatures
}

// String returns a string representation of the layer.
func (l *Linear) String() string {
	return fmt.Sprintf("Linear(in_features=%d, out_features=%d)", l.inFeatures, l.outFeatures)
}

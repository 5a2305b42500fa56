package nn

import (
	"github.com/badgecnn/bridge/internal/tensor"
	"github.com/pkg/errors"
)

// Parameter is a named tensor owned by a layer.
//
// Example:
//
//	weight := nn.NewParameter("conv1.weight", weightTensor)
//	w := weight.Tensor()
type Parameter struct {
	name   string            // Fully qualified name (e.g., "conv1.weight")
	tensor *tensor.RawTensor // The parameter values
}

// NewParameter creates a new parameter.
func NewParameter(name string, t *tensor.RawTensor) *Parameter {
	return &Parameter{name: name, tensor: t}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.RawTensor {
	return p.tensor
}

// Load copies values into the parameter. The shape must match exactly.
func (p *Parameter) Load(src *tensor.RawTensor) error {
	if !p.tensor.Shape().Equal(src.Shape()) {
		return errors.Wrapf(ErrShapeMismatch, "%s: checkpoint has %v, network expects %v",
			p.name, []int(src.Shape()), []int(p.tensor.Shape()))
	}
	copy(p.tensor.Data(), src.Data())
	return nil
}

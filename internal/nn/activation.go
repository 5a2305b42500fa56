package nn

import (
	"github.com/badgecnn/bridge/internal/tensor"
)

// ReLU is a Rectified Linear Unit activation module: f(x) = max(0, x).
type ReLU struct {
	backend Backend
}

// NewReLU creates a new ReLU activation module.
func NewReLU(backend Backend) *ReLU {
	return &ReLU{backend: backend}
}

// Forward applies ReLU activation.
func (r *ReLU) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	return r.backend.ReLU(input)
}

// Parameters returns nil (ReLU has no trainable parameters).
func (r *ReLU) Parameters() []*Parameter {
	return nil
}

// String returns a string representation of the module.
func (r *ReLU) String() string {
	return "ReLU()"
}

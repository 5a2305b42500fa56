package nn

import (
	"fmt"
	"strings"

	"github.com/badgecnn/bridge/internal/tensor"
)

// Sequential is a container module that chains multiple modules together.
//
// Each module's output becomes the next module's input. The name is the
// macro stage the container represents ("conv1", "classifier").
//
// Example:
//
//	block := nn.NewSequential("conv1",
//	    nn.NewConv2D("conv1", 1, 16, 3, 1, 1, backend, rng),
//	    nn.NewReLU(backend),
//	)
//	output := block.Forward(input)
type Sequential struct {
	name    string
	modules []Module
}

// NewSequential creates a new Sequential container.
func NewSequential(name string, modules ...Module) *Sequential {
	return &Sequential{name: name, modules: modules}
}

// Name returns the stage name of the container.
func (s *Sequential) Name() string {
	return s.name
}

// Forward applies all modules in sequence.
func (s *Sequential) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	output := input
	for _, module := range s.modules {
		output = module.Forward(output)
	}
	return output
}

// Parameters returns all trainable parameters from all modules, in order.
func (s *Sequential) Parameters() []*Parameter {
	var params []*Parameter
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// Buffers returns the buffers of all modules, in order.
func (s *Sequential) Buffers() []*Parameter {
	var buffers []*Parameter
	for _, module := range s.modules {
		if b, ok := module.(Buffered); ok {
			buffers = append(buffers, b.Buffers()...)
		}
	}
	return buffers
}

// Add appends a module to the sequence.
func (s *Sequential) Add(module Module) {
	s.modules = append(s.modules, module)
}

// Len returns the number of modules in the sequence.
func (s *Sequential) Len() int {
	return len(s.modules)
}

// Module returns the module at the given index.
//
// Panics if index is out of bounds.
func (s *Sequential) Module(index int) Module {
	if index < 0 || index >= len(s.modules) {
		panic("Sequential.Module: index out of bounds")
	}
	return s.modules[index]
}

// Modules returns the contained modules.
func (s *Sequential) Modules() []Module {
	return s.modules
}

// String returns a multi-line PyTorch-like description.
func (s *Sequential) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Sequential(%s)(\n", s.name)
	for i, m := range s.modules {
		fmt.Fprintf(&sb, "  (%d): %v\n", i, m)
	}
	sb.WriteString(")")
	return sb.String()
}

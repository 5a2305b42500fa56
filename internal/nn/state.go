package nn

import (
	"sort"
	"strings"

	"github.com/badgecnn/bridge/internal/tensor"
	"github.com/pkg/errors"
)

// Errors returned by LoadStateDict.
var (
	ErrShapeMismatch    = errors.New("shape mismatch")
	ErrMissingTensor    = errors.New("missing tensor")
	ErrUnexpectedTensor = errors.New("unexpected tensor")
)

// container is implemented by modules that hold other modules.
type container interface {
	Modules() []Module
}

// Tensors walks m depth-first and returns every parameter in declaration
// order. With withBuffers set, each leaf's buffers follow its parameters, so
// a batch-norm layer yields weight, bias, running_mean, running_var.
func Tensors(m Module, withBuffers bool) []*Parameter {
	if c, ok := m.(container); ok {
		var out []*Parameter
		for _, child := range c.Modules() {
			out = append(out, Tensors(child, withBuffers)...)
		}
		return out
	}
	out := append([]*Parameter(nil), m.Parameters()...)
	if withBuffers {
		if b, ok := m.(Buffered); ok {
			out = append(out, b.Buffers()...)
		}
	}
	return out
}

// StateDict returns the named tensors of m in declaration order.
// The tensors are shared with the module, not copied.
func StateDict(m Module, withBuffers bool) []NamedTensor {
	params := Tensors(m, withBuffers)
	out := make([]NamedTensor, len(params))
	for i, p := range params {
		out[i] = NamedTensor{Name: p.Name(), Tensor: p.Tensor()}
	}
	return out
}

// LoadStateDict copies state into m. Every parameter and buffer of m must be
// present with the exact shape, and state must not hold names m does not own.
func LoadStateDict(m Module, state map[string]*tensor.RawTensor) error {
	used := make(map[string]bool, len(state))
	var missing []string
	for _, p := range Tensors(m, true) {
		src, ok := state[p.Name()]
		if !ok {
			missing = append(missing, p.Name())
			continue
		}
		used[p.Name()] = true
		if err := p.Load(src); err != nil {
			return err
		}
	}
	if len(missing) > 0 {
		return errors.Wrapf(ErrMissingTensor, "%s", strings.Join(missing, ", "))
	}

	var extra []string
	for name := range state {
		if !used[name] {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return errors.Wrapf(ErrUnexpectedTensor, "%s", strings.Join(extra, ", "))
	}
	return nil
}

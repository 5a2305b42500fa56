package model

import (
	"fmt"
	"math/rand"

	"github.com/badgecnn/bridge/internal/arch"
	"github.com/badgecnn/bridge/internal/nn"
	"github.com/badgecnn/bridge/internal/tensor"
	"github.com/pkg/errors"
)

// Network is a live network built from an Architecture. Each macro stage is
// one nn.Sequential, applied in descriptor order.
type Network struct {
	arch   *arch.Architecture
	stages []*nn.Sequential
}

// New builds the network described by a. Weights are Xavier-initialized from
// rng; batch-norm layers start as the identity transform.
func New(a *arch.Architecture, backend nn.Backend, rng *rand.Rand) (*Network, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	net := &Network{arch: a}
	for _, stage := range a.Stages() {
		seq, err := buildStage(stage, a.StageDescriptors(stage), backend, rng)
		if err != nil {
			return nil, err
		}
		net.stages = append(net.stages, seq)
	}
	return net, nil
}

// buildStage turns the descriptors of one stage into modules. A convolution's
// activation is applied after its batch norm, if one follows.
func buildStage(stage string, descriptors []arch.LayerDescriptor, backend nn.Backend, rng *rand.Rand) (*nn.Sequential, error) {
	seq := nn.NewSequential(stage)
	pending := ""
	flush := func() error {
		if pending == "" {
			return nil
		}
		act, err := activation(pending, backend)
		if err != nil {
			return err
		}
		seq.Add(act)
		pending = ""
		return nil
	}

	for _, d := range descriptors {
		if d.Kind != arch.KindBatchNorm2D {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		switch d.Kind {
		case arch.KindConv2D:
			seq.Add(nn.NewConv2D(d.Name, d.InChannels, d.OutChannels, d.KernelSize, d.Stride, d.Padding, backend, rng))
		case arch.KindBatchNorm2D:
			seq.Add(nn.NewBatchNorm2D(d.Name, d.NumFeatures, backend))
		case arch.KindMaxPool2D:
			seq.Add(nn.NewMaxPool2D(d.KernelSize, d.Stride, backend))
		case arch.KindAdaptiveAvgPool2D:
			seq.Add(nn.NewGlobalAvgPool2D(backend))
		case arch.KindLinear:
			seq.Add(nn.NewLinear(d.Name, d.InFeatures, d.OutFeatures, backend, rng))
		default:
			return nil, errors.Errorf("%s: cannot build layer of kind %s", d.Name, d.Kind)
		}
		pending = d.Activation
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return seq, nil
}

func activation(name string, backend nn.Backend) (nn.Module, error) {
	switch name {
	case "relu":
		return nn.NewReLU(backend), nil
	default:
		return nil, errors.Errorf("unsupported activation %q", name)
	}
}

// Architecture returns the architecture the network was built from.
func (n *Network) Architecture() *arch.Architecture {
	return n.arch
}

// Stages returns the macro stages in application order.
func (n *Network) Stages() []*nn.Sequential {
	return n.stages
}

// Modules returns the stages; it lets nn.Tensors walk the whole network.
func (n *Network) Modules() []nn.Module {
	out := make([]nn.Module, len(n.stages))
	for i, s := range n.stages {
		out[i] = s
	}
	return out
}

// Forward runs input [N, C, H, W] through every stage and returns the logits [N, classes].
func (n *Network) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	return n.ForwardStages(input, nil)
}

// ForwardStages runs input through every stage, calling visit with each
// stage's output. visit may be nil.
func (n *Network) ForwardStages(input *tensor.RawTensor, visit func(stage string, output *tensor.RawTensor)) *tensor.RawTensor {
	x := input
	for _, s := range n.stages {
		x = s.Forward(x)
		if visit != nil {
			visit(s.Name(), x)
		}
	}
	return x
}

// Parameters returns the trainable parameters in declaration order.
func (n *Network) Parameters() []*nn.Parameter {
	return nn.Tensors(n, false)
}

// Buffers returns the batch-norm running statistics in declaration order.
func (n *Network) Buffers() []*nn.Parameter {
	var out []*nn.Parameter
	for _, s := range n.stages {
		out = append(out, s.Buffers()...)
	}
	return out
}

// StateDict returns the ordered named parameters; with withBuffers set each
// batch norm also yields its running statistics after its bias.
func (n *Network) StateDict(withBuffers bool) []nn.NamedTensor {
	return nn.StateDict(n, withBuffers)
}

// NumParameters returns the number of trainable scalars.
func (n *Network) NumParameters() int {
	return nn.NumElements(n.StateDict(false))
}

func (n *Network) String() string {
	return fmt.Sprintf("%s(stages=%d, parameters=%d)", n.arch.Name, len(n.stages), n.NumParameters())
}

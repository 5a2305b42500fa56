package arch

import (
	"encoding/json"
	"fmt"

	"github.com/badgecnn/bridge/internal/tensor"
	"github.com/pkg/errors"
)

// LayerDescriptor describes one topological step of the network, independent
// of trained values. Only the fields that belong to Kind are meaningful.
type LayerDescriptor struct {
	Name  string
	Kind  Kind
	Stage string

	// conv2d
	InChannels  int
	OutChannels int
	KernelSize  int // conv2d, maxpool2d
	Stride      int // conv2d, maxpool2d
	Padding     int

	// batchnorm2d
	NumFeatures int

	// adaptive_avg_pool2d
	OutputSize int

	// linear
	InFeatures  int
	OutFeatures int

	Activation string
}

// Conv2D returns a convolution descriptor.
func Conv2D(name, stage string, in, out, kernel, stride, padding int, activation string) LayerDescriptor {
	return LayerDescriptor{
		Name: name, Kind: KindConv2D, Stage: stage,
		InChannels: in, OutChannels: out, KernelSize: kernel, Stride: stride, Padding: padding,
		Activation: activation,
	}
}

// BatchNorm2D returns a batch-normalization descriptor.
func BatchNorm2D(name, stage string, features int) LayerDescriptor {
	return LayerDescriptor{Name: name, Kind: KindBatchNorm2D, Stage: stage, NumFeatures: features}
}

// MaxPool2D returns a max-pooling descriptor.
func MaxPool2D(name, stage string, kernel, stride int) LayerDescriptor {
	return LayerDescriptor{Name: name, Kind: KindMaxPool2D, Stage: stage, KernelSize: kernel, Stride: stride}
}

// AdaptiveAvgPool2D returns a global average pooling descriptor.
func AdaptiveAvgPool2D(name, stage string, outputSize int) LayerDescriptor {
	return LayerDescriptor{Name: name, Kind: KindAdaptiveAvgPool2D, Stage: stage, OutputSize: outputSize}
}

// Linear returns a fully-connected descriptor.
func Linear(name, stage string, in, out int) LayerDescriptor {
	return LayerDescriptor{Name: name, Kind: KindLinear, Stage: stage, InFeatures: in, OutFeatures: out}
}

// Roles returns the tensors a layer of this descriptor owns, trainable
// parameters first, in declaration order.
func (d LayerDescriptor) Roles() []Role {
	switch d.Kind {
	case KindConv2D, KindLinear:
		return []Role{RoleWeight, RoleBias}
	case KindBatchNorm2D:
		return []Role{RoleWeight, RoleBias, RoleRunningMean, RoleRunningVar}
	default:
		return nil
	}
}

// ExpectedShape returns the shape of the tensor the layer owns for role.
// The second result is false when the layer has no such tensor.
func (d LayerDescriptor) ExpectedShape(role Role) (tensor.Shape, bool) {
	switch d.Kind {
	case KindConv2D:
		switch role {
		case RoleWeight:
			return tensor.Shape{d.OutChannels, d.InChannels, d.KernelSize, d.KernelSize}, true
		case RoleBias:
			return tensor.Shape{d.OutChannels}, true
		}
	case KindBatchNorm2D:
		switch role {
		case RoleWeight, RoleBias, RoleRunningMean, RoleRunningVar:
			return tensor.Shape{d.NumFeatures}, true
		}
	case KindLinear:
		switch role {
		case RoleWeight:
			return tensor.Shape{d.OutFeatures, d.InFeatures}, true
		case RoleBias:
			return tensor.Shape{d.OutFeatures}, true
		}
	}
	return nil, false
}

// ParameterName joins a layer name and a role: "conv1" + weight -> "conv1.weight".
func ParameterName(layer string, role Role) string {
	return layer + "." + string(role)
}

// String returns a PyTorch-like one-line description.
func (d LayerDescriptor) String() string {
	switch d.Kind {
	case KindConv2D:
		return fmt.Sprintf("%s: Conv2D(%d, %d, kernel_size=%d, stride=%d, padding=%d)",
			d.Name, d.InChannels, d.OutChannels, d.KernelSize, d.Stride, d.Padding)
	case KindBatchNorm2D:
		return fmt.Sprintf("%s: BatchNorm2D(%d)", d.Name, d.NumFeatures)
	case KindMaxPool2D:
		return fmt.Sprintf("%s: MaxPool2D(kernel_size=%d, stride=%d)", d.Name, d.KernelSize, d.Stride)
	case KindAdaptiveAvgPool2D:
		return fmt.Sprintf("%s: AdaptiveAvgPool2D(%d)", d.Name, d.OutputSize)
	case KindLinear:
		return fmt.Sprintf("%s: Linear(%d, %d)", d.Name, d.InFeatures, d.OutFeatures)
	default:
		return fmt.Sprintf("%s: <unknown>", d.Name)
	}
}

// wireDescriptor is the model.json form. Field order matches the order the
// keys are written in; nil fields are omitted.
type wireDescriptor struct {
	Name        string `json:"name"`
	Type        Kind   `json:"type"`
	InChannels  *int   `json:"in_channels,omitempty"`
	OutChannels *int   `json:"out_channels,omitempty"`
	NumFeatures *int   `json:"num_features,omitempty"`
	KernelSize  *int   `json:"kernel_size,omitempty"`
	Stride      *int   `json:"stride,omitempty"`
	Padding     *int   `json:"padding,omitempty"`
	OutputSize  *int   `json:"output_size,omitempty"`
	InFeatures  *int   `json:"in_features,omitempty"`
	OutFeatures *int   `json:"out_features,omitempty"`
	Activation  string `json:"activation,omitempty"`
}

func intp(v int) *int { return &v }

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// MarshalJSON writes only the fields that belong to the descriptor's kind.
func (d LayerDescriptor) MarshalJSON() ([]byte, error) {
	w := wireDescriptor{Name: d.Name, Type: d.Kind, Activation: d.Activation}
	switch d.Kind {
	case KindConv2D:
		w.InChannels, w.OutChannels = intp(d.InChannels), intp(d.OutChannels)
		w.KernelSize, w.Stride, w.Padding = intp(d.KernelSize), intp(d.Stride), intp(d.Padding)
	case KindBatchNorm2D:
		w.NumFeatures = intp(d.NumFeatures)
	case KindMaxPool2D:
		w.KernelSize, w.Stride = intp(d.KernelSize), intp(d.Stride)
	case KindAdaptiveAvgPool2D:
		w.OutputSize = intp(d.OutputSize)
	case KindLinear:
		w.InFeatures, w.OutFeatures = intp(d.InFeatures), intp(d.OutFeatures)
	default:
		return nil, errors.Errorf("descriptor %q: cannot marshal kind %d", d.Name, int(d.Kind))
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads the model.json form. Stage is not part of the
// interchange document and is left empty.
func (d *LayerDescriptor) UnmarshalJSON(data []byte) error {
	var w wireDescriptor
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*d = LayerDescriptor{
		Name:        w.Name,
		Kind:        w.Type,
		InChannels:  deref(w.InChannels),
		OutChannels: deref(w.OutChannels),
		NumFeatures: deref(w.NumFeatures),
		KernelSize:  deref(w.KernelSize),
		Stride:      deref(w.Stride),
		Padding:     deref(w.Padding),
		OutputSize:  deref(w.OutputSize),
		InFeatures:  deref(w.InFeatures),
		OutFeatures: deref(w.OutFeatures),
		Activation:  w.Activation,
	}
	return nil
}

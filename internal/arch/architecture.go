// Package arch describes network topology independently of trained values.
//
// An Architecture is the ordered list of LayerDescriptors plus the table that
// maps each macro stage to its UI hotspot key. The network is built from the
// descriptors, so their order is also the order the network applies them in.
package arch

import (
	"strings"

	"github.com/badgecnn/bridge/internal/tensor"
	"github.com/pkg/errors"
)

// ErrInvalidArchitecture is returned by Validate.
var ErrInvalidArchitecture = errors.New("invalid architecture")

// Architecture is an immutable description of one network revision.
type Architecture struct {
	Name        string
	Description string

	// InputShape is [channels, height, width] of one sample.
	InputShape  tensor.Shape
	NumClasses  int
	Descriptors []LayerDescriptor

	// HotspotKeys maps a stage name to the hotspot registry key that
	// describes it. Stages without an entry have no UI region of their own.
	HotspotKeys map[string]string
}

// StageShape is the per-sample output shape of one macro stage.
type StageShape struct {
	Stage string
	Shape tensor.Shape
}

func invalid(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidArchitecture, format, args...)
}

// Lookup returns the descriptor with the given name and its position.
func (a *Architecture) Lookup(name string) (LayerDescriptor, int, bool) {
	for i, d := range a.Descriptors {
		if d.Name == name {
			return d, i, true
		}
	}
	return LayerDescriptor{}, -1, false
}

// HotspotKey returns the registry key for a stage.
func (a *Architecture) HotspotKey(stage string) (string, bool) {
	key, ok := a.HotspotKeys[stage]
	return key, ok
}

// Stages returns the distinct stage names in application order.
func (a *Architecture) Stages() []string {
	var stages []string
	for _, d := range a.Descriptors {
		if len(stages) == 0 || stages[len(stages)-1] != d.Stage {
			stages = append(stages, d.Stage)
		}
	}
	return stages
}

// StageDescriptors returns the descriptors belonging to stage, in order.
func (a *Architecture) StageDescriptors(stage string) []LayerDescriptor {
	var out []LayerDescriptor
	for _, d := range a.Descriptors {
		if d.Stage == stage {
			out = append(out, d)
		}
	}
	return out
}

// ParameterNames lists every tensor name the network owns, in declaration
// order. Buffers (running statistics) are included only when withBuffers is set.
func (a *Architecture) ParameterNames(withBuffers bool) []string {
	var names []string
	for _, d := range a.Descriptors {
		for _, role := range d.Roles() {
			if role.IsBuffer() && !withBuffers {
				continue
			}
			names = append(names, ParameterName(d.Name, role))
		}
	}
	return names
}

// SplitParameterName splits "layer.role" at the last dot.
func SplitParameterName(name string) (layer string, role Role, ok bool) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return "", "", false
	}
	return name[:i], Role(name[i+1:]), true
}

// Validate checks that names are unique, that every shape field is positive
// and that the channel chain connects from InputShape to NumClasses.
func (a *Architecture) Validate() error {
	if len(a.InputShape) != 3 {
		return invalid("input shape %v must be [channels, height, width]", []int(a.InputShape))
	}
	for _, dim := range a.InputShape {
		if dim <= 0 {
			return invalid("input shape %v has a non-positive dimension", []int(a.InputShape))
		}
	}
	if len(a.Descriptors) == 0 {
		return invalid("no layer descriptors")
	}

	seen := make(map[string]bool, len(a.Descriptors))
	stageDone := make(map[string]bool)
	lastStage := ""
	for _, d := range a.Descriptors {
		if d.Name == "" {
			return invalid("descriptor with empty name")
		}
		if seen[d.Name] {
			return invalid("duplicate descriptor name %q", d.Name)
		}
		seen[d.Name] = true
		if d.Stage == "" {
			return invalid("descriptor %q has no stage", d.Name)
		}
		if d.Stage != lastStage {
			if stageDone[d.Stage] {
				return invalid("stage %q is not contiguous (at %q)", d.Stage, d.Name)
			}
			if lastStage != "" {
				stageDone[lastStage] = true
			}
			lastStage = d.Stage
		}
	}

	_, err := a.StageShapes()
	return err
}

// StageShapes propagates InputShape through the descriptors and returns the
// output shape at the end of each stage. It fails on the first descriptor
// whose declared input does not match what the previous layer produces.
func (a *Architecture) StageShapes() ([]StageShape, error) {
	if len(a.InputShape) != 3 {
		return nil, invalid("input shape %v must be [channels, height, width]", []int(a.InputShape))
	}
	c, h, w := a.InputShape[0], a.InputShape[1], a.InputShape[2]
	features := -1 // set once the spatial dims are collapsed

	var out []StageShape
	for i, d := range a.Descriptors {
		switch d.Kind {
		case KindConv2D:
			if features >= 0 {
				return nil, invalid("%s: convolution after spatial dims were collapsed", d.Name)
			}
			if d.InChannels <= 0 || d.OutChannels <= 0 || d.KernelSize <= 0 || d.Stride <= 0 || d.Padding < 0 {
				return nil, invalid("%s: non-positive shape field", d.Name)
			}
			if d.InChannels != c {
				return nil, invalid("%s: in_channels %d does not match incoming %d channels", d.Name, d.InChannels, c)
			}
			h = (h+2*d.Padding-d.KernelSize)/d.Stride + 1
			w = (w+2*d.Padding-d.KernelSize)/d.Stride + 1
			c = d.OutChannels
		case KindBatchNorm2D:
			if d.NumFeatures <= 0 {
				return nil, invalid("%s: non-positive num_features", d.Name)
			}
			if features >= 0 || d.NumFeatures != c {
				return nil, invalid("%s: num_features %d does not match incoming %d channels", d.Name, d.NumFeatures, c)
			}
		case KindMaxPool2D:
			if features >= 0 {
				return nil, invalid("%s: pooling after spatial dims were collapsed", d.Name)
			}
			if d.KernelSize <= 0 || d.Stride <= 0 {
				return nil, invalid("%s: non-positive shape field", d.Name)
			}
			h = (h-d.KernelSize)/d.Stride + 1
			w = (w-d.KernelSize)/d.Stride + 1
		case KindAdaptiveAvgPool2D:
			if d.OutputSize != 1 {
				return nil, invalid("%s: only global pooling (output_size 1) is supported, got %d", d.Name, d.OutputSize)
			}
			features = c
		case KindLinear:
			if d.InFeatures <= 0 || d.OutFeatures <= 0 {
				return nil, invalid("%s: non-positive shape field", d.Name)
			}
			in := features
			if in < 0 {
				in = c * h * w
			}
			if d.InFeatures != in {
				return nil, invalid("%s: in_features %d does not match incoming %d features", d.Name, d.InFeatures, in)
			}
			features = d.OutFeatures
		default:
			return nil, invalid("%s: unknown layer kind %d", d.Name, int(d.Kind))
		}
		if features < 0 && (h <= 0 || w <= 0) {
			return nil, invalid("%s: spatial size collapsed to %dx%d", d.Name, h, w)
		}

		if i == len(a.Descriptors)-1 || a.Descriptors[i+1].Stage != d.Stage {
			shape := tensor.Shape{c, h, w}
			if features >= 0 {
				shape = tensor.Shape{features}
			}
			out = append(out, StageShape{Stage: d.Stage, Shape: shape})
		}
	}

	if features != a.NumClasses {
		return nil, invalid("network produces %d outputs, expected %d classes", features, a.NumClasses)
	}
	return out, nil
}

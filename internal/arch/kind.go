package arch

import (
	"github.com/pkg/errors"
)

// Kind identifies the operation a LayerDescriptor describes.
type Kind int

// Layer kinds. The string forms are the "type" values written to model.json.
const (
	KindUnknown Kind = iota
	KindConv2D
	KindBatchNorm2D
	KindMaxPool2D
	KindAdaptiveAvgPool2D
	KindLinear
)

var kindNames = map[Kind]string{
	KindConv2D:            "conv2d",
	KindBatchNorm2D:       "batchnorm2d",
	KindMaxPool2D:         "maxpool2d",
	KindAdaptiveAvgPool2D: "adaptive_avg_pool2d",
	KindLinear:            "linear",
}

// String returns the interchange name of the kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind converts an interchange name back to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindUnknown, errors.Errorf("unknown layer type %q", s)
}

// HasParameters reports whether layers of this kind own trainable tensors.
func (k Kind) HasParameters() bool {
	switch k {
	case KindConv2D, KindBatchNorm2D, KindLinear:
		return true
	default:
		return false
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, errors.Errorf("cannot marshal layer kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Role is the suffix of a parameter name that says which tensor of a layer it
// is: "conv1.weight" has role RoleWeight.
type Role string

// Roles understood by the exporter.
const (
	RoleWeight      Role = "weight"
	RoleBias        Role = "bias"
	RoleRunningMean Role = "running_mean"
	RoleRunningVar  Role = "running_var"
)

// IsBuffer reports whether the role names a non-trainable running statistic.
func (r Role) IsBuffer() bool {
	return r == RoleRunningMean || r == RoleRunningVar
}

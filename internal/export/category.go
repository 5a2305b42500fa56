package export

import (
	"github.com/badgecnn/bridge/internal/arch"
	"github.com/pkg/errors"
)

// Category classifies a parameter record. It is derived from the owning
// descriptor's kind and the parameter's role, never from name text.
type Category int

// Categories, encoded as the "type" field of a layer record.
const (
	// CategoryParameter is the "other" category: any parameter that is not
	// a conv weight, fc weight or bias.
	CategoryParameter Category = iota
	CategoryConvWeight
	CategoryFCWeight
	CategoryBias
)

var categoryNames = [...]string{
	CategoryParameter:  "parameter",
	CategoryConvWeight: "conv_weight",
	CategoryFCWeight:   "fc_weight",
	CategoryBias:       "bias",
}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "unknown"
	}
	return categoryNames[c]
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	if c < 0 || int(c) >= len(categoryNames) {
		return nil, errors.Errorf("invalid category %d", int(c))
	}
	return []byte(categoryNames[c]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	for i, name := range categoryNames {
		if name == string(text) {
			*c = Category(i)
			return nil
		}
	}
	return errors.Errorf("unknown category %q", text)
}

// Classify returns the category of the tensor a layer of kind owns for role.
// Batch-norm scale and running statistics are plain parameters.
func Classify(kind arch.Kind, role arch.Role) Category {
	switch {
	case role == arch.RoleBias:
		return CategoryBias
	case role == arch.RoleWeight && kind == arch.KindConv2D:
		return CategoryConvWeight
	case role == arch.RoleWeight && kind == arch.KindLinear:
		return CategoryFCWeight
	default:
		return CategoryParameter
	}
}

package export

import (
	"github.com/badgecnn/bridge/internal/arch"
	"github.com/badgecnn/bridge/internal/hotspot"
)

// DTypeFloat32 is the only element type of the weight buffer.
const DTypeFloat32 = "float32"

// Artifact file names inside the output directory.
const (
	MetadataFile = "model.json"
	WeightsFile  = "weights.bin"
	HotspotsFile = "hotspots.json"
)

// ModelInfo holds the model-level constants of the metadata document.
type ModelInfo struct {
	InputSize   []int  `json:"input_size"`
	OutputSize  int    `json:"output_size"`
	NumClasses  int    `json:"num_classes"`
	Description string `json:"description"`
}

// InfoFor derives ModelInfo from an architecture.
func InfoFor(a *arch.Architecture) ModelInfo {
	return ModelInfo{
		InputSize:   append([]int(nil), a.InputShape...),
		OutputSize:  a.NumClasses,
		NumClasses:  a.NumClasses,
		Description: a.Description,
	}
}

// ParameterRecord is one trained tensor bound to its byte range in the
// weight buffer. Offsets are relative to the first value, after the count header.
type ParameterRecord struct {
	Name      string          `json:"name"`
	Shape     []int           `json:"shape"`
	DType     string          `json:"dtype"`
	Offset    int64           `json:"offset"`
	SizeBytes int64           `json:"size_bytes"`
	Category  Category        `json:"type"`
	Hotspot   *hotspot.Region `json:"hotspot"`

	layer      string
	role       arch.Role
	hotspotKey string
}

// Layer returns the descriptor the record was mapped to, or "" if unmapped.
func (r ParameterRecord) Layer() string { return r.layer }

// Role returns the parameter role parsed from the name.
func (r ParameterRecord) Role() arch.Role { return r.role }

// HotspotKey returns the registry key of Hotspot, or "".
func (r ParameterRecord) HotspotKey() string { return r.hotspotKey }

// NumElements returns SizeBytes / 4.
func (r ParameterRecord) NumElements() int64 { return r.SizeBytes / 4 }

// End returns the first byte past the record.
func (r ParameterRecord) End() int64 { return r.Offset + r.SizeBytes }

// Metadata is the model.json document. It is self-contained: the hotspot
// table is embedded, not referenced.
type Metadata struct {
	ModelInfo ModelInfo                 `json:"model_info"`
	Structure []arch.LayerDescriptor    `json:"structure"`
	Layers    []ParameterRecord         `json:"layers"`
	Hotspots  map[string]hotspot.Region `json:"hotspots"`
}

// TotalBytes returns the sum of SizeBytes over all records.
func (m *Metadata) TotalBytes() int64 {
	var total int64
	for _, r := range m.Layers {
		total += r.SizeBytes
	}
	return total
}

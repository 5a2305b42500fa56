// Package bundle reads an exported model bundle the way a visualization
// client does: records from model.json, values from weights.bin and overlay
// regions for hit testing.
package bundle

import (
	"encoding/json"
	"path/filepath"

	"github.com/badgecnn/bridge/internal/export"
	"github.com/badgecnn/bridge/internal/hotspot"
	"github.com/badgecnn/bridge/internal/nn"
	"github.com/badgecnn/bridge/internal/tensor"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"k8s.io/klog/v2"
)

var (
	// ErrLayerNotFound is returned for a parameter name with no record.
	ErrLayerNotFound = errors.New("layer not found")
	// ErrOutOfBounds is returned when a record's byte range does not fit
	// the weight buffer.
	ErrOutOfBounds = errors.New("layer range outside weight buffer")
)

// Bundle is a loaded export.
type Bundle struct {
	Metadata export.Metadata

	values   []float32
	byName   map[string]int
	registry *hotspot.Registry
}

// Load reads model.json and weights.bin from dir.
func Load(fs afero.Fs, dir string) (*Bundle, error) {
	metaPath := filepath.Join(dir, export.MetadataFile)
	data, err := afero.ReadFile(fs, metaPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", metaPath)
	}
	b := &Bundle{byName: make(map[string]int)}
	if err := json.Unmarshal(data, &b.Metadata); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", metaPath)
	}
	for i, r := range b.Metadata.Layers {
		if _, dup := b.byName[r.Name]; dup {
			return nil, errors.Errorf("%s: duplicate layer record %q", metaPath, r.Name)
		}
		b.byName[r.Name] = i
	}
	b.registry = hotspot.New(b.Metadata.Hotspots)

	weightsPath := filepath.Join(dir, export.WeightsFile)
	f, err := fs.Open(weightsPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", weightsPath)
	}
	defer f.Close()
	if b.values, err = export.ReadWeightBuffer(f); err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", weightsPath)
	}
	klog.V(1).Infof("bundle: loaded %d records, %d values from %s", len(b.Metadata.Layers), len(b.values), dir)
	return b, nil
}

// Count returns the number of values in the weight buffer.
func (b *Bundle) Count() int { return len(b.values) }

// Layers returns the records in buffer order.
func (b *Bundle) Layers() []export.ParameterRecord { return b.Metadata.Layers }

// FindLayer returns the record named name.
func (b *Bundle) FindLayer(name string) (export.ParameterRecord, bool) {
	i, ok := b.byName[name]
	if !ok {
		return export.ParameterRecord{}, false
	}
	return b.Metadata.Layers[i], true
}

// LayerWeights returns the values of the named record. The slice aliases the
// buffer and must not be modified.
func (b *Bundle) LayerWeights(name string) ([]float32, error) {
	r, ok := b.FindLayer(name)
	if !ok {
		return nil, errors.Wrapf(ErrLayerNotFound, "%q", name)
	}
	return b.slice(r)
}

func (b *Bundle) slice(r export.ParameterRecord) ([]float32, error) {
	if r.Offset < 0 || r.SizeBytes < 0 || r.Offset%4 != 0 || r.SizeBytes%4 != 0 ||
		r.End() > 4*int64(len(b.values)) {
		return nil, errors.Wrapf(ErrOutOfBounds, "%s: bytes [%d, %d) of %d",
			r.Name, r.Offset, r.End(), 4*len(b.values))
	}
	start := r.Offset / 4
	return b.values[start : start+r.NumElements()], nil
}

// ConvLayers returns the convolution weight records.
func (b *Bundle) ConvLayers() []export.ParameterRecord {
	return b.byCategory(export.CategoryConvWeight)
}

// FCLayers returns the fully-connected weight records.
func (b *Bundle) FCLayers() []export.ParameterRecord {
	return b.byCategory(export.CategoryFCWeight)
}

// BiasLayers returns the bias records.
func (b *Bundle) BiasLayers() []export.ParameterRecord {
	return b.byCategory(export.CategoryBias)
}

func (b *Bundle) byCategory(c export.Category) []export.ParameterRecord {
	var out []export.ParameterRecord
	for _, r := range b.Metadata.Layers {
		if r.Category == c {
			out = append(out, r)
		}
	}
	return out
}

// Hotspot returns the embedded region registered under key.
func (b *Bundle) Hotspot(key string) (hotspot.Region, bool) {
	return b.registry.Lookup(key)
}

// HotspotKey returns the key of the embedded region a record points at.
func (b *Bundle) HotspotKey(name string) (string, bool) {
	r, ok := b.FindLayer(name)
	if !ok || r.Hotspot == nil {
		return "", false
	}
	for _, key := range b.registry.Keys() {
		if region, _ := b.registry.Lookup(key); region.Equal(*r.Hotspot) {
			return key, true
		}
	}
	return "", false
}

// HotspotAt returns the key of the region containing p.
func (b *Bundle) HotspotAt(p hotspot.Point) (string, bool) {
	return b.registry.HitTest(p)
}

// LayersAt returns the records whose hotspot contains p.
func (b *Bundle) LayersAt(p hotspot.Point) []export.ParameterRecord {
	var out []export.ParameterRecord
	for _, r := range b.Metadata.Layers {
		if r.Hotspot != nil && r.Hotspot.Contains(p) {
			out = append(out, r)
		}
	}
	return out
}

// StateDict copies every record into a tensor, in buffer order.
func (b *Bundle) StateDict() ([]nn.NamedTensor, error) {
	out := make([]nn.NamedTensor, 0, len(b.Metadata.Layers))
	for _, r := range b.Metadata.Layers {
		values, err := b.slice(r)
		if err != nil {
			return nil, err
		}
		t, err := tensor.FromFloat32(append([]float32(nil), values...), tensor.Shape(r.Shape))
		if err != nil {
			return nil, errors.Wrapf(err, "record %s", r.Name)
		}
		out = append(out, nn.NamedTensor{Name: r.Name, Tensor: t})
	}
	return out, nil
}

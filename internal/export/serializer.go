// Package export turns a trained parameter set into the model interchange
// bundle: model.json (structure, parameter records, hotspots), weights.bin
// (count header + float32 values) and hotspots.json.
//
// Record offsets are a strict prefix sum over the parameters in source order,
// so record i owns bytes [4+offset, 4+offset+size_bytes) of weights.bin.
package export

import (
	"math"

	"github.com/badgecnn/bridge/internal/arch"
	"github.com/badgecnn/bridge/internal/hotspot"
	"github.com/badgecnn/bridge/internal/nn"
	"github.com/badgecnn/bridge/internal/tensor"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Validation errors returned by Build.
var (
	ErrUnmappedParameter  = errors.New("parameter does not map to a layer descriptor")
	ErrOrderMismatch      = errors.New("parameter order disagrees with descriptor order")
	ErrShapeMismatch      = errors.New("parameter shape disagrees with its descriptor")
	ErrDuplicateParameter = errors.New("duplicate parameter name")
	ErrStaleHotspot       = errors.New("hotspot key missing from registry")
	ErrTooManyElements    = errors.New("element count does not fit the uint32 header")
)

// Options tunes validation.
type Options struct {
	// Lenient logs unmapped and out-of-order parameters instead of failing.
	Lenient bool
}

// Serializer binds parameters to byte ranges, categories and hotspots.
type Serializer struct {
	Architecture *arch.Architecture
	Registry     *hotspot.Registry
	Info         ModelInfo
	Options      Options
}

// NewSerializer returns a Serializer with ModelInfo derived from a.
func NewSerializer(a *arch.Architecture, registry *hotspot.Registry, opts Options) *Serializer {
	return &Serializer{Architecture: a, Registry: registry, Info: InfoFor(a), Options: opts}
}

// Bundle is the in-memory result of one export pass.
type Bundle struct {
	Metadata *Metadata
	Weights  *WeightBuffer
	Hotspots map[string]hotspot.Region
}

// Build makes one pass over params, in order, and returns the bundle.
func (s *Serializer) Build(params []nn.NamedTensor) (*Bundle, error) {
	if err := s.checkHotspotKeys(); err != nil {
		return nil, err
	}

	var (
		records   = make([]ParameterRecord, 0, len(params))
		tensors   = make([]*tensor.RawTensor, 0, len(params))
		seen      = make(map[string]bool, len(params))
		cursor    int64
		lastIndex = -1
		lastName  string
	)
	for _, p := range params {
		if seen[p.Name] {
			return nil, errors.Wrap(ErrDuplicateParameter, p.Name)
		}
		seen[p.Name] = true

		rec := ParameterRecord{
			Name:      p.Name,
			Shape:     append([]int{}, p.Tensor.Shape()...),
			DType:     DTypeFloat32,
			Offset:    cursor,
			SizeBytes: int64(p.Tensor.ByteSize()),
			Category:  CategoryParameter,
		}
		if rec.SizeBytes == 0 {
			klog.Warningf("export: parameter %s has no elements", p.Name)
		}

		index, err := s.bind(&rec, p.Tensor.Shape())
		if err != nil {
			return nil, err
		}
		if index >= 0 {
			if index < lastIndex {
				if err := s.complain(errors.Wrapf(ErrOrderMismatch, "%s (layer %s) follows %s", p.Name, rec.layer, lastName)); err != nil {
					return nil, err
				}
			}
			lastIndex, lastName = max(lastIndex, index), p.Name
		}

		klog.V(1).Infof("export: %-24s %-12v offset=%-8d size=%-8d type=%s hotspot=%q",
			rec.Name, rec.Shape, rec.Offset, rec.SizeBytes, rec.Category, rec.hotspotKey)
		records = append(records, rec)
		tensors = append(tensors, p.Tensor)
		cursor += rec.SizeBytes
	}

	count := cursor / 4
	if count > math.MaxUint32 {
		return nil, errors.Wrapf(ErrTooManyElements, "%d values", count)
	}

	regions := s.Registry.Regions()
	return &Bundle{
		Metadata: &Metadata{
			ModelInfo: s.Info,
			Structure: append([]arch.LayerDescriptor(nil), s.Architecture.Descriptors...),
			Layers:    records,
			Hotspots:  regions,
		},
		Weights:  &WeightBuffer{tensors: tensors, count: uint32(count)},
		Hotspots: s.Registry.Regions(),
	}, nil
}

// checkHotspotKeys fails if the layer-key table names a region the registry
// does not have.
func (s *Serializer) checkHotspotKeys() error {
	for _, stage := range s.Architecture.Stages() {
		key, ok := s.Architecture.HotspotKey(stage)
		if !ok {
			continue
		}
		if _, found := s.Registry.Lookup(key); !found {
			return errors.Wrapf(ErrStaleHotspot, "stage %s -> %q", stage, key)
		}
	}
	return nil
}

// bind resolves the descriptor of rec, fills its category and hotspot and
// checks the shape. It returns the descriptor index, or -1 when unmapped.
func (s *Serializer) bind(rec *ParameterRecord, shape tensor.Shape) (int, error) {
	layer, role, ok := arch.SplitParameterName(rec.Name)
	var (
		desc  arch.LayerDescriptor
		index = -1
	)
	if ok {
		desc, index, ok = s.Architecture.Lookup(layer)
	}
	if !ok {
		return -1, s.complain(errors.Wrap(ErrUnmappedParameter, rec.Name))
	}
	rec.layer, rec.role = layer, role

	expected, known := desc.ExpectedShape(role)
	if !known {
		// A role the descriptor does not declare: keep the record, but it has
		// no category or region of its own.
		klog.V(1).Infof("export: %s has role %q unknown to %s layer %s", rec.Name, role, desc.Kind, layer)
		return index, nil
	}
	if !expected.Equal(shape) {
		return -1, errors.Wrapf(ErrShapeMismatch, "%s: got %v, %s layer %s expects %v",
			rec.Name, []int(shape), desc.Kind, layer, []int(expected))
	}

	rec.Category = Classify(desc.Kind, role)
	if role == arch.RoleWeight || role == arch.RoleBias {
		if key, ok := s.Architecture.HotspotKey(desc.Stage); ok {
			region, _ := s.Registry.Lookup(key)
			rec.Hotspot = &region
			rec.hotspotKey = key
		}
	}
	return index, nil
}

// complain returns err in strict mode and logs it in lenient mode.
func (s *Serializer) complain(err error) error {
	if !s.Options.Lenient {
		return err
	}
	klog.Warningf("export: %v", err)
	return nil
}

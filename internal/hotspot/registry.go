// Package hotspot holds the static UI overlay table: semantic layer key ->
// screen region plus description.
//
// The registry is data only. It is loaded once (from the embedded default or
// an override file) and passed to whoever needs it; nothing reads it from a
// package global.
package hotspot

import (
	_ "embed"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

//go:embed hotspots.yaml
var defaultRegistry []byte

// Registry is an immutable layer key -> Region table.
type Registry struct {
	regions map[string]Region
}

// New builds a registry from regions. The map is copied.
func New(regions map[string]Region) *Registry {
	r := &Registry{regions: make(map[string]Region, len(regions))}
	for key, region := range regions {
		region.Points = append([]Point(nil), region.Points...)
		r.regions[key] = region
	}
	return r
}

// Default returns the registry authored for the BadgeCNN diagram.
func Default() *Registry {
	r, err := Parse(defaultRegistry)
	if err != nil {
		panic(errors.Wrap(err, "embedded hotspots.yaml"))
	}
	return r
}

// Parse decodes a YAML (or JSON) document keyed by layer name and validates
// every region.
func Parse(data []byte) (*Registry, error) {
	var regions map[string]Region
	if err := yaml.Unmarshal(data, &regions); err != nil {
		return nil, errors.Wrap(err, "failed to parse hotspot document")
	}
	r := New(regions)
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Load reads a registry file from fs.
func Load(fs afero.Fs, path string) (*Registry, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return r, nil
}

// Lookup returns the region for key. Unknown keys are not an error.
func (r *Registry) Lookup(key string) (Region, bool) {
	region, ok := r.regions[key]
	return region, ok
}

// Keys returns the registry keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.regions))
	for key := range r.regions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of regions.
func (r *Registry) Len() int {
	return len(r.regions)
}

// Regions returns a copy of the table.
func (r *Registry) Regions() map[string]Region {
	out := make(map[string]Region, len(r.regions))
	for key, region := range r.regions {
		out[key] = region
	}
	return out
}

// Contains reports whether p lies in the region registered under key.
// Unknown keys contain nothing.
func (r *Registry) Contains(key string, p Point) bool {
	region, ok := r.regions[key]
	return ok && region.Contains(p)
}

// HitTest returns the first key, in sorted order, whose region contains p.
func (r *Registry) HitTest(p Point) (string, bool) {
	for _, key := range r.Keys() {
		if r.regions[key].Contains(p) {
			return key, true
		}
	}
	return "", false
}

// Validate checks every region.
func (r *Registry) Validate() error {
	if len(r.regions) == 0 {
		return errors.New("hotspot registry is empty")
	}
	for _, key := range r.Keys() {
		if key == "" {
			return errors.New("hotspot with empty key")
		}
		if err := r.regions[key].Validate(); err != nil {
			return errors.Wrapf(err, "hotspot %q", key)
		}
	}
	return nil
}

// MarshalJSON encodes the registry as an object keyed by layer name.
func (r *Registry) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.regions)
}

// UnmarshalJSON decodes and validates a registry document.
func (r *Registry) UnmarshalJSON(data []byte) error {
	var regions map[string]Region
	if err := json.Unmarshal(data, &regions); err != nil {
		return err
	}
	*r = *New(regions)
	return r.Validate()
}

package hotspot

import (
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := Default()
	require.NoError(t, r.Validate())
	assert.Equal(t, []string{"classifier", "conv1", "conv2", "conv3", "conv4", "gap_layer", "input_layer"}, r.Keys())

	conv1, ok := r.Lookup("conv1")
	require.True(t, ok)
	assert.Equal(t, TypeRect, conv1.Type)
	assert.Equal(t, []Point{{467, 206}, {668, 206}, {668, 865}, {467, 865}}, conv1.Points)
	assert.Contains(t, conv1.Description, "1 input channel -> 16 output channels")

	_, ok = r.Lookup("batchnorm1")
	assert.False(t, ok, "batch norm has no region of its own")
}

func TestRegionJSON(t *testing.T) {
	region, _ := Default().Lookup("classifier")
	data, err := json.Marshal(region)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"rect","pts":[[1724,206],[1784,206],[1784,865],[1724,865]],"description":`+
		mustJSON(t, region.Description)+`}`, string(data))

	var back Region
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, region.Equal(back))
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestContains(t *testing.T) {
	r := Default()
	assert.True(t, r.Contains("conv1", Point{500, 500}))
	assert.True(t, r.Contains("conv1", Point{467, 206}), "corners are inside")
	assert.False(t, r.Contains("conv1", Point{700, 500}))
	assert.False(t, r.Contains("maxpool1", Point{500, 500}))

	key, ok := r.HitTest(Point{1750, 300})
	assert.True(t, ok)
	assert.Equal(t, "classifier", key)
	_, ok = r.HitTest(Point{0, 0})
	assert.False(t, ok)
}

func TestContainsConcavePolygon(t *testing.T) {
	// U shape opening upwards.
	u := Region{Type: TypePoly, Points: []Point{{0, 0}, {30, 0}, {30, 30}, {20, 30}, {20, 10}, {10, 10}, {10, 30}, {0, 30}}}
	require.NoError(t, u.Validate())

	tests := []struct {
		p    Point
		want bool
	}{
		{Point{5, 20}, true},
		{Point{25, 20}, true},
		{Point{15, 5}, true},
		{Point{15, 20}, false}, // inside the notch
		{Point{15, 10}, true},  // on the notch floor
		{Point{31, 5}, false},
		{Point{0, 15}, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, u.Contains(tt.p), "point %v", tt.p)
	}
}

func TestRegionValidate(t *testing.T) {
	tests := []struct {
		name   string
		region Region
	}{
		{"unknown type", Region{Type: "circle", Points: []Point{{0, 0}, {1, 0}, {0, 1}}}},
		{"too few points", Region{Type: TypePoly, Points: []Point{{0, 0}, {1, 1}}}},
		{"rect with three points", Region{Type: TypeRect, Points: []Point{{0, 0}, {1, 0}, {1, 1}}}},
		{"skewed rect", Region{Type: TypeRect, Points: []Point{{0, 0}, {10, 1}, {10, 10}, {0, 10}}}},
		{"bow tie", Region{Type: TypePoly, Points: []Point{{0, 0}, {10, 10}, {10, 0}, {0, 10}}}},
		{"collinear", Region{Type: TypePoly, Points: []Point{{0, 0}, {5, 0}, {10, 0}}}},
		{"repeated point", Region{Type: TypePoly, Points: []Point{{0, 0}, {0, 0}, {5, 5}, {0, 5}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.region.Validate())
		})
	}

	triangle := Region{Type: TypePoly, Points: []Point{{0, 0}, {10, 0}, {5, 8}}}
	assert.NoError(t, triangle.Validate())
}

func TestLoadOverride(t *testing.T) {
	fs := afero.NewMemMapFs()
	doc := `{"conv1": {"type": "poly", "pts": [[0,0],[10,0],[5,8]], "description": "triangle"}}`
	require.NoError(t, afero.WriteFile(fs, "hotspots.json", []byte(doc), 0o644))

	r, err := Load(fs, "hotspots.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"conv1"}, r.Keys())
	assert.True(t, r.Contains("conv1", Point{5, 3}))

	require.NoError(t, afero.WriteFile(fs, "bad.yaml", []byte("conv1:\n  type: rect\n  pts: [[0,0],[1,1]]\n"), 0o644))
	_, err = Load(fs, "bad.yaml")
	assert.Error(t, err)

	_, err = Load(fs, "missing.yaml")
	assert.Error(t, err)
}

func TestRegistryIsImmutable(t *testing.T) {
	regions := map[string]Region{"conv1": {Type: TypePoly, Points: []Point{{0, 0}, {10, 0}, {5, 8}}}}
	r := New(regions)
	regions["conv1"].Points[0] = Point{99, 99}
	delete(regions, "conv1")

	got, ok := r.Lookup("conv1")
	require.True(t, ok)
	assert.Equal(t, Point{0, 0}, got.Points[0])

	copied := r.Regions()
	delete(copied, "conv1")
	assert.Equal(t, 1, r.Len())
}

func TestRegistryJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(Default())
	require.NoError(t, err)

	var back Registry
	require.NoError(t, json.Unmarshal(data, &back))
	for _, key := range Default().Keys() {
		want, _ := Default().Lookup(key)
		got, ok := back.Lookup(key)
		require.True(t, ok, key)
		assert.True(t, want.Equal(got), key)
	}
}

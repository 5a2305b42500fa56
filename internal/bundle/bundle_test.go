package bundle

import (
	"encoding/json"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/badgecnn/bridge/internal/backend/cpu"
	"github.com/badgecnn/bridge/internal/export"
	"github.com/badgecnn/bridge/internal/hotspot"
	"github.com/badgecnn/bridge/internal/model"
	"github.com/badgecnn/bridge/internal/nn"
	"github.com/badgecnn/bridge/internal/tensor"
	"github.com/janpfeifer/must"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exported(t *testing.T, withBuffers bool) (afero.Fs, *model.Network) {
	t.Helper()
	fs := afero.NewMemMapFs()
	net := must.M1(model.New(model.Architecture(), cpu.New(), rand.New(rand.NewSource(11))))
	s := export.NewSerializer(model.Architecture(), hotspot.Default(), export.Options{})
	_, _, err := export.Export(s, &export.Writer{Fs: fs, Dir: "out"}, net.StateDict(withBuffers))
	require.NoError(t, err)
	return fs, net
}

func TestLoadAndQuery(t *testing.T) {
	fs, net := exported(t, false)
	b := must.M1(Load(fs, "out"))
	params := net.StateDict(false)

	assert.Equal(t, nn.NumElements(params), b.Count())
	require.Len(t, b.Layers(), len(params))
	for _, p := range params {
		values, err := b.LayerWeights(p.Name)
		require.NoError(t, err, p.Name)
		assert.Equal(t, p.Tensor.Data(), values, p.Name)
	}

	r, ok := b.FindLayer("conv3.weight")
	require.True(t, ok)
	assert.Equal(t, []int{64, 32, 3, 3}, r.Shape)
	_, ok = b.FindLayer("conv9.weight")
	assert.False(t, ok)
	_, err := b.LayerWeights("conv9.weight")
	assert.ErrorIs(t, err, ErrLayerNotFound)

	assert.Len(t, b.ConvLayers(), 4)
	assert.Len(t, b.FCLayers(), 1)
	assert.Len(t, b.BiasLayers(), 9)
	assert.Equal(t, "classifier.weight", b.FCLayers()[0].Name)
}

func TestHotspotQueries(t *testing.T) {
	fs, _ := exported(t, false)
	b := must.M1(Load(fs, "out"))

	region, ok := b.Hotspot("conv2")
	require.True(t, ok)
	assert.Equal(t, hotspot.TypeRect, region.Type)

	key, ok := b.HotspotKey("batchnorm3.bias")
	require.True(t, ok)
	assert.Equal(t, "conv3", key)
	_, ok = b.HotspotKey("conv9.weight")
	assert.False(t, ok)

	key, ok = b.HotspotAt(hotspot.Point{500, 300})
	require.True(t, ok)
	assert.Equal(t, "conv1", key)
	_, ok = b.HotspotAt(hotspot.Point{0, 0})
	assert.False(t, ok)

	var names []string
	for _, r := range b.LayersAt(hotspot.Point{1744, 500}) {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"classifier.weight", "classifier.bias"}, names)

	// Batch-norm records share their convolution's region.
	var conv1 []string
	for _, r := range b.LayersAt(hotspot.Point{467, 865}) {
		conv1 = append(conv1, r.Name)
	}
	assert.Equal(t, []string{"conv1.weight", "conv1.bias", "batchnorm1.weight", "batchnorm1.bias"}, conv1)
}

func TestStateDictRestoresNetwork(t *testing.T) {
	fs, net := exported(t, true)
	b := must.M1(Load(fs, "out"))
	state := must.M1(b.StateDict())

	restored := must.M1(model.New(model.Architecture(), cpu.New(), rand.New(rand.NewSource(99))))
	require.NoError(t, restored.LoadStateDict(state))

	input := tensor.Randn(tensor.Shape{1, 1, 64, 64}, rand.New(rand.NewSource(5)))
	want := net.Forward(input)
	got := restored.Forward(input)
	assert.Equal(t, want.Data(), got.Data())

	// Copies, not views of the buffer.
	state[0].Tensor.Data()[0] += 1
	values := must.M1(b.LayerWeights(state[0].Name))
	assert.NotEqual(t, state[0].Tensor.Data()[0], values[0])
}

func TestOutOfBoundsRecord(t *testing.T) {
	fs, _ := exported(t, false)
	path := filepath.Join("out", export.MetadataFile)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(must.M1(afero.ReadFile(fs, path)), &doc))
	layers := doc["layers"].([]any)
	layers[len(layers)-1].(map[string]any)["offset"] = 1 << 30
	require.NoError(t, afero.WriteFile(fs, path, must.M1(json.Marshal(doc)), 0o644))

	b := must.M1(Load(fs, "out"))
	_, err := b.LayerWeights("classifier.bias")
	assert.ErrorIs(t, err, ErrOutOfBounds)
	_, err = b.StateDict()
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestLoadFailures(t *testing.T) {
	_, err := Load(afero.NewMemMapFs(), "out")
	assert.ErrorContains(t, err, export.MetadataFile)

	fs, _ := exported(t, false)
	weights := filepath.Join("out", export.WeightsFile)
	data := must.M1(afero.ReadFile(fs, weights))
	require.NoError(t, afero.WriteFile(fs, weights, data[:len(data)-1], 0o644))
	_, err = Load(fs, "out")
	assert.ErrorContains(t, err, export.WeightsFile)
}

package arch

import (
	"encoding/json"
	"testing"

	"github.com/badgecnn/bridge/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoStage is a small network: conv block, then a linear head over GAP.
func twoStage() *Architecture {
	return &Architecture{
		Name:       "tiny",
		InputShape: tensor.Shape{1, 8, 8},
		NumClasses: 3,
		Descriptors: []LayerDescriptor{
			Conv2D("conv1", "conv1", 1, 4, 3, 1, 1, "relu"),
			BatchNorm2D("batchnorm1", "conv1", 4),
			MaxPool2D("maxpool1", "conv1", 2, 2),
			AdaptiveAvgPool2D("gap", "gap", 1),
			Linear("classifier", "classifier", 4, 3),
		},
		HotspotKeys: map[string]string{"conv1": "conv1", "classifier": "classifier"},
	}
}

func TestArchitecture_Validate(t *testing.T) {
	require.NoError(t, twoStage().Validate())

	tests := []struct {
		name   string
		mutate func(a *Architecture)
	}{
		{"duplicate name", func(a *Architecture) { a.Descriptors[1].Name = "conv1" }},
		{"empty name", func(a *Architecture) { a.Descriptors[2].Name = "" }},
		{"conv chain", func(a *Architecture) { a.Descriptors[0].InChannels = 3 }},
		{"bn chain", func(a *Architecture) { a.Descriptors[1].NumFeatures = 8 }},
		{"linear chain", func(a *Architecture) { a.Descriptors[4].InFeatures = 16 }},
		{"class count", func(a *Architecture) { a.NumClasses = 9 }},
		{"unknown kind", func(a *Architecture) { a.Descriptors[3].Kind = KindUnknown }},
		{"zero kernel", func(a *Architecture) { a.Descriptors[2].KernelSize = 0 }},
		{"split stage", func(a *Architecture) {
			a.Descriptors[2].Stage = "x"
			a.Descriptors[3].Stage = "conv1"
		}},
		{"bad input shape", func(a *Architecture) { a.InputShape = tensor.Shape{8, 8} }},
		{"no descriptors", func(a *Architecture) { a.Descriptors = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := twoStage()
			tt.mutate(a)
			err := a.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidArchitecture)
		})
	}
}

func TestArchitecture_StageShapes(t *testing.T) {
	shapes, err := twoStage().StageShapes()
	require.NoError(t, err)
	assert.Equal(t, []StageShape{
		{Stage: "conv1", Shape: tensor.Shape{4, 4, 4}},
		{Stage: "gap", Shape: tensor.Shape{4}},
		{Stage: "classifier", Shape: tensor.Shape{3}},
	}, shapes)
}

func TestArchitecture_LookupAndStages(t *testing.T) {
	a := twoStage()

	d, idx, ok := a.Lookup("batchnorm1")
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, KindBatchNorm2D, d.Kind)

	_, _, ok = a.Lookup("conv9")
	assert.False(t, ok)

	assert.Equal(t, []string{"conv1", "gap", "classifier"}, a.Stages())
	assert.Len(t, a.StageDescriptors("conv1"), 3)

	key, ok := a.HotspotKey("classifier")
	assert.True(t, ok)
	assert.Equal(t, "classifier", key)
	_, ok = a.HotspotKey("gap")
	assert.False(t, ok)
}

func TestArchitecture_ParameterNames(t *testing.T) {
	a := twoStage()
	assert.Equal(t, []string{
		"conv1.weight", "conv1.bias",
		"batchnorm1.weight", "batchnorm1.bias",
		"classifier.weight", "classifier.bias",
	}, a.ParameterNames(false))
	assert.Len(t, a.ParameterNames(true), 8)
}

func TestLayerDescriptor_ExpectedShape(t *testing.T) {
	conv := Conv2D("conv2", "conv2", 16, 32, 3, 1, 1, "relu")
	shape, ok := conv.ExpectedShape(RoleWeight)
	require.True(t, ok)
	assert.Equal(t, tensor.Shape{32, 16, 3, 3}, shape)
	shape, _ = conv.ExpectedShape(RoleBias)
	assert.Equal(t, tensor.Shape{32}, shape)
	_, ok = conv.ExpectedShape(RoleRunningMean)
	assert.False(t, ok)

	bn := BatchNorm2D("batchnorm2", "conv2", 32)
	shape, ok = bn.ExpectedShape(RoleRunningVar)
	require.True(t, ok)
	assert.Equal(t, tensor.Shape{32}, shape)

	fc := Linear("classifier", "classifier", 64, 9)
	shape, _ = fc.ExpectedShape(RoleWeight)
	assert.Equal(t, tensor.Shape{9, 64}, shape)

	_, ok = MaxPool2D("maxpool1", "conv1", 2, 2).ExpectedShape(RoleWeight)
	assert.False(t, ok)
}

func TestSplitParameterName(t *testing.T) {
	layer, role, ok := SplitParameterName("batchnorm3.running_mean")
	require.True(t, ok)
	assert.Equal(t, "batchnorm3", layer)
	assert.Equal(t, RoleRunningMean, role)

	layer, role, ok = SplitParameterName("block.0.weight")
	require.True(t, ok)
	assert.Equal(t, "block.0", layer)
	assert.Equal(t, RoleWeight, role)

	for _, bad := range []string{"weight", ".weight", "conv1.", ""} {
		_, _, ok := SplitParameterName(bad)
		assert.False(t, ok, bad)
	}
}

func TestLayerDescriptor_JSON(t *testing.T) {
	tests := []struct {
		desc LayerDescriptor
		want string
	}{
		{
			Conv2D("conv1", "conv1", 1, 16, 3, 1, 1, "relu"),
			`{"name":"conv1","type":"conv2d","in_channels":1,"out_channels":16,"kernel_size":3,"stride":1,"padding":1,"activation":"relu"}`,
		},
		{BatchNorm2D("batchnorm1", "conv1", 16), `{"name":"batchnorm1","type":"batchnorm2d","num_features":16}`},
		{MaxPool2D("maxpool1", "conv1", 2, 2), `{"name":"maxpool1","type":"maxpool2d","kernel_size":2,"stride":2}`},
		{AdaptiveAvgPool2D("gap", "gap", 1), `{"name":"gap","type":"adaptive_avg_pool2d","output_size":1}`},
		{Linear("classifier", "classifier", 64, 9), `{"name":"classifier","type":"linear","in_features":64,"out_features":9}`},
	}
	for _, tt := range tests {
		t.Run(tt.desc.Name, func(t *testing.T) {
			data, err := json.Marshal(tt.desc)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))

			var back LayerDescriptor
			require.NoError(t, json.Unmarshal(data, &back))
			want := tt.desc
			want.Stage = ""
			assert.Equal(t, want, back)
		})
	}

	// Padding 0 must still be written for convolutions.
	data, err := json.Marshal(Conv2D("c", "c", 1, 1, 1, 1, 0, ""))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"padding":0`)

	var d LayerDescriptor
	assert.Error(t, json.Unmarshal([]byte(`{"name":"x","type":"lstm"}`), &d))
	_, err = json.Marshal(LayerDescriptor{Name: "x"})
	assert.Error(t, err)
}

func TestKind(t *testing.T) {
	for _, k := range []Kind{KindConv2D, KindBatchNorm2D, KindMaxPool2D, KindAdaptiveAvgPool2D, KindLinear} {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	assert.True(t, KindConv2D.HasParameters())
	assert.False(t, KindMaxPool2D.HasParameters())
	assert.Equal(t, "unknown", KindUnknown.String())
}

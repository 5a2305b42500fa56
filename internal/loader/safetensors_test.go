package loader

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"testing"

	"github.com/badgecnn/bridge/internal/nn"
	"github.com/badgecnn/bridge/internal/serialization"
	"github.com/badgecnn/bridge/internal/tensor"
	"github.com/spf13/afero"
)

// createTestSafeTensorsFile writes a PyTorch-style state dict for one stage:
// conv1.0.weight [2,1,1,1], conv1.0.bias [2], conv1.1.num_batches_tracked (I64 scalar).
// Data is laid out in the order bias, counter, weight so that name order and
// offset order disagree.
func createTestSafeTensorsFile(t *testing.T, fs afero.Fs, path string) {
	t.Helper()

	header := map[string]any{
		"__metadata__":                map[string]string{"format": "pt"},
		"conv1.0.bias":                SafeTensorInfo{DType: SafeTensorsF32, Shape: []int{2}, DataOffsets: [2]int64{0, 8}},
		"conv1.1.num_batches_tracked": SafeTensorInfo{DType: SafeTensorsI64, Shape: []int{}, DataOffsets: [2]int64{8, 16}},
		"conv1.0.weight":              SafeTensorInfo{DType: SafeTensorsF32, Shape: []int{2, 1, 1, 1}, DataOffsets: [2]int64{16, 24}},
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("Failed to marshal header: %v", err)
	}

	buf := binary.LittleEndian.AppendUint64(nil, uint64(len(headerJSON)))
	buf = append(buf, headerJSON...)
	buf = tensor.EncodeFloat32(buf, []float32{0.1, -0.2})
	buf = binary.LittleEndian.AppendUint64(buf, 1200)
	buf = tensor.EncodeFloat32(buf, []float32{1.5, -2.5})

	if err := afero.WriteFile(fs, path, buf, 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
}

func TestNewSafeTensorsReader(t *testing.T) {
	fs := afero.NewMemMapFs()
	createTestSafeTensorsFile(t, fs, "badge.safetensors")

	reader, err := NewSafeTensorsReader(fs, "badge.safetensors")
	if err != nil {
		t.Fatalf("NewSafeTensorsReader failed: %v", err)
	}
	defer reader.Close()

	if reader.Metadata()["format"] != "pt" {
		t.Errorf("expected metadata format=pt, got %v", reader.Metadata())
	}

	names := reader.TensorNames()
	want := []string{"conv1.0.bias", "conv1.1.num_batches_tracked", "conv1.0.weight"}
	if len(names) != len(want) {
		t.Fatalf("expected %d tensors, got %d", len(want), len(names))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("tensor %d: got %s, want %s (offset order)", i, names[i], want[i])
		}
	}
}

func TestSafeTensorsReader_LoadTensor(t *testing.T) {
	fs := afero.NewMemMapFs()
	createTestSafeTensorsFile(t, fs, "badge.safetensors")
	reader, err := NewSafeTensorsReader(fs, "badge.safetensors")
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	weight, err := reader.LoadTensor("conv1.0.weight")
	if err != nil {
		t.Fatalf("LoadTensor failed: %v", err)
	}
	if !weight.Shape().Equal(tensor.Shape{2, 1, 1, 1}) {
		t.Errorf("unexpected shape %v", weight.Shape())
	}
	if weight.Data()[0] != 1.5 || weight.Data()[1] != -2.5 {
		t.Errorf("unexpected values %v", weight.Data())
	}

	if _, err := reader.LoadTensor("conv1.1.num_batches_tracked"); err == nil {
		t.Error("expected dtype error for I64 tensor")
	}
	if _, err := reader.LoadTensor("classifier.weight"); err == nil {
		t.Error("expected error for missing tensor")
	}

	tensors, err := reader.ReadTensors()
	if err != nil {
		t.Fatalf("ReadTensors failed: %v", err)
	}
	if len(tensors) != 2 || tensors[0].Name != "conv1.0.bias" || tensors[1].Name != "conv1.0.weight" {
		t.Errorf("ReadTensors should skip the counter and keep offset order, got %v", tensors)
	}
}

func TestSafeTensorsReader_InvalidFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	createTestSafeTensorsFile(t, fs, "badge.safetensors")
	data, _ := afero.ReadFile(fs, "badge.safetensors")

	_ = afero.WriteFile(fs, "truncated.safetensors", data[:len(data)-4], 0o644)
	if _, err := NewSafeTensorsReader(fs, "truncated.safetensors"); err == nil {
		t.Error("expected error when a tensor extends past the end of the file")
	}

	huge := append([]byte(nil), data...)
	binary.LittleEndian.PutUint64(huge, math.MaxUint64)
	_ = afero.WriteFile(fs, "huge.safetensors", huge, 0o644)
	if _, err := NewSafeTensorsReader(fs, "huge.safetensors"); err == nil {
		t.Error("expected error for oversized header")
	}

	if _, err := NewSafeTensorsReader(fs, "missing.safetensors"); err == nil {
		t.Error("expected error for missing file")
	}
}

// TestSafeTensorsFloat16 reads back what the SafeTensors writer produced in half precision.
func TestSafeTensorsFloat16(t *testing.T) {
	fs := afero.NewMemMapFs()
	values := []float32{0.5, -1.25, 3, 0}
	raw, err := tensor.FromFloat32(values, tensor.Shape{4})
	if err != nil {
		t.Fatal(err)
	}
	tensors := []nn.NamedTensor{{Name: "classifier.bias", Tensor: raw}}
	if err := serialization.WriteSafeTensors(fs, "half.safetensors", tensors, tensor.Float16, nil); err != nil {
		t.Fatalf("WriteSafeTensors failed: %v", err)
	}

	reader, err := NewSafeTensorsReader(fs, "half.safetensors")
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	info, err := reader.TensorInfo("classifier.bias")
	if err != nil {
		t.Fatal(err)
	}
	if info.DType != SafeTensorsF16 || info.DataOffsets[1] != 8 {
		t.Errorf("unexpected info %+v", info)
	}
	got, err := reader.LoadTensor("classifier.bias")
	if err != nil {
		t.Fatal(err)
	}
	// All values are exactly representable in float16.
	for i, v := range values {
		if got.Data()[i] != v {
			t.Errorf("value %d: got %v, want %v", i, got.Data()[i], v)
		}
	}
}

func TestSafeTensorsReader_Closed(t *testing.T) {
	fs := afero.NewMemMapFs()
	createTestSafeTensorsFile(t, fs, "badge.safetensors")
	reader, err := NewSafeTensorsReader(fs, "badge.safetensors")
	if err != nil {
		t.Fatal(err)
	}
	if err := reader.Close(); err != nil {
		t.Fatal(err)
	}
	if err := reader.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
	if _, err := reader.ReadTensorData("conv1.0.bias"); err == nil {
		t.Error("expected error reading from a closed reader")
	}
}

package loader

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/badgecnn/bridge/internal/nn"
	"github.com/badgecnn/bridge/internal/tensor"
	"github.com/spf13/afero"
)

// SafeTensors format:
// [8 bytes: header_size (uint64 LE)]
// [header_size bytes: JSON header]
// [tensor data: raw bytes]

// maxSafeTensorsHeader bounds the JSON header read from untrusted files.
const maxSafeTensorsHeader = 100 * 1024 * 1024

// SafeTensorsDType represents supported SafeTensors data types.
type SafeTensorsDType string

// Supported SafeTensors dtypes.
const (
	SafeTensorsF16  SafeTensorsDType = "F16"
	SafeTensorsF32  SafeTensorsDType = "F32"
	SafeTensorsF64  SafeTensorsDType = "F64"
	SafeTensorsBF16 SafeTensorsDType = "BF16"
	SafeTensorsI64  SafeTensorsDType = "I64"
)

// SafeTensorInfo describes a tensor in SafeTensors format.
type SafeTensorInfo struct {
	DType       SafeTensorsDType `json:"dtype"`
	Shape       []int            `json:"shape"`
	DataOffsets [2]int64         `json:"data_offsets"` // [start, end)
}

// SafeTensorsHeader is the JSON header in SafeTensors format.
type SafeTensorsHeader struct {
	Metadata map[string]string         `json:"__metadata__"`
	Tensors  map[string]SafeTensorInfo `json:"-"`
}

// UnmarshalJSON implements custom JSON unmarshaling for SafeTensorsHeader.
func (h *SafeTensorsHeader) UnmarshalJSON(data []byte) error {
	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawMap); err != nil {
		return err
	}

	if metadataRaw, ok := rawMap["__metadata__"]; ok {
		if err := json.Unmarshal(metadataRaw, &h.Metadata); err != nil {
			return fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	// Everything except __metadata__ is a tensor.
	h.Tensors = make(map[string]SafeTensorInfo, len(rawMap))
	for key, value := range rawMap {
		if key == "__metadata__" {
			continue
		}
		var info SafeTensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return fmt.Errorf("failed to unmarshal tensor %s: %w", key, err)
		}
		h.Tensors[key] = info
	}
	return nil
}

// SafeTensorsReader reads SafeTensors format files.
type SafeTensorsReader struct {
	file       afero.File
	header     SafeTensorsHeader
	dataOffset int64 // Offset where tensor data starts
	dataSize   int64
	closed     bool
}

// NewSafeTensorsReader opens path on fs and parses the header.
func NewSafeTensorsReader(fs afero.Fs, path string) (*SafeTensorsReader, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	reader, err := newSafeTensorsReader(file)
	if err != nil {
		_ = file.Close() // Best effort close on error
		return nil, err
	}
	return reader, nil
}

func newSafeTensorsReader(file afero.File) (*SafeTensorsReader, error) {
	var headerSize uint64
	if err := binary.Read(file, binary.LittleEndian, &headerSize); err != nil {
		return nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > maxSafeTensorsHeader {
		return nil, fmt.Errorf("invalid header size: %d (too large)", headerSize)
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(file, headerBytes); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	var header SafeTensorsHeader
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	dataOffset := int64(8 + headerSize) //nolint:gosec // G115: headerSize bounded above

	reader := &SafeTensorsReader{
		file:       file,
		header:     header,
		dataOffset: dataOffset,
		dataSize:   info.Size() - dataOffset,
	}
	for name, meta := range header.Tensors {
		start, end := meta.DataOffsets[0], meta.DataOffsets[1]
		if start < 0 || end < start || end > reader.dataSize {
			return nil, fmt.Errorf("invalid data offsets for tensor %s: [%d, %d] (data section is %d bytes)",
				name, start, end, reader.dataSize)
		}
	}
	return reader, nil
}

// Close closes the SafeTensors file.
func (r *SafeTensorsReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

// Metadata returns the metadata map from the header.
func (r *SafeTensorsReader) Metadata() map[string]string {
	return r.header.Metadata
}

// TensorNames returns all tensor names ordered by their position in the data
// section, which is the order the exporting process laid them out.
func (r *SafeTensorsReader) TensorNames() []string {
	names := make([]string, 0, len(r.header.Tensors))
	for name := range r.header.Tensors {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := r.header.Tensors[names[i]], r.header.Tensors[names[j]]
		if a.DataOffsets[0] != b.DataOffsets[0] {
			return a.DataOffsets[0] < b.DataOffsets[0]
		}
		return names[i] < names[j]
	})
	return names
}

// TensorInfo returns information about a specific tensor.
func (r *SafeTensorsReader) TensorInfo(name string) (*SafeTensorInfo, error) {
	info, ok := r.header.Tensors[name]
	if !ok {
		return nil, fmt.Errorf("tensor %s not found", name)
	}
	return &info, nil
}

// ReadTensorData reads raw tensor data for a given tensor name.
func (r *SafeTensorsReader) ReadTensorData(name string) ([]byte, error) {
	if r.closed {
		return nil, fmt.Errorf("read %s: reader is closed", name)
	}
	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	data := make([]byte, info.DataOffsets[1]-info.DataOffsets[0])
	if _, err := r.file.ReadAt(data, r.dataOffset+info.DataOffsets[0]); err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	return data, nil
}

// safeTensorsDTypeToDataType converts a SafeTensors dtype to a float DataType.
func safeTensorsDTypeToDataType(dtype SafeTensorsDType) (tensor.DataType, error) {
	switch dtype {
	case SafeTensorsF32:
		return tensor.Float32, nil
	case SafeTensorsF64:
		return tensor.Float64, nil
	case SafeTensorsF16:
		return tensor.Float16, nil
	case SafeTensorsBF16:
		return tensor.BFloat16, nil
	default:
		return 0, fmt.Errorf("unsupported dtype: %s", dtype)
	}
}

// LoadTensor loads a tensor and converts it to float32.
func (r *SafeTensorsReader) LoadTensor(name string) (*tensor.RawTensor, error) {
	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	dtype, err := safeTensorsDTypeToDataType(info.DType)
	if err != nil {
		return nil, fmt.Errorf("failed to convert dtype for tensor %s: %w", name, err)
	}
	shape := tensor.Shape(info.Shape)
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape for tensor %s: %w", name, err)
	}
	if want := int64(shape.NumElements() * dtype.Size()); want != info.DataOffsets[1]-info.DataOffsets[0] {
		return nil, fmt.Errorf("tensor %s: shape %v needs %d bytes, data offsets span %d",
			name, shape, want, info.DataOffsets[1]-info.DataOffsets[0])
	}

	data, err := r.ReadTensorData(name)
	if err != nil {
		return nil, err
	}
	values, err := tensor.DecodeFloat32(data, dtype)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	raw, err := tensor.FromFloat32(values, shape)
	if err != nil {
		return nil, fmt.Errorf("failed to create tensor: %w", err)
	}
	return raw, nil
}

// ReadTensors loads every float tensor in data-section order. Integer tensors
// (PyTorch's num_batches_tracked counters) are skipped.
func (r *SafeTensorsReader) ReadTensors() ([]nn.NamedTensor, error) {
	names := r.TensorNames()
	out := make([]nn.NamedTensor, 0, len(names))
	for _, name := range names {
		if r.header.Tensors[name].DType == SafeTensorsI64 {
			continue
		}
		raw, err := r.LoadTensor(name)
		if err != nil {
			return nil, err
		}
		out = append(out, nn.NamedTensor{Name: name, Tensor: raw})
	}
	return out, nil
}

package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/badgecnn/bridge/internal/nn"
	"github.com/badgecnn/bridge/internal/tensor"
	"github.com/spf13/afero"
	"github.com/x448/float16"
)

// SafeTensorsWriter writes models in SafeTensors format.
// SafeTensors is the format PyTorch training scripts export with
// safetensors.torch.save_file.
type SafeTensorsWriter struct {
	file   afero.File
	dtype  tensor.DataType
	closed bool
}

// SafeTensorHeader represents a tensor in the SafeTensors header.
type SafeTensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// NewSafeTensorsWriter creates a new SafeTensors file writer that stores
// values as dtype (Float32 or Float16).
func NewSafeTensorsWriter(fs afero.Fs, path string, dtype tensor.DataType) (*SafeTensorsWriter, error) {
	if dtype != tensor.Float32 && dtype != tensor.Float16 {
		return nil, fmt.Errorf("%w: safetensors writer supports float32 and float16, got %s", ErrUnsupportedDType, dtype)
	}
	file, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return &SafeTensorsWriter{file: file, dtype: dtype}, nil
}

// WriteSafeTensors writes tensors to a SafeTensors file.
//
// Format:
// [8 bytes: header_size (uint64 LE)]
// [header_size bytes: JSON header]
// [tensor data: raw bytes]
//
// Tensors are written in alphabetical order by name.
func WriteSafeTensors(fs afero.Fs, path string, tensors []nn.NamedTensor, dtype tensor.DataType, metadata map[string]string) (err error) {
	writer, err := NewSafeTensorsWriter(fs, path, dtype)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := writer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return writer.WriteTensors(tensors, metadata)
}

// WriteTensors writes the tensors, sorted by name, to the SafeTensors file.
func (w *SafeTensorsWriter) WriteTensors(tensors []nn.NamedTensor, metadata map[string]string) error {
	if w.closed {
		return ErrClosed
	}

	sorted := append([]nn.NamedTensor(nil), tensors...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	header := make(map[string]any, len(sorted)+1)
	if len(metadata) > 0 {
		header["__metadata__"] = metadata
	}

	var currentOffset int64
	for _, nt := range sorted {
		shape := nt.Tensor.Shape()
		size := int64(nt.Tensor.NumElements() * w.dtype.Size())

		// Convert shape to []int64 (SafeTensors requirement)
		shapeInt64 := make([]int64, len(shape))
		for i, dim := range shape {
			shapeInt64[i] = int64(dim)
		}

		header[nt.Name] = SafeTensorHeader{
			DType:       dtypeToSafeTensors(w.dtype),
			Shape:       shapeInt64,
			DataOffsets: [2]int64{currentOffset, currentOffset + size},
		}
		currentOffset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	// Write header size (8 bytes, little-endian uint64)
	if err := binary.Write(w.file, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.file.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, nt := range sorted {
		if _, err := w.file.Write(w.encode(nt.Tensor)); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", nt.Name, err)
		}
	}
	return nil
}

func (w *SafeTensorsWriter) encode(t *tensor.RawTensor) []byte {
	if w.dtype == tensor.Float32 {
		return t.Bytes()
	}
	out := make([]byte, 0, 2*t.NumElements())
	for _, v := range t.Data() {
		out = binary.LittleEndian.AppendUint16(out, float16.Fromfloat32(v).Bits())
	}
	return out
}

// Close closes the writer and the underlying file.
func (w *SafeTensorsWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// dtypeToSafeTensors converts tensor.DataType to SafeTensors dtype string.
func dtypeToSafeTensors(dt tensor.DataType) string {
	switch dt {
	case tensor.Float16:
		return "F16"
	case tensor.BFloat16:
		return "BF16"
	case tensor.Float64:
		return "F64"
	default:
		return "F32"
	}
}

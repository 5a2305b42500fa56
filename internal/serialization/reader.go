package serialization

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/badgecnn/bridge/internal/nn"
	"github.com/badgecnn/bridge/internal/tensor"
	"github.com/spf13/afero"
)

// BornReader reads checkpoints from .born format.
type BornReader struct {
	file       afero.File
	header     Header
	flags      uint32
	dataOffset int64    // Offset where tensor data starts
	dataSize   int64    // Size of the data section
	checksum   [32]byte // SHA-256 checksum
	opts       ReaderOptions
	closed     bool
}

// ReaderOptions configures the behavior of BornReader.
type ReaderOptions struct {
	SkipChecksumValidation bool            // Skip checksum validation (faster but less safe)
	ValidationLevel        ValidationLevel // Validation strictness level
}

// NewBornReader creates a new .born file reader with default options (strict validation).
func NewBornReader(fs afero.Fs, path string) (*BornReader, error) {
	return NewBornReaderWithOptions(fs, path, ReaderOptions{
		ValidationLevel: ValidationStrict,
	})
}

// NewBornReaderWithOptions creates a new .born file reader with custom options.
func NewBornReaderWithOptions(fs afero.Fs, path string, opts ReaderOptions) (*BornReader, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	reader := &BornReader{file: file, opts: opts}
	if err := reader.parseHeader(); err != nil {
		_ = file.Close() // Best effort close on error
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	fileInfo, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	reader.dataSize = fileInfo.Size() - reader.dataOffset

	if err := ValidateHeader(&reader.header, reader.dataSize, opts.ValidationLevel); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return reader, nil
}

// parseHeader reads the fixed header and the JSON header, then validates the
// checksum of the data section.
func (r *BornReader) parseHeader() error {
	fixedHeader := make([]byte, FixedHeaderSizeV2)
	if _, err := io.ReadFull(r.file, fixedHeader); err != nil {
		return fmt.Errorf("failed to read fixed header: %w", err)
	}
	if string(fixedHeader[0:4]) != MagicBytes {
		return ErrInvalidMagic
	}

	// 0x04-0x07: version
	if version := binary.LittleEndian.Uint32(fixedHeader[4:8]); version != FormatVersionV2 {
		return fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, version, FormatVersionV2)
	}

	// 0x08-0x0B: flags
	r.flags = binary.LittleEndian.Uint32(fixedHeader[8:12])

	// 0x10-0x17: header size
	headerSize := binary.LittleEndian.Uint64(fixedHeader[16:24])

	// 0x18-0x1F: data size
	dataSize := binary.LittleEndian.Uint64(fixedHeader[24:32])

	// 0x20-0x3F: SHA-256 checksum
	copy(r.checksum[:], fixedHeader[ChecksumOffsetV2:ChecksumOffsetV2+ChecksumSize])

	if headerSize > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r.file, headerBytes); err != nil {
		return fmt.Errorf("failed to read header JSON: %w", err)
	}
	if err := json.Unmarshal(headerBytes, &r.header); err != nil {
		return fmt.Errorf("failed to parse header JSON: %w", err)
	}

	//nolint:gosec // G115: headerSize checked against MaxHeaderSize above
	r.dataOffset = alignedDataOffset(int64(headerSize))

	if r.opts.SkipChecksumValidation {
		return nil
	}
	//nolint:gosec // G115: a short data section fails the comparison
	computed, err := r.dataChecksum(int64(dataSize))
	if err != nil {
		return err
	}
	if computed != r.checksum {
		return &ChecksumError{Stored: r.checksum, Computed: computed}
	}
	return nil
}

// dataChecksum hashes size bytes of the data section straight from the file.
func (r *BornReader) dataChecksum(size int64) ([32]byte, error) {
	var sum [32]byte
	digest := sha256.New()
	if _, err := io.Copy(digest, io.NewSectionReader(r.file, r.dataOffset, size)); err != nil {
		return sum, fmt.Errorf("failed to hash tensor data: %w", err)
	}
	copy(sum[:], digest.Sum(nil))
	return sum, nil
}

// Header returns the file header.
func (r *BornReader) Header() Header {
	return r.header
}

// Metadata returns the metadata map from the header.
func (r *BornReader) Metadata() map[string]string {
	return r.header.Metadata
}

// Checksum returns the stored SHA-256 of the data section.
func (r *BornReader) Checksum() [32]byte {
	return r.checksum
}

// TensorNames returns all tensor names in file order.
func (r *BornReader) TensorNames() []string {
	names := make([]string, len(r.header.Tensors))
	for i, meta := range r.header.Tensors {
		names[i] = meta.Name
	}
	return names
}

// TensorInfo returns information about a specific tensor.
func (r *BornReader) TensorInfo(name string) (*TensorMeta, error) {
	for _, meta := range r.header.Tensors {
		if meta.Name == name {
			return &meta, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
}

// ReadTensorData reads raw tensor data for a given tensor name.
func (r *BornReader) ReadTensorData(name string) ([]byte, error) {
	if r.closed {
		return nil, ErrClosed
	}
	meta, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}

	data := make([]byte, meta.Size)
	if _, err := r.file.ReadAt(data, r.dataOffset+meta.Offset); err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	return data, nil
}

// LoadTensor loads a single tensor, converting it to float32.
func (r *BornReader) LoadTensor(name string) (*tensor.RawTensor, error) {
	meta, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}
	dtype, ok := tensor.ParseDataType(meta.DType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDType, meta.DType)
	}
	data, err := r.ReadTensorData(name)
	if err != nil {
		return nil, err
	}
	values, err := tensor.DecodeFloat32(data, dtype)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	raw, err := tensor.FromFloat32(values, tensor.Shape(meta.Shape))
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	return raw, nil
}

// ReadTensors reads every tensor in file order.
func (r *BornReader) ReadTensors() ([]nn.NamedTensor, error) {
	if r.closed {
		return nil, ErrClosed
	}
	out := make([]nn.NamedTensor, 0, len(r.header.Tensors))
	for _, meta := range r.header.Tensors {
		raw, err := r.LoadTensor(meta.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to load tensor %s: %w", meta.Name, err)
		}
		out = append(out, nn.NamedTensor{Name: meta.Name, Tensor: raw})
	}
	return out, nil
}

// Close closes the reader and the underlying file.
func (r *BornReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.file.Close()
}

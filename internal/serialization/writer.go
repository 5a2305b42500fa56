package serialization

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/badgecnn/bridge/internal/nn"
	"github.com/spf13/afero"
)

// BornWriter writes checkpoints in .born v2 format.
type BornWriter struct {
	file   afero.File
	closed bool
}

// NewBornWriter creates a new .born file writer.
func NewBornWriter(fs afero.Fs, path string) (*BornWriter, error) {
	file, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return &BornWriter{file: file}, nil
}

// WriteFile writes tensors to path and closes the file.
func WriteFile(fs afero.Fs, path string, tensors []nn.NamedTensor, header Header) (err error) {
	writer, err := NewBornWriter(fs, path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := writer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return writer.WriteTensors(tensors, header)
}

// WriteTensors writes tensors, in slice order, with a SHA-256 checksum of the
// data section.
func (w *BornWriter) WriteTensors(tensors []nn.NamedTensor, header Header) error {
	if w.closed {
		return ErrClosed
	}
	return WriteTo(w.file, tensors, header)
}

// Close closes the writer and the underlying file.
func (w *BornWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// WriteTo writes a .born v2 stream to an io.Writer.
//
// header.Tensors is computed here; FormatVersion and Producer are forced.
// A zero CreatedAt is set to the current time.
func WriteTo(writer io.Writer, tensors []nn.NamedTensor, header Header) error {
	header.FormatVersion = FormatVersionV2
	header.Producer = Producer
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}
	if header.Metadata == nil {
		header.Metadata = make(map[string]string)
	}

	// Calculate tensor offsets in caller order.
	var currentOffset int64
	header.Tensors = make([]TensorMeta, 0, len(tensors))
	for _, nt := range tensors {
		if err := ValidateTensorName(nt.Name); err != nil {
			return err
		}
		size := int64(nt.Tensor.ByteSize())
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   nt.Name,
			DType:  DTypeFloat32,
			Shape:  []int(nt.Tensor.Shape()),
			Offset: currentOffset,
			Size:   size,
		})
		currentOffset += size
	}

	// The checksum goes in the fixed header, so the data is hashed first.
	digest := sha256.New()
	for _, nt := range tensors {
		digest.Write(nt.Tensor.Bytes())
	}
	checksum := digest.Sum(nil)

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	headerSize := uint64(len(headerJSON))
	//nolint:gosec // G115: offsets are sums of tensor byte sizes
	dataSize := uint64(currentOffset)

	fixedHeader := make([]byte, FixedHeaderSizeV2)

	// 0x00-0x03: Magic bytes "BORN"
	copy(fixedHeader[0:4], MagicBytes)

	// 0x04-0x07: Version (2)
	binary.LittleEndian.PutUint32(fixedHeader[4:8], uint32(FormatVersionV2))

	// 0x08-0x0B: Flags
	flags := uint32(0)
	if len(header.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	binary.LittleEndian.PutUint32(fixedHeader[8:12], flags)

	// 0x0C-0x0F: Reserved (0)

	// 0x10-0x17: Header size
	binary.LittleEndian.PutUint64(fixedHeader[16:24], headerSize)

	// 0x18-0x1F: Data size
	binary.LittleEndian.PutUint64(fixedHeader[24:32], dataSize)

	// 0x20-0x3F: SHA-256 checksum
	copy(fixedHeader[ChecksumOffsetV2:ChecksumOffsetV2+ChecksumSize], checksum)

	if _, err := writer.Write(fixedHeader); err != nil {
		return fmt.Errorf("failed to write fixed header: %w", err)
	}
	if _, err := writer.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header JSON: %w", err)
	}

	//nolint:gosec // G115: headerSize is bounded by MaxHeaderSize
	currentPos := int64(FixedHeaderSizeV2) + int64(headerSize)
	if padding := alignedDataOffset(int64(headerSize)) - currentPos; padding > 0 {
		if _, err := writer.Write(make([]byte, padding)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}

	for _, nt := range tensors {
		if _, err := writer.Write(nt.Tensor.Bytes()); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", nt.Name, err)
		}
	}
	return nil
}

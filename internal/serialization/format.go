package serialization

import (
	"time"
)

// Format constants.
const (
	MagicBytes        = "BORN"
	FormatVersionV2   = 2    // v2: With SHA-256 checksum
	HeaderAlignment   = 64   // Align tensor data to 64 bytes
	FixedHeaderSizeV2 = 64   // v2 fixed header size (0x40 bytes)
	ChecksumSize      = 32   // SHA-256 checksum size (32 bytes)
	ChecksumOffsetV2  = 0x20 // Checksum offset in v2 fixed header
)

// Producer identifies the writer in the JSON header.
const Producer = "badgecnn"

// Data type string constants for serialization.
const (
	DTypeFloat32  = "float32"
	DTypeFloat16  = "float16"
	DTypeBFloat16 = "bfloat16"
	DTypeFloat64  = "float64"
)

// Flags for the .born format.
const (
	FlagHasMetadata uint32 = 1 << 2 // bit 2: custom metadata included
)

// Header represents the JSON header in a .born file.
type Header struct {
	FormatVersion int               `json:"format_version"` // Version of the .born format
	Producer      string            `json:"producer"`       // Program that created this file
	ModelType     string            `json:"model_type"`     // Type of model (e.g., "BadgeCNN")
	CreatedAt     time.Time         `json:"created_at"`     // When the file was created
	Tensors       []TensorMeta      `json:"tensors"`        // Tensor metadata, in data order
	Metadata      map[string]string `json:"metadata"`       // Custom metadata
}

// TensorMeta describes a tensor in the .born file.
type TensorMeta struct {
	Name   string `json:"name"`   // Tensor name (e.g., "conv1.weight")
	DType  string `json:"dtype"`  // Data type (e.g., "float32")
	Shape  []int  `json:"shape"`  // Tensor shape
	Offset int64  `json:"offset"` // Offset in the data section (bytes from start of tensor data)
	Size   int64  `json:"size"`   // Size in bytes
}

// alignedDataOffset returns where the data section starts for a header of
// headerSize bytes.
func alignedDataOffset(headerSize int64) int64 {
	currentPos := int64(FixedHeaderSizeV2) + headerSize
	padding := (HeaderAlignment - (currentPos % HeaderAlignment)) % HeaderAlignment
	return currentPos + padding
}

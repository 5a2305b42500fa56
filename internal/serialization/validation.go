package serialization

import (
	"fmt"
	"sort"
	"strings"

	"github.com/badgecnn/bridge/internal/tensor"
)

// Limits on what a reader accepts from a checkpoint header.
const (
	MaxHeaderSize    = 16 << 20
	MaxTensorCount   = 100_000
	MaxTensorNameLen = 4096
)

// ValidationLevel selects which header rules a reader enforces.
type ValidationLevel int

const (
	// ValidationStrict checks names, byte sizes against shape and dtype, and
	// that records tile the data section without overlap.
	ValidationStrict ValidationLevel = iota
	// ValidationNormal checks names only.
	ValidationNormal
	// ValidationNone trusts the header.
	ValidationNone
)

// ValidateTensorOffsets checks that every record lies inside a data section of
// dataSize bytes and that no two records overlap.
func ValidateTensorOffsets(tensors []TensorMeta, dataSize int64) error {
	if len(tensors) > MaxTensorCount {
		return invalid(KindTooManyTensors, fmt.Sprintf("got %d, max %d", len(tensors), MaxTensorCount))
	}

	byOffset := append([]TensorMeta(nil), tensors...)
	sort.Slice(byOffset, func(i, j int) bool { return byOffset[i].Offset < byOffset[j].Offset })

	for i, t := range byOffset {
		end := t.Offset + t.Size
		switch {
		case t.Offset < 0 || t.Size < 0:
			return invalid(KindNegativeOffset, fmt.Sprintf("offset=%d, size=%d", t.Offset, t.Size), t.Name)
		case end > dataSize:
			return invalid(KindOutOfBounds,
				fmt.Sprintf("offset %d + size %d > data_size %d", t.Offset, t.Size, dataSize), t.Name)
		}
		if i+1 < len(byOffset) {
			if next := byOffset[i+1]; end > next.Offset {
				return invalid(KindOverlap,
					fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap", t.Offset, end, next.Offset, next.Offset+next.Size),
					t.Name, next.Name)
			}
		}
	}
	return nil
}

// ValidateTensorName rejects names that could not come from a state dict:
// oversized, path-like, or containing NUL.
func ValidateTensorName(name string) error {
	if len(name) > MaxTensorNameLen {
		return invalid(KindNameTooLong, fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen), name)
	}
	switch {
	case strings.Contains(name, ".."):
		return invalid(KindInvalidName, "contains '..'", name)
	case strings.ContainsAny(name, `/\`):
		return invalid(KindInvalidName, "contains a path separator", name)
	case strings.ContainsRune(name, 0):
		return invalid(KindInvalidName, "contains a NUL byte", name)
	}
	return nil
}

// ValidateHeader applies the rules of level to h.
func ValidateHeader(h *Header, dataSize int64, level ValidationLevel) error {
	if level == ValidationNone {
		return nil
	}
	if len(h.Tensors) > MaxTensorCount {
		return invalid(KindTooManyTensors, fmt.Sprintf("got %d, max %d", len(h.Tensors), MaxTensorCount))
	}

	seen := make(map[string]bool, len(h.Tensors))
	for _, t := range h.Tensors {
		if err := ValidateTensorName(t.Name); err != nil {
			return err
		}
		if seen[t.Name] {
			return invalid(KindDuplicateName, "tensor listed more than once", t.Name)
		}
		seen[t.Name] = true
	}
	if level != ValidationStrict {
		return nil
	}

	for _, t := range h.Tensors {
		if err := validateTensorSize(t); err != nil {
			return err
		}
	}
	return ValidateTensorOffsets(h.Tensors, dataSize)
}

func validateTensorSize(t TensorMeta) error {
	dtype, ok := tensor.ParseDataType(t.DType)
	if !ok {
		return invalid(KindDType, t.DType, t.Name)
	}
	shape := tensor.Shape(t.Shape)
	if err := shape.Validate(); err != nil {
		return invalid(KindShape, err.Error(), t.Name)
	}
	if want := int64(shape.NumElements() * dtype.Size()); t.Size != want {
		return invalid(KindSizeMismatch, fmt.Sprintf("size %d, shape %v of %s needs %d", t.Size, t.Shape, t.DType, want), t.Name)
	}
	return nil
}

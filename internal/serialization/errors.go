package serialization

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// Errors returned while reading or writing checkpoints.
var (
	ErrInvalidMagic       = errors.New("not a .born checkpoint")
	ErrUnsupportedVersion = errors.New("unsupported .born version")
	ErrHeaderTooLarge     = errors.New(".born header too large")
	ErrChecksumMismatch   = errors.New("checkpoint data does not match its checksum")
	ErrUnsupportedDType   = errors.New("unsupported dtype")
	ErrTensorNotFound     = errors.New("tensor not found")
	ErrClosed             = errors.New("checkpoint is closed")
)

// ChecksumError carries both digests of a corrupted data section.
// It matches ErrChecksumMismatch.
type ChecksumError struct {
	Stored   [32]byte
	Computed [32]byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("%v: header has %s..., data hashes to %s...",
		ErrChecksumMismatch, hex.EncodeToString(e.Stored[:6]), hex.EncodeToString(e.Computed[:6]))
}

// Is reports whether target is ErrChecksumMismatch.
func (e *ChecksumError) Is(target error) bool { return target == ErrChecksumMismatch }

// ValidationKind names the header rule a checkpoint broke.
type ValidationKind string

// Header rules.
const (
	KindTooManyTensors ValidationKind = "too_many_tensors"
	KindNegativeOffset ValidationKind = "negative_offset"
	KindOutOfBounds    ValidationKind = "out_of_bounds"
	KindOverlap        ValidationKind = "offset_overlap"
	KindNameTooLong    ValidationKind = "name_too_long"
	KindInvalidName    ValidationKind = "invalid_name"
	KindDuplicateName  ValidationKind = "duplicate_name"
	KindDType          ValidationKind = "unsupported_dtype"
	KindShape          ValidationKind = "invalid_shape"
	KindSizeMismatch   ValidationKind = "size_mismatch"
)

// ValidationError is a header that failed validation. Tensors holds the
// offending record names: none, one, or the two sides of an overlap.
type ValidationError struct {
	Kind    ValidationKind
	Tensors []string
	Details string
}

func (e *ValidationError) Error() string {
	switch len(e.Tensors) {
	case 0:
		return fmt.Sprintf("%s: %s", e.Kind, e.Details)
	case 1:
		return fmt.Sprintf("%s: tensor %q: %s", e.Kind, e.Tensors[0], e.Details)
	default:
		return fmt.Sprintf("%s: tensors %q and %q: %s", e.Kind, e.Tensors[0], e.Tensors[1], e.Details)
	}
}

func invalid(kind ValidationKind, details string, tensors ...string) *ValidationError {
	return &ValidationError{Kind: kind, Tensors: tensors, Details: details}
}

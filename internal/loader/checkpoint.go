package loader

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/badgecnn/bridge/internal/nn"
	"github.com/badgecnn/bridge/internal/serialization"
	"github.com/spf13/afero"
	"k8s.io/klog/v2"
)

// Format represents the checkpoint file format.
type Format int

// Supported checkpoint formats.
const (
	FormatUnknown Format = iota
	FormatBorn
	FormatSafeTensors
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatBorn:
		return "Born"
	case FormatSafeTensors:
		return "SafeTensors"
	default:
		return "Unknown"
	}
}

// DetectFormat returns the format of path, by extension first and by the
// .born magic bytes otherwise.
func DetectFormat(fs afero.Fs, path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".born":
		return FormatBorn, nil
	case ".safetensors":
		return FormatSafeTensors, nil
	}

	file, err := fs.Open(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	magic := make([]byte, len(serialization.MagicBytes))
	if _, err := io.ReadFull(file, magic); err != nil {
		return FormatUnknown, fmt.Errorf("failed to read magic bytes: %w", err)
	}
	if string(magic) == serialization.MagicBytes {
		return FormatBorn, nil
	}
	return FormatUnknown, fmt.Errorf("unsupported checkpoint format: %s (expected .born or .safetensors)", path)
}

// OpenCheckpoint reads every tensor of a checkpoint, converted to float32 and
// renamed to descriptor names.
//
// .born checkpoints are returned in file order; SafeTensors checkpoints in
// data-section order.
func OpenCheckpoint(fs afero.Fs, path string) ([]nn.NamedTensor, error) {
	format, err := DetectFormat(fs, path)
	if err != nil {
		return nil, err
	}

	var tensors []nn.NamedTensor
	switch format {
	case FormatBorn:
		reader, err := serialization.NewBornReader(fs, path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer reader.Close()
		if tensors, err = reader.ReadTensors(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	case FormatSafeTensors:
		reader, err := NewSafeTensorsReader(fs, path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer reader.Close()
		if tensors, err = reader.ReadTensors(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	names := make([]string, len(tensors))
	for i, nt := range tensors {
		names[i] = nt.Name
	}
	mapper := GetMapper(DetectArchitecture(names))
	klog.V(1).Infof("checkpoint %s: format=%s naming=%s tensors=%d", path, format, mapper.Architecture(), len(tensors))
	return MapTensors(tensors, mapper)
}

// MapTensors renames tensors with mapper, dropping the ones it skips.
// Two tensors that map to the same name are an error.
func MapTensors(tensors []nn.NamedTensor, mapper WeightMapper) ([]nn.NamedTensor, error) {
	out := make([]nn.NamedTensor, 0, len(tensors))
	seen := make(map[string]string, len(tensors))
	for _, nt := range tensors {
		mapped, err := mapper.MapName(nt.Name)
		if errors.Is(err, ErrSkipTensor) {
			klog.V(1).Infof("checkpoint: dropping %s", nt.Name)
			continue
		}
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[mapped]; dup {
			return nil, fmt.Errorf("tensors %q and %q both map to %q", prev, nt.Name, mapped)
		}
		seen[mapped] = nt.Name
		out = append(out, nn.NamedTensor{Name: mapped, Tensor: nt.Tensor})
	}
	return out, nil
}

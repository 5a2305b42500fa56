package loader

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Architecture names.
const (
	ArchitectureBadgeCNN = "badgecnn"
	ArchitecturePyTorch  = "badgecnn-pytorch"
)

// ErrSkipTensor is returned by MapName for tensors that have no counterpart in
// the network and should be dropped silently.
var ErrSkipTensor = errors.New("skip tensor")

// WeightMapper maps checkpoint-specific tensor names to descriptor names.
type WeightMapper interface {
	// MapName converts a checkpoint tensor name to its descriptor name.
	MapName(name string) (string, error)

	// Architecture returns the naming scheme the mapper understands.
	Architecture() string
}

// IdentityMapper keeps names as they are. Native .born checkpoints already use
// descriptor names.
type IdentityMapper struct{}

// MapName returns name unchanged.
func (IdentityMapper) MapName(name string) (string, error) {
	return name, nil
}

// Architecture returns "badgecnn".
func (IdentityMapper) Architecture() string {
	return ArchitectureBadgeCNN
}

// PyTorchMapper maps the state dict of the PyTorch BadgeCNN to descriptor names.
//
// The training script wraps each stage in nn.Sequential(Conv2d, BatchNorm2d,
// ReLU, MaxPool2d), so:
//   - conv{i}.0.weight -> conv{i}.weight
//   - conv{i}.1.running_mean -> batchnorm{i}.running_mean
//   - conv{i}.1.num_batches_tracked -> dropped
//   - module.* (DataParallel prefix) -> stripped
//
// Names that are already in descriptor form pass through.
type PyTorchMapper struct{}

// NewPyTorchMapper creates a new PyTorch weight mapper.
func NewPyTorchMapper() *PyTorchMapper {
	return &PyTorchMapper{}
}

// MapName converts a PyTorch state-dict key.
func (m *PyTorchMapper) MapName(name string) (string, error) {
	name = strings.TrimPrefix(name, "module.")
	if strings.HasSuffix(name, ".num_batches_tracked") {
		return "", ErrSkipTensor
	}

	parts := strings.Split(name, ".")
	if len(parts) != 3 || !strings.HasPrefix(parts[0], "conv") {
		return name, nil
	}
	stage := strings.TrimPrefix(parts[0], "conv")
	if _, err := strconv.Atoi(stage); err != nil {
		return name, nil
	}

	switch parts[1] {
	case "0":
		return fmt.Sprintf("conv%s.%s", stage, parts[2]), nil
	case "1":
		return fmt.Sprintf("batchnorm%s.%s", stage, parts[2]), nil
	default:
		// ReLU and MaxPool2d own no tensors.
		return "", fmt.Errorf("unexpected tensor %q: sequential index %s holds no parameters", name, parts[1])
	}
}

// Architecture returns "badgecnn-pytorch".
func (m *PyTorchMapper) Architecture() string {
	return ArchitecturePyTorch
}

// DetectArchitecture guesses the naming scheme from tensor names.
func DetectArchitecture(names []string) string {
	for _, name := range names {
		parts := strings.Split(strings.TrimPrefix(name, "module."), ".")
		if len(parts) == 3 && strings.HasPrefix(parts[0], "conv") {
			if _, err := strconv.Atoi(parts[1]); err == nil {
				return ArchitecturePyTorch
			}
		}
	}
	return ArchitectureBadgeCNN
}

// GetMapper returns the mapper for an architecture name.
func GetMapper(architecture string) WeightMapper {
	if architecture == ArchitecturePyTorch {
		return NewPyTorchMapper()
	}
	return IdentityMapper{}
}

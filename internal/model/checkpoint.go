package model

import (
	"math/rand"
	"strings"

	"github.com/badgecnn/bridge/internal/backend/cpu"
	"github.com/badgecnn/bridge/internal/loader"
	"github.com/badgecnn/bridge/internal/nn"
	"github.com/badgecnn/bridge/internal/serialization"
	"github.com/badgecnn/bridge/internal/tensor"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"k8s.io/klog/v2"
)

// LoadError reports a checkpoint that could not be turned into a ready network.
// The cause stays reachable through errors.Is / errors.As.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return "failed to load model " + e.Path + ": " + e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load builds the BadgeCNN network on the CPU backend and restores the
// checkpoint at path (.born or .safetensors). A missing tensor or a shape
// that disagrees with the architecture is a load failure.
func Load(fs afero.Fs, path string) (*Network, error) {
	net, err := New(Architecture(), cpu.New(), rand.New(rand.NewSource(0)))
	if err != nil {
		return nil, err
	}
	tensors, err := loader.OpenCheckpoint(fs, path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	if err := net.LoadStateDict(tensors); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	klog.V(1).Infof("loaded %s from %s (%d tensors)", net, path, len(tensors))
	return net, nil
}

// LoadStateDict copies tensors into the network. Names must be unique and
// cover every parameter and buffer.
func (n *Network) LoadStateDict(tensors []nn.NamedTensor) error {
	state := make(map[string]*tensor.RawTensor, len(tensors))
	for _, nt := range tensors {
		if _, dup := state[nt.Name]; dup {
			return errors.Errorf("duplicate tensor %q", nt.Name)
		}
		state[nt.Name] = nt.Tensor
	}
	return nn.LoadStateDict(n, state)
}

// SaveCheckpoint writes the parameters and buffers of net to a .born file in
// declaration order.
func SaveCheckpoint(fs afero.Fs, net *Network, path string) error {
	header := serialization.Header{
		ModelType: net.Architecture().Name,
		Metadata: map[string]string{
			"classes":     strings.Join(ClassNames, " "),
			"description": net.Architecture().Description,
		},
	}
	if err := serialization.WriteFile(fs, path, net.StateDict(true), header); err != nil {
		return errors.Wrapf(err, "failed to save checkpoint %s", path)
	}
	return nil
}

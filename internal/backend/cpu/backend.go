// Package cpu implements the float32 inference kernels used by the badge
// network: convolution, batch normalization, ReLU, pooling and the linear head.
//
// All tensors are NCHW (or [N, features] for the head). Kernels panic on shape
// errors; callers validate shapes once when the network is built.
package cpu

import "github.com/badgecnn/bridge/internal/parallel"

// CPUBackend runs tensor operations on the CPU.
type CPUBackend struct {
	parallel parallel.Config
}

// New creates a CPU backend that spreads convolution output channels over
// all CPUs. Results do not depend on the number of workers.
func New() *CPUBackend {
	return &CPUBackend{parallel: parallel.DefaultConfig()}
}

// NewWithConfig creates a CPU backend with explicit parallelism.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{parallel: cfg}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

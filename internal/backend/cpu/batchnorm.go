package cpu

import (
	"fmt"
	"math"

	"github.com/badgecnn/bridge/internal/tensor"
)

// BatchNorm2D applies inference-mode batch normalization per channel:
//
//	y = (x - running_mean) / sqrt(running_var + eps) * weight + bias
//
// Input and output shape: [batch, channels, height, width].
// weight, bias, mean and variance all have shape [channels].
func (cpu *CPUBackend) BatchNorm2D(input, weight, bias, mean, variance *tensor.RawTensor, eps float32) *tensor.RawTensor {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("batchnorm2d: expected 4D input [N,C,H,W], got %dD", len(inputShape)))
	}
	N, C, H, W := inputShape[0], inputShape[1], inputShape[2], inputShape[3]
	for name, p := range map[string]*tensor.RawTensor{"weight": weight, "bias": bias, "running_mean": mean, "running_var": variance} {
		if p.NumElements() != C {
			panic(fmt.Sprintf("batchnorm2d: %s has %d elements, expected %d", name, p.NumElements(), C))
		}
	}

	// Fold the four per-channel vectors into one scale and one shift.
	scale := make([]float32, C)
	shift := make([]float32, C)
	for c := 0; c < C; c++ {
		inv := float32(1 / math.Sqrt(float64(variance.Data()[c])+float64(eps)))
		scale[c] = weight.Data()[c] * inv
		shift[c] = bias.Data()[c] - mean.Data()[c]*scale[c]
	}

	output := tensor.MustRaw(inputShape)
	inputData := input.Data()
	outputData := output.Data()
	plane := H * W
	for n := 0; n < N; n++ {
		for c := 0; c < C; c++ {
			base := (n*C + c) * plane
			s, b := scale[c], shift[c]
			for i := base; i < base+plane; i++ {
				outputData[i] = inputData[i]*s + b
			}
		}
	}
	return output
}

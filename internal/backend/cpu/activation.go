package cpu

import (
	"fmt"
	"math"

	"github.com/badgecnn/bridge/internal/tensor"
)

// ReLU applies max(0, x) element-wise.
func (cpu *CPUBackend) ReLU(input *tensor.RawTensor) *tensor.RawTensor {
	output := tensor.MustRaw(input.Shape())
	outputData := output.Data()
	for i, v := range input.Data() {
		if v > 0 {
			outputData[i] = v
		}
	}
	return output
}

// Softmax normalizes the last dimension of a [batch, classes] tensor into
// probabilities. The row maximum is subtracted first for numerical stability.
func (cpu *CPUBackend) Softmax(input *tensor.RawTensor) *tensor.RawTensor {
	shape := input.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("softmax: expected 2D input [N,classes], got %dD", len(shape)))
	}
	N, K := shape[0], shape[1]
	output := tensor.MustRaw(shape)
	inputData := input.Data()
	outputData := output.Data()

	for n := 0; n < N; n++ {
		row := inputData[n*K : (n+1)*K]
		dst := outputData[n*K : (n+1)*K]
		maxVal := float32(math.Inf(-1))
		for _, v := range row {
			if v > maxVal {
				maxVal = v
			}
		}
		var sum float64
		for i, v := range row {
			e := math.Exp(float64(v - maxVal))
			dst[i] = float32(e)
			sum += e
		}
		for i := range dst {
			dst[i] = float32(float64(dst[i]) / sum)
		}
	}
	return output
}

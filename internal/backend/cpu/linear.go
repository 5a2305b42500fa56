package cpu

import (
	"fmt"

	"github.com/badgecnn/bridge/internal/tensor"
)

// Linear computes input @ weight^T + bias.
//
// Input shape:  [batch, in_features]
// Weight shape: [out_features, in_features] (PyTorch layout)
// Bias shape:   [out_features] (may be nil)
// Output shape: [batch, out_features]
func (cpu *CPUBackend) Linear(input, weight, bias *tensor.RawTensor) *tensor.RawTensor {
	inputShape := input.Shape()
	weightShape := weight.Shape()
	if len(inputShape) != 2 {
		panic(fmt.Sprintf("linear: input must be 2D [N,in], got %dD", len(inputShape)))
	}
	if len(weightShape) != 2 {
		panic(fmt.Sprintf("linear: weight must be 2D [out,in], got %dD", len(weightShape)))
	}
	N, in := inputShape[0], inputShape[1]
	out := weightShape[0]
	if weightShape[1] != in {
		panic(fmt.Sprintf("linear: input features %d != weight features %d", in, weightShape[1]))
	}
	if bias != nil && bias.NumElements() != out {
		panic(fmt.Sprintf("linear: bias has %d elements, expected %d", bias.NumElements(), out))
	}

	output := tensor.MustRaw(tensor.Shape{N, out})
	inputData := input.Data()
	weightData := weight.Data()
	outputData := output.Data()

	for n := 0; n < N; n++ {
		x := inputData[n*in : (n+1)*in]
		for o := 0; o < out; o++ {
			w := weightData[o*in : (o+1)*in]
			sum := float32(0)
			for k, xv := range x {
				sum += xv * w[k]
			}
			if bias != nil {
				sum += bias.Data()[o]
			}
			outputData[n*out+o] = sum
		}
	}
	return output
}

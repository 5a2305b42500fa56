package cpu

import (
	"fmt"
	"math"

	"github.com/badgecnn/bridge/internal/tensor"
)

// MaxPool2D performs 2D max pooling.
//
// Input shape:  [batch, channels, height, width]
// Output shape: [batch, channels, out_height, out_width]
//
//	out_height = (height - kernelSize) / stride + 1
//	out_width = (width - kernelSize) / stride + 1
//
// Example (2x2 pool, stride=2):
//
//	Input: [[1,2,3,4],    Output: [[6,8],
//	        [5,6,7,8],             [14,16]]
//	        [9,10,11,12],
//	        [13,14,15,16]]
func (cpu *CPUBackend) MaxPool2D(input *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("maxpool2d: expected 4D input [N,C,H,W], got %dD", len(inputShape)))
	}

	N := inputShape[0]
	C := inputShape[1]
	H := inputShape[2]
	W := inputShape[3]

	if kernelSize <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid kernel size %d", kernelSize))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid stride %d", stride))
	}
	if kernelSize > H || kernelSize > W {
		panic(fmt.Sprintf("maxpool2d: kernel size %d too large for input %dx%d", kernelSize, H, W))
	}

	HOut := (H-kernelSize)/stride + 1
	WOut := (W-kernelSize)/stride + 1

	output := tensor.MustRaw(tensor.Shape{N, C, HOut, WOut})
	inputData := input.Data()
	outputData := output.Data()

	for n := 0; n < N; n++ {
		for c := 0; c < C; c++ {
			// Pre-slice channel plane: eliminates (n*C+c)*H*W bounds check
			channelOffset := (n*C + c) * H * W
			channelData := inputData[channelOffset : channelOffset+H*W]

			for outH := 0; outH < HOut; outH++ {
				hStart := outH * stride
				for outW := 0; outW < WOut; outW++ {
					wStart := outW * stride
					maxVal := float32(math.Inf(-1))

					for kh := 0; kh < kernelSize; kh++ {
						rowStart := (hStart + kh) * W
						rowData := channelData[rowStart : rowStart+W]
						for kw := 0; kw < kernelSize; kw++ {
							if val := rowData[wStart+kw]; val > maxVal {
								maxVal = val
							}
						}
					}

					outputData[((n*C+c)*HOut+outH)*WOut+outW] = maxVal
				}
			}
		}
	}

	return output
}

// GlobalAvgPool2D averages every channel plane: [N, C, H, W] -> [N, C, 1, 1].
func (cpu *CPUBackend) GlobalAvgPool2D(input *tensor.RawTensor) *tensor.RawTensor {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("global_avg_pool2d: expected 4D input [N,C,H,W], got %dD", len(inputShape)))
	}
	N, C, H, W := inputShape[0], inputShape[1], inputShape[2], inputShape[3]
	if H*W == 0 {
		panic("global_avg_pool2d: empty spatial plane")
	}

	output := tensor.MustRaw(tensor.Shape{N, C, 1, 1})
	inputData := input.Data()
	outputData := output.Data()
	plane := H * W
	for i := 0; i < N*C; i++ {
		var sum float32
		for _, v := range inputData[i*plane : (i+1)*plane] {
			sum += v
		}
		outputData[i] = sum / float32(plane)
	}
	return output
}

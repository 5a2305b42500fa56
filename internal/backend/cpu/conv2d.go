package cpu

import (
	"fmt"

	"github.com/badgecnn/bridge/internal/parallel"
	"github.com/badgecnn/bridge/internal/tensor"
)

// Conv2D performs 2D convolution using the im2col algorithm.
//
// Input shape:  [batch, in_channels, height, width]
// Kernel shape: [out_channels, in_channels, kernel_h, kernel_w]
// Bias shape:   [out_channels] (may be nil)
// Output shape: [batch, out_channels, out_h, out_w]
//
//	out_h = (height + 2*padding - kernel_h) / stride + 1
//	out_w = (width + 2*padding - kernel_w) / stride + 1
//
// Im2col turns every receptive field into one row of a matrix so the
// convolution becomes a single matrix product against the flattened kernel.
func (cpu *CPUBackend) Conv2D(input, kernel, bias *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	inputShape := input.Shape()
	kernelShape := kernel.Shape()

	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: input must be 4D [N,C,H,W], got %dD", len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("conv2d: kernel must be 4D [C_out,C_in,K_h,K_w], got %dD", len(kernelShape)))
	}
	if stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("conv2d: invalid stride=%d padding=%d", stride, padding))
	}

	N := inputShape[0]
	CIn := inputShape[1]
	H := inputShape[2]
	W := inputShape[3]
	COut := kernelShape[0]
	KH := kernelShape[2]
	KW := kernelShape[3]

	if CIn != kernelShape[1] {
		panic(fmt.Sprintf("conv2d: input channels %d != kernel channels %d", CIn, kernelShape[1]))
	}
	if bias != nil && bias.NumElements() != COut {
		panic(fmt.Sprintf("conv2d: bias has %d elements, expected %d", bias.NumElements(), COut))
	}

	HOut := (H+2*padding-KH)/stride + 1
	WOut := (W+2*padding-KW)/stride + 1
	if HOut <= 0 || WOut <= 0 {
		panic(fmt.Sprintf("conv2d: invalid output dimensions: out_h=%d, out_w=%d (check stride/padding)", HOut, WOut))
	}

	output := tensor.MustRaw(tensor.Shape{N, COut, HOut, WOut})

	inputData := input.Data()
	kernelData := kernel.Data()
	outputData := output.Data()

	// colBuf: [H_out * W_out, C_in * K_h * K_w], rebuilt per batch element.
	colWidth := CIn * KH * KW
	plane := HOut * WOut
	colBuf := make([]float32, plane*colWidth)

	for n := 0; n < N; n++ {
		sample := inputData[n*CIn*H*W : (n+1)*CIn*H*W]
		im2col(colBuf, sample, CIn, H, W, KH, KW, HOut, WOut, stride, padding)

		out := outputData[n*COut*plane : (n+1)*COut*plane]
		parallel.For(COut, func(c int) {
			row := kernelData[c*colWidth : (c+1)*colWidth]
			var b float32
			if bias != nil {
				b = bias.Data()[c]
			}
			dst := out[c*plane : (c+1)*plane]
			for j := 0; j < plane; j++ {
				col := colBuf[j*colWidth : (j+1)*colWidth]
				sum := float32(0)
				for k, w := range row {
					sum += w * col[k]
				}
				dst[j] = sum + b
			}
		}, cpu.parallel)
	}

	return output
}

// im2col transforms one [C, H, W] sample into a column matrix.
//
// Each row of colBuf corresponds to one output position, each column to one
// kernel weight. Positions outside the input read as zero (padding).
func im2col(colBuf, inputData []float32, C, H, W, KH, KW, HOut, WOut, stride, padding int) {
	colWidth := C * KH * KW
	colIdx := 0

	for outH := 0; outH < HOut; outH++ {
		for outW := 0; outW < WOut; outW++ {
			hStart := outH*stride - padding
			wStart := outW*stride - padding
			bufIdx := colIdx * colWidth

			for c := 0; c < C; c++ {
				for kh := 0; kh < KH; kh++ {
					for kw := 0; kw < KW; kw++ {
						h := hStart + kh
						w := wStart + kw
						if h >= 0 && h < H && w >= 0 && w < W {
							colBuf[bufIdx] = inputData[c*H*W+h*W+w]
						} else {
							colBuf[bufIdx] = 0
						}
						bufIdx++
					}
				}
			}
			colIdx++
		}
	}
}

package cpu

import (
	"fmt"

	"github.com/orthopath/orthopath/internal/parallel"
	"github.com/orthopath/orthopath/internal/tensor"
)

// Conv2D performs 2D convolution using the im2col algorithm.
//
// Input shape:  [batch, in_channels, height, width]
// Kernel shape: [out_channels, in_channels, kernel_h, kernel_w]
// Output shape: [batch, out_channels, out_h, out_w]
//
// where out_h = (height + 2*padding - kernel_h) / stride + 1, likewise out_w.
//
// Each sample is lowered to a [C_in*K_h*K_w, out_h*out_w] column matrix and
// multiplied by the kernel viewed as [C_out, C_in*K_h*K_w]. The GEMM writes
// straight into the sample's [C_out, out_h*out_w] output block. Samples are
// processed in parallel, one goroutine per chunk of samples.
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	inputShape := input.Shape()
	kernelShape := kernel.Shape()

	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: input must be 4D [N,C,H,W], got %dD", len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("conv2d: kernel must be 4D [C_out,C_in,K_h,K_w], got %dD", len(kernelShape)))
	}
	if input.DType() != kernel.DType() {
		panic(fmt.Sprintf("conv2d: dtype mismatch %s vs %s", input.DType(), kernel.DType()))
	}
	if stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("conv2d: invalid stride %d / padding %d", stride, padding))
	}

	g := convGeometry{
		n: inputShape[0], cIn: inputShape[1], h: inputShape[2], w: inputShape[3],
		cOut: kernelShape[0], kh: kernelShape[2], kw: kernelShape[3],
		stride: stride, padding: padding,
	}
	if g.cIn != kernelShape[1] {
		panic(fmt.Sprintf("conv2d: input channels %d != kernel channels %d", g.cIn, kernelShape[1]))
	}

	g.hOut = (g.h+2*padding-g.kh)/stride + 1
	g.wOut = (g.w+2*padding-g.kw)/stride + 1
	if g.hOut <= 0 || g.wOut <= 0 {
		panic(fmt.Sprintf("conv2d: invalid output dimensions: out_h=%d, out_w=%d (check stride/padding)", g.hOut, g.wOut))
	}

	output := cpu.alloc("conv2d", tensor.Shape{g.n, g.cOut, g.hOut, g.wOut}, input.DType())

	switch input.DType() {
	case tensor.Float32:
		conv2d(g, output.AsFloat32(), input.AsFloat32(), kernel.AsFloat32(), gemm32, cpu.par)
	case tensor.Float64:
		conv2d(g, output.AsFloat64(), input.AsFloat64(), kernel.AsFloat64(), gemm64, cpu.par)
	default:
		panic(fmt.Sprintf("conv2d: unsupported dtype %s", input.DType()))
	}
	return output
}

type convGeometry struct {
	n, cIn, h, w    int
	cOut, kh, kw    int
	hOut, wOut      int
	stride, padding int
}

func conv2d[T float](g convGeometry, out, in, kernel []T, gemm func(c, a, b []T, m, k, n int), cfg parallel.Config) {
	rows := g.cIn * g.kh * g.kw
	cols := g.hOut * g.wOut
	inSize := g.cIn * g.h * g.w
	outSize := g.cOut * cols

	parallel.ForRange(g.n, func(start, end int) {
		col := make([]T, rows*cols)
		for n := start; n < end; n++ {
			im2col(g, col, in[n*inSize:(n+1)*inSize])
			gemm(out[n*outSize:(n+1)*outSize], kernel, col, g.cOut, rows, cols)
		}
	}, cfg)
}

// im2col lowers one [C, H, W] sample into col [C*K_h*K_w, out_h*out_w].
// Row r = (c, kh, kw) holds the input value that kernel tap meets at every
// output position; taps landing in the zero padding are 0.
func im2col[T float](g convGeometry, col, in []T) {
	cols := g.hOut * g.wOut
	r := 0
	for c := 0; c < g.cIn; c++ {
		plane := in[c*g.h*g.w : (c+1)*g.h*g.w]
		for kh := 0; kh < g.kh; kh++ {
			for kw := 0; kw < g.kw; kw++ {
				dst := col[r*cols : (r+1)*cols]
				i := 0
				for oh := 0; oh < g.hOut; oh++ {
					h := oh*g.stride - g.padding + kh
					for ow := 0; ow < g.wOut; ow++ {
						w := ow*g.stride - g.padding + kw
						if h >= 0 && h < g.h && w >= 0 && w < g.w {
							dst[i] = plane[h*g.w+w]
						} else {
							dst[i] = 0
						}
						i++
					}
				}
				r++
			}
		}
	}
}

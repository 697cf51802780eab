package cpu

import (
	"fmt"

	"github.com/orthopath/orthopath/internal/parallel"
	"github.com/orthopath/orthopath/internal/tensor"
)

// AvgPool2D averages kernelSize x kernelSize windows taken every stride
// pixels, without padding.
//
// Input:  [N, C, H, W]
// Output: [N, C, (H-kernelSize)/stride+1, (W-kernelSize)/stride+1]
//
// With kernelSize 1 this is plain strided subsampling.
func (cpu *CPUBackend) AvgPool2D(input *tensor.RawTensor, kernelSize, stride int) *tensor.RawTensor {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("avgpool2d: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	if kernelSize <= 0 || stride <= 0 {
		panic(fmt.Sprintf("avgpool2d: invalid kernel size %d / stride %d", kernelSize, stride))
	}

	n, c, h, w := shape[0], shape[1], shape[2], shape[3]
	if h < kernelSize || w < kernelSize {
		panic(fmt.Sprintf("avgpool2d: kernel %d larger than input %dx%d", kernelSize, h, w))
	}
	hOut := (h-kernelSize)/stride + 1
	wOut := (w-kernelSize)/stride + 1

	output := cpu.alloc("avgpool2d", tensor.Shape{n, c, hOut, wOut}, input.DType())
	p := poolGeometry{h: h, w: w, hOut: hOut, wOut: wOut, k: kernelSize, stride: stride}

	switch input.DType() {
	case tensor.Float32:
		avgPool(p, n*c, output.AsFloat32(), input.AsFloat32(), cpu.par)
	case tensor.Float64:
		avgPool(p, n*c, output.AsFloat64(), input.AsFloat64(), cpu.par)
	default:
		panic(fmt.Sprintf("avgpool2d: unsupported dtype %s", input.DType()))
	}
	return output
}

type poolGeometry struct {
	h, w, hOut, wOut int
	k, stride        int
}

func avgPool[T float](p poolGeometry, planes int, out, in []T, cfg parallel.Config) {
	inPlane := p.h * p.w
	outPlane := p.hOut * p.wOut
	area := T(p.k * p.k)

	parallel.For(planes, func(pl int) {
		src := in[pl*inPlane : (pl+1)*inPlane]
		dst := out[pl*outPlane : (pl+1)*outPlane]
		for oh := 0; oh < p.hOut; oh++ {
			for ow := 0; ow < p.wOut; ow++ {
				var sum T
				for kh := 0; kh < p.k; kh++ {
					row := (oh*p.stride + kh) * p.w
					for kw := 0; kw < p.k; kw++ {
						sum += src[row+ow*p.stride+kw]
					}
				}
				dst[oh*p.wOut+ow] = sum / area
			}
		}
	}, cfg)
}

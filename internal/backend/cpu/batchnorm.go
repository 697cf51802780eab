package cpu

import (
	"fmt"
	"math"

	"github.com/orthopath/orthopath/internal/parallel"
	"github.com/orthopath/orthopath/internal/tensor"
)

// ChannelMoments returns the per-channel mean and biased variance of a
// [N, C, H, W] tensor, reduced over N, H and W. Both results have shape [C].
func (cpu *CPUBackend) ChannelMoments(input *tensor.RawTensor) (mean, variance *tensor.RawTensor) {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("channelmoments: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}

	n, c, hw := shape[0], shape[1], shape[2]*shape[3]
	mean = cpu.alloc("channelmoments", tensor.Shape{c}, input.DType())
	variance = cpu.alloc("channelmoments", tensor.Shape{c}, input.DType())

	switch input.DType() {
	case tensor.Float32:
		moments(n, c, hw, input.AsFloat32(), mean.AsFloat32(), variance.AsFloat32(), cpu.par)
	case tensor.Float64:
		moments(n, c, hw, input.AsFloat64(), mean.AsFloat64(), variance.AsFloat64(), cpu.par)
	default:
		panic(fmt.Sprintf("channelmoments: unsupported dtype %s", input.DType()))
	}
	return mean, variance
}

func moments[T float](n, c, hw int, in, mean, variance []T, cfg parallel.Config) {
	count := float64(n * hw)
	parallel.For(c, func(ch int) {
		var sum float64
		for b := 0; b < n; b++ {
			for _, v := range in[(b*c+ch)*hw : (b*c+ch+1)*hw] {
				sum += float64(v)
			}
		}
		mu := sum / count

		var sq float64
		for b := 0; b < n; b++ {
			for _, v := range in[(b*c+ch)*hw : (b*c+ch+1)*hw] {
				d := float64(v) - mu
				sq += d * d
			}
		}
		mean[ch] = T(mu)
		variance[ch] = T(sq / count)
	}, cfg)
}

// BatchNorm2D normalizes a [N, C, H, W] tensor per channel:
//
//	y = (x - mean[c]) / sqrt(variance[c] + eps) * gamma[c] + beta[c]
//
// gamma, beta, mean and variance all have shape [C].
func (cpu *CPUBackend) BatchNorm2D(input, gamma, beta, mean, variance *tensor.RawTensor, eps float64) *tensor.RawTensor {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("batchnorm2d: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	c := shape[1]
	for name, p := range map[string]*tensor.RawTensor{"gamma": gamma, "beta": beta, "mean": mean, "variance": variance} {
		if !p.Shape().Equal(tensor.Shape{c}) {
			panic(fmt.Sprintf("batchnorm2d: %s shape %v, expected [%d]", name, p.Shape(), c))
		}
		if p.DType() != input.DType() {
			panic(fmt.Sprintf("batchnorm2d: %s dtype %s, expected %s", name, p.DType(), input.DType()))
		}
	}

	output := cpu.alloc("batchnorm2d", shape, input.DType())
	n, hw := shape[0], shape[2]*shape[3]

	switch input.DType() {
	case tensor.Float32:
		normalize(n, c, hw, output.AsFloat32(), input.AsFloat32(),
			gamma.AsFloat32(), beta.AsFloat32(), mean.AsFloat32(), variance.AsFloat32(), eps, cpu.par)
	case tensor.Float64:
		normalize(n, c, hw, output.AsFloat64(), input.AsFloat64(),
			gamma.AsFloat64(), beta.AsFloat64(), mean.AsFloat64(), variance.AsFloat64(), eps, cpu.par)
	default:
		panic(fmt.Sprintf("batchnorm2d: unsupported dtype %s", input.DType()))
	}
	return output
}

func normalize[T float](n, c, hw int, out, in, gamma, beta, mean, variance []T, eps float64, cfg parallel.Config) {
	// Fold the statistics into one scale and shift per channel.
	scale := make([]T, c)
	shift := make([]T, c)
	for ch := 0; ch < c; ch++ {
		s := float64(gamma[ch]) / math.Sqrt(float64(variance[ch])+eps)
		scale[ch] = T(s)
		shift[ch] = T(float64(beta[ch]) - float64(mean[ch])*s)
	}

	parallel.ForBatch(n, c, func(b, ch int) {
		off := (b*c + ch) * hw
		src := in[off : off+hw]
		dst := out[off : off+hw]
		for i, v := range src {
			dst[i] = v*scale[ch] + shift[ch]
		}
	}, cfg)
}

package cpu

import (
	"fmt"

	"github.com/orthopath/orthopath/internal/tensor"
)

type float interface {
	~float32 | ~float64
}

type binaryOp int

const (
	opAdd binaryOp = iota
	opMul
)

func (op binaryOp) String() string {
	if op == opAdd {
		return "add"
	}
	return "mul"
}

func apply[T float](op binaryOp, x, y T) T {
	if op == opAdd {
		return x + y
	}
	return x * y
}

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary(opAdd, a, b)
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary(opMul, a, b)
}

func (cpu *CPUBackend) binary(op binaryOp, a, b *tensor.RawTensor) *tensor.RawTensor {
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("%s: dtype mismatch %s vs %s", op, a.DType(), b.DType()))
	}
	outShape, _, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", op, err))
	}

	result := cpu.alloc(op.String(), outShape, a.DType())

	switch a.DType() {
	case tensor.Float32:
		binaryKernel(op, result.AsFloat32(), a.AsFloat32(), b.AsFloat32(), a.Shape(), b.Shape(), outShape)
	case tensor.Float64:
		binaryKernel(op, result.AsFloat64(), a.AsFloat64(), b.AsFloat64(), a.Shape(), b.Shape(), outShape)
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", op, a.DType()))
	}
	return result
}

func binaryKernel[T float](op binaryOp, dst, a, b []T, aShape, bShape, outShape tensor.Shape) {
	if aShape.Equal(bShape) {
		for i := range dst {
			dst[i] = apply(op, a[i], b[i])
		}
		return
	}

	aStrides := broadcastStrides(aShape, outShape)
	bStrides := broadcastStrides(bShape, outShape)
	outStrides := outShape.ComputeStrides()
	for i := range dst {
		rem, ai, bi := i, 0, 0
		for d := range outShape {
			idx := rem / outStrides[d]
			rem %= outStrides[d]
			ai += idx * aStrides[d]
			bi += idx * bStrides[d]
		}
		dst[i] = apply(op, a[ai], b[bi])
	}
}

// broadcastStrides returns strides of s aligned to out, with zero stride on
// broadcast (size 1 or missing) dimensions.
func broadcastStrides(s, out tensor.Shape) []int {
	strides := make([]int, len(out))
	src := s.ComputeStrides()
	offset := len(out) - len(s)
	for d := range s {
		if s[d] != 1 {
			strides[d+offset] = src[d]
		}
	}
	return strides
}

// MulScalar multiplies every element of x by scalar.
// The scalar may be float32 or float64; it is converted to x's dtype.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	var s float64
	switch v := scalar.(type) {
	case float32:
		s = float64(v)
	case float64:
		s = v
	case int:
		s = float64(v)
	default:
		panic(fmt.Sprintf("mulscalar: unsupported scalar type %T", scalar))
	}

	result := cpu.alloc("mulscalar", x.Shape(), x.DType())
	switch x.DType() {
	case tensor.Float32:
		scaleKernel(result.AsFloat32(), x.AsFloat32(), float32(s))
	case tensor.Float64:
		scaleKernel(result.AsFloat64(), x.AsFloat64(), s)
	default:
		panic(fmt.Sprintf("mulscalar: unsupported dtype %s", x.DType()))
	}
	return result
}

func scaleKernel[T float](dst, src []T, s T) {
	for i, v := range src {
		dst[i] = v * s
	}
}

// ReLU applies max(0, x) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	result := cpu.alloc("relu", x.Shape(), x.DType())
	switch x.DType() {
	case tensor.Float32:
		reluKernel(result.AsFloat32(), x.AsFloat32())
	case tensor.Float64:
		reluKernel(result.AsFloat64(), x.AsFloat64())
	default:
		panic(fmt.Sprintf("relu: unsupported dtype %s", x.DType()))
	}
	return result
}

func reluKernel[T float](dst, src []T) {
	for i, v := range src {
		if v > 0 {
			dst[i] = v
		}
	}
}

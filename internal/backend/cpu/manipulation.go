package cpu

import (
	"fmt"

	"github.com/orthopath/orthopath/internal/tensor"
)

// Cat concatenates tensors along dim.
//
// All tensors must share dtype, rank, and every dimension except dim.
// Negative dim counts from the end (-1 = last dimension).
//
// Example:
//
//	x := ... // [N, C, H, W]
//	y := backend.Cat([]*tensor.RawTensor{x, zeros}, 1) // [N, 2C, H, W]
func (cpu *CPUBackend) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	if len(tensors) == 0 {
		panic("cat: at least one tensor required")
	}

	shape := tensors[0].Shape()
	ndim := len(shape)
	dtype := tensors[0].DType()

	if dim < 0 {
		dim += ndim
	}
	if dim < 0 || dim >= ndim {
		panic(fmt.Sprintf("cat: dimension %d out of range for %dD tensor", dim, ndim))
	}

	totalDim := 0
	for i, t := range tensors {
		tShape := t.Shape()
		if len(tShape) != ndim {
			panic(fmt.Sprintf("cat: tensor %d has %d dimensions, expected %d", i, len(tShape), ndim))
		}
		if t.DType() != dtype {
			panic(fmt.Sprintf("cat: tensor %d has dtype %s, expected %s", i, t.DType(), dtype))
		}
		for d := 0; d < ndim; d++ {
			if d == dim {
				totalDim += tShape[d]
			} else if tShape[d] != shape[d] {
				panic(fmt.Sprintf("cat: tensor %d dimension %d is %d, expected %d", i, d, tShape[d], shape[d]))
			}
		}
	}

	outShape := shape.Clone()
	outShape[dim] = totalDim
	result := cpu.alloc("cat", outShape, dtype)

	// outer: product of dims before dim; inner: bytes per unit step along dim.
	outer := shape[:dim].NumElements()
	inner := shape[dim+1:].NumElements() * dtype.Size()

	dst := result.Data()
	off := 0
	for o := 0; o < outer; o++ {
		for _, t := range tensors {
			n := t.Shape()[dim] * inner
			copy(dst[off:off+n], t.Data()[o*n:(o+1)*n])
			off += n
		}
	}
	return result
}

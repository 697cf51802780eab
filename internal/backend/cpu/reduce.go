package cpu

import (
	"fmt"

	"github.com/orthopath/orthopath/internal/tensor"
)

// Sum reduces all elements of x to a scalar (shape []) tensor.
// Accumulation is done in float64 regardless of dtype.
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	result := cpu.alloc("sum", tensor.Shape{}, x.DType())

	switch x.DType() {
	case tensor.Float32:
		result.AsFloat32()[0] = float32(sumKernel(x.AsFloat32()))
	case tensor.Float64:
		result.AsFloat64()[0] = sumKernel(x.AsFloat64())
	default:
		panic(fmt.Sprintf("sum: unsupported dtype %s", x.DType()))
	}
	return result
}

func sumKernel[T float](data []T) float64 {
	var sum float64
	for _, v := range data {
		sum += float64(v)
	}
	return sum
}

package nn

import (
	"math"
	"math/rand"

	"github.com/orthopath/orthopath/internal/tensor"
)

// KaimingUniform draws weights from U(-bound, bound) with
// bound = 1/sqrt(fanIn), the default PyTorch uses for Conv2d and Linear
// (kaiming_uniform with a = sqrt(5)).
//
// Parameters:
//   - fanIn: number of inputs feeding one output unit
//   - shape: shape of the weight tensor
//   - backend: backend to use for tensor creation
func KaimingUniform[B tensor.Backend](fanIn int, shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Uniform[float32](shape, -kaimingBound(fanIn), kaimingBound(fanIn), backend)
}

// ResetKaimingUniform redraws t in place from the KaimingUniform
// distribution using rng. A nil rng uses the global source.
func ResetKaimingUniform[B tensor.Backend](t *tensor.Tensor[float32, B], fanIn int, rng *rand.Rand) {
	bound := kaimingBound(fanIn)
	tensor.FillUniform(t.Data(), -bound, bound, rng)
}

func kaimingBound(fanIn int) float64 {
	return 1.0 / math.Sqrt(float64(fanIn))
}

// Zeros creates a zero-filled tensor, used for bias and shift initialization.
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Zeros[float32](shape, backend)
}

// Ones creates a tensor filled with ones, used for scale initialization.
func Ones[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Ones[float32](shape, backend)
}

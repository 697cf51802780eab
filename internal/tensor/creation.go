package tensor

import (
	"math"
	"math/rand"
)

// Zeros creates a tensor filled with zeros.
//
// Example:
//
//	backend := cpu.New()
//	t := tensor.Zeros[float32](Shape{3, 4}, backend)
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	var dummy T
	raw, err := NewRaw(shape, inferDataType(dummy), b.Device())
	if err != nil {
		panic(err)
	}
	return New[T, B](raw, b)
}

// Ones creates a tensor filled with ones.
func Ones[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return Full[T, B](shape, 1, b)
}

// Full creates a tensor filled with value.
//
// Example:
//
//	t := tensor.Full[float32](Shape{3, 3}, 3.14, backend)
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = value
	}
	return t
}

// Randn creates a tensor with values drawn from N(0, 1) using the global
// math/rand source.
//
// Example:
//
//	x := tensor.Randn[float32](Shape{4, 3, 32, 32}, backend)
func Randn[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return RandnFrom[T, B](shape, nil, b)
}

// RandnFrom is Randn drawing from rng. A nil rng uses the global source.
func RandnFrom[T DType, B Backend](shape Shape, rng *rand.Rand, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()

	// Box-Muller transform, two samples per pair of uniforms.
	for i := 0; i < len(data); i += 2 {
		u1 := 1 - uniform(rng) // (0, 1], keeps Log finite
		u2 := uniform(rng)
		r := math.Sqrt(-2.0 * math.Log(u1))
		data[i] = T(r * math.Cos(2.0*math.Pi*u2))
		if i+1 < len(data) {
			data[i+1] = T(r * math.Sin(2.0*math.Pi*u2))
		}
	}
	return t
}

// Rand creates a tensor with values uniformly distributed in [0, 1).
func Rand[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = T(uniform(nil))
	}
	return t
}

// Uniform creates a tensor with values uniformly distributed in [low, high).
func Uniform[T DType, B Backend](shape Shape, low, high float64, b B) *Tensor[T, B] {
	return UniformFrom[T, B](shape, low, high, nil, b)
}

// UniformFrom is Uniform drawing from rng. A nil rng uses the global source.
func UniformFrom[T DType, B Backend](shape Shape, low, high float64, rng *rand.Rand, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	FillUniform(t.Data(), low, high, rng)
	return t
}

// FillUniform overwrites data with values uniformly distributed in
// [low, high).
func FillUniform[T DType](data []T, low, high float64, rng *rand.Rand) {
	for i := range data {
		data[i] = T(low + (high-low)*uniform(rng))
	}
}

func uniform(rng *rand.Rand) float64 {
	if rng == nil {
		return rand.Float64() //nolint:gosec // G404: ML uses math/rand intentionally
	}
	return rng.Float64()
}

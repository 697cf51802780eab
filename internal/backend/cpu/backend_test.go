package cpu

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orthopath/orthopath/internal/parallel"
	"github.com/orthopath/orthopath/internal/tensor"
)

var _ tensor.Backend = (*CPUBackend)(nil)

func raw32(t *testing.T, shape tensor.Shape, values ...float32) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	if len(values) > 0 {
		require.Len(t, values, shape.NumElements())
		copy(r.AsFloat32(), values)
	}
	return r
}

func seq32(t *testing.T, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	r := raw32(t, shape)
	for i := range r.AsFloat32() {
		r.AsFloat32()[i] = float32(i + 1)
	}
	return r
}

func TestAdd_SameShape(t *testing.T) {
	backend := New()
	a := raw32(t, tensor.Shape{2, 2}, 1, 2, 3, 4)
	b := raw32(t, tensor.Shape{2, 2}, 10, 20, 30, 40)

	out := backend.Add(a, b)

	assert.Equal(t, []float32{11, 22, 33, 44}, out.AsFloat32())
	assert.Equal(t, []float32{1, 2, 3, 4}, a.AsFloat32(), "inputs must not be modified")
}

func TestAdd_Broadcast(t *testing.T) {
	backend := New()
	a := raw32(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	bias := raw32(t, tensor.Shape{1, 3}, 10, 20, 30)

	out := backend.Add(a, bias)

	require.True(t, out.Shape().Equal(tensor.Shape{2, 3}))
	assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, out.AsFloat32())
}

func TestAdd_IncompatiblePanics(t *testing.T) {
	backend := New()
	a := raw32(t, tensor.Shape{3, 4})
	b := raw32(t, tensor.Shape{3, 5})

	assert.Panics(t, func() { backend.Add(a, b) })
}

func TestMul_AndMulScalar(t *testing.T) {
	backend := New()
	a := raw32(t, tensor.Shape{4}, 1, -2, 3, -4)
	b := raw32(t, tensor.Shape{4}, 2, 2, 2, 2)

	assert.Equal(t, []float32{2, -4, 6, -8}, backend.Mul(a, b).AsFloat32())
	assert.Equal(t, []float32{0, 0, 0, 0}, backend.MulScalar(a, float32(0)).AsFloat32())
	assert.Equal(t, []float32{0.5, -1, 1.5, -2}, backend.MulScalar(a, 0.5).AsFloat32())
}

func TestReLU(t *testing.T) {
	backend := New()
	x := raw32(t, tensor.Shape{5}, -2, -0.5, 0, 0.5, 2)

	assert.Equal(t, []float32{0, 0, 0, 0.5, 2}, backend.ReLU(x).AsFloat32())
}

func TestSum(t *testing.T) {
	backend := New()
	x := seq32(t, tensor.Shape{2, 3, 4})

	s := backend.Sum(x)

	assert.Empty(t, s.Shape())
	assert.Equal(t, float32(300), s.AsFloat32()[0])
}

func TestMatMul(t *testing.T) {
	backend := New()
	a := raw32(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	b := raw32(t, tensor.Shape{3, 2}, 7, 8, 9, 10, 11, 12)

	out := backend.MatMul(a, b)

	require.True(t, out.Shape().Equal(tensor.Shape{2, 2}))
	assert.Equal(t, []float32{58, 64, 139, 154}, out.AsFloat32())
}

func TestMatMul_ShapeMismatchPanics(t *testing.T) {
	backend := New()
	assert.Panics(t, func() {
		backend.MatMul(raw32(t, tensor.Shape{2, 3}), raw32(t, tensor.Shape{2, 3}))
	})
}

func TestTranspose(t *testing.T) {
	backend := New()
	x := raw32(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)

	out := backend.Transpose(x)

	require.True(t, out.Shape().Equal(tensor.Shape{3, 2}))
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, out.AsFloat32())
}

func TestReshape(t *testing.T) {
	backend := New()
	x := seq32(t, tensor.Shape{2, 4, 1, 1})

	out := backend.Reshape(x, tensor.Shape{2, 4})

	require.True(t, out.Shape().Equal(tensor.Shape{2, 4}))
	assert.Equal(t, x.AsFloat32(), out.AsFloat32())
	assert.Panics(t, func() { backend.Reshape(x, tensor.Shape{3, 3}) })
}

func TestCat_ChannelAxis(t *testing.T) {
	backend := New()
	a := raw32(t, tensor.Shape{2, 1, 1, 2}, 1, 2, 3, 4)
	b := raw32(t, tensor.Shape{2, 1, 1, 2}, 5, 6, 7, 8)

	out := backend.Cat([]*tensor.RawTensor{a, b}, 1)

	require.True(t, out.Shape().Equal(tensor.Shape{2, 2, 1, 2}))
	assert.Equal(t, []float32{1, 2, 5, 6, 3, 4, 7, 8}, out.AsFloat32())
}

func TestCat_NegativeDim(t *testing.T) {
	backend := New()
	a := raw32(t, tensor.Shape{2, 1}, 1, 2)
	b := raw32(t, tensor.Shape{2, 2}, 3, 4, 5, 6)

	out := backend.Cat([]*tensor.RawTensor{a, b}, -1)

	assert.Equal(t, []float32{1, 3, 4, 2, 5, 6}, out.AsFloat32())
}

func TestConv2D_BasicForward(t *testing.T) {
	backend := New()

	// 1 2 3
	// 4 5 6
	// 7 8 9
	input := seq32(t, tensor.Shape{1, 1, 3, 3})
	kernel := raw32(t, tensor.Shape{1, 1, 2, 2}, 1, 0, 0, 1)

	out := backend.Conv2D(input, kernel, 1, 0)

	require.True(t, out.Shape().Equal(tensor.Shape{1, 1, 2, 2}))
	assert.Equal(t, []float32{6, 8, 12, 14}, out.AsFloat32())
}

func TestConv2D_PaddingAndStride(t *testing.T) {
	backend := New()
	input := seq32(t, tensor.Shape{1, 1, 4, 4})
	kernel := raw32(t, tensor.Shape{1, 1, 3, 3}, 1, 1, 1, 1, 1, 1, 1, 1, 1)

	out := backend.Conv2D(input, kernel, 2, 1)

	// out = (4 + 2 - 3)/2 + 1 = 2
	require.True(t, out.Shape().Equal(tensor.Shape{1, 1, 2, 2}))
	// Top-left window covers rows 0-1, cols 0-1 of the input (rest is padding).
	assert.Equal(t, float32(1+2+5+6), out.AsFloat32()[0])
	// Bottom-right window centered at (2,2): rows 1-3, cols 1-3.
	assert.Equal(t, float32(6+7+8+10+11+12+14+15+16), out.AsFloat32()[3])
}

func TestConv2D_MultiChannelBatch(t *testing.T) {
	seqBackend := NewWithConfig(parallel.Sequential())
	parBackend := NewWithConfig(parallel.Config{Enabled: true, NumWorkers: 3, MinChunkSize: 1})

	input := raw32(t, tensor.Shape{5, 3, 6, 6})
	for i := range input.AsFloat32() {
		input.AsFloat32()[i] = float32(math.Sin(float64(i)))
	}
	kernel := raw32(t, tensor.Shape{4, 3, 3, 3})
	for i := range kernel.AsFloat32() {
		kernel.AsFloat32()[i] = float32(math.Cos(float64(i)))
	}

	a := seqBackend.Conv2D(input, kernel, 1, 1)
	b := parBackend.Conv2D(input, kernel, 1, 1)

	require.True(t, a.Shape().Equal(tensor.Shape{5, 4, 6, 6}))
	assert.Equal(t, a.AsFloat32(), b.AsFloat32(), "parallel execution must be bitwise deterministic")

	// Spot-check one interior output against a direct sum.
	var want float64
	n, co, oh, ow := 2, 1, 3, 4
	for ci := 0; ci < 3; ci++ {
		for kh := 0; kh < 3; kh++ {
			for kw := 0; kw < 3; kw++ {
				x := input.AsFloat32()[((n*3+ci)*6+oh-1+kh)*6+ow-1+kw]
				w := kernel.AsFloat32()[((co*3+ci)*3+kh)*3+kw]
				want += float64(x) * float64(w)
			}
		}
	}
	assert.InDelta(t, want, a.AsFloat32()[((n*4+co)*6+oh)*6+ow], 1e-4)
}

func TestConv2D_ChannelMismatchPanics(t *testing.T) {
	backend := New()
	assert.Panics(t, func() {
		backend.Conv2D(raw32(t, tensor.Shape{1, 2, 4, 4}), raw32(t, tensor.Shape{1, 3, 3, 3}), 1, 1)
	})
}

func TestAvgPool2D_KernelOneStrideTwo(t *testing.T) {
	backend := New()
	input := seq32(t, tensor.Shape{1, 1, 4, 4})

	out := backend.AvgPool2D(input, 1, 2)

	require.True(t, out.Shape().Equal(tensor.Shape{1, 1, 2, 2}))
	assert.Equal(t, []float32{1, 3, 9, 11}, out.AsFloat32())
}

func TestAvgPool2D_GlobalWindow(t *testing.T) {
	backend := New()
	input := seq32(t, tensor.Shape{2, 2, 2, 2})

	out := backend.AvgPool2D(input, 2, 2)

	require.True(t, out.Shape().Equal(tensor.Shape{2, 2, 1, 1}))
	assert.Equal(t, []float32{2.5, 6.5, 10.5, 14.5}, out.AsFloat32())
}

func TestChannelMoments(t *testing.T) {
	backend := New()
	// Channel 0 holds {1, 3} and {5, 7}; channel 1 holds 2s.
	input := raw32(t, tensor.Shape{2, 2, 1, 2}, 1, 3, 2, 2, 5, 7, 2, 2)

	mean, variance := backend.ChannelMoments(input)

	assert.Equal(t, []float32{4, 2}, mean.AsFloat32())
	assert.Equal(t, []float32{5, 0}, variance.AsFloat32())
}

func TestBatchNorm2D(t *testing.T) {
	backend := New()
	input := raw32(t, tensor.Shape{1, 2, 1, 2}, 1, 3, 10, 20)
	gamma := raw32(t, tensor.Shape{2}, 2, 1)
	beta := raw32(t, tensor.Shape{2}, 0, 5)
	mean := raw32(t, tensor.Shape{2}, 2, 15)
	variance := raw32(t, tensor.Shape{2}, 1, 25)

	out := backend.BatchNorm2D(input, gamma, beta, mean, variance, 0)

	assert.InDeltaSlice(t, []float32{-2, 2, 4, 6}, out.AsFloat32(), 1e-6)
}

func TestBatchNorm2D_StatShapeMismatchPanics(t *testing.T) {
	backend := New()
	input := raw32(t, tensor.Shape{1, 2, 1, 1})
	bad := raw32(t, tensor.Shape{3})
	ok := raw32(t, tensor.Shape{2})

	assert.Panics(t, func() { backend.BatchNorm2D(input, bad, ok, ok, ok, 1e-5) })
}

func TestFloat64Kernels(t *testing.T) {
	backend := New()
	x, err := tensor.NewRaw(tensor.Shape{1, 1, 2, 2}, tensor.Float64, tensor.CPU)
	require.NoError(t, err)
	copy(x.AsFloat64(), []float64{1, 2, 3, 4})
	k, err := tensor.NewRaw(tensor.Shape{1, 1, 1, 1}, tensor.Float64, tensor.CPU)
	require.NoError(t, err)
	k.AsFloat64()[0] = 2

	out := backend.Conv2D(x, k, 1, 0)
	assert.Equal(t, []float64{2, 4, 6, 8}, out.AsFloat64())
	assert.Equal(t, 20.0, backend.Sum(out).AsFloat64()[0])
}

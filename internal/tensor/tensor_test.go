package tensor_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orthopath/orthopath/internal/backend/cpu"
	"github.com/orthopath/orthopath/internal/tensor"
)

func TestShape(t *testing.T) {
	s := tensor.Shape{2, 3, 4}
	assert.Equal(t, 24, s.NumElements())
	assert.Equal(t, []int{12, 4, 1}, s.ComputeStrides())
	assert.True(t, s.Equal(tensor.Shape{2, 3, 4}))
	assert.False(t, s.Equal(tensor.Shape{2, 3}))
	assert.Equal(t, 1, tensor.Shape{}.NumElements())
	assert.Error(t, tensor.Shape{2, 0}.Validate())

	c := s.Clone()
	c[0] = 9
	assert.Equal(t, 2, s[0])
}

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		name      string
		a, b      tensor.Shape
		want      tensor.Shape
		broadcast bool
		wantErr   bool
	}{
		{"same", tensor.Shape{3, 5}, tensor.Shape{3, 5}, tensor.Shape{3, 5}, false, false},
		{"column", tensor.Shape{3, 1}, tensor.Shape{3, 5}, tensor.Shape{3, 5}, true, false},
		{"rank", tensor.Shape{5}, tensor.Shape{2, 3, 5}, tensor.Shape{2, 3, 5}, true, false},
		{"channel bias", tensor.Shape{1, 16, 1, 1}, tensor.Shape{2, 16, 8, 8}, tensor.Shape{2, 16, 8, 8}, true, false},
		{"incompatible", tensor.Shape{3, 4}, tensor.Shape{3, 5}, nil, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, broadcast, err := tensor.BroadcastShapes(tt.a, tt.b)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.broadcast, broadcast)
		})
	}
}

func TestFromSlice(t *testing.T) {
	backend := cpu.New()

	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)
	require.NoError(t, err)
	assert.Equal(t, tensor.Float32, x.DType())
	assert.Equal(t, float32(6), x.At(1, 2))

	x.Set(10, 0, 1)
	assert.Equal(t, float32(10), x.Data()[1])
	assert.Panics(t, func() { x.At(2, 0) })

	_, err = tensor.FromSlice([]float32{1, 2}, tensor.Shape{3}, backend)
	assert.Error(t, err)
}

func TestCreation(t *testing.T) {
	backend := cpu.New()

	assert.Equal(t, []float64{0, 0}, tensor.Zeros[float64](tensor.Shape{2}, backend).Data())
	assert.Equal(t, []float32{1, 1, 1}, tensor.Ones[float32](tensor.Shape{3}, backend).Data())
	assert.Equal(t, []float32{2.5, 2.5}, tensor.Full[float32](tensor.Shape{2}, 2.5, backend).Data())

	u := tensor.Uniform[float32](tensor.Shape{1000}, -0.5, 0.5, backend)
	for _, v := range u.Data() {
		assert.GreaterOrEqual(t, v, float32(-0.5))
		assert.Less(t, v, float32(0.5))
	}

	a := tensor.RandnFrom[float32](tensor.Shape{7}, rand.New(rand.NewSource(3)), backend)
	b := tensor.RandnFrom[float32](tensor.Shape{7}, rand.New(rand.NewSource(3)), backend)
	assert.Equal(t, a.Data(), b.Data())

	c := tensor.UniformFrom[float32](tensor.Shape{5}, 0, 1, rand.New(rand.NewSource(3)), backend)
	d := tensor.UniformFrom[float32](tensor.Shape{5}, 0, 1, rand.New(rand.NewSource(3)), backend)
	assert.Equal(t, c.Data(), d.Data())
}

func TestOps(t *testing.T) {
	backend := cpu.New()

	a, err := tensor.FromSlice([]float32{1, -2, 3, -4}, tensor.Shape{2, 2}, backend)
	require.NoError(t, err)

	assert.Equal(t, []float32{2, -4, 6, -8}, a.Add(a).Data())
	assert.Equal(t, []float32{1, 4, 9, 16}, a.Mul(a).Data())
	assert.Equal(t, []float32{0.5, -1, 1.5, -2}, a.MulScalar(0.5).Data())
	assert.Equal(t, []float32{1, 0, 3, 0}, a.ReLU().Data())
	assert.Equal(t, float32(-2), a.Sum().Item())
	assert.Equal(t, float32(30), a.Dot(a))
	assert.Equal(t, []float32{1, 3, -2, -4}, a.Transpose().Data())
	assert.Equal(t, tensor.Shape{4, 1}, a.Reshape(4, 1).Shape())

	img := tensor.Zeros[float32](tensor.Shape{2, 64, 1, 1}, backend)
	assert.Equal(t, tensor.Shape{2, 64}, img.Flatten().Shape())

	cat := tensor.Cat([]*tensor.Tensor[float32, *cpu.CPUBackend]{a, a.MulScalar(0)}, 1)
	assert.Equal(t, tensor.Shape{2, 4}, cat.Shape())
	assert.Equal(t, []float32{1, -2, 0, 0, 3, -4, 0, 0}, cat.Data())
}

func TestClone(t *testing.T) {
	backend := cpu.New()

	a := tensor.Ones[float32](tensor.Shape{2}, backend)
	b := a.Clone()
	b.Data()[0] = 5
	assert.Equal(t, float32(1), a.Data()[0])
	assert.Equal(t, "Tensor[float32][2] on CPU", a.String())
}

package resnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orthopath/orthopath/internal/backend/cpu"
	"github.com/orthopath/orthopath/internal/tensor"
)

func TestDownsample_ShapeLaw(t *testing.T) {
	backend := cpu.New()

	ds, err := NewDownsample[testBackend](2)
	require.NoError(t, err)

	data := make([]float32, 2*4*8*8)
	for i := range data {
		data[i] = float32(i + 1)
	}
	x, err := tensor.FromSlice(data, tensor.Shape{2, 4, 8, 8}, backend)
	require.NoError(t, err)

	out := ds.Forward(x)
	require.Equal(t, tensor.Shape{2, 8, 4, 4}, out.Shape())

	for n := range 2 {
		for c := range 4 {
			for h := range 4 {
				for w := range 4 {
					assert.Equal(t, x.At(n, c, 2*h, 2*w), out.At(n, c, h, w))
					assert.Zero(t, out.At(n, c+4, h, w))
				}
			}
		}
	}
	assert.Nil(t, ds.Parameters())
}

func TestDownsample_OddSize(t *testing.T) {
	ds, err := NewDownsample[testBackend](2)
	require.NoError(t, err)

	out := ds.Forward(tensor.Ones[float32](tensor.Shape{1, 16, 7, 7}, cpu.New()))
	assert.Equal(t, tensor.Shape{1, 32, 4, 4}, out.Shape())
}

func TestDownsample_InvalidStride(t *testing.T) {
	for _, stride := range []int{0, 1, 3} {
		ds, err := NewDownsample[testBackend](stride)
		assert.ErrorIs(t, err, ErrInvalidStride)
		assert.Nil(t, ds)
	}
}

func TestBasicBlock_Identity(t *testing.T) {
	backend := cpu.New()

	block, err := NewBasicBlock[testBackend](16, 16, 1, nil, backend)
	require.NoError(t, err)
	assert.False(t, block.HasDownsample())

	out := block.Forward(tensor.Randn[float32](tensor.Shape{2, 16, 8, 8}, backend))
	assert.Equal(t, tensor.Shape{2, 16, 8, 8}, out.Shape())
	for _, v := range out.Data() {
		assert.GreaterOrEqual(t, v, float32(0), "block output is ReLU'd")
	}
}

func TestBasicBlock_Transition(t *testing.T) {
	backend := cpu.New()

	ds, err := NewDownsample[testBackend](2)
	require.NoError(t, err)
	block, err := NewBasicBlock(16, 32, 2, ds, backend)
	require.NoError(t, err)

	out := block.Forward(tensor.Randn[float32](tensor.Shape{2, 16, 8, 8}, backend))
	assert.Equal(t, tensor.Shape{2, 32, 4, 4}, out.Shape())
}

func TestBasicBlock_MissingDownsample(t *testing.T) {
	backend := cpu.New()

	_, err := NewBasicBlock[testBackend](16, 32, 2, nil, backend)
	assert.ErrorIs(t, err, ErrMissingDownsample)

	_, err = NewBasicBlock[testBackend](16, 32, 1, nil, backend)
	assert.ErrorIs(t, err, ErrMissingDownsample)

	_, err = NewBasicBlock[testBackend](16, 16, 2, nil, backend)
	assert.ErrorIs(t, err, ErrMissingDownsample)
}

func TestBasicBlock_MismatchedDownsample(t *testing.T) {
	backend := cpu.New()

	ds, err := NewDownsample[testBackend](2)
	require.NoError(t, err)

	_, err = NewBasicBlock(16, 64, 2, ds, backend)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorContains(t, err, "projector maps 16->32 channels at stride 2, block maps 16->64 at stride 2")

	_, err = NewBasicBlock(16, 16, 1, ds, backend)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBasicBlock_StateDictKeys(t *testing.T) {
	block, err := NewBasicBlock[testBackend](16, 16, 1, nil, cpu.New())
	require.NoError(t, err)

	sd := block.StateDict()
	assert.Len(t, sd, 10)
	for _, key := range []string{
		"conv_a.weight", "bn_a.weight", "bn_a.bias", "bn_a.running_mean", "bn_a.running_var",
		"conv_b.weight", "bn_b.weight", "bn_b.bias", "bn_b.running_mean", "bn_b.running_var",
	} {
		assert.Contains(t, sd, key)
	}
	assert.Len(t, block.Parameters(), 6)
}

func TestStage_Build(t *testing.T) {
	backend := cpu.New()

	stage, err := NewStage(3, 16, 32, 2, backend)
	require.NoError(t, err)
	require.Len(t, stage.Blocks(), 3)
	assert.True(t, stage.Blocks()[0].HasDownsample())
	assert.False(t, stage.Blocks()[1].HasDownsample())
	assert.False(t, stage.Blocks()[2].HasDownsample())

	out := stage.Forward(tensor.Randn[float32](tensor.Shape{1, 16, 16, 16}, backend))
	assert.Equal(t, tensor.Shape{1, 32, 8, 8}, out.Shape())
	assert.Contains(t, stage.StateDict(), "2.bn_b.running_var")

	plain, err := NewStage(2, 16, 16, 1, backend)
	require.NoError(t, err)
	assert.False(t, plain.Blocks()[0].HasDownsample())
}

func TestStage_Errors(t *testing.T) {
	backend := cpu.New()

	_, err := NewStage(0, 16, 16, 1, backend)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewStage(1, 16, 32, 3, backend)
	assert.ErrorIs(t, err, ErrInvalidStride)
}

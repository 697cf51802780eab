package resnet_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orthopath/orthopath/backend/cpu"
	"github.com/orthopath/orthopath/resnet"
	"github.com/orthopath/orthopath/tensor"
)

func TestPublicAPI(t *testing.T) {
	backend := cpu.NewWithParallelism(cpu.Sequential())

	cfg := resnet.DefaultConfig()
	cfg.Depth, cfg.NumConvs, cfg.Seed = 8, 2, 4
	model, err := resnet.New(cfg, backend)
	require.NoError(t, err)

	x := tensor.RandnFrom[float32](tensor.Shape{2, 3, 32, 32}, rand.New(rand.NewSource(1)), backend)
	out, err := model.Forward(x, resnet.RandomFrom(rand.New(rand.NewSource(2))))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 10}, out.Single().Shape())

	_, err = model.Forward(x, resnet.Selected(2))
	assert.ErrorIs(t, err, resnet.ErrPathIndex)

	assert.GreaterOrEqual(t, resnet.OrthogonalityPenalty(model.PathWeights()), 0.0)
}

func ExampleResNet20() {
	backend := cpu.New()
	model, err := resnet.ResNet20(10, 4, backend)
	if err != nil {
		panic(err)
	}
	fmt.Println(model.NumConvs(), model.NumParameters())
	// Output: 4 271018
}

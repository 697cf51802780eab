package nn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orthopath/orthopath/internal/backend/cpu"
	"github.com/orthopath/orthopath/internal/tensor"
)

func fromSlice(t *testing.T, data []float32, shape tensor.Shape, backend *cpu.CPUBackend) *tensor.Tensor[float32, *cpu.CPUBackend] {
	t.Helper()
	x, err := tensor.FromSlice(data, shape, backend)
	require.NoError(t, err)
	return x
}

func TestConv2D_Creation(t *testing.T) {
	backend := cpu.New()

	conv := NewConv2D(3, 16, 3, 3, 1, 1, false, backend)

	assert.Equal(t, 3, conv.InChannels())
	assert.Equal(t, 16, conv.OutChannels())
	assert.Equal(t, [2]int{3, 3}, conv.KernelSize())
	assert.Equal(t, tensor.Shape{16, 3, 3, 3}, conv.Weight().Tensor().Shape())
	assert.Len(t, conv.Parameters(), 1)
	assert.Equal(t, 432, CountParameters[*cpu.CPUBackend](conv))

	bound := float32(1 / math.Sqrt(27))
	for _, v := range conv.Weight().Tensor().Data() {
		assert.LessOrEqual(t, v, bound)
		assert.GreaterOrEqual(t, v, -bound)
	}

	withBias := NewConv2D(1, 6, 5, 5, 1, 0, true, backend)
	assert.Len(t, withBias.Parameters(), 2)
	assert.Contains(t, withBias.StateDict(), "bias")
}

func TestConv2D_InvalidArgs(t *testing.T) {
	backend := cpu.New()
	assert.Panics(t, func() { NewConv2D(0, 16, 3, 3, 1, 1, false, backend) })
	assert.Panics(t, func() { NewConv2D(3, 16, 0, 3, 1, 1, false, backend) })
	assert.Panics(t, func() { NewConv2D(3, 16, 3, 3, 0, 1, false, backend) })
	assert.Panics(t, func() { NewConv2D(3, 16, 3, 3, 1, -1, false, backend) })
}

func TestConv2D_ForwardShape(t *testing.T) {
	backend := cpu.New()

	conv := NewConv2D(3, 16, 3, 3, 1, 1, false, backend)
	out := conv.Forward(tensor.Randn[float32](tensor.Shape{2, 3, 32, 32}, backend))
	assert.Equal(t, tensor.Shape{2, 16, 32, 32}, out.Shape())

	strided := NewConv2D(16, 32, 3, 3, 2, 1, false, backend)
	assert.Equal(t, [2]int{16, 16}, strided.ComputeOutputSize(32, 32))

	assert.Panics(t, func() {
		conv.Forward(tensor.Zeros[float32](tensor.Shape{2, 4, 8, 8}, backend))
	})
}

func TestConv2D_Bias(t *testing.T) {
	backend := cpu.New()

	conv := NewConv2D(1, 2, 1, 1, 1, 0, true, backend)
	copy(conv.Weight().Tensor().Data(), []float32{1, 2})
	copy(conv.Parameters()[1].Tensor().Data(), []float32{0.5, -1})

	out := conv.Forward(fromSlice(t, []float32{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2}, backend))
	assert.Equal(t, []float32{1.5, 2.5, 3.5, 4.5, 1, 3, 5, 7}, out.Data())
}

func TestConv2D_ResetParametersSeeded(t *testing.T) {
	backend := cpu.New()

	a := NewConv2D(3, 16, 3, 3, 1, 1, false, backend)
	b := NewConv2D(3, 16, 3, 3, 1, 1, false, backend)
	a.ResetParameters(rand.New(rand.NewSource(7)))
	b.ResetParameters(rand.New(rand.NewSource(7)))

	assert.Equal(t, a.Weight().Tensor().Data(), b.Weight().Tensor().Data())
}

func TestLinear_Forward(t *testing.T) {
	backend := cpu.New()

	layer := NewLinear(3, 2, backend)
	copy(layer.Weight().Tensor().Data(), []float32{1, 0, 0, 0, 1, 1})
	copy(layer.Bias().Tensor().Data(), []float32{0.5, -1})

	out := layer.Forward(fromSlice(t, []float32{1, 2, 3, -1, 0, 1}, tensor.Shape{2, 3}, backend))

	assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
	assert.InDeltaSlice(t, []float32{1.5, 4, -0.5, 0}, out.Data(), 1e-6)
	assert.Equal(t, "Linear(in_features=3, out_features=2)", layer.String())

	assert.Panics(t, func() {
		layer.Forward(tensor.Zeros[float32](tensor.Shape{2, 4}, backend))
	})
}

func TestBatchNorm2D_TrainingUpdatesRunningStats(t *testing.T) {
	backend := cpu.New()

	bn := NewBatchNorm2D(1, backend)
	require.True(t, bn.Training())

	x := fromSlice(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 1, 1, 2}, backend)
	out := bn.Forward(x)

	std := math.Sqrt(1.25 + DefaultBatchNormEps)
	want := []float32{
		float32(-1.5 / std), float32(-0.5 / std),
		float32(0.5 / std), float32(1.5 / std),
	}
	assert.InDeltaSlice(t, want, out.Data(), 1e-5)

	assert.InDelta(t, 0.25, bn.RunningMean().Data()[0], 1e-6)
	assert.InDelta(t, 0.9+0.1*(5.0/3.0), bn.RunningVar().Data()[0], 1e-6)
}

func TestBatchNorm2D_EvalUsesRunningStats(t *testing.T) {
	backend := cpu.New()

	bn := NewBatchNorm2D(2, backend)
	bn.SetTraining(false)
	copy(bn.RunningMean().Data(), []float32{1, -1})
	copy(bn.RunningVar().Data(), []float32{4, 1})

	x := fromSlice(t, []float32{3, 5, 0, 1}, tensor.Shape{1, 2, 1, 2}, backend)
	out := bn.Forward(x)

	assert.InDeltaSlice(t, []float32{1, 2, 1, 2}, out.Data(), 1e-4)
	assert.Equal(t, float32(1), bn.RunningMean().Data()[0], "eval must not touch running stats")
}

func TestBatchNorm2D_StateDict(t *testing.T) {
	backend := cpu.New()

	bn := NewBatchNorm2D(4, backend)
	sd := bn.StateDict()
	assert.ElementsMatch(t, []string{"weight", "bias", "running_mean", "running_var"}, keys(sd))

	other := NewBatchNorm2D(4, backend)
	copy(bn.RunningMean().Data(), []float32{1, 2, 3, 4})
	require.NoError(t, other.LoadStateDict(bn.StateDict()))
	assert.Equal(t, []float32{1, 2, 3, 4}, other.RunningMean().Data())

	delete(sd, "running_var")
	assert.ErrorContains(t, other.LoadStateDict(sd), "running_var")
}

func TestAvgPool2D_Forward(t *testing.T) {
	backend := cpu.New()

	pool := NewAvgPool2D[*cpu.CPUBackend](2, 2)
	x := fromSlice(t, []float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	}, tensor.Shape{1, 1, 4, 4}, backend)

	out := pool.Forward(x)
	assert.Equal(t, tensor.Shape{1, 1, 2, 2}, out.Shape())
	assert.Equal(t, []float32{3.5, 5.5, 11.5, 13.5}, out.Data())
	assert.Nil(t, pool.Parameters())

	assert.Panics(t, func() { NewAvgPool2D[*cpu.CPUBackend](0, 1) })
}

func TestReLU_Forward(t *testing.T) {
	backend := cpu.New()

	relu := NewReLU[*cpu.CPUBackend]()
	out := relu.Forward(fromSlice(t, []float32{-1, 0, 2}, tensor.Shape{3}, backend))
	assert.Equal(t, []float32{0, 0, 2}, out.Data())
}

func TestSequential_StateDictRoundTrip(t *testing.T) {
	backend := cpu.New()

	build := func() *Sequential[*cpu.CPUBackend] {
		return NewSequential[*cpu.CPUBackend](
			NewConv2D(3, 4, 3, 3, 1, 1, false, backend),
			NewBatchNorm2D(4, backend),
			NewReLU[*cpu.CPUBackend](),
		)
	}
	src, dst := build(), build()

	sd := src.StateDict()
	assert.ElementsMatch(t, []string{
		"0.weight",
		"1.weight", "1.bias", "1.running_mean", "1.running_var",
	}, keys(sd))

	require.NoError(t, dst.LoadStateDict(sd))
	assert.Equal(t,
		src.Module(0).(*Conv2D[*cpu.CPUBackend]).Weight().Tensor().Data(),
		dst.Module(0).(*Conv2D[*cpu.CPUBackend]).Weight().Tensor().Data())

	dst.SetTraining(false)
	assert.False(t, dst.Module(1).(*BatchNorm2D[*cpu.CPUBackend]).Training())
	assert.Len(t, dst.Parameters(), 3)
}

func TestParameter_AccumulateGrad(t *testing.T) {
	backend := cpu.New()

	p := NewParameter("w", tensor.Zeros[float32](tensor.Shape{2}, backend))
	assert.Nil(t, p.Grad())

	g := fromSlice(t, []float32{1, 2}, tensor.Shape{2}, backend)
	p.AccumulateGrad(g)
	p.AccumulateGrad(g)
	assert.Equal(t, []float32{2, 4}, p.Grad().Data())
	assert.Equal(t, []float32{1, 2}, g.Data(), "first accumulation must copy")

	assert.Panics(t, func() {
		p.AccumulateGrad(tensor.Zeros[float32](tensor.Shape{3}, backend))
	})

	p.ZeroGrad()
	assert.Nil(t, p.Grad())
}

func TestLoadStateDict_ShapeMismatch(t *testing.T) {
	backend := cpu.New()

	conv := NewConv2D(3, 16, 3, 3, 1, 1, false, backend)
	err := conv.LoadStateDict(map[string]*tensor.RawTensor{
		"weight": tensor.Zeros[float32](tensor.Shape{16, 3, 5, 5}, backend).Raw(),
	})
	assert.ErrorContains(t, err, "shape mismatch")
}

func TestSequential_FailedLoadLeavesModulesUnchanged(t *testing.T) {
	backend := cpu.New()
	seq := NewSequential[*cpu.CPUBackend](
		NewConv2D(3, 4, 3, 3, 1, 1, false, backend),
		NewLinear(4, 2, backend),
	)
	weight := seq.Module(0).(*Conv2D[*cpu.CPUBackend]).Weight().Tensor()
	before := append([]float32(nil), weight.Data()...)

	sd := map[string]*tensor.RawTensor{
		"0.weight": tensor.Ones[float32](tensor.Shape{4, 3, 3, 3}, backend).Raw(),
		"1.weight": tensor.Ones[float32](tensor.Shape{2, 4}, backend).Raw(),
		"1.bias":   tensor.Ones[float32](tensor.Shape{3}, backend).Raw(),
	}
	assert.ErrorContains(t, seq.LoadStateDict(sd), "1.bias shape mismatch")
	assert.Equal(t, before, weight.Data())

	delete(sd, "1.bias")
	assert.ErrorContains(t, seq.LoadStateDict(sd), "missing 1.bias")
	assert.Equal(t, before, weight.Data())
}

func TestCheckStateDict_IgnoresExtraKeys(t *testing.T) {
	backend := cpu.New()
	w := tensor.Zeros[float32](tensor.Shape{2}, backend).Raw()

	err := CheckStateDict(map[string]*tensor.RawTensor{"w": w}, map[string]*tensor.RawTensor{"w": w, "extra": w})
	require.NoError(t, err)

	f64 := tensor.Zeros[float64](tensor.Shape{2}, backend).Raw()
	assert.ErrorContains(t, CheckStateDict(map[string]*tensor.RawTensor{"w": w}, map[string]*tensor.RawTensor{"w": f64}), "dtype mismatch")
}

func keys(m map[string]*tensor.RawTensor) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

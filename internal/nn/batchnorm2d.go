package nn

import (
	"fmt"

	"github.com/orthopath/orthopath/internal/tensor"
)

// Batch normalization defaults, matching torch.nn.BatchNorm2d.
const (
	DefaultBatchNormEps      = 1e-5
	DefaultBatchNormMomentum = 0.1
)

// BatchNorm2D normalizes each channel of a [N, C, H, W] input.
//
// In training mode the batch's own per-channel mean and biased variance are
// used, and the running statistics are updated:
//
//	running_mean = (1 - momentum) * running_mean + momentum * mean
//	running_var  = (1 - momentum) * running_var  + momentum * unbiased_var
//
// In evaluation mode the running statistics are used and nothing changes.
// A new layer starts in training mode.
type BatchNorm2D[B tensor.Backend] struct {
	numFeatures int
	eps         float64
	momentum    float32
	training    bool

	gamma *Parameter[B] // "weight", [C]
	beta  *Parameter[B] // "bias", [C]

	runningMean *tensor.Tensor[float32, B]
	runningVar  *tensor.Tensor[float32, B]

	backend B
}

// NewBatchNorm2D creates a batch normalization layer over numFeatures
// channels with gamma = 1, beta = 0, running mean 0 and running variance 1.
func NewBatchNorm2D[B tensor.Backend](numFeatures int, backend B) *BatchNorm2D[B] {
	if numFeatures <= 0 {
		panic(fmt.Sprintf("batchnorm2d: invalid num_features %d", numFeatures))
	}
	shape := tensor.Shape{numFeatures}
	return &BatchNorm2D[B]{
		numFeatures: numFeatures,
		eps:         DefaultBatchNormEps,
		momentum:    DefaultBatchNormMomentum,
		training:    true,
		gamma:       NewParameter("weight", Ones(shape, backend)),
		beta:        NewParameter("bias", Zeros(shape, backend)),
		runningMean: Zeros(shape, backend),
		runningVar:  Ones(shape, backend),
		backend:     backend,
	}
}

// Forward normalizes input.
func (bn *BatchNorm2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("batchnorm2d: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	if shape[1] != bn.numFeatures {
		panic(fmt.Sprintf("batchnorm2d: input channels %d != expected %d", shape[1], bn.numFeatures))
	}

	mean, variance := bn.runningMean.Raw(), bn.runningVar.Raw()
	if bn.training {
		mean, variance = bn.backend.ChannelMoments(input.Raw())
		bn.updateRunningStats(mean, variance, shape[0]*shape[2]*shape[3])
	}

	raw := bn.backend.BatchNorm2D(input.Raw(), bn.gamma.Tensor().Raw(), bn.beta.Tensor().Raw(), mean, variance, bn.eps)
	return tensor.New[float32, B](raw, bn.backend)
}

func (bn *BatchNorm2D[B]) updateRunningStats(mean, variance *tensor.RawTensor, count int) {
	correction := float32(1)
	if count > 1 {
		correction = float32(count) / float32(count-1)
	}
	m := bn.momentum
	rm, rv := bn.runningMean.Data(), bn.runningVar.Data()
	for c, v := range mean.AsFloat32() {
		rm[c] = (1-m)*rm[c] + m*v
	}
	for c, v := range variance.AsFloat32() {
		rv[c] = (1-m)*rv[c] + m*v*correction
	}
}

// SetTraining switches between batch statistics (true) and running
// statistics (false).
func (bn *BatchNorm2D[B]) SetTraining(training bool) {
	bn.training = training
}

// Training reports whether the layer is in training mode.
func (bn *BatchNorm2D[B]) Training() bool {
	return bn.training
}

// Parameters returns gamma and beta.
func (bn *BatchNorm2D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{bn.gamma, bn.beta}
}

// RunningMean returns the running mean buffer.
func (bn *BatchNorm2D[B]) RunningMean() *tensor.Tensor[float32, B] {
	return bn.runningMean
}

// RunningVar returns the running variance buffer.
func (bn *BatchNorm2D[B]) RunningVar() *tensor.Tensor[float32, B] {
	return bn.runningVar
}

// StateDict returns weight, bias, running_mean and running_var.
func (bn *BatchNorm2D[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"weight":       bn.gamma.Tensor().Raw(),
		"bias":         bn.beta.Tensor().Raw(),
		"running_mean": bn.runningMean.Raw(),
		"running_var":  bn.runningVar.Raw(),
	}
}

// LoadStateDict loads every entry StateDict names.
func (bn *BatchNorm2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	expected := bn.StateDict()
	if err := CheckStateDict(expected, stateDict); err != nil {
		return err
	}
	for name, dst := range expected {
		if err := copyInto(name, dst, stateDict[name]); err != nil {
			return err
		}
	}
	return nil
}

// String returns a string representation of the layer.
func (bn *BatchNorm2D[B]) String() string {
	return fmt.Sprintf("BatchNorm2D(%d, eps=%g, momentum=%g)", bn.numFeatures, bn.eps, bn.momentum)
}

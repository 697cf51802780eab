package resnet

import (
	"fmt"
	"strings"

	"github.com/orthopath/orthopath/internal/nn"
	"github.com/orthopath/orthopath/internal/tensor"
)

// BasicBlock is the two-convolution residual block:
//
//	main     = bn_b(conv_b(relu(bn_a(conv_a(x)))))
//	shortcut = downsample(x) or x
//	out      = relu(shortcut + main)
//
// conv_a carries the block stride; both convolutions are 3x3, padding 1,
// without bias.
type BasicBlock[B tensor.Backend] struct {
	inPlanes   int
	planes     int
	stride     int
	convA      *nn.Conv2D[B]
	bnA        *nn.BatchNorm2D[B]
	convB      *nn.Conv2D[B]
	bnB        *nn.BatchNorm2D[B]
	relu       *nn.ReLU[B]
	downsample *Downsample[B] // nil for identity shortcut
}

// NewBasicBlock creates a block mapping inPlanes to planes channels.
//
// A projector is required whenever stride != 1 or inPlanes != planes, and
// when present it must produce exactly the main path's shape.
func NewBasicBlock[B tensor.Backend](inPlanes, planes, stride int, downsample *Downsample[B], backend B) (*BasicBlock[B], error) {
	if inPlanes <= 0 || planes <= 0 {
		return nil, fmt.Errorf("%w: block channels in=%d, out=%d", ErrInvalidConfig, inPlanes, planes)
	}
	if stride <= 0 {
		return nil, fmt.Errorf("%w: block stride %d", ErrInvalidConfig, stride)
	}

	reshapes := stride != 1 || inPlanes != planes*Expansion
	switch {
	case reshapes && downsample == nil:
		return nil, fmt.Errorf("%w: block %d->%d with stride %d needs a projector", ErrMissingDownsample, inPlanes, planes, stride)
	case downsample != nil && (downsample.Stride() != stride || 2*inPlanes != planes*Expansion):
		return nil, fmt.Errorf("%w: projector maps %d->%d channels at stride %d, block maps %d->%d at stride %d",
			ErrInvalidConfig, inPlanes, 2*inPlanes, downsample.Stride(), inPlanes, planes*Expansion, stride)
	}

	return &BasicBlock[B]{
		inPlanes:   inPlanes,
		planes:     planes,
		stride:     stride,
		convA:      nn.NewConv2D(inPlanes, planes, 3, 3, stride, 1, false, backend),
		bnA:        nn.NewBatchNorm2D(planes, backend),
		convB:      nn.NewConv2D(planes, planes, 3, 3, 1, 1, false, backend),
		bnB:        nn.NewBatchNorm2D(planes, backend),
		relu:       nn.NewReLU[B](),
		downsample: downsample,
	}, nil
}

// Forward runs the block.
func (b *BasicBlock[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	out := b.relu.Forward(b.bnA.Forward(b.convA.Forward(x)))
	out = b.bnB.Forward(b.convB.Forward(out))

	residual := x
	if b.downsample != nil {
		residual = b.downsample.Forward(x)
	}
	return b.relu.Forward(residual.Add(out))
}

// Parameters returns conv_a, bn_a, conv_b and bn_b parameters in order.
func (b *BasicBlock[B]) Parameters() []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	params = append(params, b.convA.Parameters()...)
	params = append(params, b.bnA.Parameters()...)
	params = append(params, b.convB.Parameters()...)
	params = append(params, b.bnB.Parameters()...)
	return params
}

// SetTraining switches both batch-norm layers.
func (b *BasicBlock[B]) SetTraining(training bool) {
	b.bnA.SetTraining(training)
	b.bnB.SetTraining(training)
}

// HasDownsample reports whether the shortcut uses a projector.
func (b *BasicBlock[B]) HasDownsample() bool {
	return b.downsample != nil
}

// Convs returns conv_a and conv_b.
func (b *BasicBlock[B]) Convs() [2]*nn.Conv2D[B] {
	return [2]*nn.Conv2D[B]{b.convA, b.convB}
}

func (b *BasicBlock[B]) children() map[string]nn.Module[B] {
	return map[string]nn.Module[B]{
		"conv_a": b.convA,
		"bn_a":   b.bnA,
		"conv_b": b.convB,
		"bn_b":   b.bnB,
	}
}

// StateDict returns conv_a.*, bn_a.*, conv_b.* and bn_b.* entries.
func (b *BasicBlock[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	for prefix, m := range b.children() {
		nn.MergeStateDict(sd, prefix, m.StateDict())
	}
	return sd
}

// LoadStateDict loads every child from its prefixed entries. The block is
// left unchanged on error.
func (b *BasicBlock[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := nn.CheckStateDict(b.StateDict(), stateDict); err != nil {
		return err
	}
	for prefix, m := range b.children() {
		if err := m.LoadStateDict(nn.SubStateDict(stateDict, prefix)); err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
	}
	return nil
}

// String returns a string representation of the block.
func (b *BasicBlock[B]) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "BasicBlock(%d->%d, stride=%d", b.inPlanes, b.planes, b.stride)
	if b.downsample != nil {
		sb.WriteString(", " + b.downsample.String())
	}
	sb.WriteString(")")
	return sb.String()
}

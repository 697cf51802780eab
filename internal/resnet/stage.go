package resnet

import (
	"fmt"

	"github.com/orthopath/orthopath/internal/nn"
	"github.com/orthopath/orthopath/internal/tensor"
)

// Stage is a sequence of basic blocks. Only the first block may change
// width or resolution.
type Stage[B tensor.Backend] struct {
	blocks []*BasicBlock[B]
	seq    *nn.Sequential[B]
}

// NewStage builds blocks basic blocks mapping inPlanes to planes channels.
// The first block carries stride and, when stride != 1 or the width
// changes, a Downsample projector; the rest are planes->planes at stride 1.
func NewStage[B tensor.Backend](blocks, inPlanes, planes, stride int, backend B) (*Stage[B], error) {
	if blocks < 1 {
		return nil, fmt.Errorf("%w: stage needs at least one block, got %d", ErrInvalidConfig, blocks)
	}

	var downsample *Downsample[B]
	if stride != 1 || inPlanes != planes*Expansion {
		var err error
		if downsample, err = NewDownsample[B](stride); err != nil {
			return nil, err
		}
	}

	s := &Stage[B]{seq: nn.NewSequential[B]()}
	for i := range blocks {
		var (
			block *BasicBlock[B]
			err   error
		)
		if i == 0 {
			block, err = NewBasicBlock(inPlanes, planes, stride, downsample, backend)
		} else {
			block, err = NewBasicBlock[B](planes*Expansion, planes, 1, nil, backend)
		}
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		s.blocks = append(s.blocks, block)
		s.seq.Add(block)
	}
	return s, nil
}

// Forward runs the blocks in order.
func (s *Stage[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return s.seq.Forward(x)
}

// Blocks returns the stage's blocks.
func (s *Stage[B]) Blocks() []*BasicBlock[B] {
	return s.blocks
}

// Parameters returns the parameters of every block.
func (s *Stage[B]) Parameters() []*nn.Parameter[B] {
	return s.seq.Parameters()
}

// SetTraining propagates the mode to every block.
func (s *Stage[B]) SetTraining(training bool) {
	s.seq.SetTraining(training)
}

// StateDict returns block entries prefixed with the block index.
func (s *Stage[B]) StateDict() map[string]*tensor.RawTensor {
	return s.seq.StateDict()
}

// LoadStateDict loads every block.
func (s *Stage[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return s.seq.LoadStateDict(stateDict)
}

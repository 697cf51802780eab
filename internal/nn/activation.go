package nn

import (
	"github.com/orthopath/orthopath/internal/tensor"
)

// ReLU applies f(x) = max(0, x) element-wise.
//
// Example:
//
//	relu := nn.NewReLU[Backend]()
//	output := relu.Forward(input) // negative values become 0
type ReLU[B tensor.Backend] struct{}

// NewReLU creates a new ReLU activation module.
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return &ReLU[B]{}
}

// Forward applies max(0, x).
func (r *ReLU[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return input.ReLU()
}

// Parameters returns nil; ReLU has no trainable parameters.
func (r *ReLU[B]) Parameters() []*Parameter[B] {
	return nil
}

// StateDict returns an empty map.
func (r *ReLU[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict is a no-op.
func (r *ReLU[B]) LoadStateDict(map[string]*tensor.RawTensor) error {
	return nil
}

// String returns "ReLU()".
func (r *ReLU[B]) String() string {
	return "ReLU()"
}

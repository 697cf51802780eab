package nn

import (
	"fmt"

	"github.com/orthopath/orthopath/internal/tensor"
)

// AvgPool2D averages each kernelSize x kernelSize window, moving by stride.
// No padding is applied.
//
// Input:  [N, C, H, W]
// Output: [N, C, (H-k)/s+1, (W-k)/s+1]
//
// Example:
//
//	pool := nn.NewAvgPool2D[Backend](8, 8)
//	pooled := pool.Forward(features) // [N, 64, 8, 8] -> [N, 64, 1, 1]
type AvgPool2D[B tensor.Backend] struct {
	kernelSize int
	stride     int
}

// NewAvgPool2D creates an average pooling layer. Panics on non-positive
// kernel size or stride.
func NewAvgPool2D[B tensor.Backend](kernelSize, stride int) *AvgPool2D[B] {
	if kernelSize <= 0 || stride <= 0 {
		panic(fmt.Sprintf("avgpool2d: invalid kernel_size=%d stride=%d", kernelSize, stride))
	}
	return &AvgPool2D[B]{kernelSize: kernelSize, stride: stride}
}

// Forward applies average pooling.
func (p *AvgPool2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if len(input.Shape()) != 4 {
		panic(fmt.Sprintf("avgpool2d: expected 4D input [N,C,H,W], got shape %v", input.Shape()))
	}
	backend := input.Backend()
	return tensor.New[float32, B](backend.AvgPool2D(input.Raw(), p.kernelSize, p.stride), backend)
}

// Parameters returns nil; pooling has no trainable parameters.
func (p *AvgPool2D[B]) Parameters() []*Parameter[B] {
	return nil
}

// StateDict returns an empty map.
func (p *AvgPool2D[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict is a no-op.
func (p *AvgPool2D[B]) LoadStateDict(map[string]*tensor.RawTensor) error {
	return nil
}

// KernelSize returns the pooling window size.
func (p *AvgPool2D[B]) KernelSize() int {
	return p.kernelSize
}

// Stride returns the pooling stride.
func (p *AvgPool2D[B]) Stride() int {
	return p.stride
}

// String returns a string representation of the layer.
func (p *AvgPool2D[B]) String() string {
	return fmt.Sprintf("AvgPool2D(kernel_size=%d, stride=%d)", p.kernelSize, p.stride)
}

package resnet

import (
	"fmt"

	"github.com/orthopath/orthopath/internal/nn"
	"github.com/orthopath/orthopath/internal/tensor"
)

// Downsample is the parameter-free shortcut projector: it subsamples by 2
// and pads the channel axis with zeros, mapping [N, C, H, W] to
// [N, 2C, ceil(H/2), ceil(W/2)].
type Downsample[B tensor.Backend] struct {
	stride int
	pool   *nn.AvgPool2D[B]
}

// NewDownsample creates a projector. Only stride 2 is supported.
func NewDownsample[B tensor.Backend](stride int) (*Downsample[B], error) {
	if stride != 2 {
		return nil, fmt.Errorf("%w: %d (must be 2)", ErrInvalidStride, stride)
	}
	return &Downsample[B]{
		stride: stride,
		pool:   nn.NewAvgPool2D[B](1, stride),
	}, nil
}

// Forward subsamples x and concatenates a zero tensor of the same shape
// along the channel axis.
func (d *Downsample[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	pooled := d.pool.Forward(x)
	return tensor.Cat([]*tensor.Tensor[float32, B]{pooled, pooled.MulScalar(0)}, 1)
}

// Stride returns the subsampling stride.
func (d *Downsample[B]) Stride() int {
	return d.stride
}

// Parameters returns nil.
func (d *Downsample[B]) Parameters() []*nn.Parameter[B] {
	return nil
}

// StateDict returns an empty map.
func (d *Downsample[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict is a no-op.
func (d *Downsample[B]) LoadStateDict(map[string]*tensor.RawTensor) error {
	return nil
}

// String returns a string representation of the projector.
func (d *Downsample[B]) String() string {
	return fmt.Sprintf("Downsample(stride=%d)", d.stride)
}

package tensor

// Backend defines the operations a compute backend provides.
// All methods panic on shape or dtype mismatches; those are programming
// errors in the caller, not runtime conditions.
type Backend interface {
	// Element-wise binary operations with broadcasting.
	Add(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor

	// MulScalar multiplies every element by a float32 or float64 scalar.
	MulScalar(x *RawTensor, scalar any) *RawTensor

	// MatMul performs 2D matrix multiplication: [M, K] @ [K, N] -> [M, N].
	MatMul(a, b *RawTensor) *RawTensor

	// Conv2D convolves [N, C_in, H, W] with [C_out, C_in, K_h, K_w].
	Conv2D(input, kernel *RawTensor, stride, padding int) *RawTensor

	// AvgPool2D averages non-overlapping or strided windows without padding.
	AvgPool2D(input *RawTensor, kernelSize, stride int) *RawTensor

	// ChannelMoments returns the per-channel mean and biased variance of a
	// [N, C, H, W] tensor, each of shape [C].
	ChannelMoments(input *RawTensor) (mean, variance *RawTensor)

	// BatchNorm2D normalizes [N, C, H, W] per channel with the given
	// statistics, then applies the affine gamma/beta transform.
	BatchNorm2D(input, gamma, beta, mean, variance *RawTensor, eps float64) *RawTensor

	// ReLU applies max(0, x) element-wise.
	ReLU(x *RawTensor) *RawTensor

	// Shape operations.
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor
	Cat(tensors []*RawTensor, dim int) *RawTensor

	// Sum reduces all elements to a scalar tensor.
	Sum(x *RawTensor) *RawTensor

	// Metadata.
	Name() string
	Device() Device
}

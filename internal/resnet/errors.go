package resnet

import "errors"

// Sentinel errors. Returned errors wrap these and carry the offending value.
var (
	// ErrInvalidDepth is returned when (depth-2) is not a positive
	// multiple of 6.
	ErrInvalidDepth = errors.New("invalid depth")

	// ErrInvalidConfig is returned for non-positive class, path, block or
	// channel counts.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidStride is returned when a downsample projector is built
	// with a stride other than 2.
	ErrInvalidStride = errors.New("invalid downsample stride")

	// ErrMissingDownsample is returned when a block changes resolution or
	// width without a projector on its shortcut.
	ErrMissingDownsample = errors.New("missing downsample")

	// ErrPathIndex is returned when a path index is outside [0, numConvs).
	ErrPathIndex = errors.New("path index out of range")

	// ErrInvalidMode is returned by ParseMode for unrecognized modes.
	ErrInvalidMode = errors.New("invalid forward mode")

	// ErrInvalidInput is returned when the input batch is not
	// [N, 3, H, W] with a spatial size the backbone reduces to 8x8..15x15.
	ErrInvalidInput = errors.New("invalid input shape")

	// ErrInvalidCheckpoint is returned when checkpoint metadata is missing
	// or malformed.
	ErrInvalidCheckpoint = errors.New("invalid checkpoint")
)

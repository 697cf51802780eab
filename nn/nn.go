// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the neural network layers the orthopath models are
// built from: Conv2D, BatchNorm2D, Linear, AvgPool2D, ReLU and Sequential.
package nn

import (
	"github.com/orthopath/orthopath/internal/nn"
	"github.com/orthopath/orthopath/internal/tensor"
)

// Module is the common interface of all layers.
type Module[B tensor.Backend] = nn.Module[B]

// Parameter is a trainable tensor with an accumulated gradient.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// NewParameter creates a parameter.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return nn.NewParameter(name, t)
}

// Conv2D is a 2D convolutional layer.
type Conv2D[B tensor.Backend] = nn.Conv2D[B]

// NewConv2D creates a convolution with KaimingUniform weights.
//
// Example:
//
//	conv := nn.NewConv2D(3, 16, 3, 3, 1, 1, false, backend)
func NewConv2D[B tensor.Backend](inChannels, outChannels, kernelH, kernelW, stride, padding int, useBias bool, backend B) *Conv2D[B] {
	return nn.NewConv2D(inChannels, outChannels, kernelH, kernelW, stride, padding, useBias, backend)
}

// BatchNorm2D is per-channel batch normalization.
type BatchNorm2D[B tensor.Backend] = nn.BatchNorm2D[B]

// NewBatchNorm2D creates a batch-norm layer in training mode.
func NewBatchNorm2D[B tensor.Backend](numFeatures int, backend B) *BatchNorm2D[B] {
	return nn.NewBatchNorm2D(numFeatures, backend)
}

// Linear is a fully connected layer.
type Linear[B tensor.Backend] = nn.Linear[B]

// NewLinear creates a linear layer with bias.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, backend B) *Linear[B] {
	return nn.NewLinear(inFeatures, outFeatures, backend)
}

// AvgPool2D is average pooling without padding.
type AvgPool2D[B tensor.Backend] = nn.AvgPool2D[B]

// NewAvgPool2D creates an average pooling layer.
func NewAvgPool2D[B tensor.Backend](kernelSize, stride int) *AvgPool2D[B] {
	return nn.NewAvgPool2D[B](kernelSize, stride)
}

// ReLU is the rectified linear activation.
type ReLU[B tensor.Backend] = nn.ReLU[B]

// NewReLU creates a ReLU module.
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return nn.NewReLU[B]()
}

// Sequential chains modules.
type Sequential[B tensor.Backend] = nn.Sequential[B]

// NewSequential creates a Sequential container.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return nn.NewSequential(modules...)
}

// SetTraining switches m into training or evaluation mode if it supports it.
func SetTraining[B tensor.Backend](m Module[B], training bool) {
	nn.SetTraining(m, training)
}

// CountParameters returns the number of scalar trainable parameters in m.
func CountParameters[B tensor.Backend](m Module[B]) int {
	return nn.CountParameters(m)
}

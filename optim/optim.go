// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides optimizers that consume the gradients accumulated on
// nn.Parameter values, such as the orthogonality-penalty gradients of a
// multi-path ResNet.
package optim

import (
	"github.com/orthopath/orthopath/internal/nn"
	"github.com/orthopath/orthopath/internal/optim"
	"github.com/orthopath/orthopath/internal/tensor"
)

// Optimizer is the common interface for all optimizers.
type Optimizer = optim.Optimizer

// SGD is stochastic gradient descent with optional momentum.
type SGD[B tensor.Backend] = optim.SGD[B]

// SGDConfig contains configuration for SGD.
type SGDConfig = optim.SGDConfig

// NewSGD creates a new SGD optimizer.
//
// Example:
//
//	var params []*nn.Parameter[*cpu.Backend]
//	for _, conv := range model.Paths() {
//	    params = append(params, conv.Weight())
//	}
//	opt := optim.NewSGD(params, optim.SGDConfig{LR: 0.01}, backend)
//	model.AccumulateOrthogonalityGrad(1)
//	opt.Step()
func NewSGD[B tensor.Backend](params []*nn.Parameter[B], config SGDConfig, backend B) *SGD[B] {
	return optim.NewSGD(params, config, backend)
}

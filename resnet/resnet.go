// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package resnet provides the multi-path CIFAR ResNet.
//
// The first layer is a bank of independent 3x3 convolutions ("paths"),
// each feeding a shared residual backbone:
//
//	backend := cpu.New()
//	model, err := resnet.ResNet20(10, 10, backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	x := tensor.Randn[float32](tensor.Shape{4, 3, 32, 32}, backend)
//
//	all, err := model.ForwardAll(x)       // 10 tensors of shape [4, 10]
//	one, err := model.ForwardPath(x, 3)   // equals all[3]
//	penalty := model.OrthogonalityPenalty()
package resnet

import (
	"github.com/orthopath/orthopath/internal/resnet"
	"github.com/orthopath/orthopath/internal/tensor"
)

// Model is the multi-path backbone.
type Model[B tensor.Backend] = resnet.CifarResNet[B]

// Output holds the logits of one forward pass.
type Output[B tensor.Backend] = resnet.Output[B]

// Config holds the backbone hyperparameters.
type Config = resnet.Config

// Mode selects which paths a forward pass evaluates.
type Mode = resnet.Mode

// ModeKind is the kind of a Mode.
type ModeKind = resnet.ModeKind

// Mode kinds.
const (
	ModeAll      = resnet.ModeAll
	ModeRandom   = resnet.ModeRandom
	ModeSelected = resnet.ModeSelected
)

// PathSampler draws a path index uniformly from [0, n).
type PathSampler = resnet.PathSampler

// Errors returned by the package.
var (
	ErrInvalidDepth      = resnet.ErrInvalidDepth
	ErrInvalidConfig     = resnet.ErrInvalidConfig
	ErrInvalidStride     = resnet.ErrInvalidStride
	ErrMissingDownsample = resnet.ErrMissingDownsample
	ErrPathIndex         = resnet.ErrPathIndex
	ErrInvalidMode       = resnet.ErrInvalidMode
	ErrInvalidInput      = resnet.ErrInvalidInput
	ErrInvalidCheckpoint = resnet.ErrInvalidCheckpoint
)

// DefaultConfig returns the ResNet-20, 10-class, 10-path configuration.
func DefaultConfig() Config {
	return resnet.DefaultConfig()
}

// New builds a model from cfg.
func New[B tensor.Backend](cfg Config, backend B) (*Model[B], error) {
	return resnet.New(cfg, backend)
}

// ResNet20 builds the depth-20 preset.
func ResNet20[B tensor.Backend](numClasses, numConvs int, backend B) (*Model[B], error) {
	return resnet.ResNet20(numClasses, numConvs, backend)
}

// All evaluates every path in index order.
func All() Mode { return resnet.All() }

// Random evaluates one path drawn by the model's sampler.
func Random() Mode { return resnet.Random() }

// RandomFrom evaluates one path drawn by sampler.
func RandomFrom(sampler PathSampler) Mode { return resnet.RandomFrom(sampler) }

// Selected evaluates path i.
func Selected(i int) Mode { return resnet.Selected(i) }

// ParseMode parses "all", "random" or a path index.
func ParseMode(s string) (Mode, error) { return resnet.ParseMode(s) }

// OrthogonalityPenalty returns Σ_{i<j} ⟨W_i, W_j⟩² over weights.
func OrthogonalityPenalty[B tensor.Backend](weights []*tensor.Tensor[float32, B]) float64 {
	return resnet.OrthogonalityPenalty(weights)
}

// Save writes a model checkpoint in SafeTensors format.
func Save[B tensor.Backend](path string, m *Model[B]) error {
	return resnet.Save(path, m)
}

// Load reads a checkpoint written by Save, in evaluation mode.
func Load[B tensor.Backend](path string, backend B) (*Model[B], error) {
	return resnet.Load(path, backend)
}

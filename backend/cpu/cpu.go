// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure-Go CPU backend.
//
// Matrix products and convolutions run on gonum BLAS; per-sample and
// per-channel kernels are split across goroutines.
package cpu

import (
	internalcpu "github.com/orthopath/orthopath/internal/backend/cpu"
	"github.com/orthopath/orthopath/internal/parallel"
	"github.com/orthopath/orthopath/tensor"
)

// Backend is the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Parallelism controls intra-op parallelism.
type Parallelism = parallel.Config

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a CPU backend using every available core.
//
// Example:
//
//	backend := cpu.New()
//	x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
func New() *Backend {
	return internalcpu.New()
}

// NewWithParallelism creates a CPU backend with explicit parallelism.
func NewWithParallelism(cfg Parallelism) *Backend {
	return internalcpu.NewWithConfig(cfg)
}

// DefaultParallelism returns the per-core default configuration.
func DefaultParallelism() Parallelism {
	return parallel.DefaultConfig()
}

// Sequential returns a configuration that runs every kernel on the calling
// goroutine.
func Sequential() Parallelism {
	return parallel.Sequential()
}

// Package nn implements the neural network modules used by the orthopath
// models.
//
// This package provides:
//   - Module interface: Forward, Parameters and state-dict access
//   - Parameter: trainable tensors with an accumulated gradient slot
//   - Layers: Conv2D, BatchNorm2D, Linear, AvgPool2D, ReLU
//   - Sequential: container chaining modules in order
//
// Design follows PyTorch's nn.Module, adapted to Go generics.
package nn

import (
	"fmt"
	"sort"
	"strings"

	"github.com/orthopath/orthopath/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Modules compose into larger architectures:
//
//	block := nn.NewSequential[Backend](
//	    nn.NewConv2D(3, 16, 3, 3, 1, 1, false, backend),
//	    nn.NewBatchNorm2D(16, backend),
//	    nn.NewReLU[Backend](),
//	)
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Forward computes the module output for input.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters, including nested ones.
	// Modules without trainable state return an empty slice.
	Parameters() []*Parameter[B]

	// StateDict returns every persistent tensor (parameters and buffers)
	// keyed by its dotted name relative to this module.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict copies tensors from stateDict into the module.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// TrainingMode is implemented by modules whose forward pass differs between
// training and evaluation (batch normalization).
type TrainingMode interface {
	SetTraining(training bool)
}

// SetTraining switches m into training or evaluation mode if it supports it.
func SetTraining[B tensor.Backend](m Module[B], training bool) {
	if tm, ok := m.(TrainingMode); ok {
		tm.SetTraining(training)
	}
}

// CountParameters returns the number of scalar trainable parameters in m.
func CountParameters[B tensor.Backend](m Module[B]) int {
	n := 0
	for _, p := range m.Parameters() {
		n += p.Tensor().NumElements()
	}
	return n
}

// MergeStateDict copies src into dst with every key prefixed by "prefix.".
func MergeStateDict(dst map[string]*tensor.RawTensor, prefix string, src map[string]*tensor.RawTensor) {
	for name, raw := range src {
		dst[prefix+"."+name] = raw
	}
}

// SubStateDict returns the entries of stateDict under "prefix.", with the
// prefix stripped.
func SubStateDict(stateDict map[string]*tensor.RawTensor, prefix string) map[string]*tensor.RawTensor {
	prefix += "."
	sub := make(map[string]*tensor.RawTensor)
	for key, raw := range stateDict {
		if name, ok := strings.CutPrefix(key, prefix); ok {
			sub[name] = raw
		}
	}
	return sub
}

// CheckStateDict verifies that stateDict holds every entry of expected with
// a matching shape and dtype. Modules call it before copying anything so a
// failed load leaves them untouched. Extra keys are ignored.
func CheckStateDict(expected, stateDict map[string]*tensor.RawTensor) error {
	names := make([]string, 0, len(expected))
	for name := range expected {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		src, ok := stateDict[name]
		if !ok {
			return fmt.Errorf("missing %s in state dict", name)
		}
		if err := checkEntry(name, expected[name], src); err != nil {
			return err
		}
	}
	return nil
}

package nn

import (
	"fmt"
	"strconv"

	"github.com/orthopath/orthopath/internal/tensor"
)

// Sequential chains modules: each module's output feeds the next.
//
// Example:
//
//	stem := nn.NewSequential[Backend](
//	    nn.NewBatchNorm2D(16, backend),
//	    nn.NewReLU[Backend](),
//	)
//	output := stem.Forward(input)
type Sequential[B tensor.Backend] struct {
	modules []Module[B]
}

// NewSequential creates a new Sequential container.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return &Sequential[B]{modules: modules}
}

// Forward applies all modules in order.
func (s *Sequential[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	output := input
	for _, module := range s.modules {
		output = module.Forward(output)
	}
	return output
}

// Parameters returns the parameters of every module, in order.
func (s *Sequential[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// SetTraining propagates the mode to every module that supports it.
func (s *Sequential[B]) SetTraining(training bool) {
	for _, module := range s.modules {
		SetTraining(module, training)
	}
}

// Add appends a module.
func (s *Sequential[B]) Add(module Module[B]) {
	s.modules = append(s.modules, module)
}

// Len returns the number of modules.
func (s *Sequential[B]) Len() int {
	return len(s.modules)
}

// Module returns the module at index. Panics if index is out of bounds.
func (s *Sequential[B]) Module(index int) Module[B] {
	if index < 0 || index >= len(s.modules) {
		panic(fmt.Sprintf("sequential: index %d out of bounds [0, %d)", index, len(s.modules)))
	}
	return s.modules[index]
}

// StateDict returns every module's entries prefixed with its index
// ("0.weight", "1.running_mean", ...).
func (s *Sequential[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for i, module := range s.modules {
		MergeStateDict(stateDict, strconv.Itoa(i), module.StateDict())
	}
	return stateDict
}

// LoadStateDict loads each module from the entries under its index prefix.
// Nothing is copied unless every entry is present and well-formed.
func (s *Sequential[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := CheckStateDict(s.StateDict(), stateDict); err != nil {
		return err
	}
	for i, module := range s.modules {
		if err := module.LoadStateDict(SubStateDict(stateDict, strconv.Itoa(i))); err != nil {
			return fmt.Errorf("module %d: %w", i, err)
		}
	}
	return nil
}

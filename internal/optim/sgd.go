package optim

import (
	"fmt"

	"github.com/orthopath/orthopath/internal/nn"
	"github.com/orthopath/orthopath/internal/tensor"
)

// SGD implements stochastic gradient descent with optional momentum and
// L2 weight decay.
//
//	g        = grad + weight_decay * param
//	velocity = momentum * velocity + g
//	param    = param - lr * velocity
//
// Velocities start at zero on the optimizer's backend, so with Momentum 0
// the update is just lr * g.
type SGD[B tensor.Backend] struct {
	params      []*nn.Parameter[B]
	lr          float32
	momentum    float32
	weightDecay float32
	velocities  map[*nn.Parameter[B]]*tensor.Tensor[float32, B]
	backend     B
}

// SGDConfig holds configuration for SGD.
type SGDConfig struct {
	LR          float32 // learning rate (default 0.01)
	Momentum    float32 // momentum factor in [0, 1)
	WeightDecay float32 // L2 penalty coefficient
}

// NewSGD creates an SGD optimizer over params. Panics on a negative
// learning rate or a momentum outside [0, 1).
func NewSGD[B tensor.Backend](params []*nn.Parameter[B], config SGDConfig, backend B) *SGD[B] {
	if config.LR == 0 {
		config.LR = 0.01
	}
	if config.LR < 0 {
		panic(fmt.Sprintf("sgd: invalid learning rate %g", config.LR))
	}
	if config.Momentum < 0 || config.Momentum >= 1 {
		panic(fmt.Sprintf("sgd: invalid momentum %g", config.Momentum))
	}
	return &SGD[B]{
		params:      params,
		lr:          config.LR,
		momentum:    config.Momentum,
		weightDecay: config.WeightDecay,
		velocities:  make(map[*nn.Parameter[B]]*tensor.Tensor[float32, B]),
		backend:     backend,
	}
}

// Step updates every parameter with a gradient; the rest are skipped.
func (s *SGD[B]) Step() {
	for _, param := range s.params {
		grad := param.Grad()
		if grad == nil {
			continue
		}
		if s.weightDecay != 0 {
			grad = grad.Add(param.Tensor().MulScalar(s.weightDecay))
		}

		if s.momentum != 0 {
			velocity, ok := s.velocities[param]
			if !ok {
				velocity = tensor.Zeros[float32](param.Tensor().Shape(), s.backend)
			}
			grad = velocity.MulScalar(s.momentum).Add(grad)
			s.velocities[param] = grad
		}

		updated := param.Tensor().Add(grad.MulScalar(-s.lr))
		copy(param.Tensor().Data(), updated.Data())
	}
}

// ZeroGrad clears the gradient of every parameter.
func (s *SGD[B]) ZeroGrad() {
	for _, param := range s.params {
		param.ZeroGrad()
	}
}

// LR returns the learning rate.
func (s *SGD[B]) LR() float32 {
	return s.lr
}

// SetLR changes the learning rate, for schedules.
func (s *SGD[B]) SetLR(lr float32) {
	s.lr = lr
}

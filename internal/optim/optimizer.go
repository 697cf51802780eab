// Package optim implements optimizers that apply the gradients accumulated
// on nn.Parameter values.
//
// Gradients come from the caller: closed-form regularizers such as the
// orthogonality penalty (CifarResNet.AccumulateOrthogonalityGrad) or an
// external training loop via Parameter.AccumulateGrad.
//
//	opt := optim.NewSGD(model.Parameters(), optim.SGDConfig{LR: 0.1, Momentum: 0.9}, backend)
//	for range steps {
//	    opt.ZeroGrad()
//	    model.AccumulateOrthogonalityGrad(1)
//	    opt.Step()
//	}
package optim

// Optimizer updates parameters from their accumulated gradients.
type Optimizer interface {
	// Step applies one update to every parameter that has a gradient.
	Step()

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// LR returns the current learning rate.
	LR() float32
}

package nn

import (
	"fmt"

	"github.com/orthopath/orthopath/internal/tensor"
)

// Parameter represents a trainable tensor in a neural network.
//
// Gradients are not computed here; external training code (or a
// closed-form regularizer such as the orthogonality penalty) accumulates
// them with AccumulateGrad.
//
// Example:
//
//	weight := nn.NewParameter("weight", weightTensor)
//	w := weight.Tensor()
type Parameter[B tensor.Backend] struct {
	name   string
	tensor *tensor.Tensor[float32, B]
	grad   *tensor.Tensor[float32, B]
}

// NewParameter creates a new trainable parameter.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{
		name:   name,
		tensor: t,
	}
}

// Name returns the parameter name.
func (p *Parameter[B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] {
	return p.tensor
}

// Grad returns the accumulated gradient, or nil if none has been recorded.
func (p *Parameter[B]) Grad() *tensor.Tensor[float32, B] {
	return p.grad
}

// SetGrad replaces the gradient tensor.
func (p *Parameter[B]) SetGrad(grad *tensor.Tensor[float32, B]) {
	p.grad = grad
}

// AccumulateGrad adds g to the stored gradient, allocating it on first use.
func (p *Parameter[B]) AccumulateGrad(g *tensor.Tensor[float32, B]) {
	if !g.Shape().Equal(p.tensor.Shape()) {
		panic(fmt.Sprintf("parameter %s: gradient shape %v != parameter shape %v", p.name, g.Shape(), p.tensor.Shape()))
	}
	if p.grad == nil {
		p.grad = g.Clone()
		return
	}
	p.grad = p.grad.Add(g)
}

// ZeroGrad clears the gradient.
func (p *Parameter[B]) ZeroGrad() {
	p.grad = nil
}

// load copies raw into the parameter after checking shape and dtype.
func (p *Parameter[B]) load(raw *tensor.RawTensor) error {
	return copyInto(p.name, p.tensor.Raw(), raw)
}

func copyInto(name string, dst, src *tensor.RawTensor) error {
	if err := checkEntry(name, dst, src); err != nil {
		return err
	}
	copy(dst.Data(), src.Data())
	return nil
}

func checkEntry(name string, dst, src *tensor.RawTensor) error {
	if !src.Shape().Equal(dst.Shape()) {
		return fmt.Errorf("%s shape mismatch: expected %v, got %v", name, dst.Shape(), src.Shape())
	}
	if src.DType() != dst.DType() {
		return fmt.Errorf("%s dtype mismatch: expected %s, got %s", name, dst.DType(), src.DType())
	}
	return nil
}

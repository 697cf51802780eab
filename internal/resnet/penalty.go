package resnet

import (
	"fmt"

	"github.com/orthopath/orthopath/internal/tensor"
)

// OrthogonalityPenalty returns Σ_{i<j} ⟨W_i, W_j⟩² over the path weights,
// where ⟨·,·⟩ is the element-wise product summed over all elements.
// The result is non-negative and independent of path order.
func (m *CifarResNet[B]) OrthogonalityPenalty() float64 {
	return OrthogonalityPenalty(m.PathWeights())
}

// OrthogonalityGradients returns ∂P/∂W_i = 2 Σ_{j≠i} ⟨W_i, W_j⟩ W_j for
// every path, in index order.
func (m *CifarResNet[B]) OrthogonalityGradients() []*tensor.Tensor[float32, B] {
	return OrthogonalityGradients(m.PathWeights())
}

// AccumulateOrthogonalityGrad adds scale * ∂P/∂W_i to the gradient of every
// path weight. A training loop calls it with its regularization weight
// before the optimizer step.
func (m *CifarResNet[B]) AccumulateOrthogonalityGrad(scale float32) {
	for i, g := range m.OrthogonalityGradients() {
		m.convs[i].Weight().AccumulateGrad(g.MulScalar(scale))
	}
}

// OrthogonalityPenalty returns Σ_{i<j} ⟨W_i, W_j⟩² for an arbitrary bank of
// same-shaped weight tensors. Fewer than two weights give 0.
func OrthogonalityPenalty[B tensor.Backend](weights []*tensor.Tensor[float32, B]) float64 {
	gram := innerProducts(weights)
	total := 0.0
	for i := range gram {
		for j := i + 1; j < len(gram); j++ {
			total += gram[i][j] * gram[i][j]
		}
	}
	return total
}

// OrthogonalityGradients returns the gradient of OrthogonalityPenalty with
// respect to each weight.
func OrthogonalityGradients[B tensor.Backend](weights []*tensor.Tensor[float32, B]) []*tensor.Tensor[float32, B] {
	gram := innerProducts(weights)
	grads := make([]*tensor.Tensor[float32, B], len(weights))
	for i, w := range weights {
		grad := tensor.Zeros[float32](w.Shape(), w.Backend())
		for j, other := range weights {
			if j == i {
				continue
			}
			grad = grad.Add(other.MulScalar(float32(2 * gram[i][j])))
		}
		grads[i] = grad
	}
	return grads
}

// innerProducts returns the symmetric matrix of pairwise inner products.
// The diagonal is left at zero.
func innerProducts[B tensor.Backend](weights []*tensor.Tensor[float32, B]) [][]float64 {
	n := len(weights)
	gram := make([][]float64, n)
	for i := range gram {
		gram[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		if !weights[i].Shape().Equal(weights[0].Shape()) {
			panic(fmt.Sprintf("resnet: path weight %d has shape %v, path 0 has %v", i, weights[i].Shape(), weights[0].Shape()))
		}
		for j := i + 1; j < n; j++ {
			ip := float64(weights[i].Dot(weights[j]))
			gram[i][j], gram[j][i] = ip, ip
		}
	}
	return gram
}

package nn

import (
	"github.com/born-ml/captionvit/internal/tensor"
)

// DefaultLayerNormEps is the epsilon used by every LayerNorm in the models.
const DefaultLayerNormEps = 1e-5

// LayerNorm applies Layer Normalization over an input tensor along the last dimension.
//
// Formula: Y = gamma * (X - mean(X)) / sqrt(var(X) + eps) + beta
//
// Where:
//   - gamma is the learnable scale parameter [d_model], initialized to ones
//   - beta is the learnable shift parameter [d_model], initialized to zeros
//   - mean and (biased) variance are computed along the last dimension
//
// Example:
//
//	norm := nn.NewLayerNorm(512, nn.DefaultLayerNormEps, env)
//	output := norm.Forward(hidden) // [..., 512] -> [..., 512]
type LayerNorm[B tensor.Backend] struct {
	Gamma   *Parameter[B] // learnable scale [d_model]
	Beta    *Parameter[B] // learnable shift [d_model]
	Epsilon float32       // numerical stability constant
	dim     int
}

// NewLayerNorm creates a new LayerNorm layer over a last dimension of size dim.
func NewLayerNorm[B tensor.Backend](dim int, epsilon float32, env *Env[B]) *LayerNorm[B] {
	return &LayerNorm[B]{
		Gamma:   NewParameter("weight", Ones(tensor.Shape{dim}, env.Backend)),
		Beta:    NewParameter("bias", Zeros(tensor.Shape{dim}, env.Backend)),
		Epsilon: epsilon,
		dim:     dim,
	}
}

// Forward applies LayerNorm to the input tensor.
//
// Algorithm:
//  1. mean = mean(x) along last dimension (keepdim)
//  2. x_centered = x - mean
//  3. variance = mean(x_centered²) along last dimension
//  4. x_norm = x_centered * rsqrt(variance + epsilon)
//  5. output = gamma * x_norm + beta (gamma/beta broadcast from [d_model])
func (l *LayerNorm[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	if len(shape) == 0 || shape[len(shape)-1] != l.dim {
		panic(tensor.NewShapeError("layernorm", "expected [..., %d], got %v", l.dim, shape))
	}

	mean := x.MeanDim(-1, true)
	xCentered := x.Sub(mean)
	variance := xCentered.Mul(xCentered).MeanDim(-1, true)
	xNorm := xCentered.Mul(variance.AddScalar(l.Epsilon).Rsqrt())

	return xNorm.Mul(l.Gamma.Tensor()).Add(l.Beta.Tensor())
}

// Parameters returns the learnable parameters (gamma and beta).
func (l *LayerNorm[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{l.Gamma, l.Beta}
}

// StateDict returns {"weight": gamma, "bias": beta}.
func (l *LayerNorm[B]) StateDict() map[string]*tensor.RawTensor {
	return parameterState(l.Parameters())
}

// LoadStateDict loads gamma and beta.
func (l *LayerNorm[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadParameters(stateDict, l.Parameters())
}

package nn

import (
	"github.com/born-ml/captionvit/internal/tensor"
)

// Linear implements a fully connected (dense) layer.
//
// Performs the transformation: y = x @ W.T + b
// where:
//   - x is the input tensor with shape [..., in_features]
//   - W is the weight matrix with shape [out_features, in_features]
//   - b is the bias vector with shape [out_features]
//   - y is the output tensor with shape [..., out_features]
//
// Weights are drawn from N(0, 0.02²). Biases are initialized to zeros.
//
// Example:
//
//	env := nn.NewEnv(cpu.New(), 0)
//	layer := nn.NewLinear(512, 2048, env)
//	output := layer.Forward(input) // [N, S, 512] -> [N, S, 2048]
type Linear[B tensor.Backend] struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter[B] // [out_features, in_features]
	bias        *Parameter[B] // [out_features]
}

// NewLinear creates a new Linear layer.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, env *Env[B]) *Linear[B] {
	weight := Normal(env, tensor.Shape{outFeatures, inFeatures}, 0, DefaultInitStd)
	bias := Zeros(tensor.Shape{outFeatures}, env.Backend)

	return &Linear[B]{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter("weight", weight),
		bias:        NewParameter("bias", bias),
	}
}

// Forward computes the output of the linear layer.
//
// Inputs of rank > 2 are flattened to [rows, in_features] for the matmul and
// restored afterwards. Panics with a *tensor.ShapeError if the last dimension
// is not in_features.
func (l *Linear[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	inputShape := input.Shape()
	if len(inputShape) < 2 || inputShape[len(inputShape)-1] != l.inFeatures {
		panic(tensor.NewShapeError("linear", "expected [..., %d], got %v", l.inFeatures, inputShape))
	}

	x := input
	if len(inputShape) != 2 {
		x = input.Reshape(inputShape.NumElements()/l.inFeatures, l.inFeatures)
	}

	// [rows, in] @ [in, out] + [1, out]
	output := x.MatMul(l.weight.Tensor().T()).Add(l.bias.Tensor().Reshape(1, l.outFeatures))

	if len(inputShape) != 2 {
		outShape := append(inputShape[:len(inputShape)-1].Clone(), l.outFeatures)
		output = output.Reshape(outShape...)
	}
	return output
}

// Parameters returns [weight, bias].
func (l *Linear[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{l.weight, l.bias}
}

// Weight returns the weight parameter.
func (l *Linear[B]) Weight() *Parameter[B] {
	return l.weight
}

// Bias returns the bias parameter.
func (l *Linear[B]) Bias() *Parameter[B] {
	return l.bias
}

// InFeatures returns the number of input features.
func (l *Linear[B]) InFeatures() int {
	return l.inFeatures
}

// OutFeatures returns the number of output features.
func (l *Linear[B]) OutFeatures() int {
	return l.outFeatures
}

// StateDict returns a map of parameter names to raw tensors.
func (l *Linear[B]) StateDict() map[string]*tensor.RawTensor {
	return parameterState(l.Parameters())
}

// LoadStateDict loads parameters from a state dictionary.
func (l *Linear[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadParameters(stateDict, l.Parameters())
}

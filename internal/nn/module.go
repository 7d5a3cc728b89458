// Package nn implements the neural network modules of the caption decoder and
// the vision transformer.
//
// This package provides building blocks for constructing transformers:
//   - Module interface: Base interface for single-input components
//   - Parameter: Trainable parameters with gradient tracking
//   - Linear, LayerNorm, Embedding, Dropout, ReLU, Sequential
//   - Attention (single head) and MultiHeadAttention behind the Attender interface
//   - PositionalEncoding: learned per-position vectors
//   - Self/Cross attention blocks and the feed-forward block (post-norm residual)
//   - DecoderLayer and EncoderLayer
//
// Every module is built from an Env, which carries the backend, the weight
// initializer and the training/inference Mode shared by all dropout sites of
// one model.
package nn

import (
	"github.com/born-ml/captionvit/internal/tensor"
)

// Module is the base interface for neural network components with a single
// float32 input.
//
// Modules can be composed to build complex architectures:
//
//	mlp := nn.NewSequential[B](
//	    nn.NewLinear(512, 2048, env),
//	    nn.NewReLU[B](),
//	    nn.NewDropout(0.1, env),
//	    nn.NewLinear(2048, 512, env),
//	)
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters of this module.
	//
	// Returns an empty slice for modules without trainable parameters
	// (e.g., activation functions).
	Parameters() []*Parameter[B]
}

// Stateful is implemented by modules whose parameters can be exported to and
// restored from a flat name → tensor map.
type Stateful interface {
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// NumParameters counts the scalar values held by params.
func NumParameters[B tensor.Backend](params []*Parameter[B]) int {
	total := 0
	for _, p := range params {
		total += p.Tensor().NumElements()
	}
	return total
}

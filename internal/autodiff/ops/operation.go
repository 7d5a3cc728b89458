// Package ops defines the differentiable operations recorded by the
// autodiff tape.
//
// Each operation implements the Operation interface:
//   - Forward pass: computed by the wrapped backend
//   - Backward pass: computes gradients for inputs given the output gradient
//
// Supported operations:
//   - AddOp, SubOp, MulOp: element-wise arithmetic with broadcasting
//   - MatMulOp, BatchMatMulOp: (batched) matrix multiplication
//   - ReshapeOp, TransposeOp, ExpandOp, NarrowOp, CatOp: shape manipulation
//   - ScaleOp, ShiftOp, RsqrtOp, ReLUOp, SoftmaxOp: element-wise maps
//   - SumDimOp, MeanDimOp: reductions
//   - EmbeddingOp: row lookup with scatter-add backward
package ops

import "github.com/born-ml/captionvit/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
// Each operation records its inputs and output during the forward pass,
// and computes input gradients during the backward pass.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// Returns a slice of gradients corresponding to each input tensor;
	// a nil entry means no gradient flows to that input.
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}

// base carries the inputs/output bookkeeping shared by every operation.
type base struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
}

// Inputs returns the input tensors.
func (b *base) Inputs() []*tensor.RawTensor {
	return b.inputs
}

// Output returns the output tensor.
func (b *base) Output() *tensor.RawTensor {
	return b.output
}

package ops

import (
	"github.com/born-ml/captionvit/internal/tensor"
)

// SumDimOp represents a sum along one dimension.
//
// Backward broadcasts the gradient back over the reduced dimension.
type SumDimOp struct {
	base
	dim     int
	keepDim bool
}

// NewSumDimOp creates a new SumDimOp.
func NewSumDimOp(input, output *tensor.RawTensor, dim int, keepDim bool) *SumDimOp {
	return &SumDimOp{
		base:    base{[]*tensor.RawTensor{input}, output},
		dim:     tensor.NormalizeDim(dim, len(input.Shape())),
		keepDim: keepDim,
	}
}

// Backward expands the gradient to the input shape.
func (op *SumDimOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{expandReduced(outputGrad, op.inputs[0].Shape(), op.dim, op.keepDim, backend)}
}

// MeanDimOp represents a mean along one dimension.
//
// Backward: each input element receives grad / size.
type MeanDimOp struct {
	base
	dim     int
	keepDim bool
}

// NewMeanDimOp creates a new MeanDimOp.
func NewMeanDimOp(input, output *tensor.RawTensor, dim int, keepDim bool) *MeanDimOp {
	return &MeanDimOp{
		base:    base{[]*tensor.RawTensor{input}, output},
		dim:     tensor.NormalizeDim(dim, len(input.Shape())),
		keepDim: keepDim,
	}
}

// Backward expands grad / size to the input shape.
func (op *MeanDimOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inShape := op.inputs[0].Shape()
	scaled := backend.MulScalar(outputGrad, float32(1)/float32(inShape[op.dim]))
	return []*tensor.RawTensor{expandReduced(scaled, inShape, op.dim, op.keepDim, backend)}
}

// expandReduced re-inserts the reduced dimension (if dropped) and broadcasts
// the gradient to the input shape.
func expandReduced(grad *tensor.RawTensor, inShape tensor.Shape, dim int, keepDim bool, backend tensor.Backend) *tensor.RawTensor {
	if !keepDim {
		kept := inShape.Clone()
		kept[dim] = 1
		grad = backend.Reshape(grad, kept)
	}
	return backend.Expand(grad, inShape)
}

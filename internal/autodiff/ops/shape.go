package ops

import "github.com/born-ml/captionvit/internal/tensor"

// ReshapeOp records a reshape so gradients flow back to the original shape.
type ReshapeOp struct{ base }

// NewReshapeOp creates a new ReshapeOp.
func NewReshapeOp(input, output *tensor.RawTensor) *ReshapeOp {
	return &ReshapeOp{base{[]*tensor.RawTensor{input}, output}}
}

// Backward reshapes the gradient back to the input shape.
func (op *ReshapeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Reshape(outputGrad, op.inputs[0].Shape())}
}

// TransposeOp records an axis permutation.
//
// The backend copies data on transpose, so without this op the gradient of a
// transposed weight would never reach the weight itself.
type TransposeOp struct {
	base
	axes []int
}

// NewTransposeOp creates a new TransposeOp. Empty axes means full reversal.
func NewTransposeOp(input, output *tensor.RawTensor, axes []int) *TransposeOp {
	n := len(input.Shape())
	perm := make([]int, n)
	if len(axes) == 0 {
		for i := range perm {
			perm[i] = n - 1 - i
		}
	} else {
		for i, ax := range axes {
			perm[i] = tensor.NormalizeDim(ax, n)
		}
	}
	return &TransposeOp{base: base{[]*tensor.RawTensor{input}, output}, axes: perm}
}

// Backward applies the inverse permutation to the gradient.
func (op *TransposeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inverse := make([]int, len(op.axes))
	for i, ax := range op.axes {
		inverse[ax] = i
	}
	return []*tensor.RawTensor{backend.Transpose(outputGrad, inverse...)}
}

// ExpandOp records a broadcast; backward sums over the repeated dimensions.
type ExpandOp struct{ base }

// NewExpandOp creates a new ExpandOp.
func NewExpandOp(input, output *tensor.RawTensor) *ExpandOp {
	return &ExpandOp{base{[]*tensor.RawTensor{input}, output}}
}

// Backward reduces the gradient to the input shape.
func (op *ExpandOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{reduceBroadcast(outputGrad, op.inputs[0].Shape(), backend)}
}

// NarrowOp records a slice along one dimension.
//
// Backward scatters the gradient into a zero tensor of the input shape.
type NarrowOp struct {
	base
	dim, start int
}

// NewNarrowOp creates a new NarrowOp.
func NewNarrowOp(input, output *tensor.RawTensor, dim, start int) *NarrowOp {
	return &NarrowOp{
		base:  base{[]*tensor.RawTensor{input}, output},
		dim:   tensor.NormalizeDim(dim, len(input.Shape())),
		start: start,
	}
}

// Backward pads the gradient with zeros outside the narrowed range.
func (op *NarrowOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inShape := op.inputs[0].Shape()
	length := outputGrad.Shape()[op.dim]

	parts := make([]*tensor.RawTensor, 0, 3)
	if op.start > 0 {
		before := inShape.Clone()
		before[op.dim] = op.start
		parts = append(parts, tensor.MustNewRaw(before, outputGrad.DType(), backend.Device()))
	}
	parts = append(parts, outputGrad)
	if rest := inShape[op.dim] - op.start - length; rest > 0 {
		after := inShape.Clone()
		after[op.dim] = rest
		parts = append(parts, tensor.MustNewRaw(after, outputGrad.DType(), backend.Device()))
	}

	if len(parts) == 1 {
		return []*tensor.RawTensor{outputGrad}
	}
	return []*tensor.RawTensor{backend.Cat(parts, op.dim)}
}

// CatOp records a concatenation; backward narrows the gradient back into
// one piece per input.
type CatOp struct {
	base
	dim int
}

// NewCatOp creates a new CatOp.
func NewCatOp(inputs []*tensor.RawTensor, output *tensor.RawTensor, dim int) *CatOp {
	return &CatOp{
		base: base{append([]*tensor.RawTensor(nil), inputs...), output},
		dim:  tensor.NormalizeDim(dim, len(output.Shape())),
	}
}

// Backward splits the gradient along the concatenation dimension.
func (op *CatOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grads := make([]*tensor.RawTensor, len(op.inputs))
	offset := 0
	for i, in := range op.inputs {
		size := in.Shape()[op.dim]
		grads[i] = backend.Narrow(outputGrad, op.dim, offset, size)
		offset += size
	}
	return grads
}

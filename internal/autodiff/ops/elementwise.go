package ops

import (
	"github.com/born-ml/captionvit/internal/tensor"
)

// ScaleOp represents multiplication by a constant: output = x * s.
type ScaleOp struct {
	base
	scalar any
}

// NewScaleOp creates a new ScaleOp.
func NewScaleOp(input, output *tensor.RawTensor, scalar any) *ScaleOp {
	return &ScaleOp{base: base{[]*tensor.RawTensor{input}, output}, scalar: scalar}
}

// Backward scales the gradient by the same constant.
func (op *ScaleOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.MulScalar(outputGrad, op.scalar)}
}

// ShiftOp represents addition of a constant: output = x + s.
type ShiftOp struct{ base }

// NewShiftOp creates a new ShiftOp.
func NewShiftOp(input, output *tensor.RawTensor) *ShiftOp {
	return &ShiftOp{base{[]*tensor.RawTensor{input}, output}}
}

// Backward passes the gradient through unchanged.
func (op *ShiftOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{outputGrad}
}

// RsqrtOp represents y = 1/sqrt(x).
//
// Backward: dy/dx = -0.5 * x^(-3/2) = -0.5 * y³.
type RsqrtOp struct{ base }

// NewRsqrtOp creates a new RsqrtOp.
func NewRsqrtOp(input, output *tensor.RawTensor) *RsqrtOp {
	return &RsqrtOp{base{[]*tensor.RawTensor{input}, output}}
}

// Backward computes the gradient with respect to x.
func (op *RsqrtOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	y := op.output
	y3 := backend.Mul(backend.Mul(y, y), y)
	local := backend.MulScalar(y3, float32(-0.5))
	return []*tensor.RawTensor{backend.Mul(outputGrad, local)}
}

// ReLUOp represents max(0, x).
//
// Backward: d(ReLU(x))/dx = 1 if x > 0, else 0.
type ReLUOp struct{ base }

// NewReLUOp creates a new ReLUOp.
func NewReLUOp(input, output *tensor.RawTensor) *ReLUOp {
	return &ReLUOp{base{[]*tensor.RawTensor{input}, output}}
}

// Backward masks the gradient where the input was not positive.
func (op *ReLUOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	in := op.inputs[0].AsFloat32()
	g := outputGrad.AsFloat32()

	grad := zerosLike(outputGrad, backend)
	dst := grad.AsFloat32()
	for i, v := range in {
		if v > 0 {
			dst[i] = g[i]
		}
	}
	return []*tensor.RawTensor{grad}
}

// SoftmaxOp represents softmax along one dimension.
//
// Forward (for each slice along dim):
//
//	softmax(x)_i = exp(x_i - max(x)) / Σ_j exp(x_j - max(x))
//
// Backward:
//
//	∂L/∂x_j = softmax_j * (∂L/∂softmax_j - Σ_i ∂L/∂softmax_i * softmax_i)
type SoftmaxOp struct {
	base
	dim int
}

// NewSoftmaxOp creates a new softmax operation.
func NewSoftmaxOp(input, output *tensor.RawTensor, dim int) *SoftmaxOp {
	return &SoftmaxOp{
		base: base{[]*tensor.RawTensor{input}, output},
		dim:  tensor.NormalizeDim(dim, len(input.Shape())),
	}
}

// Backward computes the gradient with respect to the softmax input.
func (op *SoftmaxOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	y := op.output
	gy := backend.Mul(outputGrad, y)
	dot := backend.SumDim(gy, op.dim, true)
	return []*tensor.RawTensor{backend.Mul(y, backend.Sub(outputGrad, dot))}
}

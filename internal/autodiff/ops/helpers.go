package ops

import (
	"github.com/born-ml/captionvit/internal/tensor"
)

// reduceBroadcast reduces a gradient tensor to match the target shape.
// This is necessary when broadcasting was used in the forward pass.
//
// Example:
//
//	Forward: a[3,1] + b[3,4] -> c[3,4]  (a was broadcast along dim 1)
//	Backward: grad_c[3,4] -> grad_a[3,1] (sum along dim 1)
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	gradShape := grad.Shape()
	if gradShape.Equal(targetShape) {
		return grad
	}

	// Leading dimensions that broadcasting added are summed away.
	result := grad
	for len(result.Shape()) > len(targetShape) {
		result = backend.SumDim(result, 0, false)
	}

	// Dimensions where the target had size 1 are summed and kept.
	for i, dim := range targetShape {
		if dim == 1 && result.Shape()[i] > 1 {
			result = backend.SumDim(result, i, true)
		}
	}

	if !result.Shape().Equal(targetShape) {
		result = backend.Reshape(result, targetShape)
	}
	return result
}

// zerosLike allocates a zero tensor with x's shape and dtype.
func zerosLike(x *tensor.RawTensor, backend tensor.Backend) *tensor.RawTensor {
	return tensor.MustNewRaw(x.Shape(), x.DType(), backend.Device())
}

// identityAxes returns 0..n-1.
func identityAxes(n int) []int {
	axes := make([]int, n)
	for i := range axes {
		axes[i] = i
	}
	return axes
}

// swapLastTwo transposes the two trailing dimensions.
func swapLastTwo(x *tensor.RawTensor, backend tensor.Backend) *tensor.RawTensor {
	n := len(x.Shape())
	axes := identityAxes(n)
	axes[n-2], axes[n-1] = axes[n-1], axes[n-2]
	return backend.Transpose(x, axes...)
}

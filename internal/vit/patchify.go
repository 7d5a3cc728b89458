package vit

import (
	"github.com/born-ml/captionvit/internal/tensor"
)

// Patchify cuts images (N, C, H, W) into non-overlapping patchDim×patchDim
// blocks and flattens each block channel-major.
//
// The result has shape (N, P, C·p·p) with P = (H/p)·(W/p). Patches are
// ordered row by row over the image grid; inside a patch all pixels of
// channel 0 come first, row by row, then channel 1, and so on.
//
// Returns a *tensor.ShapeError if images is not 4-D or H or W is not a
// multiple of patchDim.
func Patchify[B tensor.Backend](images *tensor.Tensor[float32, B], patchDim int) (*tensor.Tensor[float32, B], error) {
	shape := images.Shape()
	if len(shape) != 4 {
		return nil, tensor.NewShapeError("patchify", "expected (N, C, H, W), got %v", shape)
	}
	if patchDim <= 0 {
		return nil, tensor.NewShapeError("patchify", "patch_dim must be positive, got %d", patchDim)
	}
	n, c, h, w := shape[0], shape[1], shape[2], shape[3]
	if h%patchDim != 0 || w%patchDim != 0 {
		return nil, tensor.NewShapeError("patchify", "image %dx%d is not divisible into %dx%d patches",
			h, w, patchDim, patchDim)
	}

	rows, cols := h/patchDim, w/patchDim
	return images.
		Reshape(n, c, rows, patchDim, cols, patchDim).
		Transpose(0, 2, 4, 1, 3, 5). // (N, rows, cols, C, p, p)
		Reshape(n, rows*cols, c*patchDim*patchDim), nil
}

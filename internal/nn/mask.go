package nn

import (
	"github.com/born-ml/captionvit/internal/tensor"
)

// MaskFill is the additive bias applied to forbidden attention scores.
const MaskFill = -1e9

// CausalMask creates a causal (lower-triangular) mask for autoregressive attention.
//
// Returns a [seqLen, seqLen] bool tensor where entry (i, j) is true iff j <= i:
//
//	[[ true, false, false],
//	 [ true,  true, false],
//	 [ true,  true,  true]]
//
// The decoder builds it on every forward call for the current length.
func CausalMask[B tensor.Backend](seqLen int, backend B) *tensor.Tensor[bool, B] {
	mask := tensor.Zeros[bool](tensor.Shape{seqLen, seqLen}, backend)
	data := mask.Data()
	for i := 0; i < seqLen; i++ {
		for j := 0; j <= i; j++ {
			data[i*seqLen+j] = true
		}
	}
	return mask
}

// FullMask creates a [queryLen, keyLen] mask allowing every position.
func FullMask[B tensor.Backend](queryLen, keyLen int, backend B) *tensor.Tensor[bool, B] {
	return tensor.Full(tensor.Shape{queryLen, keyLen}, true, backend)
}

// AdditiveMask converts a multiplicative bool mask into the score bias
// (1 - mask) * MaskFill: 0 where attention is allowed, -1e9 where it is not.
func AdditiveMask[B tensor.Backend](mask *tensor.Tensor[bool, B]) *tensor.Tensor[float32, B] {
	return mask.Float32().AddScalar(-1).MulScalar(-MaskFill)
}

package ops

import "github.com/born-ml/captionvit/internal/tensor"

// EmbeddingOp represents an embedding lookup operation.
//
// Forward: output[i] = weight[indices[i]]
//
// Backward is a scatter-add: gradients for repeated indices are summed.
//
// Example:
//
//	indices = [0, 1, 0]  // index 0 appears twice
//	grad_output = [[1,2], [3,4], [5,6]]
//	grad_weight[0] = [1,2] + [5,6] = [6,8]
//	grad_weight[1] = [3,4]
type EmbeddingOp struct {
	base
	indices *tensor.RawTensor
}

// NewEmbeddingOp creates a new embedding operation.
// Only the weight is an input; indices are integers and receive no gradient.
func NewEmbeddingOp(weight, indices, output *tensor.RawTensor) *EmbeddingOp {
	return &EmbeddingOp{
		base:    base{[]*tensor.RawTensor{weight}, output},
		indices: indices,
	}
}

// Backward scatters the output gradient into the weight rows.
func (op *EmbeddingOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	weight := op.inputs[0]
	dim := weight.Shape()[1]

	grad := zerosLike(weight, backend)
	dst := grad.AsFloat32()
	src := outputGrad.AsFloat32()

	for i, idx := range op.indices.AsInt32() {
		row := dst[int(idx)*dim : (int(idx)+1)*dim]
		for j := range row {
			row[j] += src[i*dim+j]
		}
	}

	return []*tensor.RawTensor{grad}
}

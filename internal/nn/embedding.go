package nn

import (
	"github.com/born-ml/captionvit/internal/tensor"
)

// NoPadding disables the padding index of an Embedding.
const NoPadding = -1

// Embedding is a lookup table mapping token ids to dense vectors.
//
// Weight has shape [num_embeddings, embedding_dim] and is drawn from
// N(0, 0.02²). When a padding index is set, lookups of that id return the
// stored row but never propagate a gradient into it.
//
// Example:
//
//	emb := nn.NewEmbedding(vocabSize, 512, nullID, env)
//	vectors := emb.Forward(ids) // [N, T] int32 -> [N, T, 512]
type Embedding[B tensor.Backend] struct {
	Weight        *Parameter[B]
	NumEmbeddings int
	EmbeddingDim  int
	PaddingIdx    int
	backend       B
}

// NewEmbedding creates a new Embedding layer. paddingIdx may be NoPadding.
func NewEmbedding[B tensor.Backend](numEmbeddings, embeddingDim, paddingIdx int, env *Env[B]) *Embedding[B] {
	weight := Normal(env, tensor.Shape{numEmbeddings, embeddingDim}, 0, DefaultInitStd)
	return &Embedding[B]{
		Weight:        NewParameter("weight", weight),
		NumEmbeddings: numEmbeddings,
		EmbeddingDim:  embeddingDim,
		PaddingIdx:    paddingIdx,
		backend:       env.Backend,
	}
}

// Forward looks up the rows of indices.
//
// Shapes: indices [...] → output [..., embedding_dim].
// Panics if an index is out of range.
func (e *Embedding[B]) Forward(indices *tensor.Tensor[int32, B]) *tensor.Tensor[float32, B] {
	out := e.Weight.Tensor().Embedding(indices)
	if e.PaddingIdx == NoPadding {
		return out
	}

	// out*keep + detach(out)*(1-keep): same values, no gradient on padding rows.
	maskShape := append(indices.Shape().Clone(), 1)
	keep := Zeros(maskShape, e.backend)
	drop := Zeros(maskShape, e.backend)
	keepData, dropData := keep.Data(), drop.Data()
	padded := false
	for i, id := range indices.Data() {
		if int(id) == e.PaddingIdx {
			dropData[i] = 1
			padded = true
		} else {
			keepData[i] = 1
		}
	}
	if !padded {
		return out
	}
	return out.Mul(keep).Add(out.Detach().Mul(drop))
}

// Parameters returns the embedding weight.
func (e *Embedding[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{e.Weight}
}

// StateDict returns {"weight": table}.
func (e *Embedding[B]) StateDict() map[string]*tensor.RawTensor {
	return parameterState(e.Parameters())
}

// LoadStateDict loads the lookup table.
func (e *Embedding[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadParameters(stateDict, e.Parameters())
}

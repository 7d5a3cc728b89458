package nn

import (
	"math"

	"github.com/born-ml/captionvit/internal/tensor"
)

// MultiHeadAttention implements the multi-head attention mechanism.
//
// Architecture:
//
//	P(x)   = x * W + b                       (one projection shared by Q, K and V)
//	head_i = softmax(P(Q)_i P(K)_iᵀ / sqrt(D) + mask) P(V)_i
//	MHA    = Concat(head_1, ..., head_h)
//
// Unlike the textbook layer:
//   - query, key and value go through the same projection
//   - every head scales by 1/sqrt(D), the full embedding width, not 1/sqrt(D/H)
//
// Heads are merged by reshaping; there is no output projection.
//
// Example:
//
//	mha, err := nn.NewMultiHeadAttention(512, 8, 0.1, env) // head_dim = 64
//	output := mha.Forward(x, x, x, mask)     // self-attention
//	output = mha.Forward(x, cond, cond, nil) // cross-attention
type MultiHeadAttention[B tensor.Backend] struct {
	Proj     *Linear[B] // Shared query/key/value projection [embed_dim, embed_dim]
	NumHeads int
	HeadDim  int
	EmbedDim int
	dropout  *Dropout[B]
}

// NewMultiHeadAttention creates a new multi-head attention module.
//
// Returns an error wrapping ErrConfiguration when embedDim is not divisible
// by numHeads; the check never happens at forward time.
func NewMultiHeadAttention[B tensor.Backend](
	embedDim, numHeads int,
	dropout float64,
	env *Env[B],
) (*MultiHeadAttention[B], error) {
	if err := ValidateHeads(embedDim, numHeads); err != nil {
		return nil, err
	}
	if err := ValidateDropout(dropout); err != nil {
		return nil, err
	}

	return &MultiHeadAttention[B]{
		Proj:     NewLinear(embedDim, embedDim, env),
		NumHeads: numHeads,
		HeadDim:  embedDim / numHeads,
		EmbedDim: embedDim,
		dropout:  NewDropout(dropout, env),
	}, nil
}

// Forward computes multi-head attention.
//
// Args:
//   - query: Query tensor [batch, seq_q, embed_dim]
//   - key: Key tensor [batch, seq_k, embed_dim]
//   - value: Value tensor [batch, seq_k, embed_dim]
//   - mask: Optional bool mask broadcastable to [seq_q, seq_k], or nil
//
// Returns output [batch, seq_q, embed_dim].
func (m *MultiHeadAttention[B]) Forward(
	query, key, value *tensor.Tensor[float32, B],
	mask *tensor.Tensor[bool, B],
) *tensor.Tensor[float32, B] {
	output, _ := m.ForwardWithWeights(query, key, value, mask)
	return output
}

// ForwardWithWeights computes multi-head attention and returns attention weights.
//
// Returns:
//   - output: [batch, seq_q, embed_dim]
//   - weights: [batch, num_heads, seq_q, seq_k]
func (m *MultiHeadAttention[B]) ForwardWithWeights(
	query, key, value *tensor.Tensor[float32, B],
	mask *tensor.Tensor[bool, B],
) (*tensor.Tensor[float32, B], *tensor.Tensor[float32, B]) {
	validateAttentionInputs("multi-head attention", query, key, value, mask, m.EmbedDim)

	batch := query.Shape()[0]
	seqQ := query.Shape()[1]
	seqK := key.Shape()[1]

	// 1. Project and split: [batch, seq, embed_dim] -> [batch, num_heads, seq, head_dim]
	q := m.splitHeads(m.Proj.Forward(query), batch, seqQ)
	k := q
	if key != query {
		k = m.splitHeads(m.Proj.Forward(key), batch, seqK)
	}
	v := k
	if value != key {
		v = m.splitHeads(m.Proj.Forward(value), batch, seqK)
	}

	// 2. Attention per head, scaled by the full embedding width.
	scale := float32(1 / math.Sqrt(float64(m.EmbedDim)))
	attnOut, weights := scaledDotProductAttention(q, k, v, mask, scale, m.dropout)

	// 3. Merge heads: [batch, num_heads, seq_q, head_dim] -> [batch, seq_q, embed_dim]
	output := attnOut.Transpose(0, 2, 1, 3).Reshape(batch, seqQ, m.EmbedDim)
	return output, weights
}

func (m *MultiHeadAttention[B]) splitHeads(x *tensor.Tensor[float32, B], batch, seq int) *tensor.Tensor[float32, B] {
	return x.Reshape(batch, seq, m.NumHeads, m.HeadDim).Transpose(0, 2, 1, 3)
}

// Parameters returns the shared projection parameters.
func (m *MultiHeadAttention[B]) Parameters() []*Parameter[B] {
	return m.Proj.Parameters()
}

// StateDict returns the projection under "proj".
func (m *MultiHeadAttention[B]) StateDict() map[string]*tensor.RawTensor {
	return StateDictOf(Child{Name: "proj", Module: m.Proj})
}

// LoadStateDict loads the shared projection.
func (m *MultiHeadAttention[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return LoadStateDictOf(stateDict, Child{Name: "proj", Module: m.Proj})
}

package nn

import (
	"fmt"
	"math"

	"github.com/born-ml/captionvit/internal/tensor"
)

// Attender produces an attended output given query, key, value and an
// optional mask. Attention (single head) and MultiHeadAttention implement it.
//
// Shapes:
//   - query: [N, S, D]
//   - key, value: [N, T, D] (key and value must share shape)
//   - mask: bool, nil or broadcastable to [S, T] (e.g. [1, T]); false forbids
//     query i from attending key j
//   - output: [N, S, D]
type Attender[B tensor.Backend] interface {
	Forward(query, key, value *tensor.Tensor[float32, B], mask *tensor.Tensor[bool, B]) *tensor.Tensor[float32, B]
	Parameters() []*Parameter[B]
	Stateful
}

// AttentionKind selects the Attender variant built by NewAttender.
type AttentionKind string

// Attention variants.
const (
	MultiHead  AttentionKind = "multi"
	SingleHead AttentionKind = "single"
)

// NewAttender builds the attention variant named by kind. An empty kind
// selects MultiHead; numHeads is ignored by SingleHead.
func NewAttender[B tensor.Backend](kind AttentionKind, embedDim, numHeads int, dropout float64, env *Env[B]) (Attender[B], error) {
	switch kind {
	case MultiHead, "":
		mha, err := NewMultiHeadAttention(embedDim, numHeads, dropout, env)
		if err != nil {
			return nil, err
		}
		return mha, nil
	case SingleHead:
		attn, err := NewAttention(embedDim, dropout, env)
		if err != nil {
			return nil, err
		}
		return attn, nil
	default:
		return nil, fmt.Errorf("%w: unknown attention kind %q", ErrConfiguration, kind)
	}
}

// Attention implements single-head scaled dot-product attention.
//
// Architecture:
//
//	Attention(Q, K, V) = Dropout(softmax(Q*W_Q (K*W_K)ᵀ / sqrt(D) + mask)) * V*W_V
//
// Query, key and value each have their own D→D projection.
//
// Example:
//
//	attn, err := nn.NewAttention(64, 0.1, env)
//	output := attn.Forward(x, x, x, nn.CausalMask(seqLen, backend))
type Attention[B tensor.Backend] struct {
	QueryProj *Linear[B]
	KeyProj   *Linear[B]
	ValueProj *Linear[B]
	EmbedDim  int
	dropout   *Dropout[B]
}

// NewAttention creates a single-head attention module.
func NewAttention[B tensor.Backend](embedDim int, dropout float64, env *Env[B]) (*Attention[B], error) {
	if err := validatePositive("embed_dim", embedDim); err != nil {
		return nil, err
	}
	if err := ValidateDropout(dropout); err != nil {
		return nil, err
	}
	return &Attention[B]{
		QueryProj: NewLinear(embedDim, embedDim, env),
		KeyProj:   NewLinear(embedDim, embedDim, env),
		ValueProj: NewLinear(embedDim, embedDim, env),
		EmbedDim:  embedDim,
		dropout:   NewDropout(dropout, env),
	}, nil
}

// Forward computes attention. Panics with a *tensor.ShapeError on malformed
// inputs before any computation.
func (a *Attention[B]) Forward(
	query, key, value *tensor.Tensor[float32, B],
	mask *tensor.Tensor[bool, B],
) *tensor.Tensor[float32, B] {
	output, _ := a.ForwardWithWeights(query, key, value, mask)
	return output
}

// ForwardWithWeights computes attention and also returns the attention
// probabilities [N, S, T] (after dropout).
func (a *Attention[B]) ForwardWithWeights(
	query, key, value *tensor.Tensor[float32, B],
	mask *tensor.Tensor[bool, B],
) (*tensor.Tensor[float32, B], *tensor.Tensor[float32, B]) {
	validateAttentionInputs("attention", query, key, value, mask, a.EmbedDim)

	q := a.QueryProj.Forward(query)
	k := a.KeyProj.Forward(key)
	v := a.ValueProj.Forward(value)

	scale := float32(1 / math.Sqrt(float64(a.EmbedDim)))
	return scaledDotProductAttention(q, k, v, mask, scale, a.dropout)
}

// Parameters returns the projection parameters (query, key, value).
func (a *Attention[B]) Parameters() []*Parameter[B] {
	params := make([]*Parameter[B], 0, 6)
	params = append(params, a.QueryProj.Parameters()...)
	params = append(params, a.KeyProj.Parameters()...)
	params = append(params, a.ValueProj.Parameters()...)
	return params
}

// StateDict returns the projections under "query_proj", "key_proj" and "value_proj".
func (a *Attention[B]) StateDict() map[string]*tensor.RawTensor {
	return StateDictOf(a.children()...)
}

// LoadStateDict loads the three projections.
func (a *Attention[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return LoadStateDictOf(stateDict, a.children()...)
}

func (a *Attention[B]) children() []Child {
	return []Child{
		{Name: "query_proj", Module: a.QueryProj},
		{Name: "key_proj", Module: a.KeyProj},
		{Name: "value_proj", Module: a.ValueProj},
	}
}

// scaledDotProductAttention computes
//
//	probs  = Dropout(softmax(q @ kᵀ * scale + additive(mask)))
//	output = probs @ v
//
// over the last two dimensions of rank-3 [N, S, D] or rank-4 [N, H, S, Dh]
// inputs. The mask broadcasts to [S, T] and over the leading dimensions.
func scaledDotProductAttention[B tensor.Backend](
	q, k, v *tensor.Tensor[float32, B],
	mask *tensor.Tensor[bool, B],
	scale float32,
	dropout *Dropout[B],
) (*tensor.Tensor[float32, B], *tensor.Tensor[float32, B]) {
	scores := q.BatchMatMul(k.SwapLast()).MulScalar(scale)
	if mask != nil {
		scores = scores.Add(AdditiveMask(mask))
	}

	probs := dropout.Forward(scores.Softmax(-1))
	return probs.BatchMatMul(v), probs
}

// validateAttentionInputs panics with a *tensor.ShapeError unless query is
// [N, S, D], key and value are both [N, T, D] and mask is nil or broadcasts
// to [S, T].
func validateAttentionInputs[B tensor.Backend](
	op string,
	query, key, value *tensor.Tensor[float32, B],
	mask *tensor.Tensor[bool, B],
	embedDim int,
) {
	qShape, kShape, vShape := query.Shape(), key.Shape(), value.Shape()

	if !kShape.Equal(vShape) {
		panic(tensor.NewShapeError(op, "key %v and value %v must have the same shape", kShape, vShape))
	}
	if len(qShape) != 3 || len(kShape) != 3 {
		panic(tensor.NewShapeError(op, "expected rank-3 query and key, got %v and %v", qShape, kShape))
	}
	if qShape[0] != kShape[0] {
		panic(tensor.NewShapeError(op, "batch size mismatch: query %d, key %d", qShape[0], kShape[0]))
	}
	if qShape[2] != embedDim || kShape[2] != embedDim {
		panic(tensor.NewShapeError(op, "expected embedding dimension %d, got query %v, key %v",
			embedDim, qShape, kShape))
	}
	if mask != nil {
		want := tensor.Shape{qShape[1], kShape[1]}
		if got, _, err := tensor.BroadcastShapes(mask.Shape(), want); err != nil || !got.Equal(want) {
			panic(tensor.NewShapeError(op, "mask %v does not broadcast to [query_len, key_len] %v", mask.Shape(), want))
		}
	}
}

package nn

import (
	"github.com/born-ml/captionvit/internal/tensor"
)

// PositionalEncoding adds a learned vector per absolute position to an
// embedded sequence, then applies dropout.
//
// The table is an Embedding of shape [max_len, embed_dim] trained jointly
// with the model. For input [N, S, D] the rows 0..S-1 are added to every
// batch element.
//
// Example:
//
//	pe, err := nn.NewPositionalEncoding(512, 50, 0.1, env)
//	x = pe.Forward(x) // [N, S, 512], S <= 50
type PositionalEncoding[B tensor.Backend] struct {
	Encoding *Embedding[B]
	MaxLen   int
	dropout  *Dropout[B]
	backend  B
}

// NewPositionalEncoding creates a learned positional encoding for sequences
// of at most maxLen positions.
func NewPositionalEncoding[B tensor.Backend](embedDim, maxLen int, dropout float64, env *Env[B]) (*PositionalEncoding[B], error) {
	if err := validatePositive("embed_dim", embedDim); err != nil {
		return nil, err
	}
	if err := validatePositive("max_len", maxLen); err != nil {
		return nil, err
	}
	if err := ValidateDropout(dropout); err != nil {
		return nil, err
	}
	return &PositionalEncoding[B]{
		Encoding: NewEmbedding(maxLen, embedDim, NoPadding, env),
		MaxLen:   maxLen,
		dropout:  NewDropout(dropout, env),
		backend:  env.Backend,
	}, nil
}

// Forward adds the encodings of positions 0..S-1 to x [N, S, D].
//
// Panics with a *tensor.ShapeError if S exceeds MaxLen or D does not match.
func (p *PositionalEncoding[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	if len(shape) != 3 || shape[2] != p.Encoding.EmbeddingDim {
		panic(tensor.NewShapeError("positional encoding", "expected [N, S, %d], got %v",
			p.Encoding.EmbeddingDim, shape))
	}
	seqLen := shape[1]
	if seqLen > p.MaxLen {
		panic(tensor.NewShapeError("positional encoding", "sequence length %d exceeds max_len %d",
			seqLen, p.MaxLen))
	}

	positions := tensor.Arange(0, int32(seqLen), p.backend)
	encoded := p.Encoding.Forward(positions) // [S, D], broadcast over N
	return p.dropout.Forward(x.Add(encoded))
}

// Parameters returns the position table.
func (p *PositionalEncoding[B]) Parameters() []*Parameter[B] {
	return p.Encoding.Parameters()
}

// StateDict returns the table under "encoding".
func (p *PositionalEncoding[B]) StateDict() map[string]*tensor.RawTensor {
	return StateDictOf(Child{Name: "encoding", Module: p.Encoding})
}

// LoadStateDict loads the position table.
func (p *PositionalEncoding[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return LoadStateDictOf(stateDict, Child{Name: "encoding", Module: p.Encoding})
}

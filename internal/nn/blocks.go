package nn

import (
	"fmt"

	"github.com/born-ml/captionvit/internal/tensor"
)

// LayerConfig defines the shape shared by every block of a transformer layer.
type LayerConfig struct {
	EmbedDim       int           `yaml:"embed_dim"`       // D: embedding dimension
	NumHeads       int           `yaml:"num_heads"`       // H: attention heads (D % H == 0)
	FeedForwardDim int           `yaml:"feedforward_dim"` // hidden width of the feed-forward MLP
	Dropout        float64       `yaml:"dropout"`         // drop probability of every Dropout
	Attention      AttentionKind `yaml:"attention"`       // "multi" (default) or "single"
}

// DefaultLayerConfig returns the layer shape used by the caption decoder.
func DefaultLayerConfig(embedDim, numHeads int) LayerConfig {
	return LayerConfig{
		EmbedDim:       embedDim,
		NumHeads:       numHeads,
		FeedForwardDim: 2048,
		Dropout:        0.1,
		Attention:      MultiHead,
	}
}

// Validate checks the configuration.
// NumHeads is only checked for MultiHead attention.
func (c LayerConfig) Validate() error {
	switch c.Attention {
	case MultiHead, "":
		if err := ValidateHeads(c.EmbedDim, c.NumHeads); err != nil {
			return err
		}
	case SingleHead:
		if err := validatePositive("embed_dim", c.EmbedDim); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown attention kind %q", ErrConfiguration, c.Attention)
	}
	if err := validatePositive("feedforward_dim", c.FeedForwardDim); err != nil {
		return err
	}
	return ValidateDropout(c.Dropout)
}

// SelfAttentionBlock computes LayerNorm(x + Dropout(Attn(x, x, x, mask))).
//
// Post-norm: normalization is applied after the residual sum, per position
// over the channel axis.
type SelfAttentionBlock[B tensor.Backend] struct {
	Attn    Attender[B]
	Norm    *LayerNorm[B]
	dropout *Dropout[B]
}

// NewSelfAttentionBlock creates a self-attention block.
func NewSelfAttentionBlock[B tensor.Backend](cfg LayerConfig, env *Env[B]) (*SelfAttentionBlock[B], error) {
	attn, norm, err := newAttentionSublayer(cfg, env)
	if err != nil {
		return nil, err
	}
	return &SelfAttentionBlock[B]{Attn: attn, Norm: norm, dropout: NewDropout(cfg.Dropout, env)}, nil
}

// Forward applies masked self-attention to seq [N, S, D]. mask may be nil.
func (b *SelfAttentionBlock[B]) Forward(seq *tensor.Tensor[float32, B], mask *tensor.Tensor[bool, B]) *tensor.Tensor[float32, B] {
	x := b.dropout.Forward(b.Attn.Forward(seq, seq, seq, mask))
	return b.Norm.Forward(seq.Add(x))
}

// Parameters returns attention and normalization parameters.
func (b *SelfAttentionBlock[B]) Parameters() []*Parameter[B] {
	return append(b.Attn.Parameters(), b.Norm.Parameters()...)
}

// StateDict returns the block state under "attn" and "norm".
func (b *SelfAttentionBlock[B]) StateDict() map[string]*tensor.RawTensor {
	return StateDictOf(b.children()...)
}

// LoadStateDict loads the block state.
func (b *SelfAttentionBlock[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return LoadStateDictOf(stateDict, b.children()...)
}

func (b *SelfAttentionBlock[B]) children() []Child {
	return []Child{{Name: "attn", Module: b.Attn}, {Name: "norm", Module: b.Norm}}
}

// CrossAttentionBlock computes LayerNorm(x + Dropout(Attn(x, cond, cond))).
// No mask is applied: every query position sees the whole conditioning.
type CrossAttentionBlock[B tensor.Backend] struct {
	Attn    Attender[B]
	Norm    *LayerNorm[B]
	dropout *Dropout[B]
}

// NewCrossAttentionBlock creates a cross-attention block.
func NewCrossAttentionBlock[B tensor.Backend](cfg LayerConfig, env *Env[B]) (*CrossAttentionBlock[B], error) {
	attn, norm, err := newAttentionSublayer(cfg, env)
	if err != nil {
		return nil, err
	}
	return &CrossAttentionBlock[B]{Attn: attn, Norm: norm, dropout: NewDropout(cfg.Dropout, env)}, nil
}

// Forward attends seq [N, S, D] to cond [N, T, D].
func (b *CrossAttentionBlock[B]) Forward(seq, cond *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	x := b.dropout.Forward(b.Attn.Forward(seq, cond, cond, nil))
	return b.Norm.Forward(seq.Add(x))
}

// Parameters returns attention and normalization parameters.
func (b *CrossAttentionBlock[B]) Parameters() []*Parameter[B] {
	return append(b.Attn.Parameters(), b.Norm.Parameters()...)
}

// StateDict returns the block state under "attn" and "norm".
func (b *CrossAttentionBlock[B]) StateDict() map[string]*tensor.RawTensor {
	return StateDictOf(b.children()...)
}

// LoadStateDict loads the block state.
func (b *CrossAttentionBlock[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return LoadStateDictOf(stateDict, b.children()...)
}

func (b *CrossAttentionBlock[B]) children() []Child {
	return []Child{{Name: "attn", Module: b.Attn}, {Name: "norm", Module: b.Norm}}
}

// FeedForwardBlock computes
//
//	LayerNorm(x + Dropout(Linear2(Dropout(ReLU(Linear1(x))))))
//
// with Linear1: D → FeedForwardDim and Linear2: FeedForwardDim → D.
type FeedForwardBlock[B tensor.Backend] struct {
	MLP     *Sequential[B]
	Norm    *LayerNorm[B]
	dropout *Dropout[B]
}

// NewFeedForwardBlock creates a feed-forward block.
func NewFeedForwardBlock[B tensor.Backend](cfg LayerConfig, env *Env[B]) (*FeedForwardBlock[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mlp := NewSequential[B](
		NewLinear(cfg.EmbedDim, cfg.FeedForwardDim, env),
		NewReLU[B](),
		NewDropout(cfg.Dropout, env),
		NewLinear(cfg.FeedForwardDim, cfg.EmbedDim, env),
	)
	return &FeedForwardBlock[B]{
		MLP:     mlp,
		Norm:    NewLayerNorm(cfg.EmbedDim, DefaultLayerNormEps, env),
		dropout: NewDropout(cfg.Dropout, env),
	}, nil
}

// Forward applies the block to seq [N, S, D].
func (b *FeedForwardBlock[B]) Forward(seq *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	x := b.dropout.Forward(b.MLP.Forward(seq))
	return b.Norm.Forward(seq.Add(x))
}

// Parameters returns MLP and normalization parameters.
func (b *FeedForwardBlock[B]) Parameters() []*Parameter[B] {
	return append(b.MLP.Parameters(), b.Norm.Parameters()...)
}

// StateDict returns the block state under "mlp" and "norm".
func (b *FeedForwardBlock[B]) StateDict() map[string]*tensor.RawTensor {
	return StateDictOf(b.children()...)
}

// LoadStateDict loads the block state.
func (b *FeedForwardBlock[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return LoadStateDictOf(stateDict, b.children()...)
}

func (b *FeedForwardBlock[B]) children() []Child {
	return []Child{{Name: "mlp", Module: b.MLP}, {Name: "norm", Module: b.Norm}}
}

func newAttentionSublayer[B tensor.Backend](cfg LayerConfig, env *Env[B]) (Attender[B], *LayerNorm[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	attn, err := NewAttender(cfg.Attention, cfg.EmbedDim, cfg.NumHeads, cfg.Dropout, env)
	if err != nil {
		return nil, nil, err
	}
	return attn, NewLayerNorm(cfg.EmbedDim, DefaultLayerNormEps, env), nil
}

package nn

import (
	"github.com/born-ml/captionvit/internal/tensor"
)

// DecoderLayer is one transformer decoder layer:
//
//	seq → SelfAttentionBlock(mask) → CrossAttentionBlock(cond) → FeedForwardBlock
//
// Output shape equals the input sequence shape, so layers stack directly.
type DecoderLayer[B tensor.Backend] struct {
	SelfAttn    *SelfAttentionBlock[B]
	CrossAttn   *CrossAttentionBlock[B]
	FeedForward *FeedForwardBlock[B]
}

// NewDecoderLayer creates a decoder layer.
func NewDecoderLayer[B tensor.Backend](cfg LayerConfig, env *Env[B]) (*DecoderLayer[B], error) {
	self, err := NewSelfAttentionBlock(cfg, env)
	if err != nil {
		return nil, err
	}
	cross, err := NewCrossAttentionBlock(cfg, env)
	if err != nil {
		return nil, err
	}
	ffn, err := NewFeedForwardBlock(cfg, env)
	if err != nil {
		return nil, err
	}
	return &DecoderLayer[B]{SelfAttn: self, CrossAttn: cross, FeedForward: ffn}, nil
}

// Forward runs seq [N, S, D] through the layer, attending to cond [N, T, D].
func (l *DecoderLayer[B]) Forward(seq, cond *tensor.Tensor[float32, B], mask *tensor.Tensor[bool, B]) *tensor.Tensor[float32, B] {
	out := l.SelfAttn.Forward(seq, mask)
	out = l.CrossAttn.Forward(out, cond)
	return l.FeedForward.Forward(out)
}

// Parameters returns all parameters of the layer.
func (l *DecoderLayer[B]) Parameters() []*Parameter[B] {
	params := l.SelfAttn.Parameters()
	params = append(params, l.CrossAttn.Parameters()...)
	return append(params, l.FeedForward.Parameters()...)
}

// StateDict returns the layer state under "self_attn", "cross_attn" and "ffn".
func (l *DecoderLayer[B]) StateDict() map[string]*tensor.RawTensor {
	return StateDictOf(l.children()...)
}

// LoadStateDict loads the layer state.
func (l *DecoderLayer[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return LoadStateDictOf(stateDict, l.children()...)
}

func (l *DecoderLayer[B]) children() []Child {
	return []Child{
		{Name: "self_attn", Module: l.SelfAttn},
		{Name: "cross_attn", Module: l.CrossAttn},
		{Name: "ffn", Module: l.FeedForward},
	}
}

// EncoderLayer is one transformer encoder layer:
//
//	seq → SelfAttentionBlock(mask) → FeedForwardBlock
type EncoderLayer[B tensor.Backend] struct {
	SelfAttn    *SelfAttentionBlock[B]
	FeedForward *FeedForwardBlock[B]
}

// NewEncoderLayer creates an encoder layer.
func NewEncoderLayer[B tensor.Backend](cfg LayerConfig, env *Env[B]) (*EncoderLayer[B], error) {
	self, err := NewSelfAttentionBlock(cfg, env)
	if err != nil {
		return nil, err
	}
	ffn, err := NewFeedForwardBlock(cfg, env)
	if err != nil {
		return nil, err
	}
	return &EncoderLayer[B]{SelfAttn: self, FeedForward: ffn}, nil
}

// Forward runs seq [N, S, D] through the layer. Encoders pass a full mask
// (or nil); every position attends to every other.
func (l *EncoderLayer[B]) Forward(seq *tensor.Tensor[float32, B], mask *tensor.Tensor[bool, B]) *tensor.Tensor[float32, B] {
	return l.FeedForward.Forward(l.SelfAttn.Forward(seq, mask))
}

// Parameters returns all parameters of the layer.
func (l *EncoderLayer[B]) Parameters() []*Parameter[B] {
	return append(l.SelfAttn.Parameters(), l.FeedForward.Parameters()...)
}

// StateDict returns the layer state under "self_attn" and "ffn".
func (l *EncoderLayer[B]) StateDict() map[string]*tensor.RawTensor {
	return StateDictOf(l.children()...)
}

// LoadStateDict loads the layer state.
func (l *EncoderLayer[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return LoadStateDictOf(stateDict, l.children()...)
}

func (l *EncoderLayer[B]) children() []Child {
	return []Child{
		{Name: "self_attn", Module: l.SelfAttn},
		{Name: "ffn", Module: l.FeedForward},
	}
}

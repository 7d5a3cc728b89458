// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the transformer building blocks: attention, positional
// encoding, residual blocks and encoder/decoder layers.
//
// Every layer is built from an Env holding the backend, a seeded parameter
// initializer and the dropout Mode shared by the whole model.
//
// Example:
//
//	env := nn.NewEnv(cpu.New(), 42)
//	layer, err := nn.NewDecoderLayer(nn.DefaultLayerConfig(256, 4), env)
//	env.Mode.Eval()
//	out := layer.Forward(seq, cond, nn.CausalMask(seqLen, env.Backend))
package nn

import (
	"github.com/born-ml/captionvit/internal/nn"
	"github.com/born-ml/captionvit/internal/tensor"
)

// ErrConfiguration is wrapped by every construction error.
var ErrConfiguration = nn.ErrConfiguration

// Module is a layer with a forward pass and trainable parameters.
type Module[B tensor.Backend] = nn.Module[B]

// Parameter represents a trainable parameter in a neural network.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// Mode switches dropout between training and inference.
type Mode = nn.Mode

// Env is the construction context of a model.
type Env[B tensor.Backend] = nn.Env[B]

// NewEnv creates an Env whose initializer and dropout masks derive from seed.
// The Mode starts in training.
func NewEnv[B tensor.Backend](backend B, seed uint64) *Env[B] {
	return nn.NewEnv(backend, seed)
}

// NumParameters counts the scalar values in params.
func NumParameters[B tensor.Backend](params []*Parameter[B]) int {
	return nn.NumParameters(params)
}

// Attention

// Attender is the capability shared by the attention variants.
type Attender[B tensor.Backend] = nn.Attender[B]

// AttentionKind selects an attention variant.
type AttentionKind = nn.AttentionKind

// Attention variants.
const (
	MultiHead  AttentionKind = nn.MultiHead
	SingleHead AttentionKind = nn.SingleHead
)

// NewAttender builds the attention variant named by kind.
func NewAttender[B tensor.Backend](kind AttentionKind, embedDim, numHeads int, dropout float64, env *Env[B]) (Attender[B], error) {
	return nn.NewAttender(kind, embedDim, numHeads, dropout, env)
}

// Attention is single-head scaled dot-product attention.
type Attention[B tensor.Backend] = nn.Attention[B]

// NewAttention creates single-head attention.
func NewAttention[B tensor.Backend](embedDim int, dropout float64, env *Env[B]) (*Attention[B], error) {
	return nn.NewAttention(embedDim, dropout, env)
}

// MultiHeadAttention splits the embedding into heads that attend
// independently.
type MultiHeadAttention[B tensor.Backend] = nn.MultiHeadAttention[B]

// NewMultiHeadAttention creates multi-head attention.
//
// Returns an error wrapping ErrConfiguration if embedDim is not divisible
// by numHeads.
func NewMultiHeadAttention[B tensor.Backend](embedDim, numHeads int, dropout float64, env *Env[B]) (*MultiHeadAttention[B], error) {
	return nn.NewMultiHeadAttention(embedDim, numHeads, dropout, env)
}

// CausalMask returns the [L, L] lower-triangular mask.
func CausalMask[B tensor.Backend](seqLen int, backend B) *tensor.Tensor[bool, B] {
	return nn.CausalMask(seqLen, backend)
}

// FullMask returns an all-true [S, T] mask.
func FullMask[B tensor.Backend](queryLen, keyLen int, backend B) *tensor.Tensor[bool, B] {
	return nn.FullMask(queryLen, keyLen, backend)
}

// PositionalEncoding adds a learned vector per position.
type PositionalEncoding[B tensor.Backend] = nn.PositionalEncoding[B]

// NewPositionalEncoding creates a learned positional encoding.
func NewPositionalEncoding[B tensor.Backend](embedDim, maxLen int, dropout float64, env *Env[B]) (*PositionalEncoding[B], error) {
	return nn.NewPositionalEncoding(embedDim, maxLen, dropout, env)
}

// Blocks and layers

// LayerConfig is the shape of a transformer layer.
type LayerConfig = nn.LayerConfig

// DefaultLayerConfig returns a layer config with feed-forward width 2048 and
// dropout 0.1.
func DefaultLayerConfig(embedDim, numHeads int) LayerConfig {
	return nn.DefaultLayerConfig(embedDim, numHeads)
}

// SelfAttentionBlock is the post-norm residual self-attention block.
type SelfAttentionBlock[B tensor.Backend] = nn.SelfAttentionBlock[B]

// NewSelfAttentionBlock creates a self-attention block.
func NewSelfAttentionBlock[B tensor.Backend](cfg LayerConfig, env *Env[B]) (*SelfAttentionBlock[B], error) {
	return nn.NewSelfAttentionBlock(cfg, env)
}

// CrossAttentionBlock is the post-norm residual cross-attention block.
type CrossAttentionBlock[B tensor.Backend] = nn.CrossAttentionBlock[B]

// NewCrossAttentionBlock creates a cross-attention block.
func NewCrossAttentionBlock[B tensor.Backend](cfg LayerConfig, env *Env[B]) (*CrossAttentionBlock[B], error) {
	return nn.NewCrossAttentionBlock(cfg, env)
}

// FeedForwardBlock is the post-norm residual feed-forward block.
type FeedForwardBlock[B tensor.Backend] = nn.FeedForwardBlock[B]

// NewFeedForwardBlock creates a feed-forward block.
func NewFeedForwardBlock[B tensor.Backend](cfg LayerConfig, env *Env[B]) (*FeedForwardBlock[B], error) {
	return nn.NewFeedForwardBlock(cfg, env)
}

// DecoderLayer is self-attention, cross-attention and feed-forward.
type DecoderLayer[B tensor.Backend] = nn.DecoderLayer[B]

// NewDecoderLayer creates a decoder layer.
func NewDecoderLayer[B tensor.Backend](cfg LayerConfig, env *Env[B]) (*DecoderLayer[B], error) {
	return nn.NewDecoderLayer(cfg, env)
}

// EncoderLayer is self-attention and feed-forward.
type EncoderLayer[B tensor.Backend] = nn.EncoderLayer[B]

// NewEncoderLayer creates an encoder layer.
func NewEncoderLayer[B tensor.Backend](cfg LayerConfig, env *Env[B]) (*EncoderLayer[B], error) {
	return nn.NewEncoderLayer(cfg, env)
}

// Basic layers

// Linear is a fully connected layer.
type Linear[B tensor.Backend] = nn.Linear[B]

// NewLinear creates a linear layer with N(0, 0.02) weights and zero bias.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, env *Env[B]) *Linear[B] {
	return nn.NewLinear(inFeatures, outFeatures, env)
}

// Embedding is a token lookup table.
type Embedding[B tensor.Backend] = nn.Embedding[B]

// NoPadding disables the padding index of an Embedding.
const NoPadding = nn.NoPadding

// NewEmbedding creates an embedding table. paddingIdx may be NoPadding.
func NewEmbedding[B tensor.Backend](numEmbeddings, embeddingDim, paddingIdx int, env *Env[B]) *Embedding[B] {
	return nn.NewEmbedding(numEmbeddings, embeddingDim, paddingIdx, env)
}

// LayerNorm normalizes over the last dimension.
type LayerNorm[B tensor.Backend] = nn.LayerNorm[B]

// NewLayerNorm creates a layer normalization with gamma 1 and beta 0.
func NewLayerNorm[B tensor.Backend](dim int, epsilon float32, env *Env[B]) *LayerNorm[B] {
	return nn.NewLayerNorm(dim, epsilon, env)
}

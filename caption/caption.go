// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package caption provides the transformer image-caption decoder.
//
// Example:
//
//	vocab, err := caption.NewVocabulary(map[string]int32{
//	    "<NULL>": 0, "<START>": 1, "<END>": 2, "a": 3, "cat": 4,
//	})
//	dec, err := caption.NewDecoder(caption.DefaultConfig(), vocab, cpu.New())
//	dec.Eval()
//	ids, err := dec.Sample(features, 16) // (N, 16) int32
//	for i := range n {
//	    fmt.Println(vocab.DecodeString(ids.Data()[i*16 : (i+1)*16]))
//	}
package caption

import (
	"github.com/born-ml/captionvit/internal/caption"
	"github.com/born-ml/captionvit/internal/tensor"
)

// Special tokens.
const (
	NullToken  = caption.NullToken
	StartToken = caption.StartToken
	EndToken   = caption.EndToken
)

// ErrTokenOutOfRange is returned when a caption holds an id outside the vocabulary.
var ErrTokenOutOfRange = caption.ErrTokenOutOfRange

// Config holds the construction parameters of a Decoder.
type Config = caption.Config

// DefaultConfig returns the default decoder shape.
func DefaultConfig() Config {
	return caption.DefaultConfig()
}

// Vocabulary is a bidirectional word ↔ id mapping.
type Vocabulary = caption.Vocabulary

// NewVocabulary builds a Vocabulary. ids must be exactly 0..V-1 and
// NullToken must be present.
func NewVocabulary(wordToIdx map[string]int32) (*Vocabulary, error) {
	return caption.NewVocabulary(wordToIdx)
}

// Decoder is the transformer caption decoder.
type Decoder[B tensor.Backend] = caption.Decoder[B]

// NewDecoder builds a decoder for vocab on backend.
func NewDecoder[B tensor.Backend](cfg Config, vocab *Vocabulary, backend B) (*Decoder[B], error) {
	return caption.NewDecoder(cfg, vocab, backend)
}

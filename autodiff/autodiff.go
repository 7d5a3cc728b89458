// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides reverse-mode automatic differentiation.
//
// An autodiff Backend wraps any backend and records operations on a gradient
// tape while recording is on. Backward walks the tape and returns the
// gradient of every tensor that contributed to the output.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	dec, _ := caption.NewDecoder(cfg, vocab, backend)
//
//	backend.Tape().StartRecording()
//	scores, _ := dec.Forward(features, captions)
//	grads := autodiff.Backward(scores, backend)
//	wGrad := grads[dec.ScoreProjection.Weight().Tensor().Raw()]
package autodiff

import (
	"github.com/born-ml/captionvit/internal/autodiff"
	"github.com/born-ml/captionvit/internal/tensor"
)

// Backend is the autodiff-enabled backend.
type Backend[B tensor.Backend] = autodiff.AutodiffBackend[B]

// New creates a new autodiff backend wrapping the given backend.
func New[B tensor.Backend](backend B) *Backend[B] {
	return autodiff.New(backend)
}

// GradientTape records operations for automatic differentiation.
type GradientTape = autodiff.GradientTape

// Backward computes the gradients of the sum of t with respect to every
// recorded input.
func Backward[T tensor.DType, B tensor.Backend](t *tensor.Tensor[T, *Backend[B]], backend *Backend[B]) map[*tensor.RawTensor]*tensor.RawTensor {
	return autodiff.Backward(t, backend)
}

// BackwardFrom computes gradients seeded with outputGrad at output.
func BackwardFrom[B tensor.Backend](output, outputGrad *tensor.RawTensor, backend *Backend[B]) map[*tensor.RawTensor]*tensor.RawTensor {
	return autodiff.BackwardFrom(output, outputGrad, backend)
}

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package vit provides the Vision Transformer image classifier.
//
// Example:
//
//	clf, err := vit.NewClassifier(vit.DefaultConfig(), cpu.New())
//	clf.Eval()
//	logits, err := clf.Forward(images) // images (N, 3, 32, 32) → (N, 10)
package vit

import (
	"github.com/born-ml/captionvit/internal/tensor"
	"github.com/born-ml/captionvit/internal/vit"
)

// Config holds the construction parameters of a Classifier.
type Config = vit.Config

// DefaultConfig returns a classifier for 32×32 images in 8×8 patches.
func DefaultConfig() Config {
	return vit.DefaultConfig()
}

// Classifier is a Vision Transformer classifier.
type Classifier[B tensor.Backend] = vit.Classifier[B]

// NewClassifier builds a classifier on backend.
func NewClassifier[B tensor.Backend](cfg Config, backend B) (*Classifier[B], error) {
	return vit.NewClassifier(cfg, backend)
}

// Patchify cuts images (N, C, H, W) into flattened channel-major patches
// (N, P, C·p·p).
func Patchify[B tensor.Backend](images *tensor.Tensor[float32, B], patchDim int) (*tensor.Tensor[float32, B], error) {
	return vit.Patchify(images, patchDim)
}

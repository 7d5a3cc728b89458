// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package generate provides next-token selection for caption sampling.
//
// The zero SamplingConfig selects greedy decoding. Setting Temperature
// enables stochastic sampling, optionally restricted by TopK and TopP.
//
// Example:
//
//	cfg := caption.DefaultConfig()
//	cfg.Sampling = generate.SamplingConfig{Temperature: 0.8, TopK: 5, Seed: 1}
package generate

import (
	"github.com/born-ml/captionvit/internal/generate"
)

// SamplingConfig configures next-token selection.
type SamplingConfig = generate.SamplingConfig

// GreedyConfig returns a config that always picks the highest score.
func GreedyConfig() SamplingConfig {
	return generate.GreedyConfig()
}

// Sampler picks the next token from a score vector.
type Sampler = generate.Sampler

// NewSampler creates a sampler for config.
func NewSampler(config SamplingConfig) *Sampler {
	return generate.NewSampler(config)
}

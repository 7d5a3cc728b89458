// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides optimizers for external training loops.
//
// Example:
//
//	opt := optim.NewSGD(dec.Parameters(), optim.SGDConfig{LR: 0.01, Momentum: 0.9})
//
//	backend.Tape().StartRecording()
//	scores, _ := dec.Forward(features, captions)
//	grads := autodiff.Backward(loss(scores), backend)
//	opt.Step(grads)
//	backend.Tape().Clear()
package optim

import (
	"github.com/born-ml/captionvit/internal/nn"
	"github.com/born-ml/captionvit/internal/optim"
	"github.com/born-ml/captionvit/internal/tensor"
)

// Optimizer interface defines the common interface for all optimizers.
type Optimizer = optim.Optimizer

// Config selects and parameterizes an optimizer.
type Config = optim.Config

// Optimizer kinds.
const (
	KindSGD  = optim.KindSGD
	KindAdam = optim.KindAdam
)

// New builds the optimizer described by cfg.
func New[B tensor.Backend](cfg Config, params []*nn.Parameter[B]) (Optimizer, error) {
	return optim.New(cfg, params)
}

// SGD represents the SGD optimizer with optional momentum.
type SGD[B tensor.Backend] = optim.SGD[B]

// SGDConfig contains configuration for SGD optimizer.
type SGDConfig = optim.SGDConfig

// NewSGD creates a new SGD optimizer.
func NewSGD[B tensor.Backend](params []*nn.Parameter[B], config SGDConfig) *SGD[B] {
	return optim.NewSGD(params, config)
}

// Adam represents the Adam optimizer.
type Adam[B tensor.Backend] = optim.Adam[B]

// AdamConfig contains configuration for Adam optimizer.
type AdamConfig = optim.AdamConfig

// NewAdam creates a new Adam optimizer.
func NewAdam[B tensor.Backend](params []*nn.Parameter[B], config AdamConfig) *Adam[B] {
	return optim.NewAdam(params, config)
}

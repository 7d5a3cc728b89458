// Package optim applies gradient updates to model parameters.
//
// The models in this module do not train themselves; an external loop
// records a forward pass on an autodiff backend, computes its own loss and
// hands the gradient map to an Optimizer:
//
//	backend.Tape().StartRecording()
//	scores, _ := decoder.Forward(features, captions)
//	grads := autodiff.Backward(loss(scores), backend)
//	opt.Step(grads)
//	backend.Tape().Clear()
//
// Updates are written into the parameter storage in place, so layers see the
// new values on their next forward pass and the gradient map keys (the
// parameters' raw tensors) stay valid across steps.
package optim

import (
	"fmt"

	"github.com/born-ml/captionvit/internal/nn"
	"github.com/born-ml/captionvit/internal/tensor"
)

// Optimizer updates parameters from a gradient map returned by
// autodiff.Backward.
type Optimizer interface {
	// Step applies one update. Parameters absent from grads are skipped.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad clears the gradients stored on the parameters.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float32
}

// Kind names an optimizer in configuration files.
type Kind string

// Optimizer kinds.
const (
	KindSGD  Kind = "sgd"
	KindAdam Kind = "adam"
)

// Config selects and parameterizes an optimizer.
type Config struct {
	Kind        Kind       `yaml:"kind"`
	LR          float32    `yaml:"lr"`
	Momentum    float32    `yaml:"momentum"`     // SGD only
	WeightDecay float32    `yaml:"weight_decay"` // SGD only
	Betas       [2]float32 `yaml:"betas"`        // Adam only
	Eps         float32    `yaml:"eps"`          // Adam only
}

// New builds the optimizer described by cfg over params.
func New[B tensor.Backend](cfg Config, params []*nn.Parameter[B]) (Optimizer, error) {
	if cfg.LR < 0 {
		return nil, fmt.Errorf("%w: learning rate must be non-negative, got %g", nn.ErrConfiguration, cfg.LR)
	}
	switch cfg.Kind {
	case KindSGD, "":
		if cfg.Momentum < 0 || cfg.Momentum >= 1 {
			return nil, fmt.Errorf("%w: momentum must be in [0, 1), got %g", nn.ErrConfiguration, cfg.Momentum)
		}
		return NewSGD(params, SGDConfig{LR: cfg.LR, Momentum: cfg.Momentum, WeightDecay: cfg.WeightDecay}), nil
	case KindAdam:
		return NewAdam(params, AdamConfig{LR: cfg.LR, Betas: cfg.Betas, Eps: cfg.Eps}), nil
	default:
		return nil, fmt.Errorf("%w: unknown optimizer %q", nn.ErrConfiguration, cfg.Kind)
	}
}

// gradientOf returns the float32 gradient of param, or nil if param did not
// take part in the recorded computation.
func gradientOf[B tensor.Backend](param *nn.Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) []float32 {
	grad, ok := grads[param.Tensor().Raw()]
	if !ok || grad == nil {
		return nil
	}
	if grad.NumElements() != param.Tensor().NumElements() {
		panic(tensor.NewShapeError("optim", "gradient of %s has shape %v, parameter %v",
			param.Name(), grad.Shape(), param.Tensor().Shape()))
	}
	return grad.AsFloat32()
}

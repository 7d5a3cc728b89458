package optim

import (
	"fmt"

	"github.com/born-ml/captionvit/internal/nn"
	"github.com/born-ml/captionvit/internal/tensor"
)

// SGD implements stochastic gradient descent with optional momentum and
// L2 weight decay.
//
// Update rule:
//
//	g = grad + weight_decay * param
//	velocity = momentum * velocity + g
//	param = param - lr * velocity
//
// With momentum 0 no velocity is kept and the update is param -= lr * g.
//
// Example:
//
//	sgd := optim.NewSGD(decoder.Parameters(), optim.SGDConfig{LR: 0.01, Momentum: 0.9})
//	sgd.Step(grads)
type SGD[B tensor.Backend] struct {
	params      []*nn.Parameter[B]
	lr          float32
	momentum    float32
	weightDecay float32
	velocities  map[*nn.Parameter[B]][]float32
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR          float32 // Learning rate (default: 0.01)
	Momentum    float32 // Momentum factor, [0, 1)
	WeightDecay float32 // L2 penalty
}

// NewSGD creates a new SGD optimizer.
func NewSGD[B tensor.Backend](params []*nn.Parameter[B], config SGDConfig) *SGD[B] {
	if config.LR == 0 {
		config.LR = 0.01
	}
	return &SGD[B]{
		params:      params,
		lr:          config.LR,
		momentum:    config.Momentum,
		weightDecay: config.WeightDecay,
		velocities:  make(map[*nn.Parameter[B]][]float32),
	}
}

// Step performs a single optimization step.
func (s *SGD[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	for _, param := range s.params {
		grad := gradientOf(param, grads)
		if grad == nil {
			continue
		}
		data := param.Tensor().Data()

		if s.momentum == 0 {
			for i, g := range grad {
				data[i] -= s.lr * (g + s.weightDecay*data[i])
			}
			continue
		}

		velocity, ok := s.velocities[param]
		if !ok {
			velocity = make([]float32, len(data))
			s.velocities[param] = velocity
		}
		for i, g := range grad {
			velocity[i] = s.momentum*velocity[i] + g + s.weightDecay*data[i]
			data[i] -= s.lr * velocity[i]
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD[B]) ZeroGrad() {
	for _, param := range s.params {
		param.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (s *SGD[B]) GetLR() float32 {
	return s.lr
}

// SetLR updates the learning rate.
func (s *SGD[B]) SetLR(lr float32) {
	s.lr = lr
}

// StateDict exports the velocity buffers as "velocity.<param index>".
// Without momentum it is empty.
func (s *SGD[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for i, param := range s.params {
		velocity, ok := s.velocities[param]
		if !ok {
			continue
		}
		raw := tensor.MustNewRaw(param.Tensor().Shape(), tensor.Float32, param.Tensor().Device())
		copy(raw.AsFloat32(), velocity)
		stateDict[fmt.Sprintf("velocity.%d", i)] = raw
	}
	return stateDict
}

// LoadStateDict restores velocity buffers saved by StateDict.
func (s *SGD[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	velocities := make(map[*nn.Parameter[B]][]float32)
	for i, param := range s.params {
		raw, ok := stateDict[fmt.Sprintf("velocity.%d", i)]
		if !ok {
			continue
		}
		if !raw.Shape().Equal(param.Tensor().Shape()) {
			return fmt.Errorf("velocity.%d: %w", i,
				tensor.NewShapeError("load", "expected %v, got %v", param.Tensor().Shape(), raw.Shape()))
		}
		velocities[param] = append([]float32(nil), raw.AsFloat32()...)
	}
	s.velocities = velocities
	return nil
}

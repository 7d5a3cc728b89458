package nn

import (
	"fmt"
	"strconv"

	"github.com/born-ml/captionvit/internal/tensor"
)

// Sequential is a container module that chains multiple modules together.
//
// Each module's output becomes the next module's input. The feed-forward
// block uses it for its Linear → ReLU → Dropout → Linear pipeline:
//
//	mlp := nn.NewSequential[B](
//	    nn.NewLinear(512, 2048, env),
//	    nn.NewReLU[B](),
//	    nn.NewDropout(0.1, env),
//	    nn.NewLinear(2048, 512, env),
//	)
type Sequential[B tensor.Backend] struct {
	modules []Module[B]
}

// NewSequential creates a new Sequential container.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return &Sequential[B]{
		modules: modules,
	}
}

// Forward applies all modules in sequence.
func (s *Sequential[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	output := input
	for _, module := range s.modules {
		output = module.Forward(output)
	}
	return output
}

// Parameters returns all trainable parameters from all modules.
func (s *Sequential[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// Len returns the number of modules in the sequence.
func (s *Sequential[B]) Len() int {
	return len(s.modules)
}

// Module returns the module at the given index.
//
// Panics if index is out of bounds.
func (s *Sequential[B]) Module(index int) Module[B] {
	if index < 0 || index >= len(s.modules) {
		panic(fmt.Sprintf("Sequential.Module: index %d out of bounds [0, %d)", index, len(s.modules)))
	}
	return s.modules[index]
}

// StateDict returns a map of parameter names to raw tensors.
//
// Parameters are prefixed with their module index (e.g., "0.weight",
// "3.bias"); modules without state are skipped but keep their index.
func (s *Sequential[B]) StateDict() map[string]*tensor.RawTensor {
	return StateDictOf(s.children()...)
}

// LoadStateDict loads parameters from a state dictionary keyed like StateDict.
func (s *Sequential[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return LoadStateDictOf(stateDict, s.children()...)
}

func (s *Sequential[B]) children() []Child {
	var children []Child
	for i, module := range s.modules {
		if stateful, ok := module.(Stateful); ok {
			children = append(children, Child{Name: strconv.Itoa(i), Module: stateful})
		}
	}
	return children
}

package nn

import (
	"fmt"

	"github.com/born-ml/captionvit/internal/tensor"
)

// Dropout zeroes each element with probability p during training and scales
// the survivors by 1/(1-p) (inverted dropout). In inference mode it is the
// identity.
//
// The training/inference switch is the Mode of the Env the layer was built
// from, so flipping env.Mode affects every Dropout of the model at once.
type Dropout[B tensor.Backend] struct {
	p       float64
	mode    *Mode
	backend B
}

// NewDropout creates a Dropout layer.
//
// Panics if p is not in [0, 1]; callers validate with ValidateDropout first.
func NewDropout[B tensor.Backend](p float64, env *Env[B]) *Dropout[B] {
	if err := ValidateDropout(p); err != nil {
		panic(fmt.Sprintf("NewDropout: %v", err))
	}
	return &Dropout[B]{p: p, mode: env.Mode, backend: env.Backend}
}

// Forward applies dropout in training mode and returns input unchanged otherwise.
func (d *Dropout[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if d.p == 0 || !d.mode.Training() {
		return input
	}
	mask := Zeros(input.Shape(), d.backend)
	d.mode.fillDropoutMask(mask.Data(), d.p)
	return input.Mul(mask)
}

// Parameters returns an empty slice (Dropout has no learnable parameters).
func (d *Dropout[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{}
}

// P returns the drop probability.
func (d *Dropout[B]) P() float64 {
	return d.p
}

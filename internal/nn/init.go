package nn

import (
	"sync"

	"github.com/born-ml/captionvit/internal/tensor"
	"golang.org/x/exp/rand"
)

// DefaultInitStd is the standard deviation of Linear and Embedding weights.
const DefaultInitStd = 0.02

// Initializer draws initial parameter values from a seeded generator, so
// two models built with the same seed start from identical weights.
type Initializer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewInitializer creates an Initializer seeded with seed.
func NewInitializer(seed uint64) *Initializer {
	return &Initializer{rng: rand.New(rand.NewSource(seed))}
}

// Normal creates a tensor with values drawn from N(mean, std²).
//
// Parameters:
//   - env: Construction context (backend and initializer)
//   - shape: Shape of the tensor
//   - mean, std: Distribution parameters
//
// Returns a tensor with random normal values.
func Normal[B tensor.Backend](env *Env[B], shape tensor.Shape, mean, std float64) *tensor.Tensor[float32, B] {
	env.Init.mu.Lock()
	defer env.Init.mu.Unlock()
	return tensor.RandNormal(shape, mean, std, env.Init.rng, env.Backend)
}

// Zeros creates a tensor filled with zeros.
//
// This is commonly used for bias initialization.
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Zeros[float32](shape, backend)
}

// Ones creates a tensor filled with ones.
func Ones[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Ones[float32](shape, backend)
}

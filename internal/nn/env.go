package nn

import (
	"sync"

	"github.com/born-ml/captionvit/internal/tensor"
	"golang.org/x/exp/rand"
)

// Mode switches every dropout site of a model between training (stochastic)
// and inference (identity). One Mode is shared by all blocks of a model.
//
// A new Mode starts in training mode.
type Mode struct {
	mu       sync.Mutex
	training bool
	rng      *rand.Rand
}

// NewMode creates a Mode in training mode whose dropout masks are drawn from
// a generator seeded with seed.
func NewMode(seed uint64) *Mode {
	return &Mode{
		training: true,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Train enables dropout.
func (m *Mode) Train() {
	m.mu.Lock()
	m.training = true
	m.mu.Unlock()
}

// Eval disables dropout.
func (m *Mode) Eval() {
	m.mu.Lock()
	m.training = false
	m.mu.Unlock()
}

// Training reports whether dropout is active.
func (m *Mode) Training() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.training
}

// fillDropoutMask writes an inverted dropout mask into dst: each entry is 0
// with probability p and 1/(1-p) otherwise.
func (m *Mode) fillDropoutMask(dst []float32, p float64) {
	if p >= 1 {
		clear(dst)
		return
	}
	scale := float32(1 / (1 - p))

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range dst {
		if m.rng.Float64() < p {
			dst[i] = 0
		} else {
			dst[i] = scale
		}
	}
}

// Env is the explicit construction context of a model: the compute backend,
// the parameter initializer and the shared dropout Mode.
//
// Example:
//
//	env := nn.NewEnv(autodiff.New(cpu.New()), 42)
//	mha, err := nn.NewMultiHeadAttention(512, 8, 0.1, env)
//	env.Mode.Eval()
type Env[B tensor.Backend] struct {
	Backend B
	Init    *Initializer
	Mode    *Mode
}

// NewEnv creates an Env whose initializer and dropout generator are derived
// from seed.
func NewEnv[B tensor.Backend](backend B, seed uint64) *Env[B] {
	return &Env[B]{
		Backend: backend,
		Init:    NewInitializer(seed),
		Mode:    NewMode(seed + 1),
	}
}

// Package generate provides token selection and the autoregressive decoding
// loop used to turn next-position scores into sequences.
package generate

import (
	"math"
	"slices"
	"sync"
	"time"

	"golang.org/x/exp/rand"
)

// SamplingConfig configures how the next token is picked from a score row.
//
// The zero value is greedy decoding.
type SamplingConfig struct {
	// Temperature controls randomness. 0 = greedy (argmax), 1 = unscaled, >1 = more random.
	Temperature float32 `yaml:"temperature"`

	// TopK limits sampling to the K highest scores. 0 = disabled.
	TopK int `yaml:"top_k"`

	// TopP (nucleus sampling) keeps the smallest set of tokens whose cumulative
	// probability exceeds P. 0 or 1 = disabled.
	TopP float32 `yaml:"top_p"`

	// RepeatPenalty divides positive (multiplies negative) scores of tokens
	// already in the sequence. 0 or 1 = no penalty.
	RepeatPenalty float32 `yaml:"repeat_penalty"`

	// Seed for reproducibility. -1 = seeded from the clock.
	Seed int64 `yaml:"seed"`
}

// GreedyConfig returns the configuration for argmax decoding.
func GreedyConfig() SamplingConfig {
	return SamplingConfig{}
}

// Sampler picks token ids from score rows. It is safe for concurrent use.
type Sampler struct {
	config SamplingConfig
	mu     sync.Mutex
	rng    *rand.Rand
}

// NewSampler creates a new sampler with the given configuration.
func NewSampler(config SamplingConfig) *Sampler {
	seed := uint64(config.Seed) //nolint:gosec // negative seeds are replaced below
	if config.Seed < 0 {
		seed = uint64(time.Now().UnixNano()) //nolint:gosec // clock seed is non-negative
	}
	return &Sampler{
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Greedy reports whether the sampler always picks the argmax.
func (s *Sampler) Greedy() bool {
	return s.config.Temperature == 0
}

// Sample returns the next token id for one score row.
//
// Parameters:
//   - scores: unnormalized scores over the vocabulary
//   - previous: tokens already in the sequence (for the repetition penalty)
//
// Steps:
//  1. Repetition penalty
//  2. Greedy argmax if temperature is 0
//  3. Temperature scaling
//  4. Top-K, then Top-P filtering
//  5. Draw from the resulting distribution
func (s *Sampler) Sample(scores []float32, previous []int32) int32 {
	logits := slices.Clone(scores)

	if p := s.config.RepeatPenalty; p != 0 && p != 1 {
		penalize(logits, previous, p)
	}

	if s.Greedy() {
		return Argmax(logits)
	}

	if s.config.Temperature != 1 {
		for i := range logits {
			logits[i] /= s.config.Temperature
		}
	}

	if k := s.config.TopK; k > 0 && k < len(logits) {
		keepTopK(logits, k)
	}
	if p := s.config.TopP; p > 0 && p < 1 {
		keepNucleus(logits, p)
	}

	return s.draw(softmax(logits))
}

// Argmax returns the index of the largest score; ties go to the lowest index.
func Argmax(scores []float32) int32 {
	best := 0
	for i, v := range scores {
		if v > scores[best] {
			best = i
		}
	}
	return int32(best) //nolint:gosec // vocab size is bounded by model architecture
}

func penalize(logits []float32, previous []int32, penalty float32) {
	seen := make(map[int32]struct{}, len(previous))
	for _, tok := range previous {
		if _, dup := seen[tok]; dup || int(tok) >= len(logits) || tok < 0 {
			continue
		}
		seen[tok] = struct{}{}
		if logits[tok] > 0 {
			logits[tok] /= penalty
		} else {
			logits[tok] *= penalty
		}
	}
}

// keepTopK masks every score below the k-th largest with -Inf.
func keepTopK(logits []float32, k int) {
	sorted := slices.Clone(logits)
	slices.SortFunc(sorted, func(a, b float32) int {
		switch {
		case a > b:
			return -1
		case a < b:
			return 1
		}
		return 0
	})
	threshold := sorted[k-1]
	for i, v := range logits {
		if v < threshold {
			logits[i] = float32(math.Inf(-1))
		}
	}
}

// keepNucleus masks every token outside the smallest high-probability set
// whose mass exceeds p. The most likely token is always kept.
func keepNucleus(logits []float32, p float32) {
	probs := softmax(logits)
	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case probs[a] > probs[b]:
			return -1
		case probs[a] < probs[b]:
			return 1
		}
		return 0
	})

	var mass float32
	cut := len(order)
	for rank, idx := range order {
		mass += probs[idx]
		if mass > p {
			cut = rank + 1
			break
		}
	}
	for _, idx := range order[cut:] {
		logits[idx] = float32(math.Inf(-1))
	}
}

func (s *Sampler) draw(probs []float32) int32 {
	s.mu.Lock()
	r := float32(s.rng.Float64())
	s.mu.Unlock()

	var cum float32
	for i, p := range probs {
		cum += p
		if r < cum {
			return int32(i) //nolint:gosec // vocab size is bounded by model architecture
		}
	}
	// Rounding left r above the total mass.
	for i := len(probs) - 1; i >= 0; i-- {
		if probs[i] > 0 {
			return int32(i) //nolint:gosec // vocab size is bounded by model architecture
		}
	}
	return int32(len(probs) - 1) //nolint:gosec // vocab size is bounded by model architecture
}

// softmax converts logits to probabilities; -Inf entries get probability 0.
func softmax(logits []float32) []float32 {
	maxVal := float32(math.Inf(-1))
	for _, v := range logits {
		maxVal = max(maxVal, v)
	}

	probs := make([]float32, len(logits))
	var sum float64
	for i, v := range logits {
		if math.IsInf(float64(v), -1) {
			continue
		}
		e := math.Exp(float64(v - maxVal))
		probs[i] = float32(e)
		sum += e
	}
	if sum > 0 {
		for i := range probs {
			probs[i] = float32(float64(probs[i]) / sum)
		}
	}
	return probs
}

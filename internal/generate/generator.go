package generate

import (
	"errors"
	"fmt"
)

// ErrInvalidLength is returned when a decode length is not positive.
var ErrInvalidLength = errors.New("generate: length must be positive")

// Model scores the next position of a batch of partial sequences.
type Model interface {
	// NextScores returns one score row [V] per sequence for the position
	// following prefix. prefix is [N][t] with t >= 1.
	NextScores(prefix [][]int32) ([][]float32, error)
}

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(prefix [][]int32) ([][]float32, error)

// NextScores calls f(prefix).
func (f ModelFunc) NextScores(prefix [][]int32) ([][]float32, error) {
	return f(prefix)
}

// Decode generates length tokens per sequence, starting every sequence from
// its start token.
//
// Each step runs the model over the whole prefix, picks one token per row
// with sampler and appends it; steps are inherently sequential. The start
// tokens are not part of the result, so the returned sequences are exactly
// [N][length].
//
// Example:
//
//	sampler := generate.NewSampler(generate.GreedyConfig())
//	tokens, err := generate.Decode(model, []int32{start, start}, 16, sampler)
func Decode(model Model, start []int32, length int, sampler *Sampler) ([][]int32, error) {
	if length <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLength, length)
	}

	prefix := make([][]int32, len(start))
	for i, tok := range start {
		prefix[i] = make([]int32, 1, length+1)
		prefix[i][0] = tok
	}

	for step := 0; step < length; step++ {
		scores, err := model.NextScores(prefix)
		if err != nil {
			return nil, fmt.Errorf("generate: step %d: %w", step, err)
		}
		if len(scores) != len(prefix) {
			return nil, fmt.Errorf("generate: step %d: model returned %d score rows for %d sequences",
				step, len(scores), len(prefix))
		}
		for i, row := range scores {
			prefix[i] = append(prefix[i], sampler.Sample(row, prefix[i]))
		}
	}

	out := make([][]int32, len(prefix))
	for i, seq := range prefix {
		out[i] = seq[1:]
	}
	return out, nil
}

package nn

import (
	"errors"
	"fmt"
)

// ErrConfiguration reports an invalid model construction parameter.
var ErrConfiguration = errors.New("invalid configuration")

// ValidateHeads checks that embedDim splits evenly into numHeads heads.
func ValidateHeads(embedDim, numHeads int) error {
	if embedDim <= 0 || numHeads <= 0 {
		return fmt.Errorf("%w: embed_dim (%d) and num_heads (%d) must be positive",
			ErrConfiguration, embedDim, numHeads)
	}
	if embedDim%numHeads != 0 {
		return fmt.Errorf("%w: embed_dim (%d) must be divisible by num_heads (%d)",
			ErrConfiguration, embedDim, numHeads)
	}
	return nil
}

// ValidateDropout checks that p is a probability.
func ValidateDropout(p float64) error {
	if p < 0 || p > 1 {
		return fmt.Errorf("%w: dropout probability must be in [0, 1], got %g", ErrConfiguration, p)
	}
	return nil
}

func validatePositive(name string, v int) error {
	if v <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %d", ErrConfiguration, name, v)
	}
	return nil
}

package vit

import (
	"fmt"

	"github.com/born-ml/captionvit/internal/nn"
)

// Channels is the number of image channels the classifier accepts (RGB).
const Channels = 3

// DefaultMaxLength is the capacity of the positional encoding table.
const DefaultMaxLength = 5000

// Config holds the construction parameters of a Classifier.
type Config struct {
	PatchDim       int              `yaml:"patch_dim"`       // p: patches are p×p pixels
	NumPatches     int              `yaml:"num_patches"`     // P = (H/p)·(W/p)
	NumClasses     int              `yaml:"num_classes"`     // logits per image
	EmbedDim       int              `yaml:"embed_dim"`       // D
	NumHeads       int              `yaml:"num_heads"`       // H, D % H == 0
	NumLayers      int              `yaml:"num_layers"`      // stacked encoder layers
	FeedForwardDim int              `yaml:"feedforward_dim"` // feed-forward hidden width
	MaxLength      int              `yaml:"max_length"`      // positional encoding capacity, >= P+1
	Dropout        float64          `yaml:"dropout"`
	Attention      nn.AttentionKind `yaml:"attention"`

	Seed uint64 `yaml:"seed"`
}

// DefaultConfig returns a classifier for 32×32 images cut into 16 patches
// of 8×8 pixels and 10 classes.
func DefaultConfig() Config {
	return Config{
		PatchDim:       8,
		NumPatches:     16,
		NumClasses:     10,
		EmbedDim:       256,
		NumHeads:       4,
		NumLayers:      2,
		FeedForwardDim: 2048,
		MaxLength:      DefaultMaxLength,
		Dropout:        0.1,
		Attention:      nn.MultiHead,
	}
}

// PatchSize returns the flattened length of one patch, Channels·p·p.
func (c Config) PatchSize() int {
	return Channels * c.PatchDim * c.PatchDim
}

// LayerConfig returns the shape of each encoder layer.
func (c Config) LayerConfig() nn.LayerConfig {
	return nn.LayerConfig{
		EmbedDim:       c.EmbedDim,
		NumHeads:       c.NumHeads,
		FeedForwardDim: c.FeedForwardDim,
		Dropout:        c.Dropout,
		Attention:      c.Attention,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	for _, f := range []struct {
		name  string
		value int
	}{
		{"patch_dim", c.PatchDim},
		{"num_patches", c.NumPatches},
		{"num_classes", c.NumClasses},
		{"num_layers", c.NumLayers},
		{"max_length", c.MaxLength},
	} {
		if f.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", nn.ErrConfiguration, f.name, f.value)
		}
	}
	// The CLS token takes one extra position.
	if c.NumPatches+1 > c.MaxLength {
		return fmt.Errorf("%w: num_patches (%d) + 1 exceeds max_length (%d)",
			nn.ErrConfiguration, c.NumPatches, c.MaxLength)
	}
	return c.LayerConfig().Validate()
}

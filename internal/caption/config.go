package caption

import (
	"fmt"

	"github.com/born-ml/captionvit/internal/generate"
	"github.com/born-ml/captionvit/internal/nn"
)

// Config holds the construction parameters of a caption Decoder.
type Config struct {
	InputDim       int              `yaml:"input_dim"`       // Dfeat: image feature width
	EmbedDim       int              `yaml:"embed_dim"`       // D
	NumHeads       int              `yaml:"num_heads"`       // H, D % H == 0
	NumLayers      int              `yaml:"num_layers"`      // stacked decoder layers
	FeedForwardDim int              `yaml:"feedforward_dim"` // feed-forward hidden width
	MaxLength      int              `yaml:"max_length"`      // positional encoding capacity
	Dropout        float64          `yaml:"dropout"`         // every dropout site
	Attention      nn.AttentionKind `yaml:"attention"`       // "multi" (default) or "single"

	// Seed drives weight initialization and dropout masks.
	Seed uint64 `yaml:"seed"`

	// Sampling selects the next token in Sample. The zero value is greedy.
	Sampling generate.SamplingConfig `yaml:"sampling"`
}

// DefaultConfig returns the reference captioning model shape:
// 4 heads, 2 layers, captions up to 50 tokens, feed-forward width 2048 and
// dropout 0.1.
func DefaultConfig() Config {
	return Config{
		InputDim:       512,
		EmbedDim:       256,
		NumHeads:       4,
		NumLayers:      2,
		FeedForwardDim: 2048,
		MaxLength:      50,
		Dropout:        0.1,
		Attention:      nn.MultiHead,
	}
}

// LayerConfig returns the shape of each decoder layer.
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
	if c.InputDim <= 0 {
		return fmt.Errorf("%w: input_dim must be positive, got %d", nn.ErrConfiguration, c.InputDim)
	}
	if c.NumLayers <= 0 {
		return fmt.Errorf("%w: num_layers must be positive, got %d", nn.ErrConfiguration, c.NumLayers)
	}
	if c.MaxLength <= 0 {
		return fmt.Errorf("%w: max_length must be positive, got %d", nn.ErrConfiguration, c.MaxLength)
	}
	return c.LayerConfig().Validate()
}

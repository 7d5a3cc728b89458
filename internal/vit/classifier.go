// Package vit implements a Vision Transformer image classifier.
//
// Images are cut into patches, each patch is embedded linearly, a learnable
// CLS token is prepended and the sequence runs through transformer encoder
// layers with full (unmasked) attention. The output at the CLS position is
// mapped to class logits.
//
//	images (N, 3, H, W) ─ Patchify ─▶ (N, P, 3·p·p) ─ Linear ─▶ (N, P, D)
//	    ─ [CLS; patches] ─ PositionalEncoding ─ EncoderLayer × L
//	    ─ out[:, 0] ─ Linear ─▶ logits (N, num_classes)
package vit

import (
	"fmt"
	"strconv"

	"github.com/born-ml/captionvit/internal/nn"
	"github.com/born-ml/captionvit/internal/tensor"
)

const clsTokenKey = "cls_token"

// Classifier is a Vision Transformer classifier.
type Classifier[B tensor.Backend] struct {
	Config Config

	PatchEmbedding     *nn.Linear[B]    // 3·p·p → D
	ClsToken           *nn.Parameter[B] // (1, 1, D)
	PositionalEncoding *nn.PositionalEncoding[B]
	Layers             []*nn.EncoderLayer[B]
	Head               *nn.Linear[B] // D → num_classes

	env *nn.Env[B]
}

// NewClassifier builds a classifier on backend.
//
// Returns an error wrapping nn.ErrConfiguration for an invalid cfg.
func NewClassifier[B tensor.Backend](cfg Config, backend B) (*Classifier[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	env := nn.NewEnv(backend, cfg.Seed)
	layerCfg := cfg.LayerConfig()

	layers := make([]*nn.EncoderLayer[B], cfg.NumLayers)
	for i := range layers {
		layer, err := nn.NewEncoderLayer(layerCfg, env)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		layers[i] = layer
	}

	pe, err := nn.NewPositionalEncoding(cfg.EmbedDim, cfg.MaxLength, cfg.Dropout, env)
	if err != nil {
		return nil, err
	}

	return &Classifier[B]{
		Config:             cfg,
		PatchEmbedding:     nn.NewLinear(cfg.PatchSize(), cfg.EmbedDim, env),
		ClsToken:           nn.NewParameter(clsTokenKey, nn.Normal(env, tensor.Shape{1, 1, cfg.EmbedDim}, 0, 1)),
		PositionalEncoding: pe,
		Layers:             layers,
		Head:               nn.NewLinear(cfg.EmbedDim, cfg.NumClasses, env),
		env:                env,
	}, nil
}

// Mode returns the dropout switch shared by every block of the classifier.
func (c *Classifier[B]) Mode() *nn.Mode {
	return c.env.Mode
}

// Train enables dropout.
func (c *Classifier[B]) Train() {
	c.env.Mode.Train()
}

// Eval disables dropout.
func (c *Classifier[B]) Eval() {
	c.env.Mode.Eval()
}

// Forward computes class logits for images (N, 3, H, W).
//
// H and W must be multiples of PatchDim and the image must yield exactly
// NumPatches patches; otherwise a *tensor.ShapeError is returned.
func (c *Classifier[B]) Forward(images *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], error) {
	shape := images.Shape()
	if len(shape) != 4 || shape[1] != Channels {
		return nil, tensor.NewShapeError("vit", "expected (N, %d, H, W), got %v", Channels, shape)
	}
	patches, err := Patchify(images, c.Config.PatchDim)
	if err != nil {
		return nil, err
	}
	if p := patches.Shape()[1]; p != c.Config.NumPatches {
		return nil, tensor.NewShapeError("vit", "image %dx%d gives %d patches, model expects %d",
			shape[2], shape[3], p, c.Config.NumPatches)
	}
	return c.forward(patches), nil
}

func (c *Classifier[B]) forward(patches *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	n, seqLen, d := patches.Shape()[0], patches.Shape()[1]+1, c.Config.EmbedDim

	embedded := c.PatchEmbedding.Forward(patches) // (N, P, D)
	cls := c.ClsToken.Tensor().Expand(tensor.Shape{n, 1, d})
	x := c.PositionalEncoding.Forward(tensor.Cat([]*tensor.Tensor[float32, B]{cls, embedded}, 1))

	mask := nn.FullMask(seqLen, seqLen, c.env.Backend)
	for _, layer := range c.Layers {
		x = layer.Forward(x, mask)
	}

	return c.Head.Forward(x.Narrow(1, 0, 1).Reshape(n, d))
}

// Predict returns the highest-scoring class of every image.
func (c *Classifier[B]) Predict(images *tensor.Tensor[float32, B]) ([]int32, error) {
	logits, err := c.Forward(images)
	if err != nil {
		return nil, err
	}
	return logits.Argmax(1).Data(), nil
}

// Parameters returns every trainable parameter of the classifier.
func (c *Classifier[B]) Parameters() []*nn.Parameter[B] {
	params := append(c.PatchEmbedding.Parameters(), c.ClsToken)
	params = append(params, c.PositionalEncoding.Parameters()...)
	for _, layer := range c.Layers {
		params = append(params, layer.Parameters()...)
	}
	return append(params, c.Head.Parameters()...)
}

// StateDict returns all parameters keyed by dotted path, e.g.
// "layers.1.ffn.mlp.3.weight" or "cls_token".
func (c *Classifier[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := nn.StateDictOf(c.children()...)
	stateDict[clsTokenKey] = c.ClsToken.Tensor().Raw()
	return stateDict
}

// LoadStateDict restores parameters saved by StateDict.
func (c *Classifier[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := nn.CheckStateDict(c, stateDict); err != nil {
		return err
	}
	if err := c.ClsToken.Load(stateDict[clsTokenKey]); err != nil {
		return err
	}
	return nn.LoadStateDictOf(stateDict, c.children()...)
}

func (c *Classifier[B]) children() []nn.Child {
	children := []nn.Child{
		{Name: "patch_embedding", Module: c.PatchEmbedding},
		{Name: "positional_encoding", Module: c.PositionalEncoding},
		{Name: "head", Module: c.Head},
	}
	for i, layer := range c.Layers {
		children = append(children, nn.Child{Name: "layers." + strconv.Itoa(i), Module: layer})
	}
	return children
}

// Package caption implements the transformer image-caption decoder.
//
// The decoder embeds the caption tokens, adds learned positional encodings,
// and runs a stack of decoder layers that self-attend causally over the
// caption and cross-attend to the projected image feature. A final linear
// layer scores every vocabulary token at every position.
//
//	features (N, Dfeat) ─ Linear ─▶ cond (N, 1, D)
//	captions (N, T) ─ Embedding ─ PositionalEncoding ─▶ (N, T, D)
//	    ─ DecoderLayer × L (causal mask, cond) ─ Linear ─▶ scores (N, T, V)
package caption

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/born-ml/captionvit/internal/generate"
	"github.com/born-ml/captionvit/internal/nn"
	"github.com/born-ml/captionvit/internal/tensor"
)

// ErrTokenOutOfRange is returned when a caption contains an id outside the vocabulary.
var ErrTokenOutOfRange = errors.New("caption: token id out of range")

// Decoder is the transformer caption decoder.
type Decoder[B tensor.Backend] struct {
	Config Config
	Vocab  *Vocabulary

	Layers             []*nn.DecoderLayer[B]
	CaptionEmbedding   *nn.Embedding[B] // padding id = <NULL>
	PositionalEncoding *nn.PositionalEncoding[B]
	FeatureEmbedding   *nn.Linear[B] // Dfeat → D
	ScoreProjection    *nn.Linear[B] // D → V

	env     *nn.Env[B]
	sampler *generate.Sampler
}

// NewDecoder builds a decoder for vocab on backend.
//
// Returns an error wrapping nn.ErrConfiguration for an invalid cfg.
//
// Example:
//
//	vocab, _ := caption.NewVocabulary(map[string]int32{"<NULL>": 0, "<START>": 1, "<END>": 2, "cat": 3})
//	dec, err := caption.NewDecoder(caption.DefaultConfig(), vocab, cpu.New())
//	dec.Eval()
//	ids, err := dec.Sample(features, 20)
func NewDecoder[B tensor.Backend](cfg Config, vocab *Vocabulary, backend B) (*Decoder[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if vocab == nil {
		return nil, fmt.Errorf("%w: nil vocabulary", nn.ErrConfiguration)
	}

	env := nn.NewEnv(backend, cfg.Seed)
	layerCfg := cfg.LayerConfig()

	layers := make([]*nn.DecoderLayer[B], cfg.NumLayers)
	for i := range layers {
		layer, err := nn.NewDecoderLayer(layerCfg, env)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		layers[i] = layer
	}

	pe, err := nn.NewPositionalEncoding(cfg.EmbedDim, cfg.MaxLength, cfg.Dropout, env)
	if err != nil {
		return nil, err
	}

	return &Decoder[B]{
		Config:             cfg,
		Vocab:              vocab,
		Layers:             layers,
		CaptionEmbedding:   nn.NewEmbedding(vocab.Size(), cfg.EmbedDim, int(vocab.Null()), env),
		PositionalEncoding: pe,
		FeatureEmbedding:   nn.NewLinear(cfg.InputDim, cfg.EmbedDim, env),
		ScoreProjection:    nn.NewLinear(cfg.EmbedDim, vocab.Size(), env),
		env:                env,
		sampler:            generate.NewSampler(cfg.Sampling),
	}, nil
}

// Mode returns the dropout switch shared by every block of the decoder.
func (d *Decoder[B]) Mode() *nn.Mode {
	return d.env.Mode
}

// Train enables dropout.
func (d *Decoder[B]) Train() {
	d.env.Mode.Train()
}

// Eval disables dropout.
func (d *Decoder[B]) Eval() {
	d.env.Mode.Eval()
}

// Forward scores every vocabulary token at every caption position.
//
// Shapes: features (N, InputDim) float32, captions (N, T) int32 with
// 1 <= T <= MaxLength → scores (N, T, V).
//
// Position t only sees caption positions <= t (causal mask).
func (d *Decoder[B]) Forward(features *tensor.Tensor[float32, B], captions *tensor.Tensor[int32, B]) (*tensor.Tensor[float32, B], error) {
	if err := d.validate(features, captions); err != nil {
		return nil, err
	}
	return d.forward(features, captions), nil
}

func (d *Decoder[B]) forward(features *tensor.Tensor[float32, B], captions *tensor.Tensor[int32, B]) *tensor.Tensor[float32, B] {
	n, seqLen := captions.Shape()[0], captions.Shape()[1]

	cond := d.FeatureEmbedding.Forward(features).Reshape(n, 1, d.Config.EmbedDim)
	x := d.PositionalEncoding.Forward(d.CaptionEmbedding.Forward(captions))

	mask := nn.CausalMask(seqLen, d.env.Backend)
	for _, layer := range d.Layers {
		x = layer.Forward(x, cond, mask)
	}
	return d.ScoreProjection.Forward(x)
}

func (d *Decoder[B]) validate(features *tensor.Tensor[float32, B], captions *tensor.Tensor[int32, B]) error {
	fShape, cShape := features.Shape(), captions.Shape()
	if len(fShape) != 2 || fShape[1] != d.Config.InputDim {
		return tensor.NewShapeError("caption decoder", "features must be [N, %d], got %v", d.Config.InputDim, fShape)
	}
	if len(cShape) != 2 || cShape[0] != fShape[0] {
		return tensor.NewShapeError("caption decoder", "captions must be [%d, T], got %v", fShape[0], cShape)
	}
	if cShape[1] < 1 || cShape[1] > d.Config.MaxLength {
		return tensor.NewShapeError("caption decoder", "caption length %d outside [1, %d]", cShape[1], d.Config.MaxLength)
	}
	vocabSize := int32(d.Vocab.Size()) //nolint:gosec // vocabulary ids are int32
	for i, id := range captions.Data() {
		if id < 0 || id >= vocabSize {
			return fmt.Errorf("%w: captions[%d][%d] = %d, vocabulary size %d",
				ErrTokenOutOfRange, i/cShape[1], i%cShape[1], id, vocabSize)
		}
	}
	return nil
}

// Sample generates captions of exactly maxLength tokens per image.
//
// Every sequence starts from <START>; at each step the full partial caption
// is run through Forward, the scores of its last position pick the next
// token (argmax unless Config.Sampling says otherwise) and the token is
// appended. The <START> token is not part of the result.
//
// Sampling uses the current Mode, and a new Decoder starts in training mode.
// Results are independent of call order only with Eval and greedy Sampling:
// in training mode dropout masks advance the model's RNG, and temperature or
// top-k sampling draws from a sampler RNG that persists across calls.
// Gradients are not recorded on autodiff backends.
//
// Returns an error wrapping nn.ErrConfiguration if the vocabulary has no
// <START> token and tensor.ErrShapeMismatch if maxLength exceeds MaxLength.
func (d *Decoder[B]) Sample(features *tensor.Tensor[float32, B], maxLength int) (*tensor.Tensor[int32, B], error) {
	start, ok := d.Vocab.Start()
	if !ok {
		return nil, fmt.Errorf("%w: sampling needs a %s token", nn.ErrConfiguration, StartToken)
	}
	if maxLength <= 0 || maxLength > d.Config.MaxLength {
		return nil, tensor.NewShapeError("caption sample", "max_length %d outside [1, %d]", maxLength, d.Config.MaxLength)
	}
	fShape := features.Shape()
	if len(fShape) != 2 || fShape[1] != d.Config.InputDim {
		return nil, tensor.NewShapeError("caption sample", "features must be [N, %d], got %v", d.Config.InputDim, fShape)
	}

	if ng, ok := any(d.env.Backend).(interface{ NoGrad() func() }); ok {
		defer ng.NoGrad()()
	}

	n := fShape[0]
	starts := make([]int32, n)
	for i := range starts {
		starts[i] = start
	}

	sequences, err := generate.Decode(generate.ModelFunc(func(prefix [][]int32) ([][]float32, error) {
		return d.nextScores(features, prefix)
	}), starts, maxLength, d.sampler)
	if err != nil {
		return nil, err
	}

	flat := make([]int32, 0, n*maxLength)
	for _, seq := range sequences {
		flat = append(flat, seq...)
	}
	return tensor.FromSlice(flat, tensor.Shape{n, maxLength}, d.env.Backend)
}

// nextScores runs the decoder over prefix and returns the scores of the
// last position of every sequence.
func (d *Decoder[B]) nextScores(features *tensor.Tensor[float32, B], prefix [][]int32) ([][]float32, error) {
	n, t := len(prefix), len(prefix[0])
	flat := make([]int32, 0, n*t)
	for _, seq := range prefix {
		flat = append(flat, seq...)
	}
	captions, err := tensor.FromSlice(flat, tensor.Shape{n, t}, d.env.Backend)
	if err != nil {
		return nil, err
	}

	scores, err := d.Forward(features, captions)
	if err != nil {
		return nil, err
	}

	vocabSize := d.Vocab.Size()
	last := scores.Narrow(1, t-1, 1).Data() // (N, 1, V)
	rows := make([][]float32, n)
	for i := range rows {
		rows[i] = last[i*vocabSize : (i+1)*vocabSize]
	}
	return rows, nil
}

// Parameters returns every trainable parameter of the decoder.
func (d *Decoder[B]) Parameters() []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, layer := range d.Layers {
		params = append(params, layer.Parameters()...)
	}
	params = append(params, d.CaptionEmbedding.Parameters()...)
	params = append(params, d.PositionalEncoding.Parameters()...)
	params = append(params, d.FeatureEmbedding.Parameters()...)
	return append(params, d.ScoreProjection.Parameters()...)
}

// StateDict returns all parameters keyed by dotted path, e.g.
// "layers.0.self_attn.attn.proj.weight" or "score_projection.bias".
func (d *Decoder[B]) StateDict() map[string]*tensor.RawTensor {
	return nn.StateDictOf(d.children()...)
}

// LoadStateDict restores parameters saved by StateDict.
func (d *Decoder[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return nn.LoadStateDictOf(stateDict, d.children()...)
}

func (d *Decoder[B]) children() []nn.Child {
	children := make([]nn.Child, 0, len(d.Layers)+4)
	for i, layer := range d.Layers {
		children = append(children, nn.Child{Name: "layers." + strconv.Itoa(i), Module: layer})
	}
	return append(children,
		nn.Child{Name: "caption_embedding", Module: d.CaptionEmbedding},
		nn.Child{Name: "positional_encoding", Module: d.PositionalEncoding},
		nn.Child{Name: "feature_embedding", Module: d.FeatureEmbedding},
		nn.Child{Name: "score_projection", Module: d.ScoreProjection},
	)
}

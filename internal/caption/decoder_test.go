package caption

import (
	"testing"

	"github.com/born-ml/captionvit/internal/autodiff"
	"github.com/born-ml/captionvit/internal/backend/cpu"
	"github.com/born-ml/captionvit/internal/generate"
	"github.com/born-ml/captionvit/internal/nn"
	"github.com/born-ml/captionvit/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func testConfig() Config {
	return Config{
		InputDim:       6,
		EmbedDim:       8,
		NumHeads:       2,
		NumLayers:      1,
		FeedForwardDim: 16,
		MaxLength:      10,
		Dropout:        0.1,
		Attention:      nn.MultiHead,
		Seed:           3,
	}
}

func newTestDecoder(t *testing.T, cfg Config) *Decoder[*cpu.CPUBackend] {
	t.Helper()
	vocab, err := NewVocabulary(testWords())
	require.NoError(t, err)
	dec, err := NewDecoder(cfg, vocab, cpu.New())
	require.NoError(t, err)
	dec.Eval()
	return dec
}

func randomFeatures(t *testing.T, n, dim int, seed uint64) *tensor.Tensor[float32, *cpu.CPUBackend] {
	t.Helper()
	return tensor.RandNormal(tensor.Shape{n, dim}, 0, 1, rand.New(rand.NewSource(seed)), cpu.New())
}

func TestDecoder_ForwardShape(t *testing.T) {
	dec := newTestDecoder(t, testConfig())

	features := randomFeatures(t, 2, 6, 1)
	captions, err := tensor.FromSlice([]int32{
		1, 2, 2, 3, 0,
		1, 2, 3, 0, 0,
	}, tensor.Shape{2, 5}, dec.env.Backend)
	require.NoError(t, err)

	scores, err := dec.Forward(features, captions)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 5, 4}, scores.Shape())
}

func TestDecoder_ForwardIsCausal(t *testing.T) {
	dec := newTestDecoder(t, testConfig())
	features := randomFeatures(t, 1, 6, 2)

	a, err := tensor.FromSlice([]int32{1, 2, 2}, tensor.Shape{1, 3}, dec.env.Backend)
	require.NoError(t, err)
	b, err := tensor.FromSlice([]int32{1, 2, 3}, tensor.Shape{1, 3}, dec.env.Backend)
	require.NoError(t, err)

	sa, err := dec.Forward(features, a)
	require.NoError(t, err)
	sb, err := dec.Forward(features, b)
	require.NoError(t, err)

	// Positions 0 and 1 cannot see the differing last token.
	assert.InDeltaSlice(t, sa.Data()[:2*4], sb.Data()[:2*4], 1e-6)
	assert.NotEqual(t, sa.Data()[2*4:], sb.Data()[2*4:])
}

func TestDecoder_ForwardErrors(t *testing.T) {
	dec := newTestDecoder(t, testConfig())
	backend := dec.env.Backend
	features := randomFeatures(t, 1, 6, 3)

	captions := func(ids []int32, shape tensor.Shape) *tensor.Tensor[int32, *cpu.CPUBackend] {
		c, err := tensor.FromSlice(ids, shape, backend)
		require.NoError(t, err)
		return c
	}

	_, err := dec.Forward(randomFeatures(t, 1, 5, 4), captions([]int32{1}, tensor.Shape{1, 1}))
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)

	_, err = dec.Forward(features, captions([]int32{1, 1}, tensor.Shape{2, 1}))
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)

	_, err = dec.Forward(features, captions(make([]int32, 11), tensor.Shape{1, 11}))
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)

	_, err = dec.Forward(features, captions([]int32{1, 4}, tensor.Shape{1, 2}))
	assert.ErrorIs(t, err, ErrTokenOutOfRange)
}

func TestDecoder_SampleScenario(t *testing.T) {
	dec := newTestDecoder(t, testConfig())
	features := randomFeatures(t, 1, 6, 5)

	first, err := dec.Sample(features, 3)
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{1, 3}, first.Shape())
	for _, id := range first.Data() {
		assert.GreaterOrEqual(t, id, int32(0))
		assert.Less(t, id, int32(4))
	}

	// Unrelated calls in between leave no trace.
	_, err = dec.Sample(randomFeatures(t, 2, 6, 6), 5)
	require.NoError(t, err)

	again, err := dec.Sample(features, 3)
	require.NoError(t, err)
	assert.Equal(t, first.Data(), again.Data())
}

func TestDecoder_SampleAfterTrainingCalls(t *testing.T) {
	vocab, err := NewVocabulary(testWords())
	require.NoError(t, err)
	dec, err := NewDecoder(testConfig(), vocab, cpu.New())
	require.NoError(t, err)
	require.True(t, dec.Mode().Training(), "a new decoder starts in training mode")

	features := randomFeatures(t, 2, 6, 7)
	noisy, err := dec.Sample(features, 4)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 4}, noisy.Shape())

	// Dropout draws made in training mode do not leak into eval sampling.
	dec.Eval()
	got, err := dec.Sample(features, 4)
	require.NoError(t, err)
	want, err := newTestDecoder(t, testConfig()).Sample(features, 4)
	require.NoError(t, err)
	assert.Equal(t, want.Data(), got.Data())
}

// TestDecoder_SampleIsGreedyForward replays the decoding loop by hand.
func TestDecoder_SampleIsGreedyForward(t *testing.T) {
	dec := newTestDecoder(t, testConfig())
	features := randomFeatures(t, 2, 6, 7)
	const maxLength = 4

	sampled, err := dec.Sample(features, maxLength)
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{2, maxLength}, sampled.Shape())

	prefix := [][]int32{{1}, {1}}
	for step := 0; step < maxLength; step++ {
		flat := append(append([]int32(nil), prefix[0]...), prefix[1]...)
		captions, err := tensor.FromSlice(flat, tensor.Shape{2, step + 1}, dec.env.Backend)
		require.NoError(t, err)
		scores, err := dec.Forward(features, captions)
		require.NoError(t, err)

		last := scores.Narrow(1, step, 1).Argmax(2).Data() // (2, 1)
		for i := range prefix {
			prefix[i] = append(prefix[i], last[i])
		}
	}

	assert.Equal(t, append(prefix[0][1:], prefix[1][1:]...), sampled.Data())
}

func TestDecoder_SampleErrors(t *testing.T) {
	dec := newTestDecoder(t, testConfig())
	features := randomFeatures(t, 1, 6, 8)

	_, err := dec.Sample(features, 11)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)

	_, err = dec.Sample(features, 0)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)

	_, err = dec.Sample(randomFeatures(t, 1, 3, 9), 2)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)

	vocab, err := NewVocabulary(map[string]int32{"<NULL>": 0, "a": 1, "<END>": 2})
	require.NoError(t, err)
	noStart, err := NewDecoder(testConfig(), vocab, cpu.New())
	require.NoError(t, err)
	_, err = noStart.Sample(features, 2)
	assert.ErrorIs(t, err, nn.ErrConfiguration)
}

func TestDecoder_SampleWithTopK(t *testing.T) {
	cfg := testConfig()
	cfg.Sampling = generate.SamplingConfig{Temperature: 1, TopK: 2, Seed: 1}
	dec := newTestDecoder(t, cfg)

	out, err := dec.Sample(randomFeatures(t, 3, 6, 10), 6)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 6}, out.Shape())
	for _, id := range out.Data() {
		assert.True(t, id >= 0 && id < 4)
	}
}

func TestNewDecoder_InvalidConfig(t *testing.T) {
	vocab, err := NewVocabulary(testWords())
	require.NoError(t, err)

	cfg := testConfig()
	cfg.NumHeads = 3
	_, err = NewDecoder(cfg, vocab, cpu.New())
	assert.ErrorIs(t, err, nn.ErrConfiguration)

	cfg = testConfig()
	cfg.InputDim = 0
	_, err = NewDecoder(cfg, vocab, cpu.New())
	assert.ErrorIs(t, err, nn.ErrConfiguration)

	_, err = NewDecoder[*cpu.CPUBackend](testConfig(), nil, cpu.New())
	assert.ErrorIs(t, err, nn.ErrConfiguration)

	assert.NoError(t, DefaultConfig().Validate())
}

func TestDecoder_StateDict(t *testing.T) {
	cfg := testConfig()
	src := newTestDecoder(t, cfg)
	cfg.Seed = 99
	dst := newTestDecoder(t, cfg)

	state := src.StateDict()
	assert.Len(t, state, len(src.Parameters()))
	for _, key := range []string{
		"layers.0.self_attn.attn.proj.weight",
		"layers.0.cross_attn.norm.bias",
		"layers.0.ffn.mlp.0.weight",
		"caption_embedding.weight",
		"positional_encoding.encoding.weight",
		"feature_embedding.weight",
		"score_projection.bias",
	} {
		assert.Contains(t, state, key)
	}

	features := randomFeatures(t, 1, 6, 11)
	require.NoError(t, dst.LoadStateDict(state))
	want, err := src.Sample(features, 5)
	require.NoError(t, err)
	got, err := dst.Sample(features, 5)
	require.NoError(t, err)
	assert.Equal(t, want.Data(), got.Data())
}

func TestDecoder_PaddingTokenGetsNoGradient(t *testing.T) {
	vocab, err := NewVocabulary(testWords())
	require.NoError(t, err)
	backend := autodiff.New(cpu.New())
	dec, err := NewDecoder(testConfig(), vocab, backend)
	require.NoError(t, err)
	dec.Eval()

	features := tensor.RandNormal(tensor.Shape{1, 6}, 0, 1, rand.New(rand.NewSource(12)), backend)
	captions, err := tensor.FromSlice([]int32{1, 2, 0, 0}, tensor.Shape{1, 4}, backend)
	require.NoError(t, err)

	backend.Tape().StartRecording()
	scores, err := dec.Forward(features, captions)
	require.NoError(t, err)
	grads := autodiff.Backward(scores.Mul(scores), backend)

	g := grads[dec.CaptionEmbedding.Weight.Tensor().Raw()].AsFloat32()
	const dim = 8
	assert.Equal(t, make([]float32, dim), g[0:dim], "<NULL> row")
	assert.NotEqual(t, make([]float32, dim), g[2*dim:3*dim], "used token row")

	// Sampling does not record.
	before := backend.Tape().NumOps()
	_, err = dec.Sample(features, 2)
	require.NoError(t, err)
	assert.Equal(t, before, backend.Tape().NumOps())
}

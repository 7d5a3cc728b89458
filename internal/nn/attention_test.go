package nn

import (
	"errors"
	"math"
	"testing"

	"github.com/born-ml/captionvit/internal/backend/cpu"
	"github.com/born-ml/captionvit/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cpuBackend = cpu.CPUBackend

// newEvalEnv returns a CPU environment with dropout disabled.
func newEvalEnv(seed uint64) *Env[*cpu.CPUBackend] {
	env := NewEnv(cpu.New(), seed)
	env.Mode.Eval()
	return env
}

func TestCausalMask_Values(t *testing.T) {
	backend := cpu.New()
	const L = 5
	mask := CausalMask(L, backend)

	require.Equal(t, tensor.Shape{L, L}, mask.Shape())
	for i := 0; i < L; i++ {
		for j := 0; j < L; j++ {
			if got, want := mask.At(i, j), j <= i; got != want {
				t.Errorf("mask[%d][%d] = %v, want %v", i, j, got, want)
			}
		}
	}
	assert.True(t, mask.At(0, 0))
	assert.False(t, mask.At(0, 1))
}

func TestAdditiveMask(t *testing.T) {
	backend := cpu.New()
	bias := AdditiveMask(CausalMask(2, backend))
	assert.Equal(t, []float32{0, MaskFill, 0, 0}, bias.Data())

	full := AdditiveMask(FullMask(2, 3, backend))
	assert.Equal(t, make([]float32, 6), full.Data())
}

func TestAttention_ProbabilitiesMasked(t *testing.T) {
	env := newEvalEnv(1)
	const batch, seq, dim = 2, 4, 8

	attn, err := NewAttention(dim, 0.1, env)
	require.NoError(t, err)

	x := Normal(env, tensor.Shape{batch, seq, dim}, 0, 1)
	out, weights := attn.ForwardWithWeights(x, x, x, CausalMask(seq, env.Backend))

	assert.Equal(t, tensor.Shape{batch, seq, dim}, out.Shape())
	require.Equal(t, tensor.Shape{batch, seq, seq}, weights.Shape())
	assertMaskedRows(t, weights.Data(), batch, seq, seq)
}

func TestMultiHeadAttention_ProbabilitiesMasked(t *testing.T) {
	env := newEvalEnv(2)
	const batch, seq, dim, heads = 2, 5, 12, 3

	mha, err := NewMultiHeadAttention(dim, heads, 0.1, env)
	require.NoError(t, err)

	x := Normal(env, tensor.Shape{batch, seq, dim}, 0, 1)
	_, weights := mha.ForwardWithWeights(x, x, x, CausalMask(seq, env.Backend))

	require.Equal(t, tensor.Shape{batch, heads, seq, seq}, weights.Shape())
	assertMaskedRows(t, weights.Data(), batch*heads, seq, seq)
}

// assertMaskedRows checks that every [rows, cols] matrix is a causal
// probability matrix: rows sum to one and entries above the diagonal are ≈0.
func assertMaskedRows(t *testing.T, probs []float32, matrices, rows, cols int) {
	t.Helper()
	for m := 0; m < matrices; m++ {
		for i := 0; i < rows; i++ {
			row := probs[(m*rows+i)*cols : (m*rows+i+1)*cols]
			var sum float64
			for j, p := range row {
				sum += float64(p)
				if j > i && p > 1e-6 {
					t.Errorf("matrix %d: masked weight [%d][%d] = %g", m, i, j, p)
				}
			}
			assert.InDelta(t, 1.0, sum, 1e-5, "matrix %d row %d", m, i)
		}
	}
}

func TestMultiHeadAttention_OutputShape(t *testing.T) {
	env := newEvalEnv(3)
	const batch, seqQ, seqK, dim = 2, 5, 7, 12

	query := Normal(env, tensor.Shape{batch, seqQ, dim}, 0, 1)
	cond := Normal(env, tensor.Shape{batch, seqK, dim}, 0, 1)

	for _, heads := range []int{1, 2, 3, 4, 6, 12} {
		mha, err := NewMultiHeadAttention(dim, heads, 0, env)
		require.NoError(t, err)
		assert.Equal(t, dim/heads, mha.HeadDim)

		self := mha.Forward(query, query, query, CausalMask(seqQ, env.Backend))
		assert.Equal(t, tensor.Shape{batch, seqQ, dim}, self.Shape(), "heads=%d", heads)

		cross := mha.Forward(query, cond, cond, nil)
		assert.Equal(t, tensor.Shape{batch, seqQ, dim}, cross.Shape(), "heads=%d", heads)
	}
}

func TestMultiHeadAttention_NotDivisible(t *testing.T) {
	env := newEvalEnv(4)

	mha, err := NewMultiHeadAttention(10, 3, 0.1, env)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Nil(t, mha)

	_, err = NewAttender(MultiHead, 10, 3, 0.1, env)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewMultiHeadAttention(8, 2, 1.5, env)
	assert.ErrorIs(t, err, ErrConfiguration)
}

// TestMultiHeadAttention_SharedProjectionFullScale pins the projection and
// checks the output against a direct computation that reuses one projection
// for q, k and v and scales every head by 1/sqrt(D).
func TestMultiHeadAttention_SharedProjectionFullScale(t *testing.T) {
	env := newEvalEnv(5)
	const seq, dim, heads = 3, 4, 2
	const headDim = dim / heads

	mha, err := NewMultiHeadAttention(dim, heads, 0, env)
	require.NoError(t, err)

	// Identity projection: P(x) = x.
	w := mha.Proj.Weight().Tensor().Data()
	clear(w)
	for i := 0; i < dim; i++ {
		w[i*dim+i] = 1
	}

	xData := []float32{
		0.5, -1.0, 0.25, 2.0,
		1.5, 0.0, -0.5, 1.0,
		-1.0, 0.75, 1.0, -0.25,
	}
	x, err := tensor.FromSlice(xData, tensor.Shape{1, seq, dim}, env.Backend)
	require.NoError(t, err)

	got := mha.Forward(x, x, x, nil).Data()

	scale := 1 / math.Sqrt(dim)
	for h := 0; h < heads; h++ {
		for i := 0; i < seq; i++ {
			scores := make([]float64, seq)
			maxScore := math.Inf(-1)
			for j := 0; j < seq; j++ {
				var dot float64
				for d := 0; d < headDim; d++ {
					dot += float64(xData[i*dim+h*headDim+d]) * float64(xData[j*dim+h*headDim+d])
				}
				scores[j] = dot * scale
				maxScore = math.Max(maxScore, scores[j])
			}
			var total float64
			for j := range scores {
				scores[j] = math.Exp(scores[j] - maxScore)
				total += scores[j]
			}
			for d := 0; d < headDim; d++ {
				var want float64
				for j := 0; j < seq; j++ {
					want += scores[j] / total * float64(xData[j*dim+h*headDim+d])
				}
				assert.InDelta(t, want, got[i*dim+h*headDim+d], 1e-5, "head %d pos %d ch %d", h, i, d)
			}
		}
	}
}

func TestAttention_SeparateProjections(t *testing.T) {
	env := newEvalEnv(6)
	attn, err := NewAttention(6, 0, env)
	require.NoError(t, err)

	assert.Len(t, attn.Parameters(), 6)
	assert.NotEqual(t, attn.QueryProj.Weight().Tensor().Data(), attn.KeyProj.Weight().Tensor().Data())

	keys := make([]string, 0)
	for k := range attn.StateDict() {
		keys = append(keys, k)
	}
	assert.ElementsMatch(t, []string{
		"query_proj.weight", "query_proj.bias",
		"key_proj.weight", "key_proj.bias",
		"value_proj.weight", "value_proj.bias",
	}, keys)
}

func TestAttention_ShapeErrors(t *testing.T) {
	env := newEvalEnv(7)
	mha, err := NewMultiHeadAttention(8, 2, 0, env)
	require.NoError(t, err)
	single, err := NewAttention(8, 0, env)
	require.NoError(t, err)

	q := Zeros(tensor.Shape{1, 3, 8}, env.Backend)
	k := Zeros(tensor.Shape{1, 4, 8}, env.Backend)
	v := Zeros(tensor.Shape{1, 5, 8}, env.Backend)

	for name, attn := range map[string]Attender[*cpu.CPUBackend]{"multi": mha, "single": single} {
		t.Run(name+"/key_value", func(t *testing.T) {
			assertShapePanic(t, func() { attn.Forward(q, k, v, nil) })
		})
		t.Run(name+"/mask", func(t *testing.T) {
			assertShapePanic(t, func() { attn.Forward(q, k, k, CausalMask(3, env.Backend)) })
		})
		t.Run(name+"/embed_dim", func(t *testing.T) {
			wide := Zeros(tensor.Shape{1, 3, 6}, env.Backend)
			assertShapePanic(t, func() { attn.Forward(wide, wide, wide, nil) })
		})
	}
}

func TestAttention_BroadcastMask(t *testing.T) {
	env := newEvalEnv(9)
	mha, err := NewMultiHeadAttention(4, 2, 0, env)
	require.NoError(t, err)
	single, err := NewAttention(4, 0, env)
	require.NoError(t, err)

	x := Normal(env, tensor.Shape{1, 3, 4}, 0, 1)
	row, err := tensor.FromSlice([]bool{true, true, false}, tensor.Shape{1, 3}, env.Backend)
	require.NoError(t, err)
	full, err := tensor.FromSlice([]bool{
		true, true, false,
		true, true, false,
		true, true, false,
	}, tensor.Shape{3, 3}, env.Backend)
	require.NoError(t, err)

	for name, attn := range map[string]Attender[*cpu.CPUBackend]{"multi": mha, "single": single} {
		t.Run(name, func(t *testing.T) {
			got := attn.Forward(x, x, x, row)
			want := attn.Forward(x, x, x, full)
			assert.Equal(t, tensor.Shape{1, 3, 4}, got.Shape())
			assert.InDeltaSlice(t, want.Data(), got.Data(), 1e-6)
		})
	}

	_, weights := mha.ForwardWithWeights(x, x, x, row)
	probs := weights.Data()
	for r := 0; r < len(probs)/3; r++ {
		assert.InDelta(t, 0, probs[r*3+2], 1e-6, "row %d attends a masked key", r)
	}

	wrong, err := tensor.FromSlice([]bool{true, true}, tensor.Shape{1, 2}, env.Backend)
	require.NoError(t, err)
	assertShapePanic(t, func() { mha.Forward(x, x, x, wrong) })
}

func assertShapePanic(t *testing.T, f func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected panic")
		err, ok := r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
		assert.True(t, errors.Is(err, tensor.ErrShapeMismatch), "got %v", err)
	}()
	f()
}

func TestNewAttender(t *testing.T) {
	env := newEvalEnv(8)

	multi, err := NewAttender(MultiHead, 8, 4, 0.1, env)
	require.NoError(t, err)
	assert.IsType(t, &MultiHeadAttention[*cpu.CPUBackend]{}, multi)

	def, err := NewAttender("", 8, 4, 0.1, env)
	require.NoError(t, err)
	assert.IsType(t, &MultiHeadAttention[*cpu.CPUBackend]{}, def)

	single, err := NewAttender(SingleHead, 8, 0, 0.1, env)
	require.NoError(t, err)
	assert.IsType(t, &Attention[*cpu.CPUBackend]{}, single)

	_, err = NewAttender("sparse", 8, 4, 0.1, env)
	assert.ErrorIs(t, err, ErrConfiguration)
}

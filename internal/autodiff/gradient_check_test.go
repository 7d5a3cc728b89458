package autodiff_test

import (
	"math"
	"testing"

	"github.com/born-ml/captionvit/internal/autodiff"
	"github.com/born-ml/captionvit/internal/backend/cpu"
	"github.com/born-ml/captionvit/internal/tensor"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

type adBackend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

type adTensor = tensor.Tensor[float32, adBackend]

// checkGradient compares the autodiff gradient of L = Σ f(x) ⊙ w against
// central finite differences, with w a fixed random weighting of the output.
func checkGradient(t *testing.T, x0 []float32, shape tensor.Shape, f func(x *adTensor) *adTensor) {
	t.Helper()
	const eps = 1e-2

	rng := rand.New(rand.NewSource(11))

	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()
	x, err := tensor.FromSlice(x0, shape, backend)
	require.NoError(t, err)
	y := f(x)

	upstream := tensor.RandNormal(y.Shape(), 0, 1, rng, backend.Inner())
	grads := autodiff.BackwardFrom(y.Raw(), upstream.Raw(), backend)
	gx, ok := grads[x.Raw()]
	require.True(t, ok, "no gradient reached the input")
	require.Equal(t, shape, gx.Shape())

	// Loss evaluation without recording.
	eval := autodiff.New(cpu.New())
	loss := func(vals []float32) float64 {
		in, err := tensor.FromSlice(vals, shape, eval)
		require.NoError(t, err)
		out := f(in).Data()
		w := upstream.Data()
		var sum float64
		for i := range out {
			sum += float64(out[i]) * float64(w[i])
		}
		return sum
	}

	analytic := gx.AsFloat32()
	for i := range x0 {
		plus := append([]float32(nil), x0...)
		minus := append([]float32(nil), x0...)
		plus[i] += eps
		minus[i] -= eps
		numeric := (loss(plus) - loss(minus)) / (2 * eps)

		diff := math.Abs(numeric - float64(analytic[i]))
		if diff > 2e-2*math.Max(1, math.Abs(numeric)) {
			t.Errorf("grad[%d]: autodiff %.5f, numerical %.5f", i, analytic[i], numeric)
		}
	}
}

func randomInput(n int, seed uint64) []float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(rng.NormFloat64())
	}
	return out
}

func TestGradient_MulBroadcast(t *testing.T) {
	checkGradient(t, randomInput(6, 1), tensor.Shape{2, 3}, func(x *adTensor) *adTensor {
		bias := x.Narrow(0, 0, 1) // [1, 3], broadcast back over rows
		return x.Mul(bias).Add(x)
	})
}

func TestGradient_BatchMatMul(t *testing.T) {
	checkGradient(t, randomInput(2*3*4, 2), tensor.Shape{2, 3, 4}, func(x *adTensor) *adTensor {
		return x.BatchMatMul(x.SwapLast())
	})
}

func TestGradient_MatMulTranspose(t *testing.T) {
	checkGradient(t, randomInput(12, 3), tensor.Shape{3, 4}, func(x *adTensor) *adTensor {
		return x.MatMul(x.T()).MulScalar(0.5)
	})
}

func TestGradient_HeadSplitRoundTrip(t *testing.T) {
	checkGradient(t, randomInput(2*3*4, 4), tensor.Shape{2, 3, 4}, func(x *adTensor) *adTensor {
		heads := x.Reshape(2, 3, 2, 2).Transpose(0, 2, 1, 3)
		return heads.Mul(heads).Transpose(0, 2, 1, 3).Reshape(2, 3, 4)
	})
}

func TestGradient_Softmax(t *testing.T) {
	checkGradient(t, randomInput(2*2*5, 5), tensor.Shape{2, 2, 5}, func(x *adTensor) *adTensor {
		return x.Softmax(-1)
	})
}

func TestGradient_LayerNormComposite(t *testing.T) {
	checkGradient(t, randomInput(3*6, 6), tensor.Shape{3, 6}, func(x *adTensor) *adTensor {
		centered := x.Sub(x.MeanDim(-1, true))
		variance := centered.Mul(centered).MeanDim(-1, true)
		return centered.Mul(variance.AddScalar(1e-5).Rsqrt())
	})
}

func TestGradient_NarrowCatExpand(t *testing.T) {
	checkGradient(t, randomInput(2*3*2, 7), tensor.Shape{2, 3, 2}, func(x *adTensor) *adTensor {
		first := x.Narrow(1, 0, 1)
		cls := first.SumDim(0, true).Expand(tensor.Shape{2, 1, 2})
		return tensor.Cat([]*adTensor{cls, x.Narrow(1, 1, 2)}, 1)
	})
}

package cpu

import (
	"math"
	"testing"

	"github.com/born-ml/captionvit/internal/parallel"
	"github.com/born-ml/captionvit/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawF32(t *testing.T, data []float32, shape ...int) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(tensor.Shape(shape), tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(raw.AsFloat32(), data)
	return raw
}

func seq(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i)
	}
	return out
}

func assertClose(t *testing.T, want, got []float32, tol float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		if math.Abs(float64(want[i]-got[i])) > tol {
			t.Fatalf("index %d: want %v, got %v", i, want[i], got[i])
		}
	}
}

func TestNameAndDevice(t *testing.T) {
	b := New()
	assert.Equal(t, "CPU", b.Name())
	assert.Equal(t, tensor.CPU, b.Device())
}

func TestAddBroadcast(t *testing.T) {
	b := New()
	x := rawF32(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	bias := rawF32(t, []float32{10, 20, 30}, 3)

	out := b.Add(x, bias)
	assert.Equal(t, tensor.Shape{2, 3}, out.Shape())
	assertClose(t, []float32{11, 22, 33, 14, 25, 36}, out.AsFloat32(), 0)

	// Inputs are never modified.
	assertClose(t, []float32{1, 2, 3, 4, 5, 6}, x.AsFloat32(), 0)
}

func TestSubMulColumnBroadcast(t *testing.T) {
	b := New()
	x := rawF32(t, []float32{1, 2, 3, 4}, 2, 2)
	col := rawF32(t, []float32{1, 2}, 2, 1)

	assertClose(t, []float32{0, 1, 1, 2}, b.Sub(x, col).AsFloat32(), 0)
	assertClose(t, []float32{1, 2, 6, 8}, b.Mul(x, col).AsFloat32(), 0)
}

func TestBinaryShapeMismatchPanics(t *testing.T) {
	b := New()
	x := rawF32(t, seq(6), 2, 3)
	y := rawF32(t, seq(8), 2, 4)

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
	}()
	b.Add(x, y)
}

func TestMatMul(t *testing.T) {
	b := New()
	x := rawF32(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	y := rawF32(t, []float32{7, 8, 9, 10, 11, 12}, 3, 2)

	out := b.MatMul(x, y)
	assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
	assertClose(t, []float32{58, 64, 139, 154}, out.AsFloat32(), 1e-5)

	assert.Panics(t, func() { b.MatMul(x, x) })
}

func TestBatchMatMulMatchesPerBatchMatMul(t *testing.T) {
	b := NewWithConfig(parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1})

	x := rawF32(t, seq(2*3*4*5), 2, 3, 4, 5)
	y := rawF32(t, seq(2*3*5*2), 2, 3, 5, 2)

	out := b.BatchMatMul(x, y)
	require.Equal(t, tensor.Shape{2, 3, 4, 2}, out.Shape())

	for batch := 0; batch < 6; batch++ {
		xa := rawF32(t, x.AsFloat32()[batch*20:(batch+1)*20], 4, 5)
		ya := rawF32(t, y.AsFloat32()[batch*10:(batch+1)*10], 5, 2)
		want := b.MatMul(xa, ya).AsFloat32()
		assertClose(t, want, out.AsFloat32()[batch*8:(batch+1)*8], 1e-3)
	}
}

func TestReshape(t *testing.T) {
	b := New()
	x := rawF32(t, seq(6), 2, 3)
	r := b.Reshape(x, tensor.Shape{3, 2})
	assert.Equal(t, tensor.Shape{3, 2}, r.Shape())
	assertClose(t, seq(6), r.AsFloat32(), 0)
	assert.Panics(t, func() { b.Reshape(x, tensor.Shape{4, 2}) })
}

func TestTranspose(t *testing.T) {
	b := New()
	x := rawF32(t, seq(6), 2, 3)

	out := b.Transpose(x)
	assert.Equal(t, tensor.Shape{3, 2}, out.Shape())
	assertClose(t, []float32{0, 3, 1, 4, 2, 5}, out.AsFloat32(), 0)
}

func TestTransposeHeadSplit(t *testing.T) {
	b := New()
	// [N=1, S=2, H=2, Dh=2] -> [N, H, S, Dh]
	x := rawF32(t, seq(8), 1, 2, 2, 2)

	out := b.Transpose(x, 0, 2, 1, 3)
	assert.Equal(t, tensor.Shape{1, 2, 2, 2}, out.Shape())
	assertClose(t, []float32{0, 1, 4, 5, 2, 3, 6, 7}, out.AsFloat32(), 0)

	back := b.Transpose(out, 0, 2, 1, 3)
	assertClose(t, seq(8), back.AsFloat32(), 0)
}

func TestExpand(t *testing.T) {
	b := New()
	cls := rawF32(t, []float32{1, 2}, 1, 1, 2)

	out := b.Expand(cls, tensor.Shape{3, 1, 2})
	assertClose(t, []float32{1, 2, 1, 2, 1, 2}, out.AsFloat32(), 0)
	assert.Panics(t, func() { b.Expand(cls, tensor.Shape{3, 1, 3}) })
}

func TestNarrowAndCat(t *testing.T) {
	b := New()
	x := rawF32(t, seq(12), 2, 3, 2)

	first := b.Narrow(x, 1, 0, 1)
	assert.Equal(t, tensor.Shape{2, 1, 2}, first.Shape())
	assertClose(t, []float32{0, 1, 6, 7}, first.AsFloat32(), 0)

	rest := b.Narrow(x, 1, 1, 2)
	joined := b.Cat([]*tensor.RawTensor{first, rest}, 1)
	assert.Equal(t, x.Shape(), joined.Shape())
	assertClose(t, x.AsFloat32(), joined.AsFloat32(), 0)

	assert.Panics(t, func() { b.Narrow(x, 1, 2, 2) })
}

func TestScalarOps(t *testing.T) {
	b := New()
	x := rawF32(t, []float32{1, 4}, 2)
	assertClose(t, []float32{2, 8}, b.MulScalar(x, float32(2)).AsFloat32(), 0)
	assertClose(t, []float32{0, 3}, b.AddScalar(x, -1.0).AsFloat32(), 0)
	assertClose(t, []float32{1, 0.5}, b.Rsqrt(x).AsFloat32(), 1e-6)
}

func TestReLU(t *testing.T) {
	b := New()
	x := rawF32(t, []float32{-1, 0, 2}, 3)
	assertClose(t, []float32{0, 0, 2}, b.ReLU(x).AsFloat32(), 0)
}

func TestSoftmaxRowsSumToOne(t *testing.T) {
	b := New()
	x := rawF32(t, []float32{1, 2, 3, 1, 1, 1, -1e9, 0, 0, 5, 5, -1e9}, 2, 2, 3)

	out := b.Softmax(x, -1).AsFloat32()
	for row := 0; row < 4; row++ {
		var sum float32
		for j := 0; j < 3; j++ {
			sum += out[row*3+j]
		}
		assert.InDelta(t, 1.0, sum, 1e-6)
	}
	assert.InDelta(t, 1.0/3, out[3], 1e-6)
	assert.InDelta(t, 0.0, out[6], 1e-9, "masked logit gets no weight")
	assert.InDelta(t, 0.5, out[7], 1e-6)
}

func TestSoftmaxMiddleDim(t *testing.T) {
	b := New()
	x := rawF32(t, []float32{0, 1, 0, 1}, 2, 2)

	out := b.Softmax(x, 0).AsFloat32()
	assertClose(t, []float32{0.5, 0.5, 0.5, 0.5}, out, 1e-6)
}

func TestReductions(t *testing.T) {
	b := New()
	x := rawF32(t, seq(6), 2, 3)

	sum := b.SumDim(x, -1, true)
	assert.Equal(t, tensor.Shape{2, 1}, sum.Shape())
	assertClose(t, []float32{3, 12}, sum.AsFloat32(), 0)

	mean := b.MeanDim(x, 0, false)
	assert.Equal(t, tensor.Shape{3}, mean.Shape())
	assertClose(t, []float32{1.5, 2.5, 3.5}, mean.AsFloat32(), 1e-6)
}

func TestArgmax(t *testing.T) {
	b := New()
	x := rawF32(t, []float32{0.1, 0.7, 0.2, 0.9, 0.9, 0.0}, 2, 3)

	out := b.Argmax(x, -1)
	assert.Equal(t, tensor.Shape{2}, out.Shape())
	assert.Equal(t, []int32{1, 0}, out.AsInt32(), "ties resolve to the lowest index")
}

func TestEmbedding(t *testing.T) {
	b := New()
	weight := rawF32(t, seq(8), 4, 2)
	idx := tensor.MustNewRaw(tensor.Shape{1, 3}, tensor.Int32, tensor.CPU)
	copy(idx.AsInt32(), []int32{3, 0, 3})

	out := b.Embedding(weight, idx)
	assert.Equal(t, tensor.Shape{1, 3, 2}, out.Shape())
	assertClose(t, []float32{6, 7, 0, 1, 6, 7}, out.AsFloat32(), 0)

	idx.AsInt32()[0] = 4
	assert.Panics(t, func() { b.Embedding(weight, idx) })
}

func TestCast(t *testing.T) {
	b := New()
	mask := tensor.MustNewRaw(tensor.Shape{3}, tensor.Bool, tensor.CPU)
	copy(mask.AsBool(), []bool{true, false, true})

	f := b.Cast(mask, tensor.Float32)
	assertClose(t, []float32{1, 0, 1}, f.AsFloat32(), 0)

	i := b.Cast(rawF32(t, []float32{2.7, -1.2}, 2), tensor.Int32)
	assert.Equal(t, []int32{2, -1}, i.AsInt32())
}

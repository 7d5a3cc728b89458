package autodiff_test

import (
	"testing"

	"github.com/born-ml/captionvit/internal/autodiff"
	"github.com/born-ml/captionvit/internal/backend/cpu"
	"github.com/born-ml/captionvit/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAutodiffBackend_Name tests the Name method.
func TestAutodiffBackend_Name(t *testing.T) {
	backend := autodiff.New(cpu.New())
	if backend.Name() != "Autodiff(CPU)" {
		t.Errorf("Name() = %s, want Autodiff(CPU)", backend.Name())
	}
	if backend.Device() != tensor.CPU {
		t.Errorf("Device() = %v, want %v", backend.Device(), tensor.CPU)
	}
}

// TestTape_Recording tests tape recording on/off.
func TestTape_Recording(t *testing.T) {
	backend := autodiff.New(cpu.New())
	tape := backend.Tape()

	if tape.IsRecording() {
		t.Error("Tape should not be recording initially")
	}

	x := tensor.Ones[float32](tensor.Shape{2}, backend)
	_ = x.Add(x)
	assert.Equal(t, 0, tape.NumOps(), "nothing is recorded while stopped")

	tape.StartRecording()
	_ = x.Add(x)
	assert.Equal(t, 1, tape.NumOps())

	tape.Clear()
	assert.Equal(t, 0, tape.NumOps())
	assert.True(t, tape.IsRecording(), "Clear preserves the recording state")
}

func TestNoGradPausesAndRestores(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()
	x := tensor.Ones[float32](tensor.Shape{2}, backend)

	restore := backend.NoGrad()
	_ = x.Mul(x)
	assert.Equal(t, 0, backend.Tape().NumOps())
	restore()

	assert.True(t, backend.Tape().IsRecording())
	_ = x.Mul(x)
	assert.Equal(t, 1, backend.Tape().NumOps())
}

func TestBackward_Square(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, err := tensor.FromSlice([]float32{2, -3}, tensor.Shape{2}, backend)
	require.NoError(t, err)
	y := x.Mul(x)

	grads := autodiff.Backward(y, backend)
	assert.Equal(t, []float32{4, -6}, grads[x.Raw()].AsFloat32())
}

func TestBackward_AccumulatesSharedInput(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, err := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2}, backend)
	require.NoError(t, err)
	// y = 3x + x
	y := x.MulScalar(3).Add(x)

	grads := autodiff.Backward(y, backend)
	assert.Equal(t, []float32{4, 4}, grads[x.Raw()].AsFloat32())
}

func TestBackward_ReLU(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, err := tensor.FromSlice([]float32{-1, 0.5, 2}, tensor.Shape{3}, backend)
	require.NoError(t, err)
	y := x.ReLU()

	grads := autodiff.Backward(y, backend)
	assert.Equal(t, []float32{0, 1, 1}, grads[x.Raw()].AsFloat32())
}

func TestBackward_EmbeddingScatterAdd(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	weight := tensor.Zeros[float32](tensor.Shape{3, 2}, backend)
	idx, err := tensor.FromSlice([]int32{0, 1, 0}, tensor.Shape{3}, backend)
	require.NoError(t, err)

	out := weight.Embedding(idx)
	upstream, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{3, 2}, backend.Inner())
	require.NoError(t, err)

	grads := autodiff.BackwardFrom(out.Raw(), upstream.Raw(), backend)
	assert.Equal(t, []float32{6, 8, 3, 4, 0, 0}, grads[weight.Raw()].AsFloat32())
}

func TestBackward_DetachStopsGradient(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, err := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2}, backend)
	require.NoError(t, err)
	y := x.Mul(x.Detach())

	grads := autodiff.Backward(y, backend)
	assert.Equal(t, []float32{1, 2}, grads[x.Raw()].AsFloat32())
}

func TestBackward_PanicsWithoutRecording(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := tensor.Ones[float32](tensor.Shape{2}, backend)
	y := x.Add(x)
	assert.Panics(t, func() { autodiff.Backward(y, backend) })
}

func TestBackwardFrom_ShapeMismatch(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()
	x := tensor.Ones[float32](tensor.Shape{2}, backend)
	y := x.Add(x)

	wrong := tensor.Ones[float32](tensor.Shape{3}, backend.Inner())
	assert.Panics(t, func() { autodiff.BackwardFrom(y.Raw(), wrong.Raw(), backend) })
}

package optim_test

import (
	"math"
	"testing"

	"github.com/born-ml/captionvit/internal/autodiff"
	"github.com/born-ml/captionvit/internal/backend/cpu"
	"github.com/born-ml/captionvit/internal/nn"
	"github.com/born-ml/captionvit/internal/optim"
	"github.com/born-ml/captionvit/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type adBackend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func scalarParam(t *testing.T, backend adBackend, v float32) *nn.Parameter[adBackend] {
	t.Helper()
	x, err := tensor.FromSlice([]float32{v}, tensor.Shape{1}, backend)
	require.NoError(t, err)
	return nn.NewParameter("x", x)
}

func gradMap(param *nn.Parameter[adBackend], g float32) map[*tensor.RawTensor]*tensor.RawTensor {
	grad := tensor.MustNewRaw(tensor.Shape{1}, tensor.Float32, tensor.CPU)
	grad.AsFloat32()[0] = g
	return map[*tensor.RawTensor]*tensor.RawTensor{param.Tensor().Raw(): grad}
}

func TestSGD_SimpleUpdate(t *testing.T) {
	backend := autodiff.New(cpu.New())
	param := scalarParam(t, backend, 2)

	sgd := optim.NewSGD([]*nn.Parameter[adBackend]{param}, optim.SGDConfig{LR: 0.1})
	sgd.Step(gradMap(param, 1))

	assert.InDelta(t, 1.9, param.Tensor().Data()[0], 1e-6)
	assert.Empty(t, sgd.StateDict())
}

func TestSGD_WithMomentum(t *testing.T) {
	backend := autodiff.New(cpu.New())
	param := scalarParam(t, backend, 1)

	sgd := optim.NewSGD([]*nn.Parameter[adBackend]{param}, optim.SGDConfig{LR: 0.1, Momentum: 0.9})

	// v = 1, x = 1 - 0.1
	sgd.Step(gradMap(param, 1))
	assert.InDelta(t, 0.9, param.Tensor().Data()[0], 1e-6)

	// v = 0.9 + 1, x = 0.9 - 0.19
	sgd.Step(gradMap(param, 1))
	assert.InDelta(t, 0.71, param.Tensor().Data()[0], 1e-6)
}

func TestSGD_WeightDecay(t *testing.T) {
	backend := autodiff.New(cpu.New())
	param := scalarParam(t, backend, 2)

	sgd := optim.NewSGD([]*nn.Parameter[adBackend]{param}, optim.SGDConfig{LR: 0.1, WeightDecay: 0.5})
	sgd.Step(gradMap(param, 0))

	// x -= 0.1 * (0 + 0.5 * 2)
	assert.InDelta(t, 1.9, param.Tensor().Data()[0], 1e-6)
}

func TestSGD_SkipsParametersWithoutGradient(t *testing.T) {
	backend := autodiff.New(cpu.New())
	used := scalarParam(t, backend, 1)
	unused := scalarParam(t, backend, 5)

	sgd := optim.NewSGD([]*nn.Parameter[adBackend]{used, unused}, optim.SGDConfig{LR: 0.5})
	sgd.Step(gradMap(used, 1))

	assert.InDelta(t, 0.5, used.Tensor().Data()[0], 1e-6)
	assert.Equal(t, float32(5), unused.Tensor().Data()[0])
}

func TestSGD_StateDict(t *testing.T) {
	backend := autodiff.New(cpu.New())
	param := scalarParam(t, backend, 1)
	params := []*nn.Parameter[adBackend]{param}

	sgd := optim.NewSGD(params, optim.SGDConfig{LR: 0.1, Momentum: 0.9})
	sgd.Step(gradMap(param, 2))

	state := sgd.StateDict()
	require.Contains(t, state, "velocity.0")
	assert.Equal(t, []float32{2}, state["velocity.0"].AsFloat32())

	restored := optim.NewSGD(params, optim.SGDConfig{LR: 0.1, Momentum: 0.9})
	require.NoError(t, restored.LoadStateDict(state))
	assert.Equal(t, []float32{2}, restored.StateDict()["velocity.0"].AsFloat32())

	bad := map[string]*tensor.RawTensor{"velocity.0": tensor.MustNewRaw(tensor.Shape{2}, tensor.Float32, tensor.CPU)}
	assert.ErrorIs(t, restored.LoadStateDict(bad), tensor.ErrShapeMismatch)
}

func TestAdam_FirstStep(t *testing.T) {
	backend := autodiff.New(cpu.New())
	param := scalarParam(t, backend, 1)

	adam := optim.NewAdam([]*nn.Parameter[adBackend]{param}, optim.AdamConfig{LR: 0.01})
	adam.Step(gradMap(param, 3))

	// After bias correction m̂ = g and v̂ = g², so the first step is lr·sign(g).
	assert.InDelta(t, 0.99, param.Tensor().Data()[0], 1e-5)
	assert.Equal(t, 1, adam.Steps())
	assert.Equal(t, float32(0.01), adam.GetLR())
}

func TestNew(t *testing.T) {
	backend := autodiff.New(cpu.New())
	params := []*nn.Parameter[adBackend]{scalarParam(t, backend, 1)}

	opt, err := optim.New(optim.Config{Kind: optim.KindSGD, LR: 0.2}, params)
	require.NoError(t, err)
	assert.IsType(t, &optim.SGD[adBackend]{}, opt)
	assert.Equal(t, float32(0.2), opt.GetLR())

	opt, err = optim.New(optim.Config{Kind: optim.KindAdam}, params)
	require.NoError(t, err)
	assert.IsType(t, &optim.Adam[adBackend]{}, opt)

	for _, cfg := range []optim.Config{
		{Kind: "lbfgs"},
		{Kind: optim.KindSGD, LR: -1},
		{Kind: optim.KindSGD, Momentum: 1},
	} {
		_, err := optim.New(cfg, params)
		assert.ErrorIs(t, err, nn.ErrConfiguration, "%+v", cfg)
	}
}

// TestSGD_ReducesObjective runs a few recorded forward/backward/step cycles
// on a linear layer and checks that the squared output shrinks.
func TestSGD_ReducesObjective(t *testing.T) {
	backend := autodiff.New(cpu.New())
	env := nn.NewEnv(backend, 1)
	layer := nn.NewLinear(3, 2, env)
	x, err := tensor.FromSlice([]float32{1, -2, 0.5, 0.3, 0.8, -1}, tensor.Shape{2, 3}, backend)
	require.NoError(t, err)

	sgd := optim.NewSGD(layer.Parameters(), optim.SGDConfig{LR: 0.05})

	objective := func() float64 {
		out := layer.Forward(x)
		var sum float64
		for _, v := range out.Data() {
			sum += float64(v) * float64(v)
		}
		return sum
	}

	// Keep the bias away from its optimum so the objective starts positive.
	layer.Bias().Tensor().Data()[0] = 1

	start := objective()
	for range 20 {
		backend.Tape().StartRecording()
		out := layer.Forward(x)
		grads := autodiff.Backward(out.Mul(out), backend)
		backend.Tape().Clear()
		backend.Tape().StopRecording()

		sgd.Step(grads)
		sgd.ZeroGrad()
	}
	end := objective()

	assert.Less(t, end, start)
	assert.False(t, math.IsNaN(end))
}

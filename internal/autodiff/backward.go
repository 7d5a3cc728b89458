package autodiff

import (
	"fmt"

	"github.com/born-ml/captionvit/internal/tensor"
)

// Backward computes gradients of every recorded tensor with respect to t,
// seeding t's gradient with ones (i.e. the gradient of sum(t)).
//
// Returns a map from RawTensor to its gradient.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	x := tensor.Ones[float32](Shape{2}, backend)
//	y := x.Mul(x)
//	gradients := autodiff.Backward(y, backend)
//	grad := gradients[x.Raw()]
func Backward[T tensor.DType, B tensor.Backend](t *tensor.Tensor[T, *AutodiffBackend[B]], backend *AutodiffBackend[B]) map[*tensor.RawTensor]*tensor.RawTensor {
	if backend.tape.NumOps() == 0 {
		panic("backward: no operations recorded (did you forget to call Tape().StartRecording()?)")
	}
	if t.DType() != tensor.Float32 {
		panic(fmt.Sprintf("backward: unsupported dtype %s (only float32 supported)", t.DType()))
	}

	seed := tensor.MustNewRaw(t.Shape(), tensor.Float32, backend.Device())
	data := seed.AsFloat32()
	for i := range data {
		data[i] = 1
	}

	return BackwardFrom(t.Raw(), seed, backend)
}

// BackwardFrom walks the tape from output with an explicit upstream gradient.
// Operations recorded after output was produced receive no gradient.
func BackwardFrom[B tensor.Backend](output, outputGrad *tensor.RawTensor, backend *AutodiffBackend[B]) map[*tensor.RawTensor]*tensor.RawTensor {
	if !output.Shape().Equal(outputGrad.Shape()) {
		panic(tensor.NewShapeError("backward", "output %v vs gradient %v", output.Shape(), outputGrad.Shape()))
	}
	return backend.tape.Backward(output, outputGrad, backend.inner)
}

package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/captionvit/internal/parallel"
	"github.com/born-ml/captionvit/internal/tensor"
)

// ReLU computes max(0, x) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("relu: unsupported dtype %s", x.DType()))
	}
	result := tensor.MustNewRaw(x.Shape(), tensor.Float32, cpu.device)
	src, dst := x.AsFloat32(), result.AsFloat32()
	for i, v := range src {
		if v > 0 {
			dst[i] = v
		}
	}
	return result
}

// Softmax normalizes x along dim: exp(x - max) / sum(exp(x - max)).
// Negative dim counts from the end. Rows are processed in parallel.
func (cpu *CPUBackend) Softmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("softmax: unsupported dtype %s", x.DType()))
	}

	shape := x.Shape()
	dim = tensor.NormalizeDim(dim, len(shape))
	outer, size, inner := splitAround(shape, dim)

	result := tensor.MustNewRaw(shape, tensor.Float32, cpu.device)
	src, dst := x.AsFloat32(), result.AsFloat32()

	parallel.ForBatch(outer, inner, func(o, in int) {
		base := o*size*inner + in

		maxVal := src[base]
		for j := 1; j < size; j++ {
			if v := src[base+j*inner]; v > maxVal {
				maxVal = v
			}
		}

		var sum float64
		for j := 0; j < size; j++ {
			e := math.Exp(float64(src[base+j*inner] - maxVal))
			dst[base+j*inner] = float32(e)
			sum += e
		}

		inv := float32(1 / sum)
		for j := 0; j < size; j++ {
			dst[base+j*inner] *= inv
		}
	}, cpu.par)

	return result
}

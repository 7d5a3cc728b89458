package cpu

import (
	"fmt"

	"github.com/born-ml/captionvit/internal/tensor"
)

// SumDim sums along dim. With keepDim the reduced dimension is kept as 1.
//
// Example:
//
//	x: [2, 3, 4], SumDim(-1, true) -> [2, 3, 1]
//	x: [2, 3, 4], SumDim(1, false) -> [2, 4]
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("sumdim: unsupported dtype %s", x.DType()))
	}

	shape := x.Shape()
	dim = tensor.NormalizeDim(dim, len(shape))
	outer, size, inner := splitAround(shape, dim)

	result := tensor.MustNewRaw(reducedShape(shape, dim, keepDim), tensor.Float32, cpu.device)
	src, dst := x.AsFloat32(), result.AsFloat32()

	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			var sum float32
			base := o*size*inner + in
			for j := 0; j < size; j++ {
				sum += src[base+j*inner]
			}
			dst[o*inner+in] = sum
		}
	}

	return result
}

// MeanDim averages along dim. With keepDim the reduced dimension is kept as 1.
func (cpu *CPUBackend) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	sum := cpu.SumDim(x, dim, keepDim)
	size := x.Shape()[tensor.NormalizeDim(dim, len(x.Shape()))]
	data := sum.AsFloat32()
	inv := 1 / float32(size)
	for i := range data {
		data[i] *= inv
	}
	return sum
}

// Argmax returns int32 indices of the maximum along dim; the dimension is
// removed. Ties resolve to the lowest index.
func (cpu *CPUBackend) Argmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("argmax: unsupported dtype %s", x.DType()))
	}

	shape := x.Shape()
	dim = tensor.NormalizeDim(dim, len(shape))
	outer, size, inner := splitAround(shape, dim)

	result := tensor.MustNewRaw(reducedShape(shape, dim, false), tensor.Int32, cpu.device)
	src, dst := x.AsFloat32(), result.AsInt32()

	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			base := o*size*inner + in
			best := 0
			bestVal := src[base]
			for j := 1; j < size; j++ {
				if v := src[base+j*inner]; v > bestVal {
					best, bestVal = j, v
				}
			}
			dst[o*inner+in] = int32(best)
		}
	}

	return result
}

// reducedShape drops (or sets to 1 with keepDim) dimension dim.
func reducedShape(shape tensor.Shape, dim int, keepDim bool) tensor.Shape {
	if keepDim {
		out := shape.Clone()
		out[dim] = 1
		return out
	}
	out := make(tensor.Shape, 0, len(shape)-1)
	out = append(out, shape[:dim]...)
	return append(out, shape[dim+1:]...)
}

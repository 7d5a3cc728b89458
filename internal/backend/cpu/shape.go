package cpu

import (
	"fmt"

	"github.com/born-ml/captionvit/internal/tensor"
)

// Reshape returns a tensor with the same data and a new shape.
// The result shares storage with t; backends never write into inputs.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	if err := newShape.Validate(); err != nil {
		panic(tensor.NewShapeError("reshape", "%v", err))
	}
	if newShape.NumElements() != t.NumElements() {
		panic(tensor.NewShapeError("reshape", "cannot reshape %v (%d elements) to %v (%d elements)",
			t.Shape(), t.NumElements(), newShape, newShape.NumElements()))
	}
	return t.WithShape(newShape)
}

// Transpose permutes dimensions. With no axes, all dimensions are reversed.
//
// Example:
//
//	x: [N, S, H, Dh] with axes (0, 2, 1, 3) -> [N, H, S, Dh]
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	ndim := len(shape)

	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}
	if len(axes) != ndim {
		panic(fmt.Sprintf("transpose: got %d axes for %dD tensor", len(axes), ndim))
	}

	seen := make([]bool, ndim)
	perm := make([]int, ndim)
	newShape := make(tensor.Shape, ndim)
	for i, ax := range axes {
		ax = tensor.NormalizeDim(ax, ndim)
		if seen[ax] {
			panic(fmt.Sprintf("transpose: repeated axis %d", ax))
		}
		seen[ax] = true
		perm[i] = ax
		newShape[i] = shape[ax]
	}

	result := tensor.MustNewRaw(newShape, t.DType(), cpu.device)
	elem := t.DType().Size()
	src, dst := t.Data(), result.Data()

	inStrides := shape.ComputeStrides()
	outStrides := newShape.ComputeStrides()
	// srcStrides[i] is the input stride of output dimension i.
	srcStrides := make([]int, ndim)
	for i, ax := range perm {
		srcStrides[i] = inStrides[ax]
	}

	n := t.NumElements()
	for i := 0; i < n; i++ {
		j := computeFlatIndex(i, outStrides, srcStrides)
		copy(dst[i*elem:(i+1)*elem], src[j*elem:(j+1)*elem])
	}

	return result
}

// Expand broadcasts x to shape. Dimensions of size 1 (and missing leading
// dimensions) are repeated.
func (cpu *CPUBackend) Expand(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	out, _, err := tensor.BroadcastShapes(x.Shape(), shape)
	if err != nil || !out.Equal(shape) {
		panic(tensor.NewShapeError("expand", "cannot expand %v to %v", x.Shape(), shape))
	}

	result := tensor.MustNewRaw(shape, x.DType(), cpu.device)
	elem := x.DType().Size()
	src, dst := x.Data(), result.Data()

	outStrides := shape.ComputeStrides()
	inStrides := computeBroadcastStridesForShape(x.Shape(), shape)

	n := shape.NumElements()
	for i := 0; i < n; i++ {
		j := computeFlatIndex(i, outStrides, inStrides)
		copy(dst[i*elem:(i+1)*elem], src[j*elem:(j+1)*elem])
	}

	return result
}

// Narrow returns the slice [start, start+length) of x along dim.
func (cpu *CPUBackend) Narrow(x *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	shape := x.Shape()
	dim = tensor.NormalizeDim(dim, len(shape))
	if start < 0 || length <= 0 || start+length > shape[dim] {
		panic(tensor.NewShapeError("narrow", "range [%d, %d) out of bounds for dimension %d of %v",
			start, start+length, dim, shape))
	}

	outShape := shape.Clone()
	outShape[dim] = length
	result := tensor.MustNewRaw(outShape, x.DType(), cpu.device)

	outer, size, inner := splitAround(shape, dim)
	rowBytes := inner * x.DType().Size()
	src, dst := x.Data(), result.Data()

	for o := 0; o < outer; o++ {
		srcOff := (o*size + start) * rowBytes
		dstOff := o * length * rowBytes
		copy(dst[dstOff:dstOff+length*rowBytes], src[srcOff:srcOff+length*rowBytes])
	}

	return result
}

// Cat concatenates tensors along dim. All other dimensions and the dtype
// must agree.
func (cpu *CPUBackend) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	if len(tensors) == 0 {
		panic("cat: no tensors")
	}

	first := tensors[0].Shape()
	dim = tensor.NormalizeDim(dim, len(first))

	total := 0
	for _, t := range tensors {
		s := t.Shape()
		if len(s) != len(first) || t.DType() != tensors[0].DType() {
			panic(tensor.NewShapeError("cat", "incompatible inputs %v (%s) and %v (%s)",
				first, tensors[0].DType(), s, t.DType()))
		}
		for i := range s {
			if i != dim && s[i] != first[i] {
				panic(tensor.NewShapeError("cat", "dimension %d differs: %v vs %v", i, first, s))
			}
		}
		total += s[dim]
	}

	outShape := first.Clone()
	outShape[dim] = total
	result := tensor.MustNewRaw(outShape, tensors[0].DType(), cpu.device)

	outer, _, inner := splitAround(outShape, dim)
	elem := tensors[0].DType().Size()
	dst := result.Data()

	for o := 0; o < outer; o++ {
		dstOff := o * total * inner * elem
		for _, t := range tensors {
			chunk := t.Shape()[dim] * inner * elem
			copy(dst[dstOff:dstOff+chunk], t.Data()[o*chunk:(o+1)*chunk])
			dstOff += chunk
		}
	}

	return result
}

package cpu

import (
	"fmt"

	"github.com/born-ml/captionvit/internal/tensor"
)

// Embedding looks up rows of weight by index.
//
// weight: [numEmbeddings, embeddingDim] float32
// indices: int32 of any shape
// result: indices.Shape() + [embeddingDim]
//
// Panics if an index is outside [0, numEmbeddings).
func (cpu *CPUBackend) Embedding(weight, indices *tensor.RawTensor) *tensor.RawTensor {
	wShape := weight.Shape()
	if len(wShape) != 2 {
		panic(tensor.NewShapeError("embedding", "weight must be 2D, got %v", wShape))
	}
	if weight.DType() != tensor.Float32 || indices.DType() != tensor.Int32 {
		panic(fmt.Sprintf("embedding: expected float32 weight and int32 indices, got %s and %s",
			weight.DType(), indices.DType()))
	}

	numEmbeddings, dim := wShape[0], wShape[1]

	outShape := append(indices.Shape().Clone(), dim)
	result := tensor.MustNewRaw(outShape, tensor.Float32, cpu.device)

	w, dst := weight.AsFloat32(), result.AsFloat32()
	for i, idx := range indices.AsInt32() {
		if idx < 0 || int(idx) >= numEmbeddings {
			panic(fmt.Sprintf("embedding: index %d out of range [0, %d)", idx, numEmbeddings))
		}
		copy(dst[i*dim:(i+1)*dim], w[int(idx)*dim:(int(idx)+1)*dim])
	}

	return result
}

// Cast converts x to dtype. Bool converts to 1/0; float to int truncates
// toward zero; anything to bool is x != 0.
func (cpu *CPUBackend) Cast(x *tensor.RawTensor, dtype tensor.DataType) *tensor.RawTensor {
	if x.DType() == dtype {
		return x.Clone()
	}

	result := tensor.MustNewRaw(x.Shape(), dtype, cpu.device)
	n := x.NumElements()

	// Every conversion goes through float32, exact for int32 ids below 2^24.
	var get func(i int) float32
	switch x.DType() {
	case tensor.Float32:
		src := x.AsFloat32()
		get = func(i int) float32 { return src[i] }
	case tensor.Int32:
		src := x.AsInt32()
		get = func(i int) float32 { return float32(src[i]) }
	default:
		src := x.AsBool()
		get = func(i int) float32 {
			if src[i] {
				return 1
			}
			return 0
		}
	}

	switch dtype {
	case tensor.Float32:
		dst := result.AsFloat32()
		for i := 0; i < n; i++ {
			dst[i] = get(i)
		}
	case tensor.Int32:
		dst := result.AsInt32()
		for i := 0; i < n; i++ {
			dst[i] = int32(get(i))
		}
	case tensor.Bool:
		dst := result.AsBool()
		for i := 0; i < n; i++ {
			dst[i] = get(i) != 0
		}
	default:
		panic(fmt.Sprintf("cast: unsupported dtype %s", dtype))
	}

	return result
}

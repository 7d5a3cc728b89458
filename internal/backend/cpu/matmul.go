package cpu

import (
	"fmt"

	"github.com/born-ml/captionvit/internal/parallel"
	"github.com/born-ml/captionvit/internal/tensor"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// MatMul performs matrix multiplication.
// For 2D tensors: (M, K) @ (K, N) -> (M, N), computed with BLAS SGEMM.
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	aShape := a.Shape()
	bShape := b.Shape()

	if len(aShape) != 2 || len(bShape) != 2 {
		panic(tensor.NewShapeError("matmul", "only 2D tensors supported, got %dD and %dD", len(aShape), len(bShape)))
	}

	m, k := aShape[0], aShape[1]
	kAlt, n := bShape[0], bShape[1]
	if k != kAlt {
		panic(tensor.NewShapeError("matmul", "[%d,%d] @ [%d,%d]", m, k, kAlt, n))
	}
	if a.DType() != tensor.Float32 || b.DType() != tensor.Float32 {
		panic(fmt.Sprintf("matmul: unsupported dtype %s", a.DType()))
	}

	result := tensor.MustNewRaw(tensor.Shape{m, n}, tensor.Float32, cpu.device)
	gemm(result.AsFloat32(), a.AsFloat32(), b.AsFloat32(), m, k, n)
	return result
}

// BatchMatMul performs batched matrix multiplication.
// Supports 3D and 4D tensors with batch dimensions.
//
// For 3D: [B, M, K] @ [B, K, N] -> [B, M, N]
// For 4D: [B, H, M, K] @ [B, H, K, N] -> [B, H, M, N]
//
// The last two dimensions are treated as matrix dimensions and all leading
// dimensions must match. Independent batch entries are multiplied in
// parallel.
func (cpu *CPUBackend) BatchMatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	aShape := a.Shape()
	bShape := b.Shape()
	ndim := len(aShape)

	if ndim < 3 {
		panic(tensor.NewShapeError("batch_matmul", "inputs must be at least 3D, got %dD", ndim))
	}
	if len(bShape) != ndim {
		panic(tensor.NewShapeError("batch_matmul", "dimension mismatch, got %dD and %dD", ndim, len(bShape)))
	}
	for i := 0; i < ndim-2; i++ {
		if aShape[i] != bShape[i] {
			panic(tensor.NewShapeError("batch_matmul", "batch dimension %d: %d vs %d", i, aShape[i], bShape[i]))
		}
	}

	m, k := aShape[ndim-2], aShape[ndim-1]
	kAlt, n := bShape[ndim-2], bShape[ndim-1]
	if k != kAlt {
		panic(tensor.NewShapeError("batch_matmul", "inner dimension %d vs %d", k, kAlt))
	}
	if a.DType() != tensor.Float32 || b.DType() != tensor.Float32 {
		panic(fmt.Sprintf("batch_matmul: unsupported dtype %s", a.DType()))
	}

	batchSize := 1
	for i := 0; i < ndim-2; i++ {
		batchSize *= aShape[i]
	}

	outShape := make(tensor.Shape, ndim)
	copy(outShape, aShape[:ndim-2])
	outShape[ndim-2] = m
	outShape[ndim-1] = n

	result := tensor.MustNewRaw(outShape, tensor.Float32, cpu.device)
	c := result.AsFloat32()
	aData, bData := a.AsFloat32(), b.AsFloat32()

	// Each task is a whole matrix product, not a single element.
	cfg := cpu.par.WithMinChunk(1)
	parallel.For(batchSize, func(batch int) {
		gemm(
			c[batch*m*n:(batch+1)*m*n],
			aData[batch*m*k:(batch+1)*m*k],
			bData[batch*k*n:(batch+1)*k*n],
			m, k, n,
		)
	}, cfg)

	return result
}

// gemm computes c = a @ b for row-major float32 matrices.
func gemm(c, a, b []float32, m, k, n int) {
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas32.General{Rows: m, Cols: k, Stride: k, Data: a},
		blas32.General{Rows: k, Cols: n, Stride: n, Data: b},
		0,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: c},
	)
}

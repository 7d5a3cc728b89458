package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/captionvit/internal/tensor"
)

// MulScalar multiplies each element by scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return cpu.unaryScalar("mul_scalar", x, scalar,
		func(v, s float32) float32 { return v * s },
		func(v, s int32) int32 { return v * s })
}

// AddScalar adds scalar to each element.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return cpu.unaryScalar("add_scalar", x, scalar,
		func(v, s float32) float32 { return v + s },
		func(v, s int32) int32 { return v + s })
}

func (cpu *CPUBackend) unaryScalar(
	op string,
	x *tensor.RawTensor,
	scalar any,
	f32 func(v, s float32) float32,
	i32 func(v, s int32) int32,
) *tensor.RawTensor {
	result := tensor.MustNewRaw(x.Shape(), x.DType(), cpu.device)

	switch x.DType() {
	case tensor.Float32:
		s := toFloat32(op, scalar)
		src, dst := x.AsFloat32(), result.AsFloat32()
		for i, v := range src {
			dst[i] = f32(v, s)
		}
	case tensor.Int32:
		s := int32(toFloat32(op, scalar))
		src, dst := x.AsInt32(), result.AsInt32()
		for i, v := range src {
			dst[i] = i32(v, s)
		}
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", op, x.DType()))
	}

	return result
}

// toFloat32 converts a scalar operand of any supported Go numeric type.
func toFloat32(op string, scalar any) float32 {
	switch s := scalar.(type) {
	case float32:
		return s
	case float64:
		return float32(s)
	case int32:
		return float32(s)
	case int:
		return float32(s)
	default:
		panic(fmt.Sprintf("%s: unsupported scalar type %T", op, scalar))
	}
}

// Rsqrt computes 1/sqrt(x) element-wise.
func (cpu *CPUBackend) Rsqrt(x *tensor.RawTensor) *tensor.RawTensor {
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("rsqrt: unsupported dtype %s", x.DType()))
	}
	result := tensor.MustNewRaw(x.Shape(), tensor.Float32, cpu.device)
	src, dst := x.AsFloat32(), result.AsFloat32()
	for i, v := range src {
		dst[i] = float32(1 / math.Sqrt(float64(v)))
	}
	return result
}

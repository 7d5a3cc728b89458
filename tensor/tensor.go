// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public tensor API used by the caption decoder
// and the vision transformer.
//
//   - Tensor[T, B]: generic tensor over a data type T and a backend B
//   - RawTensor: untyped storage, used by state dicts and gradient maps
//   - Backend: compute interface implemented by backend/cpu and autodiff
//   - Shape, DataType, Device: core type definitions
//
// Example:
//
//	backend := cpu.New()
//	features, err := tensor.FromSlice(data, tensor.Shape{n, 512}, backend)
//	ids, err := decoder.Sample(features, 20)
package tensor

import (
	"github.com/born-ml/captionvit/internal/tensor"
	"golang.org/x/exp/rand"
)

// DType is a constraint for tensor data types: float32, int32, bool.
type DType = tensor.DType

// DataType represents the runtime data type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Int32   DataType = tensor.Int32
	Bool    DataType = tensor.Bool
)

// Device represents the device where tensor data resides.
type Device = tensor.Device

// CPU is the host device.
const CPU Device = tensor.CPU

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
type Shape = tensor.Shape

// Backend executes tensor operations.
type Backend = tensor.Backend

// RawTensor is untyped tensor storage.
type RawTensor = tensor.RawTensor

// Tensor is a generic type-safe tensor.
type Tensor[T DType, B Backend] = tensor.Tensor[T, B]

// ErrShapeMismatch is wrapped by every shape error.
var ErrShapeMismatch = tensor.ErrShapeMismatch

// ShapeError reports the operation and shapes that did not fit.
type ShapeError = tensor.ShapeError

// Zeros creates a tensor filled with zeros.
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return tensor.Zeros[T, B](shape, b)
}

// Ones creates a tensor filled with ones.
func Ones[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	return tensor.Ones[T, B](shape, b)
}

// Full creates a tensor filled with value.
//
// Example:
//
//	mask := tensor.Full(tensor.Shape{4, 4}, true, backend)
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	return tensor.Full(shape, value, b)
}

// Arange creates the int32 tensor [start, end).
func Arange[B Backend](start, end int32, b B) *Tensor[int32, B] {
	return tensor.Arange(start, end, b)
}

// RandNormal creates a float32 tensor with values from N(mean, std²) drawn
// from rng.
//
// Example:
//
//	rng := rand.New(rand.NewSource(42))
//	images := tensor.RandNormal(tensor.Shape{8, 3, 32, 32}, 0, 1, rng, backend)
func RandNormal[B Backend](shape Shape, mean, std float64, rng *rand.Rand, b B) *Tensor[float32, B] {
	return tensor.RandNormal(shape, mean, std, rng, b)
}

// FromSlice creates a tensor holding a copy of data.
//
// Returns an error if len(data) does not match shape.
func FromSlice[T DType, B Backend](data []T, shape Shape, b B) (*Tensor[T, B], error) {
	return tensor.FromSlice(data, shape, b)
}

// Cat concatenates tensors along dim.
func Cat[T DType, B Backend](tensors []*Tensor[T, B], dim int) *Tensor[T, B] {
	return tensor.Cat(tensors, dim)
}

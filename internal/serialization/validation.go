package serialization

import (
	"fmt"
	"sort"
	"strings"
)

// Validation limits for security and resource protection.
const (
	MaxHeaderSize    = 100 * 1024 * 1024 // 100MB - maximum header size
	MaxTensorCount   = 100_000           // Maximum number of tensors in a file
	MaxTensorNameLen = 4096              // Maximum tensor name length
)

// ValidateTensorName rejects empty, oversized or reserved names and names
// containing control characters or path separators.
func ValidateTensorName(name string) error {
	switch {
	case name == "":
		return &ValidationError{Err: ErrInvalidTensorName, Details: "empty name"}
	case len(name) > MaxTensorNameLen:
		return &ValidationError{Err: ErrInvalidTensorName, Tensor: name[:32] + "...",
			Details: fmt.Sprintf("length %d exceeds %d", len(name), MaxTensorNameLen)}
	case name == MetadataKey:
		return &ValidationError{Err: ErrInvalidTensorName, Tensor: name, Details: "reserved name"}
	case strings.ContainsAny(name, "/\\"):
		return &ValidationError{Err: ErrInvalidTensorName, Tensor: name, Details: "contains a path separator"}
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return &ValidationError{Err: ErrInvalidTensorName, Tensor: name, Details: "contains a control character"}
		}
	}
	return nil
}

// ValidateTensorOffsets checks every tensor region against the data section
// of dataSize bytes: offsets must be ordered, non-negative, in bounds and
// non-overlapping, and each region must hold exactly shape·dtype bytes.
func ValidateTensorOffsets(tensors []TensorMeta, dataSize int64) error {
	if len(tensors) > MaxTensorCount {
		return &ValidationError{Err: ErrTooManyTensors,
			Details: fmt.Sprintf("got %d, max %d", len(tensors), MaxTensorCount)}
	}

	sorted := make([]TensorMeta, len(tensors))
	copy(sorted, tensors)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].DataOffsets[0] < sorted[j].DataOffsets[0]
	})

	for i, t := range sorted {
		begin, end := t.DataOffsets[0], t.DataOffsets[1]
		if begin < 0 || end < begin {
			return &ValidationError{Err: ErrOutOfBounds, Tensor: t.Name,
				Details: fmt.Sprintf("invalid region [%d, %d)", begin, end)}
		}
		if end > dataSize {
			return &ValidationError{Err: ErrOutOfBounds, Tensor: t.Name,
				Details: fmt.Sprintf("region end %d > data size %d", end, dataSize)}
		}
		if i+1 < len(sorted) && end > sorted[i+1].DataOffsets[0] {
			next := sorted[i+1]
			return &ValidationError{Err: ErrOffsetOverlap, Tensor: t.Name, Tensor2: next.Name,
				Details: fmt.Sprintf("regions [%d, %d) and [%d, %d) overlap",
					begin, end, next.DataOffsets[0], next.DataOffsets[1])}
		}

		dtype, err := safeTensorsToDtype(t.DType)
		if err != nil {
			return &ValidationError{Err: ErrUnsupportedDType, Tensor: t.Name, Details: t.DType}
		}
		elements := int64(1)
		for _, d := range t.Shape {
			if d < 0 {
				return &ValidationError{Err: ErrOutOfBounds, Tensor: t.Name,
					Details: fmt.Sprintf("negative dimension in shape %v", t.Shape)}
			}
			elements *= d
		}
		if want := elements * int64(dtype.Size()); want != t.Size() {
			return &ValidationError{Err: ErrOutOfBounds, Tensor: t.Name,
				Details: fmt.Sprintf("shape %v needs %d bytes, region holds %d", t.Shape, want, t.Size())}
		}
	}
	return nil
}

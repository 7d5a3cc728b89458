package serialization

import (
	"fmt"

	"github.com/born-ml/captionvit/internal/tensor"
)

// Format constants.
const (
	FormatName    = "captionvit"
	MetadataKey   = "__metadata__"
	HeaderSizeLen = 8 // uint64 LE header length prefix
	DTypeF32      = "F32"
	DTypeI32      = "I32"
	DTypeBool     = "BOOL"
)

// Metadata keys written into every checkpoint.
const (
	MetaFormat       = "format"
	MetaModel        = "model"
	MetaCheckpointID = "checkpoint_id"
	MetaCreatedAt    = "created_at"
	MetaSHA256       = "sha256"
)

// TensorHeader describes one tensor in the SafeTensors header.
type TensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// TensorMeta is a TensorHeader together with its name.
type TensorMeta struct {
	Name string
	TensorHeader
}

// Size returns the byte length of the tensor's data region.
func (m TensorMeta) Size() int64 {
	return m.DataOffsets[1] - m.DataOffsets[0]
}

func dtypeToSafeTensors(dt tensor.DataType) (string, error) {
	switch dt {
	case tensor.Float32:
		return DTypeF32, nil
	case tensor.Int32:
		return DTypeI32, nil
	case tensor.Bool:
		return DTypeBool, nil
	default:
		return "", fmt.Errorf("%w: %v", ErrUnsupportedDType, dt)
	}
}

func safeTensorsToDtype(s string) (tensor.DataType, error) {
	switch s {
	case DTypeF32:
		return tensor.Float32, nil
	case DTypeI32:
		return tensor.Int32, nil
	case DTypeBool:
		return tensor.Bool, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedDType, s)
	}
}

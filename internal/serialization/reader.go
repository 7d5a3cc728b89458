package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/born-ml/captionvit/internal/tensor"
	"github.com/google/uuid"
)

// Checkpoint is a decoded checkpoint file.
type Checkpoint struct {
	ID        uuid.UUID
	Model     string
	CreatedAt time.Time
	Metadata  map[string]string // all header metadata, reserved keys included
	Tensors   map[string]*tensor.RawTensor
}

// TensorNames returns the tensor names in sorted order.
func (c *Checkpoint) TensorNames() []string {
	names := make([]string, 0, len(c.Tensors))
	for name := range c.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReadFrom decodes a checkpoint written by WriteTo.
//
// The header is validated before the data section is read and the data
// section is verified against the stored SHA-256.
func ReadFrom(r io.Reader) (*Checkpoint, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}

	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(headerJSON, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	var meta map[string]string
	if rawMeta, ok := entries[MetadataKey]; ok {
		if err := json.Unmarshal(rawMeta, &meta); err != nil {
			return nil, fmt.Errorf("failed to parse metadata: %w", err)
		}
		delete(entries, MetadataKey)
	}

	tensors := make([]TensorMeta, 0, len(entries))
	var dataSize int64
	for name, rawHeader := range entries {
		if err := ValidateTensorName(name); err != nil {
			return nil, err
		}
		tm := TensorMeta{Name: name}
		if err := json.Unmarshal(rawHeader, &tm.TensorHeader); err != nil {
			return nil, fmt.Errorf("tensor %q: failed to parse header: %w", name, err)
		}
		tensors = append(tensors, tm)
		dataSize = max(dataSize, tm.DataOffsets[1])
	}

	ckpt, err := checkpointFromMetadata(meta)
	if err != nil {
		return nil, err
	}
	if err := ValidateTensorOffsets(tensors, dataSize); err != nil {
		return nil, err
	}

	data := make([]byte, dataSize)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	if err := ValidateChecksum(data, meta[MetaSHA256]); err != nil {
		return nil, err
	}

	ckpt.Tensors = make(map[string]*tensor.RawTensor, len(tensors))
	for _, tm := range tensors {
		raw, err := materialize(tm, data)
		if err != nil {
			return nil, err
		}
		ckpt.Tensors[tm.Name] = raw
	}
	return ckpt, nil
}

// Load reads the checkpoint file at path. See ReadFrom.
func Load(path string) (*Checkpoint, error) {
	//nolint:gosec // G304: checkpoint paths come from the command line
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	ckpt, err := ReadFrom(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ckpt, nil
}

func checkpointFromMetadata(meta map[string]string) (*Checkpoint, error) {
	for _, key := range []string{MetaFormat, MetaModel, MetaCheckpointID, MetaSHA256} {
		if _, ok := meta[key]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingMetadata, key)
		}
	}
	if meta[MetaFormat] != FormatName {
		return nil, fmt.Errorf("%w: format %q", ErrMissingMetadata, meta[MetaFormat])
	}
	id, err := uuid.Parse(meta[MetaCheckpointID])
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", MetaCheckpointID, err)
	}

	ckpt := &Checkpoint{ID: id, Model: meta[MetaModel], Metadata: meta}
	if created, ok := meta[MetaCreatedAt]; ok {
		if ckpt.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", MetaCreatedAt, err)
		}
	}
	return ckpt, nil
}

func materialize(tm TensorMeta, data []byte) (*tensor.RawTensor, error) {
	dtype, err := safeTensorsToDtype(tm.DType)
	if err != nil {
		return nil, err
	}
	shape := make(tensor.Shape, len(tm.Shape))
	for i, d := range tm.Shape {
		shape[i] = int(d)
	}
	raw, err := tensor.NewRaw(shape, dtype, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", tm.Name, err)
	}
	copy(raw.Data(), data[tm.DataOffsets[0]:tm.DataOffsets[1]])
	return raw, nil
}

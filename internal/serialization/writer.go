package serialization

import (
	"bytes"
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

// WriteTo writes stateDict as a checkpoint of model to w.
//
// Tensors are stored in name order. metadata is merged into the header
// metadata; the reserved keys (format, model, checkpoint_id, created_at,
// sha256) are always set by the writer.
//
// Returns the id of the new checkpoint.
func WriteTo(w io.Writer, model string, stateDict map[string]*tensor.RawTensor, metadata map[string]string) (uuid.UUID, error) {
	names := make([]string, 0, len(stateDict))
	for name := range stateDict {
		if err := ValidateTensorName(name); err != nil {
			return uuid.Nil, err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(names)+1)
	var data bytes.Buffer
	for _, name := range names {
		raw := stateDict[name]
		dtype, err := dtypeToSafeTensors(raw.DType())
		if err != nil {
			return uuid.Nil, fmt.Errorf("tensor %q: %w", name, err)
		}
		shape := make([]int64, len(raw.Shape()))
		for i, d := range raw.Shape() {
			shape[i] = int64(d)
		}

		begin := int64(data.Len())
		data.Write(raw.Data())
		header[name] = TensorHeader{
			DType:       dtype,
			Shape:       shape,
			DataOffsets: [2]int64{begin, int64(data.Len())},
		}
	}

	id := uuid.New()
	meta := make(map[string]string, len(metadata)+5)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[MetaFormat] = FormatName
	meta[MetaModel] = model
	meta[MetaCheckpointID] = id.String()
	meta[MetaCreatedAt] = time.Now().UTC().Format(time.RFC3339)
	meta[MetaSHA256] = ComputeChecksum(data.Bytes())
	header[MetadataKey] = meta

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal header: %w", err)
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return uuid.Nil, fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return uuid.Nil, fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := w.Write(data.Bytes()); err != nil {
		return uuid.Nil, fmt.Errorf("failed to write tensor data: %w", err)
	}
	return id, nil
}

// Save writes a checkpoint file at path. See WriteTo.
func Save(path, model string, stateDict map[string]*tensor.RawTensor, metadata map[string]string) (id uuid.UUID, err error) {
	//nolint:gosec // G304: checkpoint paths come from the command line
	file, err := os.Create(path)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	return WriteTo(file, model, stateDict, metadata)
}

// Package config loads model configuration files.
//
// A configuration file is a YAML document naming the model kind and holding
// its section. Fields left out of a section keep the model defaults.
//
//	model: caption
//	checkpoint: decoder.safetensors   # optional
//	caption:
//	  input_dim: 512
//	  embed_dim: 256
//	  max_length: 30
//	  sampling:
//	    temperature: 0.8
//	    top_k: 5
//	vocabulary:
//	  <NULL>: 0
//	  <START>: 1
//	  <END>: 2
//	  a: 3
//
// Unknown keys anywhere in the document are rejected.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/born-ml/captionvit/internal/caption"
	"github.com/born-ml/captionvit/internal/vit"
	"gopkg.in/yaml.v3"
)

// Model kinds.
const (
	ModelCaption = "caption"
	ModelViT     = "vit"
)

// ErrInvalid is returned for structurally invalid configuration files.
var ErrInvalid = errors.New("config: invalid")

// File is a decoded configuration file.
type File struct {
	Model      string
	Checkpoint string
	Caption    caption.Config
	ViT        vit.Config
	Vocabulary map[string]int32
}

type document struct {
	Model      string           `yaml:"model"`
	Checkpoint string           `yaml:"checkpoint"`
	Caption    yaml.Node        `yaml:"caption"`
	ViT        yaml.Node        `yaml:"vit"`
	Vocabulary map[string]int32 `yaml:"vocabulary"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*File, error) {
	//nolint:gosec // G304: configuration paths come from the command line
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	file, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return file, nil
}

// Parse decodes and validates a configuration document.
func Parse(r io.Reader) (*File, error) {
	var doc document
	if err := decodeStrict(r, &doc); err != nil {
		return nil, err
	}

	file := &File{
		Model:      doc.Model,
		Checkpoint: doc.Checkpoint,
		Caption:    caption.DefaultConfig(),
		ViT:        vit.DefaultConfig(),
		Vocabulary: doc.Vocabulary,
	}

	switch doc.Model {
	case ModelCaption:
		if doc.ViT.Kind != 0 {
			return nil, fmt.Errorf("%w: vit section in a %s config", ErrInvalid, doc.Model)
		}
		if err := decodeSection(&doc.Caption, &file.Caption); err != nil {
			return nil, fmt.Errorf("caption: %w", err)
		}
		if len(doc.Vocabulary) == 0 {
			return nil, fmt.Errorf("%w: caption model needs a vocabulary", ErrInvalid)
		}
		if err := file.Caption.Validate(); err != nil {
			return nil, fmt.Errorf("caption: %w", err)
		}
	case ModelViT:
		if doc.Caption.Kind != 0 {
			return nil, fmt.Errorf("%w: caption section in a %s config", ErrInvalid, doc.Model)
		}
		if err := decodeSection(&doc.ViT, &file.ViT); err != nil {
			return nil, fmt.Errorf("vit: %w", err)
		}
		if err := file.ViT.Validate(); err != nil {
			return nil, fmt.Errorf("vit: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: model must be %q or %q, got %q", ErrInvalid, ModelCaption, ModelViT, doc.Model)
	}
	return file, nil
}

// Vocab builds the caption vocabulary of the file.
func (f *File) Vocab() (*caption.Vocabulary, error) {
	return caption.NewVocabulary(f.Vocabulary)
}

func decodeStrict(r io.Reader, out any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty document", ErrInvalid)
		}
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// decodeSection decodes node over out, leaving absent fields untouched.
// Node.Decode does not reject unknown fields, so the section is re-encoded
// and decoded strictly.
func decodeSection(node *yaml.Node, out any) error {
	if node.Kind == 0 {
		return nil
	}
	raw, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	return decodeStrict(bytes.NewReader(raw), out)
}

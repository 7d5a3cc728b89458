package main

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"

	"github.com/born-ml/captionvit/internal/backend/cpu"
	"github.com/born-ml/captionvit/internal/caption"
	"github.com/born-ml/captionvit/internal/config"
	"github.com/born-ml/captionvit/internal/nn"
	"github.com/born-ml/captionvit/internal/serialization"
	"github.com/born-ml/captionvit/internal/tensor"
	"github.com/born-ml/captionvit/internal/vit"
	"golang.org/x/exp/rand"
)

type backend = *cpu.CPUBackend

// model is what the commands need from either architecture.
type model interface {
	Parameters() []*nn.Parameter[backend]
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(map[string]*tensor.RawTensor) error
	Eval()
}

func loadConfig(opts *options, want string) (*config.File, error) {
	file, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if want != "" && file.Model != want {
		return nil, fmt.Errorf("%w: %s needs a %q config, got %q", errUsage, opts.configPath, want, file.Model)
	}
	return file, nil
}

func buildModel(file *config.File) (model, error) {
	switch file.Model {
	case config.ModelCaption:
		vocab, err := file.Vocab()
		if err != nil {
			return nil, err
		}
		return caption.NewDecoder(file.Caption, vocab, cpu.New())
	default:
		return vit.NewClassifier(file.ViT, cpu.New())
	}
}

// prepare builds the model, restores its checkpoint if any and switches it
// to inference.
func prepare(opts *options, file *config.File, logger *slog.Logger) (model, error) {
	m, err := buildModel(file)
	if err != nil {
		return nil, err
	}

	path := file.Checkpoint
	if opts.loadPath != "" {
		path = opts.loadPath
	}
	if path != "" {
		ckpt, err := serialization.Load(path)
		if err != nil {
			return nil, err
		}
		if ckpt.Model != file.Model {
			return nil, fmt.Errorf("%s holds a %q model, config is %q", path, ckpt.Model, file.Model)
		}
		if err := m.LoadStateDict(ckpt.Tensors); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		logger.Info("checkpoint loaded", "path", path, "id", ckpt.ID, "tensors", len(ckpt.Tensors))
	}

	m.Eval()
	return m, nil
}

func save(opts *options, file *config.File, m model, logger *slog.Logger) error {
	if opts.savePath == "" {
		return nil
	}
	id, err := serialization.Save(opts.savePath, file.Model, m.StateDict(), map[string]string{
		"config": opts.configPath,
	})
	if err != nil {
		return err
	}
	logger.Info("checkpoint saved", "path", opts.savePath, "id", id)
	return nil
}

func inspect(opts *options, stdout io.Writer, logger *slog.Logger) error {
	file, err := loadConfig(opts, "")
	if err != nil {
		return err
	}
	m, err := prepare(opts, file, logger)
	if err != nil {
		return err
	}

	params := m.Parameters()
	logger.Info("model built", "model", file.Model, "tensors", len(params), "parameters", nn.NumParameters(params))

	state := m.StateDict()
	names := make([]string, 0, len(state))
	for name := range state {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = fmt.Fprintf(stdout, "%-48s %v\n", name, state[name].Shape())
	}
	return save(opts, file, m, logger)
}

func sample(opts *options, stdout io.Writer, logger *slog.Logger) error {
	file, err := loadConfig(opts, config.ModelCaption)
	if err != nil {
		return err
	}
	m, err := prepare(opts, file, logger)
	if err != nil {
		return err
	}
	dec, ok := m.(*caption.Decoder[backend])
	if !ok {
		return fmt.Errorf("unexpected model type %T", m)
	}

	length := opts.length
	if length == 0 {
		length = file.Caption.MaxLength
	}

	rng := rand.New(rand.NewSource(opts.seed))
	features := tensor.RandNormal(tensor.Shape{opts.n, file.Caption.InputDim}, 0, 1, rng, cpu.New())

	logger.Debug("sampling", "n", opts.n, "length", length, "sampling", file.Caption.Sampling)
	ids, err := dec.Sample(features, length)
	if err != nil {
		return err
	}

	data := ids.Data()
	for i := range opts.n {
		row := data[i*length : (i+1)*length]
		logger.Debug("caption ids", "index", i, "ids", row)
		_, _ = fmt.Fprintf(stdout, "%d\t%s\n", i, dec.Vocab.DecodeString(row))
	}
	return save(opts, file, m, logger)
}

func classify(opts *options, stdout io.Writer, logger *slog.Logger) error {
	file, err := loadConfig(opts, config.ModelViT)
	if err != nil {
		return err
	}
	side, err := gridSide(file.ViT.NumPatches)
	if err != nil {
		return err
	}
	m, err := prepare(opts, file, logger)
	if err != nil {
		return err
	}
	clf, ok := m.(*vit.Classifier[backend])
	if !ok {
		return fmt.Errorf("unexpected model type %T", m)
	}

	size := side * file.ViT.PatchDim
	rng := rand.New(rand.NewSource(opts.seed))
	images := tensor.RandNormal(tensor.Shape{opts.n, vit.Channels, size, size}, 0, 1, rng, cpu.New())

	logger.Debug("classifying", "n", opts.n, "image", fmt.Sprintf("%dx%d", size, size))
	classes, err := clf.Predict(images)
	if err != nil {
		return err
	}
	for i, c := range classes {
		_, _ = fmt.Fprintf(stdout, "%d\tclass %d\n", i, c)
	}
	return save(opts, file, m, logger)
}

// gridSide returns the side of the square patch grid holding numPatches.
func gridSide(numPatches int) (int, error) {
	side := int(math.Round(math.Sqrt(float64(numPatches))))
	if side*side != numPatches {
		return 0, fmt.Errorf("%w: classify needs a square patch grid, num_patches is %d", errUsage, numPatches)
	}
	return side, nil
}

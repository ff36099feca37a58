// Package trainer fits a classical face recognizer on a folder of labelled
// grayscale face images and saves it for later use.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/andresmejia3/watchlist/internal/loader"
)

// DefaultModelPath is where the trained recognizer is written.
const DefaultModelPath = "recognizer/training_data.yml"

// ErrNoSamples means the dataset held no usable face image.
var ErrNoSamples = errors.New("no valid training samples")

// Model is a recognizer that can be fitted and persisted. Its file format is
// its own business.
type Model interface {
	Train(samples []*image.Gray, labels []int) error
	Save(path string) error
}

// Summary describes a finished training run.
type Summary struct {
	Faces     int
	IDs       int
	Distinct  int
	Skipped   int
	ModelPath string
}

// Options tunes Build.
type Options struct {
	Extractor GrayExtractor
	Logger    *slog.Logger
	Progress  loader.Progress
}

// Build loads every <prefix>.<id>.<ext> image in dir, trains model on them and
// saves it to modelPath. It fails with ErrNoSamples when nothing loads; single
// bad files are only skipped.
func Build(ctx context.Context, dir, modelPath string, model Model, opts Options) (Summary, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loadOpts := []loader.Option{loader.WithLogger(logger)}
	if opts.Progress != nil {
		loadOpts = append(loadOpts, loader.WithProgress(opts.Progress))
	}

	res, err := loader.Load[*image.Gray](ctx, dir, opts.Extractor, loadOpts...)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{
		Faces:     res.Len(),
		IDs:       len(res.Identities),
		Distinct:  res.DistinctIdentities(),
		Skipped:   len(res.Skipped),
		ModelPath: modelPath,
	}
	logger.Info("collected training samples", "faces", sum.Faces, "ids", sum.IDs, "distinct", sum.Distinct, "skipped", sum.Skipped)
	if res.Len() == 0 {
		return sum, fmt.Errorf("collected %d faces and %d IDs: %w", sum.Faces, sum.IDs, ErrNoSamples)
	}

	labels := make([]int, len(res.Identities))
	for i, id := range res.Identities {
		// ParseIdentity already guaranteed a non-negative integer
		labels[i], _ = strconv.Atoi(id)
	}

	if err := model.Train(res.Samples, labels); err != nil {
		return sum, fmt.Errorf("train recognizer: %w", err)
	}

	if dir := filepath.Dir(modelPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return sum, fmt.Errorf("create model directory: %w", err)
		}
	}
	if err := model.Save(modelPath); err != nil {
		return sum, fmt.Errorf("save model: %w", err)
	}
	return sum, nil
}

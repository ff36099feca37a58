package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/andresmejia3/watchlist/internal/loader"
	"github.com/andresmejia3/watchlist/internal/trainer"
	"github.com/andresmejia3/watchlist/internal/utils"
	"github.com/andresmejia3/watchlist/internal/vision"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var trainOpts struct {
	Dataset string
	Output  string
	Size    int
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the LBPH face recognizer on a labelled dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runTrain(cmd.Context())
	},
}

func init() {
	trainCmd.Flags().StringVarP(&trainOpts.Dataset, "dataset", "d", "dataSet", "Directory of labelled face images (<prefix>.<id>.<ext>)")
	trainCmd.Flags().StringVarP(&trainOpts.Output, "output", "o", trainer.DefaultModelPath, "Where to write the trained model")
	trainCmd.Flags().IntVar(&trainOpts.Size, "size", 0, "Resize every face to size x size pixels (0 = keep)")

	flagAppliers[trainCmd] = func(cmd *cobra.Command) {
		f := cmd.Flags()
		if f.Changed("dataset") {
			cfg.Training.Dataset = trainOpts.Dataset
		}
		if f.Changed("output") {
			cfg.Training.Model = trainOpts.Output
		}
		if f.Changed("size") {
			cfg.Training.Size = trainOpts.Size
		}
	}
	rootCmd.AddCommand(trainCmd)
}

func runTrain(ctx context.Context) error {
	total, err := loader.CountFiles(cfg.Training.Dataset)
	if err != nil {
		utils.ShowError("Unable to read dataset", err, nil)
		return err
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("🧠 Collecting faces"),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
	)

	model := vision.NewLBPH()
	sum, err := trainer.Build(ctx, cfg.Training.Dataset, cfg.Training.Model, model, trainer.Options{
		Extractor: trainer.GrayExtractor{Width: cfg.Training.Size, Height: cfg.Training.Size},
		Logger:    logger,
		Progress:  func(string, loader.Outcome) { bar.Add(1) },
	})
	bar.Finish()
	fmt.Fprintln(os.Stderr)

	fmt.Printf("Collected %d faces and %d IDs\n", sum.Faces, sum.IDs)
	if err != nil {
		if errors.Is(err, trainer.ErrNoSamples) {
			utils.ShowError("No training samples found in "+cfg.Training.Dataset, err, nil)
		} else {
			utils.ShowError("Training failed", err, nil)
		}
		return err
	}

	fmt.Printf("✅ Trained on %d people, model saved to %s\n", sum.Distinct, sum.ModelPath)
	if sum.Skipped > 0 {
		fmt.Fprintf(os.Stderr, "⚠️  Skipped %d files, see the log above.\n", sum.Skipped)
	}
	return nil
}

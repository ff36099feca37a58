package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/watchlist/internal/engine"
	"github.com/andresmejia3/watchlist/internal/engine/dlib"
	"github.com/andresmejia3/watchlist/internal/loader"
	"github.com/andresmejia3/watchlist/internal/matcher"
	"github.com/andresmejia3/watchlist/internal/utils"
	"github.com/schollz/progressbar/v3"
)

// startEngine brings up the configured face engine. The returned SafeCommand
// is non-nil for the process engine so its logs can be shown on failure.
func startEngine(ctx context.Context) (engine.Engine, *utils.SafeCommand, error) {
	switch cfg.Engine.Kind {
	case "process":
		fmt.Fprintln(os.Stderr, "🚀 Starting face engine...")
		p, err := engine.StartProcess(ctx, cfg.Engine.Command)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Cmd, nil
	default:
		fmt.Fprintln(os.Stderr, "🚀 Loading dlib models...")
		e, err := dlib.New(cfg.Engine.Models)
		if err != nil {
			return nil, nil, err
		}
		return e, nil, nil
	}
}

// loadGallery encodes every labelled image in dir with eng.
func loadGallery(ctx context.Context, eng engine.Engine, dir string) (*matcher.Gallery, *loader.Result[[]float32], error) {
	total, err := loader.CountFiles(dir)
	if err != nil {
		return nil, nil, err
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("📂 Loading gallery"),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
	)
	defer bar.Finish()

	res, err := loader.Load[[]float32](ctx, dir, eng,
		loader.WithLogger(logger),
		loader.WithProgress(func(string, loader.Outcome) { bar.Add(1) }),
	)
	if err != nil {
		return nil, nil, err
	}

	g, err := matcher.NewGallery(res.Identities, res.Samples)
	if err != nil {
		return nil, nil, err
	}
	return g, res, nil
}

// newMatcher builds a matcher over g from the configured thresholds.
func newMatcher(g *matcher.Gallery) (*matcher.Matcher, error) {
	dist, err := matcher.Metric(cfg.Match.Metric)
	if err != nil {
		return nil, err
	}
	return matcher.New(g,
		matcher.WithThreshold(cfg.Match.Threshold),
		matcher.WithAcceptance(cfg.Match.Acceptance),
		matcher.WithDistance(dist),
	), nil
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/andresmejia3/watchlist/internal/capture"
	"github.com/andresmejia3/watchlist/internal/display"
	"github.com/andresmejia3/watchlist/internal/pipeline"
	"github.com/andresmejia3/watchlist/internal/utils"
	"github.com/andresmejia3/watchlist/internal/vision"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// beepDuration matches a one second system beep.
const beepDuration = time.Second

// WatchOptions mirrors the watch flags before they are merged into the config.
type WatchOptions struct {
	Source     string
	Gallery    string
	Threshold  float64
	Acceptance float64
	Delay      time.Duration
	Metric     string
	Engine     string
	EngineCmd  string
	Models     string
	Window     bool
	Snapshots  string
	NoAlert    bool
	MaxFrames  int
	FFmpeg     bool
	FPS        int
}

var watchOpts WatchOptions

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a camera or video stream and report known faces",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runWatch(cmd.Context())
	},
}

func init() {
	f := watchCmd.Flags()
	f.StringVarP(&watchOpts.Source, "source", "s", "0", "Camera index, video file, device or stream URL (a finished file ends the session)")
	f.StringVarP(&watchOpts.Gallery, "gallery", "g", "images", "Directory of labelled face images (<prefix>.<id>.<ext>)")
	f.Float64VarP(&watchOpts.Threshold, "threshold", "t", 0.6, "Face matching threshold (lower is stricter)")
	f.Float64VarP(&watchOpts.Acceptance, "accept", "a", 0.5, "Minimum confidence for a confirmed match")
	f.DurationVar(&watchOpts.Delay, "delay", pipeline.DefaultDelay, "Pause between frames")
	f.StringVar(&watchOpts.Metric, "metric", "euclidean", "Distance metric: euclidean or cosine")
	f.StringVar(&watchOpts.Engine, "engine", "dlib", "Face engine: dlib or process")
	f.StringVar(&watchOpts.EngineCmd, "engine-cmd", "python3 -u engine/face_engine.py", "Command line of the external engine (--engine process)")
	f.StringVar(&watchOpts.Models, "models", "models", "Directory holding the dlib models")
	f.BoolVar(&watchOpts.Window, "window", true, "Show the live preview window")
	f.StringVar(&watchOpts.Snapshots, "snapshots", "", "Save annotated frames with confirmed faces to this directory")
	f.BoolVar(&watchOpts.NoAlert, "no-alert", false, "Do not beep on confirmed matches")
	f.IntVar(&watchOpts.MaxFrames, "max-frames", 0, "Stop after this many frames (0 = run until interrupted)")
	f.BoolVar(&watchOpts.FFmpeg, "ffmpeg", false, "Decode the source with ffmpeg instead of OpenCV")
	f.IntVar(&watchOpts.FPS, "fps", 0, "Frame rate cap for ffmpeg sources (0 = native)")

	flagAppliers[watchCmd] = applyWatchFlags
	rootCmd.AddCommand(watchCmd)
}

func applyWatchFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("source") {
		cfg.Watch.Source = watchOpts.Source
	}
	if f.Changed("gallery") {
		cfg.Gallery = watchOpts.Gallery
	}
	if f.Changed("threshold") {
		cfg.Match.Threshold = watchOpts.Threshold
	}
	if f.Changed("accept") {
		cfg.Match.Acceptance = watchOpts.Acceptance
	}
	if f.Changed("delay") {
		cfg.Watch.Delay = watchOpts.Delay
	}
	if f.Changed("metric") {
		cfg.Match.Metric = watchOpts.Metric
	}
	if f.Changed("engine") {
		cfg.Engine.Kind = watchOpts.Engine
	}
	if f.Changed("engine-cmd") {
		cfg.Engine.Command = watchOpts.EngineCmd
	}
	if f.Changed("models") {
		cfg.Engine.Models = watchOpts.Models
	}
	if f.Changed("window") {
		cfg.Watch.Window = watchOpts.Window
	}
	if f.Changed("snapshots") {
		cfg.Watch.Snapshots = watchOpts.Snapshots
	}
	if f.Changed("no-alert") {
		cfg.Watch.Alert = !watchOpts.NoAlert
	}
	if f.Changed("max-frames") {
		cfg.Watch.MaxFrames = watchOpts.MaxFrames
	}
	if f.Changed("ffmpeg") {
		cfg.Watch.FFmpeg = watchOpts.FFmpeg
	}
	if f.Changed("fps") {
		cfg.Watch.FPS = watchOpts.FPS
	}
}

// runWatch wires the live session together and runs it until interrupted.
func runWatch(ctx context.Context) error {
	eng, proc, err := startEngine(ctx)
	if err != nil {
		utils.ShowError("Failed to start face engine", err, proc)
		return err
	}
	defer eng.Close()

	gallery, res, err := loadGallery(ctx, eng, cfg.Gallery)
	if err != nil {
		utils.ShowError("Failed to load gallery", err, proc)
		return err
	}
	fmt.Fprintf(os.Stderr, "🗂️  Gallery: %d samples of %d people (%d skipped)\n",
		res.Len(), res.DistinctIdentities(), len(res.Skipped))
	if gallery.Len() == 0 {
		fmt.Fprintln(os.Stderr, "⚠️  Gallery is empty, every face will be reported as Unknown.")
	}

	m, err := newMatcher(gallery)
	if err != nil {
		return err
	}

	profiles, err := openStore()
	if err != nil {
		utils.ShowError("Failed to open criminal records", err, nil)
		return err
	}

	src, err := openSource(ctx)
	if err != nil {
		utils.ShowError("Failed to open video source", err, nil)
		return err
	}
	closeSource := sync.OnceValue(src.Close)
	defer closeSource()

	var displays []pipeline.Display
	if cfg.Watch.Window {
		w := vision.NewWindow("Watchlist")
		defer w.Close()
		displays = append(displays, w)
	}
	if cfg.Watch.Snapshots != "" {
		snaps, err := display.NewSnapshots(cfg.Watch.Snapshots)
		if err != nil {
			return err
		}
		displays = append(displays, snaps)
	}

	app := &pipeline.App{
		Source:    src,
		Detector:  eng,
		Matcher:   m,
		Profiles:  profiles,
		Displays:  displays,
		Table:     display.NewConsole(os.Stdout),
		Logger:    logger,
		Delay:     cfg.Watch.Delay,
		MaxFrames: cfg.Watch.MaxFrames,
		SessionID: uuid.NewString(),
	}
	var notifier *pipeline.Notifier
	if cfg.Watch.Alert {
		notifier = pipeline.NewNotifier(ctx, pipeline.Bell{Out: os.Stderr, Duration: beepDuration}, logger)
		defer notifier.Close()
		app.Alerter = notifier
	}

	fmt.Fprintf(os.Stderr, "👁️  Watching %s (session %s). Press Ctrl+C to stop.\n", cfg.Watch.Source, app.SessionID[:8])
	if err := app.Run(ctx); err != nil {
		utils.ShowError("Watch loop failed", err, proc)
		return err
	}

	stats := app.Stats()
	if err := finishSource(src, closeSource, stats.Frames, ctx.Err() != nil); err != nil {
		utils.ShowError("Video source failed", err, nil)
		return err
	}
	fmt.Fprintf(os.Stderr, "✨ Processed %d frames.\n", stats.Frames)
	if notifier != nil {
		notifier.Close()
		fmt.Fprintf(os.Stderr, "🔔 %d alerts played, %d dropped while another was playing.\n", notifier.Played(), notifier.Dropped())
	}
	return nil
}

// finishSource closes src and decides whether its error matters. A source
// that fails before delivering a single frame is fatal unless the session was
// interrupted; later failures are only logged.
func finishSource(src pipeline.Source, closeSource func() error, frames int, interrupted bool) error {
	err := closeSource()
	if r, ok := src.(interface{ Err() error }); ok && err == nil {
		err = r.Err()
	}
	if err == nil {
		return nil
	}
	if frames == 0 && !interrupted {
		return fmt.Errorf("video source produced no frames: %w", err)
	}
	logger.Warn("video source closed with error", "err", err)
	return nil
}

func openSource(ctx context.Context) (pipeline.Source, error) {
	if cfg.Watch.FFmpeg {
		return capture.OpenFFmpeg(ctx, cfg.Watch.Source, cfg.Watch.FPS)
	}
	return vision.OpenCamera(cfg.Watch.Source)
}

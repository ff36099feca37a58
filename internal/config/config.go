// Package config resolves watchlist settings from defaults, an optional YAML
// file, .env and WATCHLIST_* environment variables. Command-line flags are
// applied on top by the cmd package.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/andresmejia3/watchlist/internal/matcher"
	"github.com/andresmejia3/watchlist/internal/pipeline"
	"github.com/andresmejia3/watchlist/internal/trainer"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read when no --config is given and it exists.
const DefaultFile = "watchlist.yaml"

type Config struct {
	Gallery   string         `yaml:"gallery"`
	Database  string         `yaml:"database"`
	LogFormat string         `yaml:"log_format"`
	Match     MatchConfig    `yaml:"match"`
	Engine    EngineConfig   `yaml:"engine"`
	Watch     WatchConfig    `yaml:"watch"`
	Training  TrainingConfig `yaml:"training"`
}

type MatchConfig struct {
	Threshold  float64 `yaml:"threshold"`
	Acceptance float64 `yaml:"acceptance"`
	Metric     string  `yaml:"metric"`
}

type EngineConfig struct {
	Kind    string `yaml:"kind"`    // dlib or process
	Command string `yaml:"command"` // for kind=process
	Models  string `yaml:"models"`  // dlib model directory
}

type WatchConfig struct {
	Source    string        `yaml:"source"`
	Delay     time.Duration `yaml:"delay"`
	FFmpeg    bool          `yaml:"ffmpeg"`
	FPS       int           `yaml:"fps"`
	Window    bool          `yaml:"window"`
	Snapshots string        `yaml:"snapshots"`
	Alert     bool          `yaml:"alert"`
	MaxFrames int           `yaml:"max_frames"`
}

type TrainingConfig struct {
	Dataset string `yaml:"dataset"`
	Model   string `yaml:"model"`
	Size    int    `yaml:"size"` // 0 keeps the original size
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Gallery:   "images",
		Database:  "criminal.db",
		LogFormat: "text",
		Match: MatchConfig{
			Threshold:  matcher.DefaultThreshold,
			Acceptance: matcher.DefaultAcceptance,
			Metric:     "euclidean",
		},
		Engine: EngineConfig{
			Kind:    "dlib",
			Command: "python3 -u engine/face_engine.py",
			Models:  "models",
		},
		Watch: WatchConfig{
			Source: "0",
			Delay:  pipeline.DefaultDelay,
			Window: true,
			Alert:  true,
		},
		Training: TrainingConfig{
			Dataset: "dataSet",
			Model:   trainer.DefaultModelPath,
		},
	}
}

// Load builds the configuration. path may be empty, in which case
// DefaultFile is used when present.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	// A missing .env is fine.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	envString("WATCHLIST_GALLERY", &c.Gallery)
	envString("WATCHLIST_DATABASE", &c.Database)
	envString("WATCHLIST_LOG_FORMAT", &c.LogFormat)
	envString("WATCHLIST_METRIC", &c.Match.Metric)
	envString("WATCHLIST_ENGINE", &c.Engine.Kind)
	envString("WATCHLIST_ENGINE_CMD", &c.Engine.Command)
	envString("WATCHLIST_MODELS", &c.Engine.Models)
	envString("WATCHLIST_SOURCE", &c.Watch.Source)
	envString("WATCHLIST_SNAPSHOTS", &c.Watch.Snapshots)
	envString("WATCHLIST_DATASET", &c.Training.Dataset)
	envString("WATCHLIST_MODEL", &c.Training.Model)

	if err := envFloat("WATCHLIST_THRESHOLD", &c.Match.Threshold); err != nil {
		return err
	}
	if err := envFloat("WATCHLIST_ACCEPT", &c.Match.Acceptance); err != nil {
		return err
	}
	if s := os.Getenv("WATCHLIST_DELAY"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("WATCHLIST_DELAY: %w", err)
		}
		c.Watch.Delay = d
	}
	for key, dst := range map[string]*int{
		"WATCHLIST_FPS":        &c.Watch.FPS,
		"WATCHLIST_MAX_FRAMES": &c.Watch.MaxFrames,
		"WATCHLIST_SIZE":       &c.Training.Size,
	} {
		if err := envInt(key, dst); err != nil {
			return err
		}
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envFloat(key string, dst *float64) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

// envInt overrides dst with a non-negative integer from the environment. Zero
// is a valid override (it means "no limit" for the frame settings).
func envInt(key string, dst *int) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if n < 0 {
		return fmt.Errorf("%s must not be negative, got %d", key, n)
	}
	*dst = n
	return nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if c.Match.Threshold <= 0 || c.Match.Threshold >= 1 {
		return fmt.Errorf("threshold must be within (0,1), got %v", c.Match.Threshold)
	}
	if c.Match.Acceptance < 0 || c.Match.Acceptance > 1 {
		return fmt.Errorf("acceptance must be within [0,1], got %v", c.Match.Acceptance)
	}
	if _, err := matcher.Metric(c.Match.Metric); err != nil {
		return err
	}
	if c.Watch.Delay <= 0 {
		return fmt.Errorf("delay must be positive, got %v", c.Watch.Delay)
	}
	switch c.Engine.Kind {
	case "dlib", "process":
	default:
		return fmt.Errorf("unknown engine %q (want dlib or process)", c.Engine.Kind)
	}
	if c.Engine.Kind == "process" && c.Engine.Command == "" {
		return errors.New("engine command is required for the process engine")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", c.LogFormat)
	}
	if c.Watch.FPS < 0 || c.Watch.MaxFrames < 0 {
		return fmt.Errorf("fps and max-frames must not be negative, got %d and %d", c.Watch.FPS, c.Watch.MaxFrames)
	}
	if c.Training.Size < 0 {
		return fmt.Errorf("size must not be negative, got %d", c.Training.Size)
	}
	return nil
}

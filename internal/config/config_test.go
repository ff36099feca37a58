package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir moves into an empty directory so no stray watchlist.yaml or .env is read.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
	return dir
}

func TestDefaults(t *testing.T) {
	chdir(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "images", cfg.Gallery)
	assert.Equal(t, "criminal.db", cfg.Database)
	assert.Equal(t, 0.6, cfg.Match.Threshold)
	assert.Equal(t, 0.5, cfg.Match.Acceptance)
	assert.Equal(t, 10*time.Millisecond, cfg.Watch.Delay)
	assert.Equal(t, "recognizer/training_data.yml", cfg.Training.Model)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := chdir(t)
	yml := `
gallery: faces
match:
  threshold: 0.5
  metric: cosine
watch:
  delay: 25ms
  source: rtsp://cam/stream
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFile), []byte(yml), 0644))
	t.Setenv("WATCHLIST_THRESHOLD", "0.45")
	t.Setenv("WATCHLIST_MAX_FRAMES", "100")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "faces", cfg.Gallery)
	assert.Equal(t, "cosine", cfg.Match.Metric)
	assert.Equal(t, 25*time.Millisecond, cfg.Watch.Delay)
	assert.Equal(t, "rtsp://cam/stream", cfg.Watch.Source)
	assert.Equal(t, 0.45, cfg.Match.Threshold, "env wins over file")
	assert.Equal(t, 100, cfg.Watch.MaxFrames)
	assert.Equal(t, "criminal.db", cfg.Database, "unset keys keep defaults")
}

func TestLoad_DotEnv(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("WATCHLIST_DATABASE=postgres://u:p@db/crimes\n"), 0644))
	t.Setenv("WATCHLIST_DATABASE", "")
	os.Unsetenv("WATCHLIST_DATABASE")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db/crimes", cfg.Database)
}

func TestLoad_Errors(t *testing.T) {
	dir := chdir(t)

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err, "an explicit config file must exist")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("match: [nope"), 0644))
	_, err = Load(bad)
	assert.Error(t, err)

	t.Setenv("WATCHLIST_DELAY", "soon")
	_, err = Load("")
	assert.ErrorContains(t, err, "WATCHLIST_DELAY")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero threshold", func(c *Config) { c.Match.Threshold = 0 }},
		{"threshold of one", func(c *Config) { c.Match.Threshold = 1 }},
		{"acceptance above one", func(c *Config) { c.Match.Acceptance = 1.5 }},
		{"unknown metric", func(c *Config) { c.Match.Metric = "manhattan" }},
		{"zero delay", func(c *Config) { c.Watch.Delay = 0 }},
		{"unknown engine", func(c *Config) { c.Engine.Kind = "magic" }},
		{"process without command", func(c *Config) { c.Engine.Kind = "process"; c.Engine.Command = "" }},
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }},
		{"negative size", func(c *Config) { c.Training.Size = -1 }},
		{"negative max frames", func(c *Config) { c.Watch.MaxFrames = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_EnvIntegers(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFile), []byte("watch:\n  max_frames: 500\n  fps: 15\n"), 0644))

	t.Setenv("WATCHLIST_MAX_FRAMES", "0")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Watch.MaxFrames, "zero lifts the limit set in the file")
	assert.Equal(t, 15, cfg.Watch.FPS)

	for _, bad := range []string{"lots", "-3", "1.5"} {
		t.Setenv("WATCHLIST_FPS", bad)
		_, err := Load("")
		assert.ErrorContains(t, err, "WATCHLIST_FPS", "value %q", bad)
	}
}

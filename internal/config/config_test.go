package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoldenFealla/avplayer/internal/queue"
)

func TestDefaults(t *testing.T) {
	c := Default()

	assert.Equal(t, WindowConfig{Width: 700, Height: 500}, c.Window)
	assert.Equal(t, queue.Unbounded, c.Queue.Policy)
	assert.Equal(t, AudioPull, c.Audio.Mode)
	assert.Equal(t, 44100, c.Audio.SampleRate)
	assert.Equal(t, slog.LevelInfo, c.Log.Level)
	assert.Equal(t, 250*time.Millisecond, c.Stats.Interval)
	assert.Empty(t, c.HWAccel)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "avplayer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
window:
  width: 1280
  height: 720
hwaccel:
  device: vaapi
queue:
  policy: drop-oldest
  capacity: 512
audio:
  mode: push
  volume: 0.5
log:
  level: debug
`), 0o644))

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	require.NoError(t, ReadFile(v))

	c, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, WindowConfig{Width: 1280, Height: 720}, c.Window)
	assert.Equal(t, "vaapi", c.HWAccel)
	assert.Equal(t, queue.DropOldest, c.Queue.Policy)
	assert.Equal(t, 512, c.Queue.Capacity)
	assert.Equal(t, AudioPush, c.Audio.Mode)
	assert.Equal(t, 0.5, c.Audio.Volume)
	assert.Equal(t, slog.LevelDebug, c.Log.Level)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("AVPLAYER_WINDOW_WIDTH", "1920")
	t.Setenv("AVPLAYER_AUDIO_MODE", "PUSH")

	c, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, 1920, c.Window.Width)
	assert.Equal(t, AudioPush, c.Audio.Mode)
}

func TestMissingFileIsIgnored(t *testing.T) {
	v := viper.New()
	v.SetConfigName("does-not-exist")
	v.AddConfigPath(t.TempDir())
	assert.NoError(t, ReadFile(v))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero window", func(c *Config) { c.Window.Width = 0 }},
		{"bounded policy without capacity", func(c *Config) { c.Queue.Policy = queue.Block }},
		{"bad audio mode", func(c *Config) { c.Audio.Mode = "stream" }},
		{"volume above one", func(c *Config) { c.Audio.Volume = 1.5 }},
		{"no sample rate", func(c *Config) { c.Audio.SampleRate = 0 }},
		{"stats without interval", func(c *Config) { c.Stats = StatsConfig{Enabled: true} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadRejectsUnknownPolicy(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("queue.policy", "random")

	_, err := Load(v)
	assert.Error(t, err)
}

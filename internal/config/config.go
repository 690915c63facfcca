// Package config loads player settings from flags, environment and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/GoldenFealla/avplayer/internal/queue"
)

const (
	AudioPull = "pull"
	AudioPush = "push"
)

type Config struct {
	Window  WindowConfig
	HWAccel string
	Queue   QueueConfig
	Audio   AudioConfig
	Log     LogConfig
	Stats   StatsConfig
}

type WindowConfig struct {
	Width  int
	Height int
}

type QueueConfig struct {
	// Policy and Capacity apply to the packet queues between router and
	// workers.
	Policy   queue.Policy
	Capacity int

	// Decoded frame queues always block the worker when full.
	VideoFrames int
	AudioFrames int
}

type AudioConfig struct {
	Mode       string
	SampleRate int
	Volume     float64
}

type LogConfig struct {
	Level slog.Level
}

type StatsConfig struct {
	Enabled  bool
	Interval time.Duration
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("window.width", 700)
	v.SetDefault("window.height", 500)
	v.SetDefault("hwaccel.device", "")
	v.SetDefault("queue.policy", queue.Unbounded.String())
	v.SetDefault("queue.capacity", 0)
	v.SetDefault("queue.video_frames", 32)
	v.SetDefault("queue.audio_frames", 256)
	v.SetDefault("audio.mode", AudioPull)
	v.SetDefault("audio.sample_rate", 44100)
	v.SetDefault("audio.volume", 1.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("stats.enabled", false)
	v.SetDefault("stats.interval", 250*time.Millisecond)
}

// New returns a viper instance with defaults, AVPLAYER_ environment
// variables and the config file search path set up.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("avplayer")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("avplayer")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(filepath.Join(xdg.ConfigHome, "avplayer"))
	return v
}

// ReadFile reads the config file if one exists. A missing file is not an
// error.
func ReadFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("config: reading config file failed: %w", err)
	}
	return nil
}

func Load(v *viper.Viper) (Config, error) {
	policy, err := queue.ParsePolicy(v.GetString("queue.policy"))
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("log.level"))); err != nil {
		return Config{}, fmt.Errorf("config: invalid log level: %w", err)
	}

	c := Config{
		Window: WindowConfig{
			Width:  v.GetInt("window.width"),
			Height: v.GetInt("window.height"),
		},
		HWAccel: v.GetString("hwaccel.device"),
		Queue: QueueConfig{
			Policy:      policy,
			Capacity:    v.GetInt("queue.capacity"),
			VideoFrames: v.GetInt("queue.video_frames"),
			AudioFrames: v.GetInt("queue.audio_frames"),
		},
		Audio: AudioConfig{
			Mode:       strings.ToLower(v.GetString("audio.mode")),
			SampleRate: v.GetInt("audio.sample_rate"),
			Volume:     v.GetFloat64("audio.volume"),
		},
		Log: LogConfig{
			Level: level,
		},
		Stats: StatsConfig{
			Enabled:  v.GetBool("stats.enabled"),
			Interval: v.GetDuration("stats.interval"),
		},
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		errs = append(errs, fmt.Errorf("window size must be positive, got %dx%d", c.Window.Width, c.Window.Height))
	}
	if c.Queue.Policy != queue.Unbounded && c.Queue.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("queue policy %s needs a positive capacity", c.Queue.Policy))
	}
	if c.Queue.VideoFrames <= 0 || c.Queue.AudioFrames <= 0 {
		errs = append(errs, errors.New("frame queue sizes must be positive"))
	}
	if c.Audio.Mode != AudioPull && c.Audio.Mode != AudioPush {
		errs = append(errs, fmt.Errorf("audio mode must be %q or %q, got %q", AudioPull, AudioPush, c.Audio.Mode))
	}
	if c.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio sample rate must be positive, got %d", c.Audio.SampleRate))
	}
	if c.Audio.Volume < 0 || c.Audio.Volume > 1 {
		errs = append(errs, fmt.Errorf("audio volume must be within [0, 1], got %v", c.Audio.Volume))
	}
	if c.Stats.Enabled && c.Stats.Interval <= 0 {
		errs = append(errs, errors.New("stats interval must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Default is the configuration with every default applied.
func Default() Config {
	v := viper.New()
	SetDefaults(v)
	c, err := Load(v)
	if err != nil {
		panic(err)
	}
	return c
}

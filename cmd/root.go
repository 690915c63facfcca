package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"fyne.io/fyne/v2/app"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/GoldenFealla/avplayer/internal/config"
	"github.com/GoldenFealla/avplayer/internal/engine"
	"github.com/GoldenFealla/avplayer/internal/media"
	"github.com/GoldenFealla/avplayer/internal/playback"
	"github.com/GoldenFealla/avplayer/internal/present"
	"github.com/GoldenFealla/avplayer/internal/stats"
)

const appID = "io.github.goldenfealla.avplayer"

func Execute() error {
	return NewRootCommand().Execute()
}

func NewRootCommand() *cobra.Command {
	v := config.New()
	var configFile string

	cmd := &cobra.Command{
		Use:   "avplayer [file]",
		Short: "Play a video file with synchronized audio",
		Long: `avplayer opens a media file or URL, decodes its video and audio streams
concurrently and presents them in a window, keeping video in step with the
audio clock.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				v.SetConfigFile(configFile)
			}
			if err := config.ReadFile(v); err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return play(cmd.Context(), args[0], cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "config file (default is ./avplayer.yaml or $XDG_CONFIG_HOME/avplayer/avplayer.yaml)")
	f.Int("width", 0, "initial window width in pixels")
	f.Int("height", 0, "initial window height in pixels")
	f.String("hwaccel", "", `preferred hardware decoder (e.g. "vaapi", "cuda"), "none" to disable`)
	f.String("audio-mode", "", `audio feed: "pull" or "push"`)
	f.Int("sample-rate", 0, "audio output sample rate")
	f.Float64("volume", 0, "audio volume between 0 and 1")
	f.String("queue-policy", "", `packet queue policy: "unbounded", "drop-oldest" or "block"`)
	f.Int("queue-capacity", 0, "packet queue capacity for bounded policies")
	f.String("log-level", "", "log level: debug, info, warn or error")
	f.Bool("stats", false, "print the A/V status line")

	bindFlags(v, cmd, map[string]string{
		"width":          "window.width",
		"height":         "window.height",
		"hwaccel":        "hwaccel.device",
		"audio-mode":     "audio.mode",
		"sample-rate":    "audio.sample_rate",
		"volume":         "audio.volume",
		"queue-policy":   "queue.policy",
		"queue-capacity": "queue.capacity",
		"log-level":      "log.level",
		"stats":          "stats.enabled",
	})

	return cmd
}

// bindFlags maps flags onto config keys. A flag only overrides the config
// when it is set on the command line.
func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for name, key := range keys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("binding flag %q: %v", name, err))
		}
	}
}

func play(ctx context.Context, path string, cfg config.Config) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.Level}))
	slog.SetDefault(log)
	engine.SetupLogging(log, cfg.Log.Level)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	speaker, err := present.NewSpeaker(cfg.Audio.SampleRate)
	if err != nil {
		return err
	}

	var c *playback.Coordinator
	a := app.NewWithID(appID)
	win := present.NewWindow(a, "avplayer - "+filepath.Base(path),
		media.Size{Width: cfg.Window.Width, Height: cfg.Window.Height},
		func(s media.Size) {
			if c != nil {
				c.Resize(s.Width, s.Height)
			}
		},
	)

	opts := playback.Options{
		Config:   cfg,
		Open:     openEngine,
		Renderer: win,
		Log:      log,
	}

	var src io.Reader
	if cfg.Audio.Mode == config.AudioPush {
		pr, pw := io.Pipe()
		opts.AudioWriter = pw
		src = pr
	}

	if c, err = playback.Open(path, opts); err != nil {
		return err
	}
	if src == nil {
		src = c.AudioReader()
	}

	if err := c.Start(ctx); err != nil {
		c.Stop()
		return err
	}
	speaker.Play(src, cfg.Audio.Volume)

	go func() {
		if err := c.Run(ctx); err != nil {
			log.Error("playback failed", "error", err)
		}
	}()
	if cfg.Stats.Enabled {
		go func() { _ = stats.NewMonitor(c, os.Stdout, cfg.Stats.Interval).Run(ctx) }()
	}
	go func() {
		<-ctx.Done()
		win.Close()
	}()

	win.SetOnClosed(stop)
	win.ShowAndRun()

	stop()
	c.Stop()
	if err := speaker.Close(); err != nil {
		log.Warn("closing speaker failed", "error", err)
	}
	return nil
}

func openEngine(path string, opts playback.EngineOptions) (playback.Engine, error) {
	e, err := engine.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Package engine opens a container with FFmpeg and exposes its video and
// audio streams as decoders producing canonical frames.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"

	"github.com/GoldenFealla/avplayer/internal/decoder"
	"github.com/GoldenFealla/avplayer/internal/media"
	"github.com/GoldenFealla/avplayer/internal/playback"
)

type Engine struct {
	log    *slog.Logger
	closer *astikit.Closer

	iformat *astiav.FormatContext

	videoStream *astiav.Stream
	audioStream *astiav.Stream

	video *VideoDecoder
	audio *AudioDecoder
}

// Open opens path and both of its decoders. On failure everything
// allocated so far is released.
func Open(path string, opts playback.EngineOptions) (_ *Engine, err error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	mime, err := sniff(path)
	if err != nil {
		return nil, err
	}
	switch {
	case mime == nil:
	case isText(mime):
		log.Info("input is text, leaving it to the demuxer", "mime", mime.String())
	default:
		log.Debug("input sniffed", "mime", mime.String())
	}

	e := &Engine{
		log:    log,
		closer: astikit.NewCloser(),
	}
	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	if e.iformat = astiav.AllocFormatContext(); e.iformat == nil {
		return nil, errors.New("engine: input format context is nil")
	}

	if err := e.iformat.OpenInput(path, nil, nil); err != nil {
		e.iformat.Free()
		return nil, fmt.Errorf("engine: opening input failed: %w", err)
	}
	e.closer.Add(e.iformat.CloseInput)

	if err := e.iformat.FindStreamInfo(nil); err != nil {
		return nil, fmt.Errorf("engine: finding stream info failed: %w", err)
	}

	vs, vc, err := findStream(e.iformat, astiav.MediaTypeVideo)
	if err != nil {
		return nil, err
	}
	as, ac, err := findStream(e.iformat, astiav.MediaTypeAudio)
	if err != nil {
		return nil, err
	}
	e.videoStream, e.audioStream = vs, as

	if e.video, err = newVideoDecoder(vs, vc, opts.HWAccel, e.closer, log.With("stream", "video")); err != nil {
		return nil, fmt.Errorf("engine: opening video decoder failed: %w", err)
	}
	e.video.SetTargetSize(opts.Target)

	if e.audio, err = newAudioDecoder(as, ac, opts.SampleRate, e.closer); err != nil {
		return nil, fmt.Errorf("engine: opening audio decoder failed: %w", err)
	}

	log.Info("input opened",
		"format", e.iformat.InputFormat().Name(),
		"video_codec", vc.Name(),
		"audio_codec", ac.Name(),
		"width", vs.CodecParameters().Width(),
		"height", vs.CodecParameters().Height(),
	)
	return e, nil
}

// ReadPacket reads the next packet of any stream. It returns io.EOF at the
// end of the container.
func (e *Engine) ReadPacket() (media.Packet, error) {
	pkt := astiav.AllocPacket()
	if err := e.iformat.ReadFrame(pkt); err != nil {
		pkt.Free()
		if errors.Is(err, astiav.ErrEof) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("engine: reading packet failed: %w", err)
	}
	return pkt, nil
}

func (e *Engine) VideoStream() int { return e.videoStream.Index() }
func (e *Engine) AudioStream() int { return e.audioStream.Index() }

func (e *Engine) VideoDecoder() playback.VideoDecoder { return e.video }

func (e *Engine) AudioDecoder() decoder.StreamDecoder[media.AudioFrame] { return e.audio }

func (e *Engine) FrameRate() float64 {
	return frameRate(e.videoStream.RFrameRate(), e.videoStream.AvgFrameRate(), func() astiav.Rational {
		return e.iformat.GuessFrameRate(e.videoStream, nil)
	})
}

// frameRate prefers the stream's real base frame rate, then its average,
// then the demuxer's guess.
func frameRate(base, avg astiav.Rational, guess func() astiav.Rational) float64 {
	for _, r := range []astiav.Rational{base, avg} {
		if r.Num() > 0 && r.Den() > 0 {
			return r.Float64()
		}
	}
	return guess().Float64()
}

func (e *Engine) AspectRatio() float64 {
	p := e.videoStream.CodecParameters()
	if p.Height() == 0 {
		return 0
	}
	aspect := float64(p.Width()) / float64(p.Height())
	if sar := p.SampleAspectRatio(); sar.Num() > 0 && sar.Den() > 0 {
		aspect *= sar.Float64()
	}
	return aspect
}

func (e *Engine) Close() {
	_ = e.closer.Close()
}

var logOnce sync.Once

// SetupLogging routes FFmpeg's log output through log at the given level.
func SetupLogging(log *slog.Logger, level slog.Level) {
	logOnce.Do(func() {
		astiav.SetLogLevel(ffmpegLevel(level))
		astiav.SetLogCallback(func(c astiav.Classer, l astiav.LogLevel, _, msg string) {
			attrs := []any{"component", "ffmpeg"}
			if c != nil {
				if cl := c.Class(); cl != nil {
					attrs = append(attrs, "class", cl.Name())
				}
			}
			log.Log(context.Background(), slogLevel(l), strings.TrimSpace(msg), attrs...)
		})
	})
}

func ffmpegLevel(l slog.Level) astiav.LogLevel {
	switch {
	case l <= slog.LevelDebug:
		return astiav.LogLevelVerbose
	case l <= slog.LevelInfo:
		return astiav.LogLevelWarning
	default:
		return astiav.LogLevelError
	}
}

func slogLevel(l astiav.LogLevel) slog.Level {
	switch {
	case l <= astiav.LogLevelError:
		return slog.LevelError
	case l <= astiav.LogLevelWarning:
		return slog.LevelWarn
	case l <= astiav.LogLevelInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

package playback

import (
	"fmt"
	"log/slog"

	"github.com/GoldenFealla/avplayer/internal/decoder"
	"github.com/GoldenFealla/avplayer/internal/media"
	"github.com/GoldenFealla/avplayer/internal/router"
)

// VideoDecoder is the video stream's decoder. SetTargetSize may be called
// from any goroutine and only affects frames converted afterwards.
type VideoDecoder interface {
	decoder.StreamDecoder[media.VideoFrame]
	SetTargetSize(size media.Size)
}

// Engine is an opened container together with its audio and video
// decoders.
type Engine interface {
	router.Source

	VideoStream() int
	AudioStream() int
	VideoDecoder() VideoDecoder
	AudioDecoder() decoder.StreamDecoder[media.AudioFrame]

	// FrameRate of the video stream in frames per second.
	FrameRate() float64
	// AspectRatio of the video stream (width/height), 0 when unknown.
	AspectRatio() float64

	// Close releases every engine resource. Nothing may use the engine
	// afterwards.
	Close()
}

type EngineOptions struct {
	Target     media.Size
	HWAccel    string
	SampleRate int
	Log        *slog.Logger
}

// Opener opens path and builds its decoders.
type Opener func(path string, opts EngineOptions) (Engine, error)

// InitError is returned when playback cannot start at all: the container
// cannot be opened or probed, a stream is missing, or a decoder fails to
// open.
type InitError struct {
	Path string
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("playback: initializing %q failed: %v", e.Path, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

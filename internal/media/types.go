// Package media holds the units that move between the router, the decode
// workers and the presentation side.
package media

// Packet is an encoded, stream-tagged unit read from the container. Whoever
// holds a Packet owns it and must call Free exactly once.
type Packet interface {
	StreamIndex() int
	Free()
}

// BytesPerPixel of the canonical video layout (RGBA).
const BytesPerPixel = 4

// VideoFrame is a decoded image normalized to the canonical RGBA layout.
type VideoFrame struct {
	Pixels []byte
	Width  int
	Height int
	Stride int

	// PTS in seconds from stream start.
	PTS float64
}

// AudioChannels of the canonical audio format (interleaved float32 LE).
const AudioChannels = 2

// AudioFrame is a batch of interleaved float32 stereo samples.
type AudioFrame struct {
	Data    []byte
	Samples int
	PTS     float64
}

type Size struct {
	Width  int
	Height int
}

func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Fit keeps the requested height and derives the width from aspect
// (width/height). A non positive aspect keeps the requested width.
func (s Size) Fit(aspect float64) Size {
	if aspect <= 0 {
		return s
	}
	return Size{
		Width:  int(aspect * float64(s.Height)),
		Height: s.Height,
	}
}

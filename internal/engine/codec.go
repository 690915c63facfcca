package engine

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
)

var (
	ErrNoVideo = errors.New("engine: no video stream")
	ErrNoAudio = errors.New("engine: no audio stream")
)

// findStream returns the first stream of type t and its decoder.
func findStream(fc *astiav.FormatContext, t astiav.MediaType) (*astiav.Stream, *astiav.Codec, error) {
	for _, is := range fc.Streams() {
		if is.CodecParameters().MediaType() != t {
			continue
		}

		c := astiav.FindDecoder(is.CodecParameters().CodecID())
		if c == nil {
			return nil, nil, fmt.Errorf("finding %s codec: codec is nil", t)
		}
		return is, c, nil
	}

	if t == astiav.MediaTypeVideo {
		return nil, nil, ErrNoVideo
	}
	return nil, nil, ErrNoAudio
}

// newCodecContext allocates a codec context for s. The context is freed by
// closer. configure runs before the context is opened.
func newCodecContext(s *astiav.Stream, c *astiav.Codec, closer *astikit.Closer, configure func(cc *astiav.CodecContext) error) (*astiav.CodecContext, error) {
	cc := astiav.AllocCodecContext(c)
	if cc == nil {
		return nil, errors.New("codec context is nil")
	}
	closer.Add(cc.Free)

	if err := s.CodecParameters().ToCodecContext(cc); err != nil {
		return nil, fmt.Errorf("updating codec context failed: %w", err)
	}

	if configure != nil {
		if err := configure(cc); err != nil {
			return nil, err
		}
	}

	if err := cc.Open(c, nil); err != nil {
		return nil, fmt.Errorf("opening codec context failed: %w", err)
	}
	return cc, nil
}

// receive wraps ReceiveFrame, reporting an exhausted decoder as done.
func receive(cc *astiav.CodecContext, f *astiav.Frame) (done bool, err error) {
	if err := cc.ReceiveFrame(f); err != nil {
		if errors.Is(err, astiav.ErrEof) || errors.Is(err, astiav.ErrEagain) {
			return true, nil
		}
		return true, fmt.Errorf("receiving frame failed: %w", err)
	}
	return false, nil
}

func toPacket(p any) (*astiav.Packet, error) {
	pkt, ok := p.(*astiav.Packet)
	if !ok {
		return nil, fmt.Errorf("unsupported packet type %T", p)
	}
	return pkt, nil
}

func seconds(pts int64, tb astiav.Rational) float64 {
	if pts == astiav.NoPtsValue {
		return 0
	}
	return float64(pts) * tb.Float64()
}

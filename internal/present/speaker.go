package present

import (
	"fmt"
	"io"

	"github.com/ebitengine/oto/v3"

	"github.com/GoldenFealla/avplayer/internal/media"
)

// Speaker plays interleaved float32 stereo through the default output
// device. Only one Speaker may exist per process.
type Speaker struct {
	ctx    *oto.Context
	player *oto.Player
	src    io.Reader
}

func NewSpeaker(sampleRate int) (*Speaker, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: media.AudioChannels,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return nil, fmt.Errorf("speaker: creating audio context failed: %w", err)
	}
	<-ready

	return &Speaker{ctx: ctx}, nil
}

// Play starts pulling samples from src at volume (0 to 1).
func (s *Speaker) Play(src io.Reader, volume float64) {
	s.src = src
	s.player = s.ctx.NewPlayer(src)
	s.player.SetVolume(volume)
	s.player.Play()
}

func (s *Speaker) Close() error {
	if s.player == nil {
		return nil
	}
	if c, ok := s.src.(io.Closer); ok {
		_ = c.Close()
	}
	return s.player.Close()
}

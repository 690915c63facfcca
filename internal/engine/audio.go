package engine

import (
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"

	"github.com/GoldenFealla/avplayer/internal/decoder"
	"github.com/GoldenFealla/avplayer/internal/media"
)

var (
	channelLayout = astiav.ChannelLayoutStereo
	sampleFormat  = astiav.SampleFormatFlt
)

// AudioDecoder decodes the audio stream and resamples it to interleaved
// float32 stereo at the output sample rate.
type AudioDecoder struct {
	st         *astiav.Stream
	cc         *astiav.CodecContext
	resampler  *astiav.SoftwareResampleContext
	sampleRate int

	decodedFrame   *astiav.Frame
	resampledFrame *astiav.Frame
}

func newAudioDecoder(st *astiav.Stream, c *astiav.Codec, sampleRate int, closer *astikit.Closer) (*AudioDecoder, error) {
	ad := &AudioDecoder{
		st:         st,
		sampleRate: sampleRate,
	}

	var err error
	if ad.cc, err = newCodecContext(st, c, closer, nil); err != nil {
		return nil, err
	}

	ad.decodedFrame = astiav.AllocFrame()
	closer.Add(ad.decodedFrame.Free)

	ad.resampledFrame = astiav.AllocFrame()
	closer.Add(ad.resampledFrame.Free)

	ad.resampler = astiav.AllocSoftwareResampleContext()
	closer.Add(ad.resampler.Free)

	return ad, nil
}

func (ad *AudioDecoder) Send(p media.Packet) error {
	pkt, err := toPacket(p)
	if err != nil {
		return fmt.Errorf("audio decoder: %w", err)
	}
	if err := ad.cc.SendPacket(pkt); err != nil {
		return fmt.Errorf("audio decoder: sending packet failed: %w", err)
	}
	return nil
}

func (ad *AudioDecoder) Receive() (media.AudioFrame, error) {
	done, err := receive(ad.cc, ad.decodedFrame)
	if err != nil {
		return media.AudioFrame{}, fmt.Errorf("audio decoder: %w", err)
	}
	if done {
		return media.AudioFrame{}, decoder.ErrNeedInput
	}
	defer ad.decodedFrame.Unref()

	// the resampler allocates the output buffer when it is left unset
	ad.resampledFrame.Unref()
	ad.resampledFrame.SetChannelLayout(channelLayout)
	ad.resampledFrame.SetSampleFormat(sampleFormat)
	ad.resampledFrame.SetSampleRate(ad.sampleRate)

	if err := ad.resampler.ConvertFrame(ad.decodedFrame, ad.resampledFrame); err != nil {
		return media.AudioFrame{}, fmt.Errorf("audio decoder: resampling decoded frame failed: %w", err)
	}

	n := ad.resampledFrame.NbSamples()
	b, err := ad.resampledFrame.Data().Bytes(1)
	if err != nil {
		return media.AudioFrame{}, fmt.Errorf("audio decoder: getting resampled data failed: %w", err)
	}

	return media.AudioFrame{
		Data:    b,
		Samples: n,
		PTS:     seconds(ad.decodedFrame.Pts(), ad.st.TimeBase()),
	}, nil
}

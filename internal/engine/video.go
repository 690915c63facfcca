package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"

	"github.com/GoldenFealla/avplayer/internal/decoder"
	"github.com/GoldenFealla/avplayer/internal/hwaccel"
	"github.com/GoldenFealla/avplayer/internal/media"
)

type negotiation = hwaccel.Negotiation[astiav.PixelFormat, *astiav.HardwareDeviceContext]

// VideoDecoder decodes the video stream into RGBA frames scaled to the
// current target size.
type VideoDecoder struct {
	log *slog.Logger
	st  *astiav.Stream
	cc  *astiav.CodecContext
	hw  *negotiation

	df *astiav.Frame
	sf *astiav.Frame

	mu     sync.Mutex
	target media.Size

	scaler scaler
}

func newVideoDecoder(st *astiav.Stream, c *astiav.Codec, preferred string, closer *astikit.Closer, log *slog.Logger) (*VideoDecoder, error) {
	vd := &VideoDecoder{
		log: log,
		st:  st,
	}

	backends, err := hwaccel.Prefer(hardwareBackends(c), preferred)
	if err != nil {
		return nil, err
	}

	vd.hw = hwaccel.Negotiate(backends, func(b hwaccel.Backend[astiav.PixelFormat]) (*astiav.HardwareDeviceContext, error) {
		t := astiav.FindHardwareDeviceTypeByName(b.Name)
		return astiav.CreateHardwareDeviceContext(t, "", nil, 0)
	}, log)
	vd.hw.Own(func(f func()) { closer.Add(f) }, (*astiav.HardwareDeviceContext).Free)

	vd.cc, err = newCodecContext(st, c, closer, func(cc *astiav.CodecContext) error {
		if vd.hw == nil {
			return nil
		}
		cc.SetHardwareDeviceContext(vd.hw.Device)

		hw := vd.hw
		cc.SetPixelFormatCallback(func(pfs []astiav.PixelFormat) astiav.PixelFormat {
			if pf, ok := hw.Resolve(pfs); ok {
				return pf
			}
			log.Error("hardware pixel format not offered", "backend", hw.Backend.Name)
			return astiav.PixelFormatNone
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	vd.df = astiav.AllocFrame()
	closer.Add(vd.df.Free)
	vd.sf = astiav.AllocFrame()
	closer.Add(vd.sf.Free)
	closer.Add(vd.scaler.close)

	return vd, nil
}

// hardwareBackends lists the device types c can decode through, in the
// order the codec advertises them.
func hardwareBackends(c *astiav.Codec) []hwaccel.Backend[astiav.PixelFormat] {
	var out []hwaccel.Backend[astiav.PixelFormat]
	for _, hc := range c.HardwareConfigs() {
		out = append(out, hwaccel.Backend[astiav.PixelFormat]{
			Name:          hc.HardwareDeviceType().String(),
			PixelFormat:   hc.PixelFormat(),
			DeviceContext: hc.MethodFlags().Has(astiav.CodecHardwareConfigMethodFlagHwDeviceCtx),
		})
	}
	return out
}

func (vd *VideoDecoder) SetTargetSize(size media.Size) {
	vd.mu.Lock()
	defer vd.mu.Unlock()
	vd.target = size
}

func (vd *VideoDecoder) targetSize() media.Size {
	vd.mu.Lock()
	defer vd.mu.Unlock()
	return vd.target
}

func (vd *VideoDecoder) Send(p media.Packet) error {
	pkt, err := toPacket(p)
	if err != nil {
		return fmt.Errorf("video decoder: %w", err)
	}
	if err := vd.cc.SendPacket(pkt); err != nil {
		return fmt.Errorf("video decoder: sending packet failed: %w", err)
	}
	return nil
}

func (vd *VideoDecoder) Receive() (media.VideoFrame, error) {
	done, err := receive(vd.cc, vd.df)
	if err != nil {
		return media.VideoFrame{}, fmt.Errorf("video decoder: %w", err)
	}
	if done {
		return media.VideoFrame{}, decoder.ErrNeedInput
	}
	defer vd.df.Unref()

	src := vd.df
	if vd.hw.OnDevice(vd.df.PixelFormat()) {
		if err := vd.df.TransferHardwareData(vd.sf); err != nil {
			return media.VideoFrame{}, fmt.Errorf("video decoder: transferring hardware data failed: %w", err)
		}
		defer vd.sf.Unref()
		src = vd.sf
	}

	target := vd.targetSize()
	if target.Empty() {
		target = media.Size{Width: src.Width(), Height: src.Height()}
	}

	f, err := vd.scaler.toRGBA(src, target)
	if err != nil {
		return media.VideoFrame{}, fmt.Errorf("video decoder: %w", err)
	}
	f.PTS = seconds(vd.df.Pts(), vd.st.TimeBase())
	return f, nil
}

// scaler converts frames to RGBA, rebuilding its context whenever the
// source layout or the target size changes.
type scaler struct {
	ssc    *astiav.SoftwareScaleContext
	dst    *astiav.Frame
	src    media.Size
	srcPix astiav.PixelFormat
	target media.Size
}

func (s *scaler) close() {
	if s.dst != nil {
		s.dst.Free()
		s.dst = nil
	}
	if s.ssc != nil {
		s.ssc.Free()
		s.ssc = nil
	}
}

func (s *scaler) ensure(src *astiav.Frame, target media.Size) error {
	size := media.Size{Width: src.Width(), Height: src.Height()}
	pix := src.PixelFormat()

	if s.ssc != nil && size == s.src && pix == s.srcPix && target == s.target {
		return nil
	}
	s.close()

	ssc, err := astiav.CreateSoftwareScaleContext(
		size.Width, size.Height, pix,
		target.Width, target.Height, astiav.PixelFormatRgba,
		astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
	)
	if err != nil {
		return fmt.Errorf("creating scale context failed: %w", err)
	}

	dst := astiav.AllocFrame()
	dst.SetWidth(target.Width)
	dst.SetHeight(target.Height)
	dst.SetPixelFormat(astiav.PixelFormatRgba)
	if err := dst.AllocBuffer(1); err != nil {
		dst.Free()
		ssc.Free()
		return fmt.Errorf("allocating scaled frame buffer failed: %w", err)
	}

	s.ssc, s.dst = ssc, dst
	s.src, s.srcPix, s.target = size, pix, target
	return nil
}

func (s *scaler) toRGBA(src *astiav.Frame, target media.Size) (media.VideoFrame, error) {
	if err := s.ensure(src, target); err != nil {
		return media.VideoFrame{}, err
	}

	if err := s.ssc.ScaleFrame(src, s.dst); err != nil {
		return media.VideoFrame{}, fmt.Errorf("scaling frame failed: %w", err)
	}

	n, err := s.dst.ImageBufferSize(1)
	if err != nil {
		return media.VideoFrame{}, fmt.Errorf("sizing scaled frame failed: %w", err)
	}
	pixels := make([]byte, n)
	if _, err := s.dst.ImageCopyToBuffer(pixels, 1); err != nil {
		return media.VideoFrame{}, fmt.Errorf("copying scaled frame failed: %w", err)
	}

	return media.VideoFrame{
		Pixels: pixels,
		Width:  s.target.Width,
		Height: s.target.Height,
		Stride: s.target.Width * media.BytesPerPixel,
	}, nil
}

// Package playback owns a playback session: it wires the router, the decode
// workers and the audio feed together, drives the video refresh cadence and
// tears everything down in order.
package playback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/GoldenFealla/avplayer/internal/audio"
	"github.com/GoldenFealla/avplayer/internal/avsync"
	"github.com/GoldenFealla/avplayer/internal/config"
	"github.com/GoldenFealla/avplayer/internal/decoder"
	"github.com/GoldenFealla/avplayer/internal/media"
	"github.com/GoldenFealla/avplayer/internal/queue"
	"github.com/GoldenFealla/avplayer/internal/router"
)

// ErrStopped is returned by Start and ProcessNext after Stop.
var ErrStopped = errors.New("playback: stopped")

const (
	firstRefresh = 50 * time.Millisecond
	retryRefresh = time.Millisecond
)

// Renderer presents video frames. Render is called from the refresh
// goroutine and takes ownership of the frame.
type Renderer interface {
	Render(f media.VideoFrame)
}

// SurfaceResizer is implemented by renderers that can resize their surface.
// It is called once, before the first frame, with the aspect-fitted size.
type SurfaceResizer interface {
	ResizeSurface(size media.Size)
}

type Options struct {
	Config   config.Config
	Open     Opener
	Renderer Renderer

	// AudioWriter receives samples in push mode.
	AudioWriter io.Writer

	Log *slog.Logger
}

type Coordinator struct {
	log      *slog.Logger
	session  string
	eng      Engine
	renderer Renderer

	videoPackets *queue.Queue[media.Packet]
	audioPackets *queue.Queue[media.Packet]
	videoFrames  *queue.Queue[media.VideoFrame]
	audioFrames  *queue.Queue[media.AudioFrame]

	router *router.Router
	video  *decoder.Worker[media.VideoFrame]
	audio  *decoder.Worker[media.AudioFrame]

	clock *avsync.Clock
	sync  *avsync.Synchronizer
	pull  *audio.PullReader
	pump  *audio.Pump

	mu       sync.Mutex
	target   media.Size
	stopping bool
	ctx      context.Context
	cancel   context.CancelFunc
	g        *errgroup.Group

	// stepMu keeps ProcessNext and the engine release in Stop apart.
	stepMu sync.Mutex

	stopOnce     sync.Once
	surfaceSized bool
	lastVideoPTS atomic.Uint64
	rendered     atomic.Int64
}

// Open initializes a session for path. Any failure is an *InitError and
// nothing keeps running.
func Open(path string, opts Options) (*Coordinator, error) {
	cfg := opts.Config
	session := uuid.NewString()

	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("session", session)

	if opts.Open == nil || opts.Renderer == nil {
		return nil, &InitError{Path: path, Err: errors.New("opener and renderer are required")}
	}
	if cfg.Audio.Mode == config.AudioPush && opts.AudioWriter == nil {
		return nil, &InitError{Path: path, Err: errors.New("push audio mode needs an audio writer")}
	}

	target := media.Size{Width: cfg.Window.Width, Height: cfg.Window.Height}
	eng, err := opts.Open(path, EngineOptions{
		Target:     target,
		HWAccel:    cfg.HWAccel,
		SampleRate: cfg.Audio.SampleRate,
		Log:        log.With("component", "engine"),
	})
	if err != nil {
		return nil, &InitError{Path: path, Err: err}
	}

	c := &Coordinator{
		log:      log.With("component", "coordinator"),
		session:  session,
		eng:      eng,
		renderer: opts.Renderer,
		clock:    &avsync.Clock{},
	}
	c.sync = avsync.NewSynchronizer(c.clock)

	c.videoPackets = newPacketQueue(cfg.Queue)
	c.audioPackets = newPacketQueue(cfg.Queue)
	c.videoFrames = queue.New(queue.WithCapacity[media.VideoFrame](cfg.Queue.VideoFrames, queue.Block))
	c.audioFrames = queue.New(queue.WithCapacity[media.AudioFrame](cfg.Queue.AudioFrames, queue.Block))

	c.router = router.New(eng, log.With("component", "router"))
	c.router.Route(eng.VideoStream(), c.videoPackets)
	c.router.Route(eng.AudioStream(), c.audioPackets)

	c.video = decoder.NewWorker(decoder.StreamDecoder[media.VideoFrame](eng.VideoDecoder()), c.videoPackets, c.videoFrames, log.With("component", "worker", "stream", "video"))
	c.audio = decoder.NewWorker(eng.AudioDecoder(), c.audioPackets, c.audioFrames, log.With("component", "worker", "stream", "audio"))

	switch cfg.Audio.Mode {
	case config.AudioPush:
		c.pump = audio.NewPump(c.audioFrames, c.clock, opts.AudioWriter, log.With("component", "audio"))
	default:
		c.pull = audio.NewPullReader(c.audioFrames, c.clock, audio.DefaultStarveWait)
	}

	c.Resize(target.Width, target.Height)

	c.log.Info("playback initialized",
		"path", path,
		"video_stream", eng.VideoStream(),
		"audio_stream", eng.AudioStream(),
		"frame_rate", eng.FrameRate(),
		"audio_mode", cfg.Audio.Mode,
		"queue_policy", cfg.Queue.Policy,
	)
	return c, nil
}

func newPacketQueue(cfg config.QueueConfig) *queue.Queue[media.Packet] {
	return queue.New(
		queue.WithCapacity[media.Packet](cfg.Capacity, cfg.Policy),
		queue.WithOnDrop(func(p media.Packet) { p.Free() }),
	)
}

// Start launches both decode workers, the refresh loop and, in push mode,
// the audio pump. Packets are fed by Run or ProcessNext.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopping {
		return ErrStopped
	}
	if c.g != nil {
		return errors.New("playback: already started")
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.g, c.ctx = errgroup.WithContext(ctx)

	c.g.Go(func() error { return c.video.Run(c.ctx) })
	c.g.Go(func() error { return c.audio.Run(c.ctx) })
	c.g.Go(func() error { return c.refreshLoop(c.ctx) })
	if c.pump != nil {
		c.g.Go(func() error { return c.pump.Run(c.ctx) })
	}

	c.log.Debug("playback started")
	return nil
}

// Run starts playback if needed, routes packets on its own goroutine and
// blocks until the session is stopped. Cancelling ctx stops the session
// even when it was started with another context.
func (c *Coordinator) Run(ctx context.Context) error {
	c.mu.Lock()
	started := c.g != nil
	c.mu.Unlock()

	if !started {
		if err := c.Start(ctx); err != nil {
			return err
		}
	}

	c.mu.Lock()
	if c.stopping {
		c.mu.Unlock()
		return nil
	}
	g, gctx, cancel := c.g, c.ctx, c.cancel
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	g.Go(func() error {
		// a read failure ends routing like the end of the container would
		if err := c.router.Run(gctx); err != nil {
			c.log.Error("packet routing stopped", "error", err)
		}
		return nil
	})
	c.mu.Unlock()

	return g.Wait()
}

// ProcessNext routes a single packet on the caller's goroutine. It reports
// true once the container is exhausted, and ErrStopped after Stop.
func (c *Coordinator) ProcessNext() (bool, error) {
	c.stepMu.Lock()
	defer c.stepMu.Unlock()

	c.mu.Lock()
	ctx, stopping := c.ctx, c.stopping
	c.mu.Unlock()

	if stopping {
		return true, ErrStopped
	}

	if ctx == nil {
		ctx = context.Background()
	}
	return c.router.Step(ctx)
}

func (c *Coordinator) refreshLoop(ctx context.Context) error {
	timer := time.NewTimer(firstRefresh)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			c.refresh(func(d time.Duration) { timer.Reset(d) })
		}
	}
}

// refresh presents at most one frame and re-arms the timer through rearm:
// quickly when no frame is ready, otherwise with the synchronized delay
// for the next frame.
func (c *Coordinator) refresh(rearm func(time.Duration)) {
	f, ok := c.videoFrames.TryPop()
	if !ok {
		rearm(retryRefresh)
		return
	}

	rearm(c.sync.Delay(f.PTS))
	c.render(f)
}

func (c *Coordinator) render(f media.VideoFrame) {
	if !c.surfaceSized {
		c.surfaceSized = true
		if r, ok := c.renderer.(SurfaceResizer); ok {
			r.ResizeSurface(c.TargetSize())
		}
	}

	c.renderer.Render(f)
	c.lastVideoPTS.Store(math.Float64bits(f.PTS))
	c.rendered.Add(1)
}

// Resize recomputes the video target for a surface of width x height,
// keeping the stream's aspect ratio, and hands it to the video decoder.
// Frames already decoded keep their size.
func (c *Coordinator) Resize(width, height int) media.Size {
	size := media.Size{Width: width, Height: height}.Fit(c.eng.AspectRatio())

	c.mu.Lock()
	defer c.mu.Unlock()

	if size.Empty() || size == c.target || c.stopping {
		return c.target
	}

	c.target = size
	c.eng.VideoDecoder().SetTargetSize(size)
	c.log.Debug("video target resized", "width", size.Width, "height", size.Height)
	return size
}

func (c *Coordinator) TargetSize() media.Size {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// Stop cancels every goroutine, waits for the router and the workers to
// return, then releases the engine and any packet still queued. Only the
// first call does anything.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopping = true
		cancel, g := c.cancel, c.g
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if g != nil {
			_ = g.Wait()
		}
		if c.pull != nil {
			_ = c.pull.Close()
		}

		// closing the routes releases a ProcessNext blocked on a full queue
		c.router.Close()
		c.stepMu.Lock()
		defer c.stepMu.Unlock()

		free := func(p media.Packet) { p.Free() }
		leftover := c.videoPackets.Drain(free) + c.audioPackets.Drain(free)
		c.videoFrames.Drain(nil)
		c.audioFrames.Drain(nil)

		c.eng.Close()

		c.log.Info("playback stopped",
			"rendered", c.rendered.Load(),
			"leftover_packets", leftover,
		)
	})
}

// FrameRate of the video stream.
func (c *Coordinator) FrameRate() float64 {
	return c.eng.FrameRate()
}

// AudioReader is the pull-style audio feed for the output device. It is
// nil in push mode.
func (c *Coordinator) AudioReader() io.Reader {
	if c.pull == nil {
		return nil
	}
	return c.pull
}

func (c *Coordinator) Session() string {
	return c.session
}

// Snapshot is a point-in-time view of the session used for the status line.
type Snapshot struct {
	VideoPTS    float64
	AudioClock  float64
	Rendered    int64
	VideoQueued int
	AudioQueued int
	Video       decoder.Stats
	Audio       decoder.Stats
	Routed      int64
	Discarded   int64
}

func (c *Coordinator) Snapshot() Snapshot {
	return Snapshot{
		VideoPTS:    math.Float64frombits(c.lastVideoPTS.Load()),
		AudioClock:  c.clock.Now(),
		Rendered:    c.rendered.Load(),
		VideoQueued: c.videoFrames.Len(),
		AudioQueued: c.audioFrames.Len(),
		Video:       c.video.Stats(),
		Audio:       c.audio.Stats(),
		Routed:      c.router.Routed(),
		Discarded:   c.router.Discarded(),
	}
}

// Package audio feeds decoded audio frames to an output device and advances
// the reference clock as each frame is taken off the queue.
package audio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/GoldenFealla/avplayer/internal/avsync"
	"github.com/GoldenFealla/avplayer/internal/media"
	"github.com/GoldenFealla/avplayer/internal/queue"
)

// DefaultStarveWait is how long a pull read waits for a frame before it
// answers with silence.
const DefaultStarveWait = 10 * time.Millisecond

// PullReader serves a pull-style backend that calls Read on its own
// goroutine. The clock moves when a frame is dequeued inside Read.
type PullReader struct {
	frames *queue.Queue[media.AudioFrame]
	clock  *avsync.Clock
	wait   time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending []byte
}

func NewPullReader(frames *queue.Queue[media.AudioFrame], clock *avsync.Clock, wait time.Duration) *PullReader {
	if wait <= 0 {
		wait = DefaultStarveWait
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PullReader{
		frames: frames,
		clock:  clock,
		wait:   wait,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Read fills p with queued samples. When nothing arrives within the starve
// wait it fills p with silence so the device keeps running. After Close it
// returns io.EOF.
func (r *PullReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx.Err() != nil {
		return 0, io.EOF
	}

	n := 0
	for n < len(p) {
		if len(r.pending) == 0 {
			f, ok := r.frames.TryPop()
			if !ok {
				if n > 0 {
					return n, nil
				}
				if f, ok = r.await(); !ok {
					if r.ctx.Err() != nil {
						return 0, io.EOF
					}
					clear(p)
					return len(p), nil
				}
			}
			r.clock.Set(f.PTS)
			r.pending = f.Data
		}

		c := copy(p[n:], r.pending)
		r.pending = r.pending[c:]
		n += c
	}
	return n, nil
}

func (r *PullReader) await() (media.AudioFrame, bool) {
	ctx, cancel := context.WithTimeout(r.ctx, r.wait)
	defer cancel()

	f, err := r.frames.Pop(ctx)
	return f, err == nil
}

// Close makes pending and future reads return io.EOF.
func (r *PullReader) Close() error {
	r.cancel()
	return nil
}

// Pump is the push-style feed: it dequeues frames, moves the clock, then
// writes the samples to the device.
type Pump struct {
	frames *queue.Queue[media.AudioFrame]
	clock  *avsync.Clock
	w      io.Writer
	log    *slog.Logger
}

func NewPump(frames *queue.Queue[media.AudioFrame], clock *avsync.Clock, w io.Writer, log *slog.Logger) *Pump {
	if log == nil {
		log = slog.Default()
	}
	return &Pump{
		frames: frames,
		clock:  clock,
		w:      w,
		log:    log,
	}
}

// Run pushes frames until ctx is cancelled or the writer is closed. If the
// writer is an io.Closer it is closed on cancellation so a blocked write
// returns.
func (p *Pump) Run(ctx context.Context) error {
	if c, ok := p.w.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = c.Close() })
		defer stop()
	}

	for {
		f, err := p.frames.Pop(ctx)
		if err != nil {
			return nil
		}

		p.clock.Set(f.PTS)

		if _, err := p.w.Write(f.Data); err != nil {
			if errors.Is(err, io.ErrClosedPipe) || ctx.Err() != nil {
				return nil
			}
			p.log.Warn("skip audio frame", "pts", f.PTS, "error", err)
		}
	}
}

// Package router reads packets from the container and hands each one to the
// queue of the stream it belongs to.
package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/GoldenFealla/avplayer/internal/media"
	"github.com/GoldenFealla/avplayer/internal/queue"
)

// Source yields container packets in read order and io.EOF at the end.
type Source interface {
	ReadPacket() (media.Packet, error)
}

type Router struct {
	src    Source
	routes map[int]*queue.Queue[media.Packet]
	log    *slog.Logger

	closeOnce sync.Once
	eof       atomic.Bool

	routed    atomic.Int64
	discarded atomic.Int64
}

func New(src Source, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		src:    src,
		routes: make(map[int]*queue.Queue[media.Packet]),
		log:    log,
	}
}

// Route sends packets of stream index to q. Routes must be registered
// before the router starts.
func (r *Router) Route(index int, q *queue.Queue[media.Packet]) {
	r.routes[index] = q
}

// Step reads and dispatches a single packet. It reports true once the
// container is exhausted, after which every route has been closed.
func (r *Router) Step(ctx context.Context) (bool, error) {
	if r.eof.Load() {
		return true, nil
	}

	pkt, err := r.src.ReadPacket()
	if err != nil {
		if errors.Is(err, io.EOF) {
			r.eof.Store(true)
			r.log.Info("end of container", "routed", r.routed.Load(), "discarded", r.discarded.Load())
			r.Close()
			return true, nil
		}
		return false, fmt.Errorf("router: reading packet failed: %w", err)
	}

	q, ok := r.routes[pkt.StreamIndex()]
	if !ok {
		r.discarded.Add(1)
		pkt.Free()
		return false, nil
	}

	if err := q.Push(ctx, pkt); err != nil {
		// the worker side is gone, the packet is still ours
		pkt.Free()
		if errors.Is(err, queue.ErrClosed) {
			return false, nil
		}
		return false, err
	}
	r.routed.Add(1)
	return false, nil
}

// Run dispatches packets until the container ends or ctx is cancelled.
// Either way the routes are closed so workers drain and exit.
func (r *Router) Run(ctx context.Context) error {
	defer r.Close()

	for ctx.Err() == nil {
		eof, err := r.Step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if eof {
			return nil
		}
	}
	return nil
}

// Close closes every route. It is safe to call more than once.
func (r *Router) Close() {
	r.closeOnce.Do(func() {
		for _, q := range r.routes {
			q.Close()
		}
	})
}

func (r *Router) Routed() int64 {
	return r.routed.Load()
}

func (r *Router) Discarded() int64 {
	return r.discarded.Load()
}

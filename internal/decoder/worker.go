// Package decoder runs the per-stream decode loop: packets in, canonical
// frames out.
package decoder

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/GoldenFealla/avplayer/internal/media"
	"github.com/GoldenFealla/avplayer/internal/queue"
)

// ErrNeedInput is returned by Receive when the decoder has no frame left for
// the packets submitted so far. It is not a failure.
var ErrNeedInput = errors.New("decoder: need more input")

// StreamDecoder wraps one stream's decoder context. Receive returns frames
// that already live in host memory and use the canonical output format.
type StreamDecoder[F any] interface {
	Send(pkt media.Packet) error
	Receive() (F, error)
}

type Stats struct {
	Decoded int64
	Dropped int64
}

// Worker drains a packet queue through a StreamDecoder into a frame queue.
type Worker[F any] struct {
	dec StreamDecoder[F]
	in  *queue.Queue[media.Packet]
	out *queue.Queue[F]
	log *slog.Logger

	decoded atomic.Int64
	dropped atomic.Int64
}

func NewWorker[F any](dec StreamDecoder[F], in *queue.Queue[media.Packet], out *queue.Queue[F], log *slog.Logger) *Worker[F] {
	if log == nil {
		log = slog.Default()
	}
	return &Worker[F]{
		dec: dec,
		in:  in,
		out: out,
		log: log,
	}
}

// Run decodes until ctx is cancelled or the input queue is closed and
// drained. Decode failures only cost the packet being decoded.
func (w *Worker[F]) Run(ctx context.Context) error {
	w.log.Debug("decode worker started")
	defer w.log.Debug("decode worker stopped")

	for ctx.Err() == nil {
		pkt, err := w.in.Pop(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				w.log.Info("end of stream reached", "decoded", w.decoded.Load(), "dropped", w.dropped.Load())
			}
			return nil
		}

		w.decode(ctx, pkt)
	}
	return nil
}

func (w *Worker[F]) decode(ctx context.Context, pkt media.Packet) {
	defer pkt.Free()

	if err := w.dec.Send(pkt); err != nil {
		w.dropped.Add(1)
		w.log.Warn("dropping packet", "error", err)
		return
	}

	for {
		f, err := w.dec.Receive()
		if err != nil {
			if !errors.Is(err, ErrNeedInput) {
				w.dropped.Add(1)
				w.log.Warn("dropping packet", "error", err)
			}
			return
		}

		if err := w.out.Push(ctx, f); err != nil {
			return
		}
		w.decoded.Add(1)
	}
}

func (w *Worker[F]) Stats() Stats {
	return Stats{
		Decoded: w.decoded.Load(),
		Dropped: w.dropped.Load(),
	}
}

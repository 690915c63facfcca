package decoder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoldenFealla/avplayer/internal/media"
	"github.com/GoldenFealla/avplayer/internal/queue"
)

type fakePacket struct {
	index int
	pts   float64

	mu    sync.Mutex
	frees int
}

func (p *fakePacket) StreamIndex() int { return p.index }

func (p *fakePacket) Free() {
	p.mu.Lock()
	p.frees++
	p.mu.Unlock()
}

func (p *fakePacket) freed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frees
}

// fakeDecoder yields `perPacket` frames for every packet, with the packet's
// pts, and fails on the pts listed in sendErr/recvErr.
type fakeDecoder struct {
	perPacket int
	sendErr   map[float64]bool
	recvErr   map[float64]bool

	pending []media.VideoFrame
	fail    bool
}

func (d *fakeDecoder) Send(pkt media.Packet) error {
	p := pkt.(*fakePacket)
	if d.sendErr[p.pts] {
		return errors.New("invalid data")
	}
	d.fail = d.recvErr[p.pts]
	for i := 0; i < d.perPacket; i++ {
		d.pending = append(d.pending, media.VideoFrame{PTS: p.pts, Width: i})
	}
	return nil
}

func (d *fakeDecoder) Receive() (media.VideoFrame, error) {
	if d.fail {
		d.fail = false
		d.pending = nil
		return media.VideoFrame{}, errors.New("corrupt frame")
	}
	if len(d.pending) == 0 {
		return media.VideoFrame{}, ErrNeedInput
	}
	f := d.pending[0]
	d.pending = d.pending[1:]
	return f, nil
}

func runWorker(t *testing.T, dec StreamDecoder[media.VideoFrame], pkts []*fakePacket) (*Worker[media.VideoFrame], *queue.Queue[media.VideoFrame]) {
	t.Helper()

	in := queue.New[media.Packet]()
	out := queue.New[media.VideoFrame]()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, p := range pkts {
		require.NoError(t, in.Push(ctx, p))
	}
	in.Close()

	w := NewWorker(dec, in, out, nil)
	require.NoError(t, w.Run(ctx))
	return w, out
}

func TestWorkerPreservesOrder(t *testing.T) {
	var pkts []*fakePacket
	for i := 0; i < 50; i++ {
		pkts = append(pkts, &fakePacket{pts: float64(i)})
	}

	w, out := runWorker(t, &fakeDecoder{perPacket: 2}, pkts)

	for i := 0; i < 50; i++ {
		for j := 0; j < 2; j++ {
			f, ok := out.TryPop()
			require.True(t, ok)
			assert.Equal(t, float64(i), f.PTS)
			assert.Equal(t, j, f.Width)
		}
	}
	_, ok := out.TryPop()
	assert.False(t, ok)

	for _, p := range pkts {
		assert.Equal(t, 1, p.freed())
	}
	assert.Equal(t, Stats{Decoded: 100}, w.Stats())
}

func TestWorkerSkipsFailingPackets(t *testing.T) {
	pkts := []*fakePacket{{pts: 0}, {pts: 1}, {pts: 2}, {pts: 3}}
	dec := &fakeDecoder{
		perPacket: 1,
		sendErr:   map[float64]bool{1: true},
		recvErr:   map[float64]bool{2: true},
	}

	w, out := runWorker(t, dec, pkts)

	var got []float64
	for {
		f, ok := out.TryPop()
		if !ok {
			break
		}
		got = append(got, f.PTS)
	}
	assert.Equal(t, []float64{0, 3}, got)
	assert.Equal(t, Stats{Decoded: 2, Dropped: 2}, w.Stats())

	for _, p := range pkts {
		assert.Equal(t, 1, p.freed(), "packet %v", p.pts)
	}
}

func TestWorkerStopsOnCancel(t *testing.T) {
	in := queue.New[media.Packet]()
	out := queue.New[media.VideoFrame]()
	w := NewWorker[media.VideoFrame](&fakeDecoder{perPacket: 1}, in, out, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	p := &fakePacket{pts: 7}
	require.NoError(t, in.Push(ctx, p))
	require.Eventually(t, func() bool { return out.Len() == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, 1, p.freed())
}

package router

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoldenFealla/avplayer/internal/media"
	"github.com/GoldenFealla/avplayer/internal/queue"
)

type packet struct {
	index int
	seq   int
	frees int
}

func (p *packet) StreamIndex() int { return p.index }
func (p *packet) Free()            { p.frees++ }

type source struct {
	pkts []*packet
	err  error
	pos  int
}

func (s *source) ReadPacket() (media.Packet, error) {
	if s.pos >= len(s.pkts) {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	p := s.pkts[s.pos]
	s.pos++
	return p, nil
}

func interleaved(n int) []*packet {
	var pkts []*packet
	for i := 0; i < n; i++ {
		pkts = append(pkts, &packet{index: i % 3, seq: i})
	}
	return pkts
}

func TestRunDispatchesByStream(t *testing.T) {
	src := &source{pkts: interleaved(30)}
	video := queue.New[media.Packet]()
	audio := queue.New[media.Packet]()

	r := New(src, nil)
	r.Route(0, video)
	r.Route(1, audio)

	require.NoError(t, r.Run(context.Background()))

	assert.True(t, video.Closed())
	assert.True(t, audio.Closed())
	assert.EqualValues(t, 20, r.Routed())
	assert.EqualValues(t, 10, r.Discarded())

	lastSeq := -1
	for {
		pkt, ok := video.TryPop()
		if !ok {
			break
		}
		p := pkt.(*packet)
		assert.Equal(t, 0, p.index)
		assert.Greater(t, p.seq, lastSeq)
		assert.Zero(t, p.frees)
		lastSeq = p.seq
	}

	for _, p := range src.pkts {
		if p.index == 2 {
			assert.Equal(t, 1, p.frees)
		}
	}
}

func TestStepReportsEOF(t *testing.T) {
	src := &source{pkts: interleaved(2)}
	video := queue.New[media.Packet]()

	r := New(src, nil)
	r.Route(0, video)

	ctx := context.Background()
	eof, err := r.Step(ctx)
	require.NoError(t, err)
	assert.False(t, eof)

	eof, err = r.Step(ctx)
	require.NoError(t, err)
	assert.False(t, eof)

	eof, err = r.Step(ctx)
	require.NoError(t, err)
	assert.True(t, eof)
	assert.True(t, video.Closed())

	eof, err = r.Step(ctx)
	require.NoError(t, err)
	assert.True(t, eof)
	assert.Equal(t, 1, video.Len())
}

func TestReadErrorIsReturned(t *testing.T) {
	src := &source{err: errors.New("i/o error")}
	r := New(src, nil)

	err := r.Run(context.Background())
	assert.ErrorContains(t, err, "i/o error")
}

func TestClosedRouteFreesPacket(t *testing.T) {
	src := &source{pkts: []*packet{{index: 0}}}
	video := queue.New[media.Packet]()
	video.Close()

	r := New(src, nil)
	r.Route(0, video)

	_, err := r.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, src.pkts[0].frees)
}

func TestRunStopsOnCancel(t *testing.T) {
	blocking := queue.New(queue.WithCapacity[media.Packet](1, queue.Block))
	src := &source{pkts: interleaved(10)}

	r := New(src, nil)
	r.Route(0, blocking)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("router did not stop")
	}
	assert.True(t, blocking.Closed())
}

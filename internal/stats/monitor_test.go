package stats

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoldenFealla/avplayer/internal/decoder"
	"github.com/GoldenFealla/avplayer/internal/playback"
)

type staticSource playback.Snapshot

func (s staticSource) Snapshot() playback.Snapshot { return playback.Snapshot(s) }

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

func TestLine(t *testing.T) {
	color.NoColor = true

	m := NewMonitor(nil, nil, time.Second)
	line := m.Line(playback.Snapshot{
		VideoPTS:    10.5,
		AudioClock:  10.25,
		VideoQueued: 3,
		AudioQueued: 40,
		Video:       decoder.Stats{Dropped: 1},
	})

	assert.Contains(t, line, "video:    10.500")
	assert.Contains(t, line, "audio:    10.250")
	assert.Contains(t, line, "a/v: -0.250")
	assert.Contains(t, line, "dropped v/a: 1/0")
}

func TestLineColorsDrift(t *testing.T) {
	color.NoColor = false
	defer func() { color.NoColor = true }()

	m := NewMonitor(nil, nil, time.Second)

	inSync := m.Line(playback.Snapshot{VideoPTS: 1, AudioClock: 1})
	drifting := m.Line(playback.Snapshot{VideoPTS: 1, AudioClock: 2})

	assert.Contains(t, inSync, "\x1b[32m")
	assert.Contains(t, drifting, "\x1b[31;1m")
}

func TestRun(t *testing.T) {
	color.NoColor = true

	var out syncBuffer
	m := NewMonitor(staticSource{VideoPTS: 1, AudioClock: 1}, &out, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return strings.Count(out.String(), "\r") >= 2 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.True(t, strings.HasSuffix(out.String(), "\n"))
}

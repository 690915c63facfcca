// Package stats prints a one-line A/V status while playback runs.
package stats

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/fatih/color"

	"github.com/GoldenFealla/avplayer/internal/playback"
)

// DriftWarning is the A/V drift, in seconds, from which the status turns
// yellow. Beyond DriftError it turns red.
const (
	DriftWarning = 0.1
	DriftError   = 0.5
)

type Source interface {
	Snapshot() playback.Snapshot
}

type Monitor struct {
	src      Source
	w        io.Writer
	interval time.Duration

	ok   *color.Color
	warn *color.Color
	bad  *color.Color
}

func NewMonitor(src Source, w io.Writer, interval time.Duration) *Monitor {
	return &Monitor{
		src:      src,
		w:        w,
		interval: interval,
		ok:       color.New(color.FgGreen),
		warn:     color.New(color.FgYellow),
		bad:      color.New(color.FgRed, color.Bold),
	}
}

// Run rewrites the status line every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	t := time.NewTicker(m.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(m.w)
			return nil
		case <-t.C:
			fmt.Fprint(m.w, "\r"+m.Line(m.src.Snapshot()))
		}
	}
}

// Line formats a snapshot, coloring the drift by its magnitude.
func (m *Monitor) Line(s playback.Snapshot) string {
	drift := s.AudioClock - s.VideoPTS

	c := m.ok
	switch abs := math.Abs(drift); {
	case abs >= DriftError:
		c = m.bad
	case abs >= DriftWarning:
		c = m.warn
	}

	return fmt.Sprintf("video: %9.3f audio: %9.3f a/v: %s  queued v/a: %3d/%-4d dropped v/a: %d/%d",
		s.VideoPTS,
		s.AudioClock,
		c.Sprintf("%+2.3f", drift),
		s.VideoQueued,
		s.AudioQueued,
		s.Video.Dropped,
		s.Audio.Dropped,
	)
}

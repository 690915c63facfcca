package avsync

import (
	"math"
	"time"
)

const (
	// Frames closer than this to the clock are considered in sync.
	syncThreshold = 0.01
	// Drift beyond this is not corrected.
	outOfSyncThreshold = 10.0
	// Shortest delay ever scheduled.
	minDelay = 0.01
	// Assumed frame delay before two valid timestamps were seen.
	initialDelay = 40e-3
)

// Synchronizer computes, for each video frame, how long to wait before the
// next refresh so video converges on the audio clock. It is a proportional
// corrector and is only called from the refresh loop.
type Synchronizer struct {
	clock *Clock

	lastPTS   float64
	lastDelay float64
}

func NewSynchronizer(clock *Clock) *Synchronizer {
	return &Synchronizer{
		clock:     clock,
		lastDelay: initialDelay,
	}
}

// Delay returns the wait before the frame after the one with pts.
func (s *Synchronizer) Delay(pts float64) time.Duration {
	return time.Duration(s.DelayMillis(pts)) * time.Millisecond
}

func (s *Synchronizer) DelayMillis(pts float64) int {
	delay := pts - s.lastPTS
	if delay <= 0 || delay >= 1 {
		delay = s.lastDelay
	} else {
		s.lastDelay = delay
	}
	s.lastPTS = pts

	threshold := math.Max(delay, syncThreshold)
	diff := pts - s.clock.Now()

	if math.Abs(diff) < outOfSyncThreshold {
		switch {
		case diff <= -threshold:
			// video is behind, show the next frame right away
			delay = 0
		case diff >= threshold:
			// video is ahead, let audio catch up
			delay *= 2
		}
	}

	delay = math.Max(delay, minDelay)
	return int(delay*1000 + 0.5)
}

// LastPTS is the pts of the last frame passed to Delay.
func (s *Synchronizer) LastPTS() float64 {
	return s.lastPTS
}

// LastDelay is the persisted frame-to-frame delay in seconds.
func (s *Synchronizer) LastDelay() float64 {
	return s.lastDelay
}

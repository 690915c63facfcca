// Package avsync keeps video presentation in step with the audio clock.
package avsync

import (
	"math"
	"sync/atomic"
)

// Clock is the reference timeline: the pts, in seconds, of the most recently
// consumed audio frame. Only the audio path writes it; readers never lock.
type Clock struct {
	bits atomic.Uint64
}

// Set moves the clock to pts. Values behind the current position are
// ignored so the clock never runs backwards.
func (c *Clock) Set(pts float64) {
	if math.IsNaN(pts) {
		return
	}
	for {
		old := c.bits.Load()
		if pts <= math.Float64frombits(old) {
			return
		}
		if c.bits.CompareAndSwap(old, math.Float64bits(pts)) {
			return
		}
	}
}

func (c *Clock) Now() float64 {
	return math.Float64frombits(c.bits.Load())
}

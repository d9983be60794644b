// Package window provides a bounded, time-ordered window of candles.
// Appends are O(1); the oldest candle is dropped once capacity is reached.
package window

import (
	"trendcore/internal/model"
)

// Window holds the most recent candles for one symbol/interval instance.
// Candles are immutable once appended. Out-of-order timestamps are rejected.
type Window struct {
	capacity int
	buf      []model.Candle // preallocated circular buffer
	start    int            // index of the oldest candle
	count    int
}

// New creates a window holding up to capacity candles. capacity must be >= 1.
func New(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{
		capacity: capacity,
		buf:      make([]model.Candle, capacity),
	}
}

// Append adds a candle, dropping the oldest when full. Returns false if the
// candle does not advance the window's time order.
func (w *Window) Append(c model.Candle) bool {
	if w.count > 0 {
		last := w.Last()
		if !c.TS.After(last.TS) {
			return false
		}
	}
	idx := (w.start + w.count) % w.capacity
	w.buf[idx] = c
	if w.count < w.capacity {
		w.count++
	} else {
		w.start = (w.start + 1) % w.capacity
	}
	return true
}

// Len returns the number of candles currently held.
func (w *Window) Len() int { return w.count }

// Cap returns the window capacity.
func (w *Window) Cap() int { return w.capacity }

// At returns the candle at position i, where 0 is the oldest held candle.
// Panics when i is out of range, same as slice indexing.
func (w *Window) At(i int) model.Candle {
	if i < 0 || i >= w.count {
		panic("window: index out of range")
	}
	return w.buf[(w.start+i)%w.capacity]
}

// Last returns the most recent candle. Only valid when Len() > 0.
func (w *Window) Last() model.Candle {
	return w.At(w.count - 1)
}

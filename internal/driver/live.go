package driver

import (
	"context"
	"time"

	"trendcore/internal/model"
	"trendcore/internal/ringbuf"
)

// Run consumes candles from ch until ctx is cancelled or ch is closed.
// Per-candle errors are logged and skipped; the loop only stops with the
// channel or context.
func (i *Instance) Run(ctx context.Context, ch <-chan model.Candle) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-ch:
			if !ok {
				return nil
			}
			if err := i.ProcessCandle(c); err != nil {
				i.log.Warn("candle rejected", "ts", c.TS, "err", err)
			}
		}
	}
}

// ringIdlePoll is how long the consumer sleeps when the ring is empty.
const ringIdlePoll = 500 * time.Microsecond

// RunRing drains a feed ring buffer until ctx is cancelled. The ring's
// cumulative overflow count is mirrored into metrics on every idle cycle.
func (i *Instance) RunRing(ctx context.Context, ring *ringbuf.Ring) error {
	for {
		c, ok := ring.Pop()
		if !ok {
			if i.prom != nil {
				i.prom.RingBufOverflow.Set(float64(ring.Overflow()))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(ringIdlePoll):
			}
			continue
		}
		if err := i.ProcessCandle(c); err != nil {
			i.log.Warn("candle rejected", "ts", c.TS, "err", err)
		}
	}
}

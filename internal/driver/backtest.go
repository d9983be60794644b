package driver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"trendcore/internal/model"
)

// Replayer feeds stored candle history through an instance in timestamp
// order. speed controls pacing: 0 replays as fast as possible, 1.0 honors
// the real gaps between candles, 10.0 plays them 10x faster.
type Replayer struct {
	reader model.CandleReader
	log    *slog.Logger
}

// NewReplayer creates a replayer over a candle history store.
func NewReplayer(reader model.CandleReader, log *slog.Logger) *Replayer {
	if log == nil {
		log = slog.Default()
	}
	return &Replayer{reader: reader, log: log}
}

// Run replays all stored candles after fromTS through inst and returns the
// number of candles fed. Any open position is left open; callers decide
// whether to force-close it before reading the report.
func (r *Replayer) Run(ctx context.Context, inst *Instance, symbol, interval string, fromTS int64, speed float64) (int, error) {
	candles, err := r.reader.ReadCandles(symbol, interval, fromTS)
	if err != nil {
		return 0, fmt.Errorf("read candle history: %w", err)
	}
	if len(candles) == 0 {
		r.log.Warn("no stored candles to replay", "symbol", symbol, "interval", interval)
		return 0, nil
	}

	r.log.Info("replay starting",
		"symbol", symbol, "interval", interval,
		"candles", len(candles), "speed", speed)

	var prevTS time.Time
	fed := 0
	for _, c := range candles {
		select {
		case <-ctx.Done():
			return fed, ctx.Err()
		default:
		}

		if speed > 0 && !prevTS.IsZero() {
			if gap := c.TS.Sub(prevTS); gap > 0 {
				scaled := time.Duration(float64(gap) / speed)
				if scaled > 5*time.Second {
					scaled = 5 * time.Second
				}
				select {
				case <-ctx.Done():
					return fed, ctx.Err()
				case <-time.After(scaled):
				}
			}
		}
		prevTS = c.TS

		c.Final = true
		if err := inst.ProcessCandle(c); err != nil {
			r.log.Warn("replay candle rejected", "ts", c.TS, "err", err)
			continue
		}
		fed++
	}

	r.log.Info("replay complete", "candles", fed)
	return fed, nil
}

// ReplaySlice feeds an in-memory candle slice through inst as fast as
// possible. The slice must already be in timestamp order.
func ReplaySlice(ctx context.Context, inst *Instance, candles []model.Candle) (int, error) {
	fed := 0
	for _, c := range candles {
		select {
		case <-ctx.Done():
			return fed, ctx.Err()
		default:
		}
		c.Final = true
		if err := inst.ProcessCandle(c); err != nil {
			continue
		}
		fed++
	}
	return fed, nil
}

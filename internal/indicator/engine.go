// Package indicator maintains the incremental trend-following indicator set:
// Wilder ATR, an adaptive baseline, slow and fast ratcheting trailing-stop
// lines, and a smoothed scalp line.
//
// The engine carries all state forward between candles, so every update is
// O(1) amortized using fixed-size circular buffers. Recomputing over the
// full history on each bar is exactly what this package exists to avoid.
package indicator

import (
	"math"

	"trendcore/internal/model"
)

// epsilon guards divisions whose denominator can collapse to zero
// (flat markets, identical OHLC values).
const epsilon = 1e-9

// Config holds the immutable per-instance indicator parameters.
type Config struct {
	Length         int     // SMA window for the baseline
	Period         int     // ATR window
	Multiplier     float64 // slow trailing-stop sensitivity
	FastMultiplier float64 // fast trailing-stop sensitivity
	ScalpPeriod    int     // smoothing window for the scalp line
}

// DefaultConfig returns the standard parameter set.
func DefaultConfig() Config {
	return Config{
		Length:         6,
		Period:         16,
		Multiplier:     9.0,
		FastMultiplier: 5.1,
		ScalpPeriod:    10,
	}
}

// Snapshot is the immutable indicator state after one candle. The Prev*
// fields carry the previous ready bar's values so that crossover detection
// needs nothing but the current snapshot.
type Snapshot struct {
	ATR           float64
	Baseline      float64 // adaptive centerline `a`
	TrailSlow     float64
	TrailFast     float64
	ScalpLine     float64
	PrevBaseline  float64
	PrevTrailSlow float64
	Ready         bool
}

// Engine consumes final candles and produces indicator snapshots.
// Designed for single-goroutine usage; no locks needed.
type Engine struct {
	cfg Config

	smaClose *SMA
	smaOpen  *SMA
	smaHigh  *SMA
	smaLow   *SMA

	atr       *ATR
	trailSlow *TrailLine
	trailFast *TrailLine
	scalp     *SMA

	baseline    float64
	hasBaseline bool

	// Previous ready-bar values for crossover detection. Zero until the
	// second ready bar.
	prevBaseline  float64
	prevTrailSlow float64
}

// NewEngine creates an indicator engine for one symbol/interval instance.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:       cfg,
		smaClose:  NewSMA(cfg.Length),
		smaOpen:   NewSMA(cfg.Length),
		smaHigh:   NewSMA(cfg.Length),
		smaLow:    NewSMA(cfg.Length),
		atr:       NewATR(cfg.Period),
		trailSlow: NewTrailLine(cfg.Multiplier),
		trailFast: NewTrailLine(cfg.FastMultiplier),
		scalp:     NewSMA(cfg.ScalpPeriod),
	}
}

// Config returns the engine's immutable parameters.
func (e *Engine) Config() Config { return e.cfg }

// WarmupBars returns the number of candles needed before snapshots are Ready.
func (e *Engine) WarmupBars() int {
	warm := e.cfg.Length
	if e.cfg.Period > warm {
		warm = e.cfg.Period
	}
	return warm + e.cfg.ScalpPeriod - 1
}

// Update advances all indicator state with one final candle and returns the
// resulting snapshot. Snapshots report Ready=false until every rolling
// buffer has reached its required length.
func (e *Engine) Update(c model.Candle) Snapshot {
	// 1+2. True range and Wilder ATR
	e.atr.Push(c.High, c.Low, c.Close)

	// 3. Adaptive baseline: blend of close and previous baseline, weighted
	// by how directional the recent bars are relative to their range.
	e.smaClose.Push(c.Close)
	e.smaOpen.Push(c.Open)
	e.smaHigh.Push(c.High)
	e.smaLow.Push(c.Low)

	if e.smaClose.Ready() {
		lv := 0.0
		if denom := e.smaHigh.Value() - e.smaLow.Value(); math.Abs(denom) > epsilon {
			lv = math.Abs(e.smaClose.Value()-e.smaOpen.Value()) / denom
		}
		if !e.hasBaseline {
			e.baseline = c.Close
			e.hasBaseline = true
		} else {
			e.baseline = lv*c.Close + (1-lv)*e.baseline
		}
	}

	// 4+5. Slow and fast trailing stops, independent ratchet state.
	// Only meaningful once ATR has a value.
	if e.atr.Ready() {
		e.trailSlow.Push(c.Close, e.atr.Value())
		e.trailFast.Push(c.Close, e.atr.Value())

		// 6. Scalp line: smoothed midpoint between the slow trailing stop
		// and the baseline.
		if e.hasBaseline {
			e.scalp.Push((e.trailSlow.Value() + e.baseline) / 2)
		}
	}

	ready := e.atr.Ready() && e.smaClose.Ready() && e.scalp.Ready()

	snap := Snapshot{
		ATR:           e.atr.Value(),
		Baseline:      e.baseline,
		TrailSlow:     e.trailSlow.Value(),
		TrailFast:     e.trailFast.Value(),
		ScalpLine:     e.scalp.Value(),
		PrevBaseline:  e.prevBaseline,
		PrevTrailSlow: e.prevTrailSlow,
		Ready:         ready,
	}

	if ready {
		e.prevBaseline = e.baseline
		e.prevTrailSlow = e.trailSlow.Value()
	}

	return snap
}

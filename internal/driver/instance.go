// Package driver runs the per-instance candle pipeline: validate, dedupe,
// window, indicators, signal detection, position transitions. One Instance
// per symbol/timeframe; each candle is processed to completion before the
// next is accepted, so no locking is needed inside the pipeline.
package driver

import (
	"log/slog"
	"time"

	"trendcore/internal/indicator"
	"trendcore/internal/metrics"
	"trendcore/internal/model"
	"trendcore/internal/position"
	"trendcore/internal/signal"
	"trendcore/internal/stats"
	"trendcore/internal/window"
)

// Config holds the per-instance pipeline parameters.
type Config struct {
	Symbol   string
	Interval string

	Engine   indicator.Config
	Position position.Config

	// WindowSize bounds the candle history kept in memory. 0 picks a
	// default of four warmup spans.
	WindowSize int

	// SlippageBps applies simulated fill slippage to signal-driven entries
	// and flips, in basis points. 0 fills at the candle close.
	SlippageBps float64
}

// Instance is one symbol/timeframe pipeline. Methods must be called from a
// single goroutine.
type Instance struct {
	cfg    Config
	log    *slog.Logger
	window *window.Window
	engine *indicator.Engine
	mgr    *position.Manager

	events chan<- model.Event
	prom   *metrics.Metrics

	lastTS     time.Time
	equityPeak float64
}

// New creates an instance with a cold indicator engine. events and prom may
// be nil; a nil log falls back to slog.Default.
func New(cfg Config, log *slog.Logger, events chan<- model.Event, prom *metrics.Metrics) *Instance {
	if log == nil {
		log = slog.Default()
	}
	eng := indicator.NewEngine(cfg.Engine)
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = eng.WarmupBars() * 4
	}
	return &Instance{
		cfg:        cfg,
		log:        log.With("symbol", cfg.Symbol, "interval", cfg.Interval),
		window:     window.New(cfg.WindowSize),
		engine:     eng,
		mgr:        position.NewManager(cfg.Position),
		events:     events,
		prom:       prom,
		equityPeak: cfg.Position.InitialCapital,
	}
}

// RestoreEngine swaps in an engine restored from a persisted state. Must be
// called before the first candle.
func (i *Instance) RestoreEngine(eng *indicator.Engine) {
	i.engine = eng
}

// Symbol returns the instance's symbol.
func (i *Instance) Symbol() string { return i.cfg.Symbol }

// Manager exposes the position manager for state inspection.
func (i *Instance) Manager() *position.Manager { return i.mgr }

// LastCandle returns the most recent accepted final candle, if any.
func (i *Instance) LastCandle() (model.Candle, bool) {
	if i.window.Len() == 0 {
		return model.Candle{}, false
	}
	return i.window.Last(), true
}

// Engine exposes the indicator engine for snapshot persistence.
func (i *Instance) Engine() *indicator.Engine { return i.engine }

// Report derives the current performance summary. stepsPerYear annualizes
// the Sharpe ratio; 0 skips it.
func (i *Instance) Report(stepsPerYear float64) stats.Report {
	return stats.Compute(i.mgr.Ledger(), i.mgr.Trades(), i.mgr.EquityCurve(), stepsPerYear)
}

// ProcessCandle runs the full pipeline for one candle. Non-final candles
// take the tick path: target check only, no indicator or signal mutation.
// A candle whose timestamp does not advance past the last processed final
// candle is an idempotent no-op.
func (i *Instance) ProcessCandle(c model.Candle) error {
	if err := c.Validate(); err != nil {
		if i.prom != nil {
			i.prom.InvalidCandles.Inc()
		}
		i.emit(model.Event{
			Kind:   model.EventError,
			Symbol: i.cfg.Symbol,
			Time:   c.TS,
			Err:    err.Error(),
		})
		return err
	}

	if !c.Final {
		i.CheckTick(c.High, c.Low, c.TS)
		return nil
	}

	if !i.lastTS.IsZero() && !c.TS.After(i.lastTS) {
		if i.prom != nil {
			i.prom.DuplicateCandles.Inc()
		}
		i.log.Debug("ignoring stale candle", "ts", c.TS)
		return nil
	}

	start := time.Now()
	i.lastTS = c.TS
	i.window.Append(c)

	// The bar's extremes are tested against the open target before the
	// close is allowed to flip the position: an intrabar take-profit
	// precedes any close-driven signal.
	if rec, hit := i.mgr.CheckTarget(c.High, c.Low, c.TS); hit {
		i.onClosed(rec, model.EventTakeProfitHit)
	}

	snap := i.engine.Update(c)

	if dir, ok := signal.Detect(snap); ok {
		if i.prom != nil {
			i.prom.SignalsTotal.WithLabelValues(i.cfg.Symbol, string(dir)).Inc()
		}
		i.emit(model.Event{
			Kind:      model.EventSignal,
			Symbol:    i.cfg.Symbol,
			Time:      c.TS,
			Direction: dir,
			Price:     c.Close,
		})

		fc := c
		fc.Close = i.fillPrice(dir, c.Close)
		tr := i.mgr.OnSignal(dir, snap, fc)
		if tr.Closed != nil {
			i.onClosed(tr.Closed, model.EventPositionClosed)
		}
		if tr.Opened != nil {
			i.log.Info("position opened",
				"side", tr.Opened.Side,
				"entry", tr.Opened.EntryPrice,
				"target", tr.Opened.TargetPrice,
				"risk", tr.Opened.RiskAmount)
			i.emit(model.Event{
				Kind:     model.EventPositionOpened,
				Symbol:   i.cfg.Symbol,
				Time:     c.TS,
				Position: tr.Opened,
			})
		}
	}

	if i.prom != nil {
		i.prom.CandlesTotal.Inc()
		i.prom.PipelineDur.Observe(time.Since(start).Seconds())
		i.observeState()
	}
	return nil
}

// CheckTick tests an in-progress bar's extremes against the open target.
// Indicator and signal state stay untouched, so ticks may arrive at any
// rate between final candles.
func (i *Instance) CheckTick(high, low float64, ts time.Time) {
	if i.prom != nil {
		i.prom.TicksTotal.Inc()
	}
	if rec, hit := i.mgr.CheckTarget(high, low, ts); hit {
		i.onClosed(rec, model.EventTakeProfitHit)
		if i.prom != nil {
			i.observeState()
		}
	}
}

// CloseOpenPosition force-closes any open position at the given price, e.g.
// at the end of a replay or on shutdown.
func (i *Instance) CloseOpenPosition(price float64, ts time.Time) {
	tr := i.mgr.CloseManual(price, ts)
	if tr.Closed != nil {
		i.onClosed(tr.Closed, model.EventPositionClosed)
		if i.prom != nil {
			i.observeState()
		}
	}
}

// fillPrice applies configured slippage against the fill direction: longs
// fill higher, shorts lower.
func (i *Instance) fillPrice(dir model.Side, close float64) float64 {
	if i.cfg.SlippageBps <= 0 {
		return close
	}
	slip := close * i.cfg.SlippageBps / 10000
	if dir == model.Long {
		return close + slip
	}
	return close - slip
}

func (i *Instance) onClosed(rec *model.TradeRecord, kind model.EventKind) {
	i.log.Info("position closed",
		"side", rec.Side,
		"exit", rec.ExitPrice,
		"pnl", rec.PnL,
		"reason", rec.ExitReason)
	if i.prom != nil {
		i.prom.TradesTotal.WithLabelValues(i.cfg.Symbol, string(rec.ExitReason)).Inc()
	}
	i.emit(model.Event{
		Kind:   kind,
		Symbol: i.cfg.Symbol,
		Time:   rec.ClosedAt,
		Trade:  rec,
	})
}

// emit sends an event without blocking the pipeline. A full channel drops
// the event and counts it.
func (i *Instance) emit(ev model.Event) {
	if i.events == nil {
		return
	}
	select {
	case i.events <- ev:
	default:
		if i.prom != nil {
			i.prom.EventsDropped.Inc()
		}
		i.log.Warn("event channel full, dropping", "kind", ev.Kind)
	}
}

func (i *Instance) observeState() {
	led := i.mgr.Ledger()
	if led.CurrentCapital > i.equityPeak {
		i.equityPeak = led.CurrentCapital
	}
	dd := 0.0
	if i.equityPeak > 0 {
		dd = (i.equityPeak - led.CurrentCapital) / i.equityPeak * 100
	}

	state := 0.0
	switch i.mgr.State() {
	case position.LongOpen:
		state = 1
	case position.ShortOpen:
		state = -1
	}

	i.prom.Equity.WithLabelValues(i.cfg.Symbol).Set(led.CurrentCapital)
	i.prom.Drawdown.WithLabelValues(i.cfg.Symbol).Set(dd)
	i.prom.PositionState.WithLabelValues(i.cfg.Symbol).Set(state)
}

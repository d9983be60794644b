// Package position implements the single-position lifecycle state machine:
// Flat, LongOpen, ShortOpen. Positions open on directional signals, close on
// target hit, opposing signal, or manual request, and every close mutates
// the capital ledger together with an append-only trade history.
//
// There is deliberately no hard stop-loss. A position closed by an opposing
// signal loses in proportion to how far price travelled past the reference
// stop, with no cap; losses can exceed the nominal risk amount.
package position

import (
	"math"
	"time"

	"trendcore/internal/indicator"
	"trendcore/internal/model"
)

// epsilon guards proration divisions against zero distances.
const epsilon = 1e-9

// State is the manager's position state.
type State int

const (
	Flat State = iota
	LongOpen
	ShortOpen
)

func (s State) String() string {
	switch s {
	case LongOpen:
		return "LONG_OPEN"
	case ShortOpen:
		return "SHORT_OPEN"
	default:
		return "FLAT"
	}
}

// Config holds the immutable per-instance trading parameters.
type Config struct {
	Symbol         string
	InitialCapital float64
	RiskPerTrade   float64 // percent of current capital risked per trade
	RewardMultiple float64 // target distance as a multiple of the reference-stop distance
	UseScalpMode   bool    // scalp line instead of slow trailing stop as reference
	UseLeverage    bool
	Leverage       float64
}

// EffectiveLeverage returns the PnL multiplier: the leverage amount when
// enabled, otherwise 1.
func (c Config) EffectiveLeverage() float64 {
	if c.UseLeverage && c.Leverage > 0 {
		return c.Leverage
	}
	return 1
}

// Transition describes what one manager call did. At most one position is
// closed and one opened per call. NoPosition marks a close request that
// found nothing open, an explicit no-op rather than an error.
type Transition struct {
	Closed     *model.TradeRecord
	Opened     *model.Position
	NoPosition bool
}

// Manager is the single-position state machine. Single-goroutine per
// instance, so no locks are needed.
type Manager struct {
	cfg    Config
	ledger Ledger
	open   *model.Position
	trades []model.TradeRecord
	equity []float64 // capital after each close, seeded with the initial capital
}

// NewManager creates a manager with the given immutable configuration.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg: cfg,
		ledger: Ledger{
			InitialCapital: cfg.InitialCapital,
			CurrentCapital: cfg.InitialCapital,
		},
		equity: []float64{cfg.InitialCapital},
	}
}

// State returns the current position state.
func (m *Manager) State() State {
	switch {
	case m.open == nil:
		return Flat
	case m.open.Side == model.Long:
		return LongOpen
	default:
		return ShortOpen
	}
}

// Position returns a copy of the open position, or nil when flat.
func (m *Manager) Position() *model.Position {
	if m.open == nil {
		return nil
	}
	cp := *m.open
	return &cp
}

// Ledger returns a copy of the capital ledger.
func (m *Manager) Ledger() Ledger { return m.ledger }

// Trades returns a copy of the closed-trade history, oldest first.
func (m *Manager) Trades() []model.TradeRecord {
	cp := make([]model.TradeRecord, len(m.trades))
	copy(cp, m.trades)
	return cp
}

// EquityCurve returns capital snapshots: the initial capital followed by
// the capital after each close.
func (m *Manager) EquityCurve() []float64 {
	cp := make([]float64, len(m.equity))
	copy(cp, m.equity)
	return cp
}

// OnSignal applies a directional signal at the given candle. When flat it
// opens a position; when an opposing position is open it closes that
// position at the candle close and then opens the new one from the
// post-close capital. A signal in the direction already held is a no-op.
func (m *Manager) OnSignal(dir model.Side, snap indicator.Snapshot, c model.Candle) Transition {
	var tr Transition

	if m.open != nil {
		if m.open.Side == dir {
			return tr // already positioned this way
		}
		tr.Closed = m.closeAt(c.Close, model.ExitOpposingSignal, c.TS)
	}

	tr.Opened = m.openAt(dir, snap, c)
	return tr
}

// CheckTarget tests the open position's target against a bar's extremes
// and closes at the target level on a hit. Safe to call for in-progress
// ticks: it never touches indicator or signal state.
func (m *Manager) CheckTarget(high, low float64, ts time.Time) (*model.TradeRecord, bool) {
	if m.open == nil {
		return nil, false
	}

	hit := false
	switch m.open.Side {
	case model.Long:
		hit = high >= m.open.TargetPrice
	case model.Short:
		hit = low <= m.open.TargetPrice
	}
	if !hit {
		return nil, false
	}

	return m.closeAt(m.open.TargetPrice, model.ExitTargetHit, ts), true
}

// CloseManual closes the open position at the given price using the same
// proration as an opposing-signal close, tagged with a manual exit reason.
// Returns NoPosition when flat.
func (m *Manager) CloseManual(price float64, ts time.Time) Transition {
	if m.open == nil {
		return Transition{NoPosition: true}
	}
	return Transition{Closed: m.closeAt(price, model.ExitManual, ts)}
}

// openAt opens a position sized from the current (post-update) capital.
func (m *Manager) openAt(dir model.Side, snap indicator.Snapshot, c model.Candle) *model.Position {
	entry := c.Close

	refStop := snap.TrailSlow
	if m.cfg.UseScalpMode {
		refStop = snap.ScalpLine
	}

	risk := m.ledger.CurrentCapital * m.cfg.RiskPerTrade / 100
	stopDist := math.Abs(entry - refStop)
	lev := m.cfg.EffectiveLeverage()

	target := entry + stopDist*m.cfg.RewardMultiple
	liquidation := 0.0
	if dir == model.Short {
		target = entry - stopDist*m.cfg.RewardMultiple
		if m.cfg.UseLeverage && m.cfg.Leverage > 0 {
			liquidation = entry * (1 + 1/m.cfg.Leverage)
		}
	} else if m.cfg.UseLeverage && m.cfg.Leverage > 0 {
		liquidation = entry * (1 - 1/m.cfg.Leverage)
	}

	m.open = &model.Position{
		Symbol:           m.cfg.Symbol,
		Side:             dir,
		EntryPrice:       entry,
		ReferenceStop:    refStop,
		TargetPrice:      target,
		RiskAmount:       risk,
		RewardAmount:     risk * m.cfg.RewardMultiple * lev,
		LiquidationPrice: liquidation,
		OpenedAt:         c.TS,
	}
	m.ledger.TotalRisked += risk

	cp := *m.open
	return &cp
}

// closeAt closes the open position at exitPrice, appends the trade record,
// and mutates the ledger in one step so a transition can never be observed
// half-applied.
func (m *Manager) closeAt(exitPrice float64, reason model.ExitReason, ts time.Time) *model.TradeRecord {
	pos := m.open
	lev := m.cfg.EffectiveLeverage()

	var pnl float64
	targetHit := reason == model.ExitTargetHit
	if targetHit {
		pnl = pos.RiskAmount * m.cfg.RewardMultiple * lev
	} else {
		pnl = m.proratedPnL(pos, exitPrice, lev)
	}

	rec := model.TradeRecord{
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		PnL:        pnl,
		Win:        targetHit || pnl > 0,
		TargetHit:  targetHit,
		ExitReason: reason,
		OpenedAt:   pos.OpenedAt,
		ClosedAt:   ts,
	}

	m.applyClose(rec)
	m.open = nil
	return &rec
}

// proratedPnL computes the exit PnL for non-target closes.
//
// Favorable exits pay the fraction of the target distance covered, capped
// at the full reward. Unfavorable exits lose in proportion to the distance
// travelled versus the reference-stop distance, deliberately uncapped.
func (m *Manager) proratedPnL(pos *model.Position, exitPrice, lev float64) float64 {
	move := exitPrice - pos.EntryPrice
	if pos.Side == model.Short {
		move = -move
	}

	if move > 0 {
		targetDist := math.Abs(pos.TargetPrice - pos.EntryPrice)
		if targetDist < epsilon {
			return 0
		}
		frac := math.Min(move/targetDist, 1.0)
		return frac * pos.RiskAmount * m.cfg.RewardMultiple * lev
	}

	stopDist := math.Abs(pos.EntryPrice - pos.ReferenceStop)
	if stopDist < epsilon {
		return 0
	}
	return -(-move / stopDist) * pos.RiskAmount * lev
}

// applyClose folds one trade record into the ledger and histories.
func (m *Manager) applyClose(rec model.TradeRecord) {
	m.ledger.CurrentCapital += rec.PnL
	m.ledger.TotalPnL += rec.PnL
	if rec.PnL >= 0 {
		m.ledger.TotalProfit += rec.PnL
	} else {
		m.ledger.TotalLoss += -rec.PnL
	}

	if rec.Side == model.Long {
		if rec.Win {
			m.ledger.LongWins++
		} else {
			m.ledger.LongLosses++
		}
		if rec.TargetHit {
			m.ledger.LongTargetHits++
		}
	} else {
		if rec.Win {
			m.ledger.ShortWins++
		} else {
			m.ledger.ShortLosses++
		}
		if rec.TargetHit {
			m.ledger.ShortTargetHits++
		}
	}

	m.trades = append(m.trades, rec)
	m.equity = append(m.equity, m.ledger.CurrentCapital)
}

// Package stats derives performance metrics from a position ledger, the
// closed-trade history, and the equity curve. All derivations are pure;
// nothing here mutates trading state, so a caller can compute a report at
// any point during a replay or live session.
package stats

import (
	"math"

	"trendcore/internal/model"
	"trendcore/internal/position"
)

// Report is a point-in-time performance summary.
type Report struct {
	InitialCapital float64 `json:"initial_capital"`
	CurrentCapital float64 `json:"current_capital"`
	TotalPnL       float64 `json:"total_pnl"`
	TotalTrades    int     `json:"total_trades"`

	WinRate      float64 `json:"win_rate"`
	LongWinRate  float64 `json:"long_win_rate"`
	ShortWinRate float64 `json:"short_win_rate"`

	ProfitFactor float64 `json:"profit_factor"`
	Efficiency   float64 `json:"efficiency"` // pnl per unit risked, percent

	MaxDrawdown float64 `json:"max_drawdown"` // percent, positive magnitude
	Sharpe      float64 `json:"sharpe,omitempty"`

	TargetHits int     `json:"target_hits"`
	BestTrade  float64 `json:"best_trade"`
	WorstTrade float64 `json:"worst_trade"`
	AvgWin     float64 `json:"avg_win"`
	AvgLoss    float64 `json:"avg_loss"` // positive magnitude
}

// Compute builds a Report. stepsPerYear annualizes the Sharpe ratio from
// per-step equity returns; pass 0 to skip it (backtests on irregular data,
// short live sessions).
func Compute(led position.Ledger, trades []model.TradeRecord, equity []float64, stepsPerYear float64) Report {
	r := Report{
		InitialCapital: led.InitialCapital,
		CurrentCapital: led.CurrentCapital,
		TotalPnL:       led.TotalPnL,
		TotalTrades:    led.TradeCount(),
		LongWinRate:    winRate(led.LongWins, led.LongLosses),
		ShortWinRate:   winRate(led.ShortWins, led.ShortLosses),
		WinRate:        winRate(led.LongWins+led.ShortWins, led.LongLosses+led.ShortLosses),
		TargetHits:     led.LongTargetHits + led.ShortTargetHits,
	}

	if led.TotalRisked > 0 {
		r.Efficiency = led.TotalPnL / led.TotalRisked * 100
	}

	r.ProfitFactor = led.TotalProfit
	if led.TotalLoss > 0 {
		r.ProfitFactor = led.TotalProfit / led.TotalLoss
	}

	r.MaxDrawdown = MaxDrawdown(equity)
	if stepsPerYear > 0 {
		r.Sharpe = sharpe(equity, stepsPerYear)
	}

	var wins, losses int
	for i, tr := range trades {
		if i == 0 || tr.PnL > r.BestTrade {
			r.BestTrade = tr.PnL
		}
		if i == 0 || tr.PnL < r.WorstTrade {
			r.WorstTrade = tr.PnL
		}
		if tr.PnL >= 0 {
			r.AvgWin += tr.PnL
			wins++
		} else {
			r.AvgLoss += -tr.PnL
			losses++
		}
	}
	if wins > 0 {
		r.AvgWin /= float64(wins)
	}
	if losses > 0 {
		r.AvgLoss /= float64(losses)
	}

	return r
}

func winRate(wins, losses int) float64 {
	if wins+losses == 0 {
		return 0
	}
	return float64(wins) / float64(wins+losses)
}

// MaxDrawdown returns the largest peak-to-trough decline over the equity
// curve as a positive percentage of the running peak.
func MaxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	peak := equity[0]
	var maxDD float64
	for _, eq := range equity {
		if eq > peak {
			peak = eq
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - eq) / peak * 100; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// sharpe computes mean/stddev of per-step equity returns, annualized by
// sqrt(stepsPerYear). Needs at least two steps and nonzero variance.
func sharpe(equity []float64, stepsPerYear float64) float64 {
	if len(equity) < 3 {
		return 0
	}

	rets := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			continue
		}
		rets = append(rets, equity[i]/equity[i-1]-1)
	}
	if len(rets) < 2 {
		return 0
	}

	var mean float64
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))

	var variance float64
	for _, r := range rets {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(rets) - 1)
	if variance == 0 {
		return 0
	}

	return mean / math.Sqrt(variance) * math.Sqrt(stepsPerYear)
}

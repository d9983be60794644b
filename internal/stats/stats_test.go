package stats

import (
	"math"
	"testing"

	"trendcore/internal/model"
	"trendcore/internal/position"
)

func TestCompute_WinRatesAndFactors(t *testing.T) {
	led := position.Ledger{
		InitialCapital: 100,
		CurrentCapital: 130,
		TotalPnL:       30,
		TotalProfit:    50,
		TotalLoss:      20,
		TotalRisked:    60,
		LongWins:       3,
		LongLosses:     1,
		ShortWins:      1,
		ShortLosses:    1,
		LongTargetHits: 2,
	}

	r := Compute(led, nil, nil, 0)

	if math.Abs(r.WinRate-4.0/6.0) > 1e-9 {
		t.Errorf("win rate: got %.6f", r.WinRate)
	}
	if math.Abs(r.LongWinRate-0.75) > 1e-9 {
		t.Errorf("long win rate: got %.6f", r.LongWinRate)
	}
	if math.Abs(r.ShortWinRate-0.5) > 1e-9 {
		t.Errorf("short win rate: got %.6f", r.ShortWinRate)
	}
	if math.Abs(r.ProfitFactor-2.5) > 1e-9 {
		t.Errorf("profit factor: got %.6f", r.ProfitFactor)
	}
	if math.Abs(r.Efficiency-50) > 1e-9 {
		t.Errorf("efficiency: got %.6f", r.Efficiency)
	}
	if r.TargetHits != 2 {
		t.Errorf("target hits: got %d", r.TargetHits)
	}
	if r.TotalTrades != 6 {
		t.Errorf("total trades: got %d", r.TotalTrades)
	}
}

func TestCompute_ZeroDenominatorsGuarded(t *testing.T) {
	r := Compute(position.Ledger{InitialCapital: 100, CurrentCapital: 100}, nil, nil, 0)

	if r.WinRate != 0 || r.LongWinRate != 0 || r.ShortWinRate != 0 {
		t.Errorf("win rates must be 0 with no trades: %+v", r)
	}
	if r.Efficiency != 0 {
		t.Errorf("efficiency must be 0 with nothing risked: %.6f", r.Efficiency)
	}
}

func TestCompute_ProfitFactorWithNoLosses(t *testing.T) {
	led := position.Ledger{TotalProfit: 42}
	if r := Compute(led, nil, nil, 0); r.ProfitFactor != 42 {
		t.Errorf("profit factor with zero loss: got %.6f, want totalProfit", r.ProfitFactor)
	}
}

func TestMaxDrawdown(t *testing.T) {
	// Peak 120, trough 90: (120-90)/120 = 25%
	eq := []float64{100, 120, 110, 90, 115, 130}
	if dd := MaxDrawdown(eq); math.Abs(dd-25) > 1e-9 {
		t.Errorf("max drawdown: got %.6f, want 25", dd)
	}
}

func TestMaxDrawdown_MonotonicCurveIsZero(t *testing.T) {
	if dd := MaxDrawdown([]float64{100, 105, 110, 120}); dd != 0 {
		t.Errorf("rising curve must have 0 drawdown, got %.6f", dd)
	}
	if dd := MaxDrawdown(nil); dd != 0 {
		t.Errorf("empty curve must have 0 drawdown, got %.6f", dd)
	}
}

func TestCompute_Sharpe(t *testing.T) {
	// Constant +1% steps: zero variance, Sharpe skipped
	flat := []float64{100, 101, 102.01, 103.0301}
	if r := Compute(position.Ledger{}, nil, flat, 252); r.Sharpe != 0 {
		t.Errorf("zero-variance returns must give 0, got %.6f", r.Sharpe)
	}

	varied := []float64{100, 102, 101, 104, 103, 107}
	r := Compute(position.Ledger{}, nil, varied, 252)
	if r.Sharpe <= 0 {
		t.Errorf("positive-drift curve must give positive sharpe, got %.6f", r.Sharpe)
	}

	// stepsPerYear=0 disables the ratio entirely
	if r0 := Compute(position.Ledger{}, nil, varied, 0); r0.Sharpe != 0 {
		t.Errorf("sharpe must be skipped when stepsPerYear=0, got %.6f", r0.Sharpe)
	}
}

func TestCompute_TradeExtremes(t *testing.T) {
	trades := []model.TradeRecord{
		{PnL: 15},
		{PnL: -20},
		{PnL: 5},
	}
	r := Compute(position.Ledger{}, trades, nil, 0)

	if r.BestTrade != 15 {
		t.Errorf("best trade: got %.4f", r.BestTrade)
	}
	if r.WorstTrade != -20 {
		t.Errorf("worst trade: got %.4f", r.WorstTrade)
	}
	if r.AvgWin != 10 {
		t.Errorf("avg win: got %.4f", r.AvgWin)
	}
	if r.AvgLoss != 20 {
		t.Errorf("avg loss: got %.4f", r.AvgLoss)
	}
}

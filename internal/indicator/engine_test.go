package indicator

import (
	"math"
	"testing"
	"time"

	"trendcore/internal/model"
)

func makeCandle(i int, open, high, low, close float64) model.Candle {
	return model.Candle{
		Symbol:   "BTCUSDT",
		Interval: "1h",
		TS:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    close,
		Volume:   100,
		Final:    true,
	}
}

func flatCandle(i int) model.Candle {
	return makeCandle(i, 100, 101, 99, 100)
}

func TestEngine_WarmupBars(t *testing.T) {
	e := NewEngine(Config{Length: 6, Period: 16, Multiplier: 9, FastMultiplier: 5.1, ScalpPeriod: 10})
	if got := e.WarmupBars(); got != 25 {
		t.Fatalf("expected warmup=25, got %d", got)
	}
}

func TestEngine_NotReadyUntilBuffersFill(t *testing.T) {
	e := NewEngine(DefaultConfig())
	warm := e.WarmupBars()

	for i := 0; i < warm+5; i++ {
		snap := e.Update(flatCandle(i))
		if i < warm-1 && snap.Ready {
			t.Fatalf("bar %d: expected NotReady before warmup completes", i)
		}
		if i >= warm-1 && !snap.Ready {
			t.Fatalf("bar %d: expected Ready after warmup", i)
		}
	}
}

func TestEngine_FlatSeriesValues(t *testing.T) {
	// Constant bars: open=close=100, high=101, low=99, so TR=2 every bar.
	e := NewEngine(DefaultConfig())

	var snap Snapshot
	for i := 0; i < e.WarmupBars()+10; i++ {
		snap = e.Update(flatCandle(i))
	}

	if math.Abs(snap.ATR-2.0) > 1e-9 {
		t.Errorf("expected ATR=2.0, got %.6f", snap.ATR)
	}
	// lv = |100-100|/(101-99) = 0 keeps the baseline frozen at its init value 100
	if math.Abs(snap.Baseline-100.0) > 1e-9 {
		t.Errorf("expected baseline=100, got %.6f", snap.Baseline)
	}
	// Uptrend side of a flat market: line = close - mult*atr
	if math.Abs(snap.TrailSlow-82.0) > 1e-9 {
		t.Errorf("expected slow trail=82, got %.6f", snap.TrailSlow)
	}
	if math.Abs(snap.TrailFast-(100-5.1*2)) > 1e-9 {
		t.Errorf("expected fast trail=89.8, got %.6f", snap.TrailFast)
	}
	// Scalp line = midpoint of slow trail and baseline
	if math.Abs(snap.ScalpLine-91.0) > 1e-9 {
		t.Errorf("expected scalp=91, got %.6f", snap.ScalpLine)
	}
}

func TestEngine_ATRNeverNegative(t *testing.T) {
	e := NewEngine(DefaultConfig())

	// Alternating spikes and crashes
	price := 100.0
	for i := 0; i < 200; i++ {
		if i%3 == 0 {
			price *= 1.05
		} else {
			price *= 0.97
		}
		high := price * 1.02
		low := price * 0.98
		snap := e.Update(makeCandle(i, price, high, low, price))
		if snap.ATR < 0 {
			t.Fatalf("bar %d: ATR went negative: %.6f", i, snap.ATR)
		}
	}
}

func TestEngine_TrailRatchetsUpInUptrend(t *testing.T) {
	e := NewEngine(DefaultConfig())

	var prev float64
	started := false
	for i := 0; i < 60; i++ {
		close := 100.0 + float64(i)
		snap := e.Update(makeCandle(i, close-0.5, close+1, close-1, close))
		if !snap.Ready {
			continue
		}
		if started && snap.TrailSlow < prev-1e-9 {
			t.Fatalf("bar %d: slow trail moved down in an uptrend: %.4f -> %.4f", i, prev, snap.TrailSlow)
		}
		prev = snap.TrailSlow
		started = true
	}
}

func TestEngine_TrailFlipsOnCrash(t *testing.T) {
	e := NewEngine(DefaultConfig())

	var snap Snapshot
	for i := 0; i < 40; i++ {
		close := 100.0 + float64(i)
		snap = e.Update(makeCandle(i, close-0.5, close+1, close-1, close))
	}
	lineBefore := snap.TrailSlow
	lastClose := 139.0

	// Crash well below the line
	crash := lineBefore * 0.5
	snap = e.Update(makeCandle(40, lastClose, lastClose, crash-1, crash))

	// Flip: line resets to close + mult*atr, above price
	if snap.TrailSlow <= crash {
		t.Fatalf("expected trail above price after flip, line=%.4f close=%.4f", snap.TrailSlow, crash)
	}
}

func TestEngine_BaselineTracksTrendingClose(t *testing.T) {
	e := NewEngine(DefaultConfig())

	var snap Snapshot
	for i := 0; i < 100; i++ {
		close := 100.0 + 2*float64(i)
		snap = e.Update(makeCandle(i, close-1.5, close+0.5, close-2, close))
	}
	// In a persistent trend the baseline must stay near the close,
	// far above the slow trailing stop.
	close := 100.0 + 2*99
	if math.Abs(snap.Baseline-close) > 20 {
		t.Errorf("baseline lost the trend: baseline=%.2f close=%.2f", snap.Baseline, close)
	}
	if snap.Baseline <= snap.TrailSlow {
		t.Errorf("expected baseline above slow trail in uptrend: a=%.2f trail=%.2f", snap.Baseline, snap.TrailSlow)
	}
}

func TestEngine_PrevFieldsLagByOneReadyBar(t *testing.T) {
	e := NewEngine(DefaultConfig())
	warm := e.WarmupBars()

	var prevSnap Snapshot
	seen := false
	for i := 0; i < warm+10; i++ {
		snap := e.Update(flatCandle(i))
		if !snap.Ready {
			continue
		}
		if !seen {
			// First ready bar carries zero prevs: there is no earlier ready bar.
			if snap.PrevBaseline != 0 || snap.PrevTrailSlow != 0 {
				t.Fatalf("first ready bar: expected zero prevs, got a=%.4f trail=%.4f",
					snap.PrevBaseline, snap.PrevTrailSlow)
			}
			seen = true
		} else {
			if snap.PrevBaseline != prevSnap.Baseline {
				t.Fatalf("bar %d: PrevBaseline=%.4f, want previous bar's %.4f",
					i, snap.PrevBaseline, prevSnap.Baseline)
			}
			if snap.PrevTrailSlow != prevSnap.TrailSlow {
				t.Fatalf("bar %d: PrevTrailSlow=%.4f, want previous bar's %.4f",
					i, snap.PrevTrailSlow, prevSnap.TrailSlow)
			}
		}
		prevSnap = snap
	}
}

func TestEngine_StateRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	e1 := NewEngine(cfg)

	for i := 0; i < 30; i++ {
		e1.Update(makeCandle(i, 100+float64(i), 102+float64(i), 99+float64(i), 101+float64(i)))
	}

	data, err := e1.MarshalState()
	if err != nil {
		t.Fatalf("marshal state: %v", err)
	}
	st, err := UnmarshalState(data)
	if err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	e2 := RestoreEngine(cfg, st)

	// Both engines must now produce identical snapshots.
	for i := 30; i < 50; i++ {
		c := makeCandle(i, 100+float64(i), 102+float64(i), 99+float64(i), 101+float64(i))
		s1 := e1.Update(c)
		s2 := e2.Update(c)
		if s1 != s2 {
			t.Fatalf("bar %d: snapshots diverged after restore:\n%+v\n%+v", i, s1, s2)
		}
	}
}

func TestEngine_RestoreRejectsMismatchedConfig(t *testing.T) {
	e1 := NewEngine(DefaultConfig())
	for i := 0; i < 30; i++ {
		e1.Update(flatCandle(i))
	}
	st := e1.State()

	other := DefaultConfig()
	other.Period = 20
	e2 := RestoreEngine(other, &st)

	// Cold engine: no warmup carried over
	snap := e2.Update(flatCandle(0))
	if snap.Ready {
		t.Fatal("expected cold engine after config mismatch")
	}
}

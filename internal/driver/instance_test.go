package driver

import (
	"context"
	"math"
	"testing"
	"time"

	"trendcore/internal/indicator"
	"trendcore/internal/model"
	"trendcore/internal/position"
)

func testInstanceConfig() Config {
	return Config{
		Symbol:   "BTCUSDT",
		Interval: "1h",
		Engine:   indicator.DefaultConfig(),
		Position: position.Config{
			Symbol:         "BTCUSDT",
			InitialCapital: 100,
			RiskPerTrade:   10,
			RewardMultiple: 1.5,
		},
	}
}

func trendCandle(i int) model.Candle {
	close := 100.0 + float64(i)
	return model.Candle{
		Symbol:   "BTCUSDT",
		Interval: "1h",
		TS:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour),
		Open:     close - 0.6,
		High:     close + 0.8,
		Low:      close - 0.9,
		Close:    close,
		Final:    true,
	}
}

func drainEvents(ch chan model.Event) []model.Event {
	var evs []model.Event
	for {
		select {
		case ev := <-ch:
			evs = append(evs, ev)
		default:
			return evs
		}
	}
}

func TestInstance_UptrendOpensOneLong(t *testing.T) {
	events := make(chan model.Event, 256)
	inst := New(testInstanceConfig(), nil, events, nil)

	for i := 0; i < 40; i++ {
		if err := inst.ProcessCandle(trendCandle(i)); err != nil {
			t.Fatalf("candle %d: %v", i, err)
		}
	}

	var signals, opens int
	for _, ev := range drainEvents(events) {
		switch ev.Kind {
		case model.EventSignal:
			signals++
			if ev.Direction != model.Long {
				t.Errorf("expected long signal, got %s", ev.Direction)
			}
		case model.EventPositionOpened:
			opens++
		}
	}
	if signals != 1 || opens != 1 {
		t.Errorf("expected 1 signal / 1 open, got %d / %d", signals, opens)
	}
	if inst.Manager().State() != position.LongOpen {
		t.Errorf("expected LongOpen, got %v", inst.Manager().State())
	}
}

func TestInstance_DuplicateTimestampIsNoOp(t *testing.T) {
	inst := New(testInstanceConfig(), nil, nil, nil)

	for i := 0; i < 40; i++ {
		inst.ProcessCandle(trendCandle(i))
	}
	ledgerBefore := inst.Manager().Ledger()
	stateBefore := inst.Manager().State()

	// Resend the last candle, then a mutated copy with the same timestamp
	dup := trendCandle(39)
	if err := inst.ProcessCandle(dup); err != nil {
		t.Fatalf("duplicate must be a silent no-op, got %v", err)
	}
	dup.Close = 500
	dup.High = 501
	dup.Low = 499
	dup.Open = 500
	if err := inst.ProcessCandle(dup); err != nil {
		t.Fatalf("mutated duplicate must be a silent no-op, got %v", err)
	}

	if inst.Manager().Ledger() != ledgerBefore {
		t.Error("ledger changed after duplicate candles")
	}
	if inst.Manager().State() != stateBefore {
		t.Error("position state changed after duplicate candles")
	}
}

func TestInstance_OutOfOrderCandleIgnored(t *testing.T) {
	inst := New(testInstanceConfig(), nil, nil, nil)

	for i := 0; i < 30; i++ {
		inst.ProcessCandle(trendCandle(i))
	}
	ledgerBefore := inst.Manager().Ledger()

	if err := inst.ProcessCandle(trendCandle(10)); err != nil {
		t.Fatalf("late candle must be a silent no-op, got %v", err)
	}
	if inst.Manager().Ledger() != ledgerBefore {
		t.Error("ledger changed after out-of-order candle")
	}
}

func TestInstance_InvalidCandleRejected(t *testing.T) {
	events := make(chan model.Event, 8)
	inst := New(testInstanceConfig(), nil, events, nil)

	bad := trendCandle(0)
	bad.High = bad.Low - 1
	if err := inst.ProcessCandle(bad); err == nil {
		t.Fatal("expected validation error")
	}

	evs := drainEvents(events)
	if len(evs) != 1 || evs[0].Kind != model.EventError {
		t.Fatalf("expected one ERROR event, got %+v", evs)
	}
}

func TestInstance_TickChecksTargetOnly(t *testing.T) {
	events := make(chan model.Event, 256)
	inst := New(testInstanceConfig(), nil, events, nil)

	for i := 0; i < 40; i++ {
		inst.ProcessCandle(trendCandle(i))
	}
	if inst.Manager().State() != position.LongOpen {
		t.Fatal("expected an open long before the tick")
	}
	drainEvents(events)
	target := inst.Manager().Position().TargetPrice

	// Non-final candle spiking through the target must close the position
	// without touching indicator state or emitting signals.
	tick := trendCandle(40)
	tick.Final = false
	tick.High = target + 1
	if err := inst.ProcessCandle(tick); err != nil {
		t.Fatalf("tick processing: %v", err)
	}

	if inst.Manager().State() != position.Flat {
		t.Fatalf("expected Flat after tick target hit, got %v", inst.Manager().State())
	}
	evs := drainEvents(events)
	if len(evs) != 1 || evs[0].Kind != model.EventTakeProfitHit {
		t.Fatalf("expected one TAKE_PROFIT_HIT event, got %+v", evs)
	}
	if !evs[0].Trade.Win || !evs[0].Trade.TargetHit {
		t.Errorf("target hit must be a winning record: %+v", evs[0].Trade)
	}

	// The tick must not have consumed the timestamp: the real final candle
	// for the same period still processes.
	final := trendCandle(40)
	if err := inst.ProcessCandle(final); err != nil {
		t.Fatalf("final candle after tick: %v", err)
	}
}

func TestInstance_SlippageAdjustsEntry(t *testing.T) {
	cfg := testInstanceConfig()
	cfg.SlippageBps = 10 // 0.1%
	inst := New(cfg, nil, nil, nil)

	for i := 0; i < 40; i++ {
		inst.ProcessCandle(trendCandle(i))
	}

	pos := inst.Manager().Position()
	if pos == nil {
		t.Fatal("expected an open position")
	}
	// Every close in the series is a whole number; the long entry fills
	// 0.1% above the signal bar's close.
	signalClose := pos.EntryPrice / 1.001
	if math.Abs(signalClose-math.Round(signalClose)) > 1e-6 {
		t.Fatalf("entry %.6f is not an integer close plus 10bps", pos.EntryPrice)
	}
	if pos.EntryPrice <= signalClose {
		t.Errorf("long entry must fill above the close, got %.6f", pos.EntryPrice)
	}
}

func TestInstance_EventChannelFullDropsWithoutBlocking(t *testing.T) {
	events := make(chan model.Event) // unbuffered and never read
	inst := New(testInstanceConfig(), nil, events, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			inst.ProcessCandle(trendCandle(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline blocked on a full event channel")
	}
}

func TestInstance_CloseOpenPosition(t *testing.T) {
	events := make(chan model.Event, 256)
	inst := New(testInstanceConfig(), nil, events, nil)

	for i := 0; i < 40; i++ {
		inst.ProcessCandle(trendCandle(i))
	}
	drainEvents(events)

	last := trendCandle(39)
	inst.CloseOpenPosition(last.Close, last.TS)
	if inst.Manager().State() != position.Flat {
		t.Fatal("expected Flat after forced close")
	}
	evs := drainEvents(events)
	if len(evs) != 1 || evs[0].Kind != model.EventPositionClosed {
		t.Fatalf("expected one POSITION_CLOSED event, got %+v", evs)
	}
	if evs[0].Trade.ExitReason != model.ExitManual {
		t.Errorf("expected MANUAL exit reason, got %s", evs[0].Trade.ExitReason)
	}

	// Idempotent when already flat
	inst.CloseOpenPosition(last.Close, last.TS)
	if evs := drainEvents(events); len(evs) != 0 {
		t.Fatalf("flat force-close must emit nothing, got %+v", evs)
	}
}

func TestReplaySlice_FeedsAllCandles(t *testing.T) {
	inst := New(testInstanceConfig(), nil, nil, nil)

	candles := make([]model.Candle, 60)
	for i := range candles {
		candles[i] = trendCandle(i)
	}

	fed, err := ReplaySlice(context.Background(), inst, candles)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if fed != 60 {
		t.Errorf("expected 60 candles fed, got %d", fed)
	}

	rep := inst.Report(0)
	if rep.InitialCapital != 100 {
		t.Errorf("report initial capital: got %.2f", rep.InitialCapital)
	}
}

func TestRun_StopsWhenChannelCloses(t *testing.T) {
	inst := New(testInstanceConfig(), nil, nil, nil)

	ch := make(chan model.Candle, 64)
	for i := 0; i < 30; i++ {
		ch <- trendCandle(i)
	}
	close(ch)

	if err := inst.Run(context.Background(), ch); err != nil {
		t.Fatalf("run: %v", err)
	}
	if inst.Manager().State() != position.LongOpen {
		t.Errorf("expected LongOpen after trend replay, got %v", inst.Manager().State())
	}
}

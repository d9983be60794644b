// cmd/backtest replays stored candle history through the full trading
// pipeline (indicators, signals, positions) and prints a performance
// summary.
//
// Usage:
//
//	go run ./cmd/backtest --db=data/trendcore.db --symbol=BTCUSDT --interval=1h
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"trendcore/internal/driver"
	"trendcore/internal/indicator"
	"trendcore/internal/logger"
	"trendcore/internal/position"
	sqlitestore "trendcore/internal/store/sqlite"
)

func main() {
	dbPath := flag.String("db", "data/trendcore.db", "Path to SQLite database")
	symbol := flag.String("symbol", "BTCUSDT", "Symbol to replay")
	interval := flag.String("interval", "1h", "Candle interval to replay")
	fromTS := flag.Int64("from", 0, "Unix timestamp to start replay from (0=all)")
	speed := flag.Float64("speed", 0, "Playback speed multiplier (0=max, 1=realtime)")

	length := flag.Int("length", 6, "Baseline SMA length")
	period := flag.Int("period", 16, "ATR period")
	multiplier := flag.Float64("multiplier", 9.0, "Slow trailing stop ATR multiplier")
	fastMultiplier := flag.Float64("fast-multiplier", 5.1, "Fast trailing stop ATR multiplier")
	scalpPeriod := flag.Int("scalp-period", 10, "Scalp line SMA period")

	capital := flag.Float64("capital", 1000, "Initial capital")
	risk := flag.Float64("risk", 2.5, "Risk per trade, percent of capital")
	reward := flag.Float64("reward", 1.5, "Reward multiple of the stop distance")
	scalpMode := flag.Bool("scalp-mode", false, "Use scalp line instead of slow trail as reference stop")
	leverage := flag.Float64("leverage", 0, "Leverage (0=off)")
	slippage := flag.Float64("slippage-bps", 0, "Simulated fill slippage in basis points")
	stepsPerYear := flag.Float64("steps-per-year", 0, "Equity steps per year for Sharpe (0=skip)")
	flag.Parse()

	log := logger.Init("backtest", slog.LevelInfo)

	reader, err := sqlitestore.NewReader(*dbPath)
	if err != nil {
		log.Error("sqlite open failed", "err", err)
		os.Exit(1)
	}
	defer reader.Close()

	inst := driver.New(driver.Config{
		Symbol:   *symbol,
		Interval: *interval,
		Engine: indicator.Config{
			Length:         *length,
			Period:         *period,
			Multiplier:     *multiplier,
			FastMultiplier: *fastMultiplier,
			ScalpPeriod:    *scalpPeriod,
		},
		Position: position.Config{
			Symbol:         *symbol,
			InitialCapital: *capital,
			RiskPerTrade:   *risk,
			RewardMultiple: *reward,
			UseScalpMode:   *scalpMode,
			UseLeverage:    *leverage > 0,
			Leverage:       *leverage,
		},
		SlippageBps: *slippage,
	}, log, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	replayer := driver.NewReplayer(reader, log)
	fed, err := replayer.Run(ctx, inst, *symbol, *interval, *fromTS, *speed)
	if err != nil {
		log.Error("replay failed", "err", err)
		os.Exit(1)
	}

	// Close any position still open at the final bar so the summary
	// reflects all capital.
	if last, ok := inst.LastCandle(); ok {
		inst.CloseOpenPosition(last.Close, last.TS)
	}

	printSummary(inst, *symbol, fed, *stepsPerYear)
}

func printSummary(inst *driver.Instance, symbol string, fed int, stepsPerYear float64) {
	rep := inst.Report(stepsPerYear)

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════╗")
	fmt.Println("║            BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════════╣")
	fmt.Printf("║  Symbol:            %-20s ║\n", symbol)
	fmt.Printf("║  Candles replayed:  %-20d ║\n", fed)
	fmt.Printf("║  Trades:            %-20d ║\n", rep.TotalTrades)
	fmt.Printf("║  Target hits:       %-20d ║\n", rep.TargetHits)
	fmt.Printf("║  Win rate:          %-20.2f ║\n", rep.WinRate*100)
	fmt.Printf("║  Profit factor:     %-20.2f ║\n", rep.ProfitFactor)
	fmt.Printf("║  Efficiency %%:      %-20.2f ║\n", rep.Efficiency)
	fmt.Printf("║  Max drawdown %%:    %-20.2f ║\n", rep.MaxDrawdown)
	if stepsPerYear > 0 {
		fmt.Printf("║  Sharpe:            %-20.2f ║\n", rep.Sharpe)
	}
	fmt.Printf("║  Initial capital:   %-20.2f ║\n", rep.InitialCapital)
	fmt.Printf("║  Final capital:     %-20.2f ║\n", rep.CurrentCapital)
	fmt.Printf("║  Total PnL:         %-+20.2f ║\n", rep.TotalPnL)
	fmt.Println("╚══════════════════════════════════════════╝")

	for _, tr := range inst.Manager().Trades() {
		fmt.Printf("  %s  %-5s  entry=%.4f exit=%.4f pnl=%+.2f  %s\n",
			tr.ClosedAt.Format("2006-01-02 15:04"), tr.Side,
			tr.EntryPrice, tr.ExitPrice, tr.PnL, tr.ExitReason)
	}
}

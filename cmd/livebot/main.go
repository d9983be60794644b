// cmd/livebot runs the live trading pipeline: broker login, candle
// streaming, one driver instance per symbol, and event fan-out to Redis,
// the trade journal, and notification backends.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trendcore/config"
	"trendcore/internal/driver"
	"trendcore/internal/feed"
	"trendcore/internal/indicator"
	"trendcore/internal/logger"
	"trendcore/internal/metrics"
	"trendcore/internal/model"
	"trendcore/internal/notification"
	"trendcore/internal/position"
	"trendcore/internal/ringbuf"
	redisstore "trendcore/internal/store/redis"
	sqlitestore "trendcore/internal/store/sqlite"
)

const (
	eventBufSize  = 1024
	candleBufSize = 1024
	ringSize      = 4096

	equityPublishInterval = time.Minute
	livenessInterval      = 15 * time.Second
)

func main() {
	log := logger.Init("livebot", logger.ParseLevel(os.Getenv("LOG_LEVEL")))
	cfg := config.Load()
	symbols := cfg.ParseSymbols()
	if len(symbols) == 0 {
		log.Error("no symbols configured")
		os.Exit(1)
	}

	log.Info("starting", "symbols", symbols, "interval", cfg.Interval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Metrics & health ----
	prom := metrics.New()
	health := metrics.NewHealthStatus(symbols)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- SQLite (candles, journal, engine checkpoints) ----
	os.MkdirAll("data", 0o755)
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Error("sqlite init failed", "err", err)
		os.Exit(1)
	}
	defer sqlWriter.Close()
	sqlWriter.OnCommit = func(d time.Duration) { prom.SQLiteCommitDur.Observe(d.Seconds()) }

	sqlReader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Warn("sqlite reader init failed, cold engines only", "err", err)
	} else {
		defer sqlReader.Close()
	}

	// ---- Redis event/equity publisher ----
	var pub *redisstore.Publisher
	pub, err = redisstore.New(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Warn("redis init failed, continuing without publisher", "err", err)
		pub = nil
	} else {
		defer pub.Close()
		pub.OnPublish = func(d time.Duration) { prom.RedisPublishDur.Observe(d.Seconds()) }
	}

	if pub != nil {
		health.StartLivenessChecker(ctx, pub.Client(), sqlWriter.DB(), livenessInterval)
	} else {
		health.StartLivenessChecker(ctx, nil, sqlWriter.DB(), livenessInterval)
	}

	// ---- Broker session ----
	feedClient := feed.NewClient(feed.Config{
		BaseURL:    cfg.FeedBaseURL,
		WSURL:      cfg.FeedWSURL,
		APIKey:     cfg.FeedAPIKey,
		ClientCode: cfg.FeedClientCode,
		Password:   cfg.FeedPassword,
		TOTPSecret: cfg.FeedTOTPSecret,
	})
	if err := feedClient.Login(ctx); err != nil {
		log.Error("broker login failed", "err", err)
		os.Exit(1)
	}
	feedClient.Hooks().OnReconnect = func() {
		prom.WSReconnects.Inc()
		health.SetWSConnected(false)
	}

	// ---- Event fan-out ----
	events := make(chan model.Event, eventBufSize)
	redisCh := make(chan model.Event, eventBufSize)
	notifyCh := make(chan model.Event, eventBufSize)
	go fanOut(ctx, events, sqlWriter, prom, log, redisCh, notifyCh)

	relay := notification.NewRelay(buildNotifiers()...)
	relay.OnSendError = func(error) { prom.NotificationsFailed.Inc() }
	go relay.Run(ctx, notifyCh)

	if pub != nil {
		go pub.Run(ctx, redisCh)
	} else {
		go drainEvents(ctx, redisCh)
	}

	// ---- Candle persistence off the hot path ----
	persistCh := make(chan model.Candle, 5000)
	go sqlWriter.Run(ctx, persistCh)

	// ---- Per-symbol pipelines ----
	engineCfg := indicator.Config{
		Length:         cfg.Length,
		Period:         cfg.Period,
		Multiplier:     cfg.Multiplier,
		FastMultiplier: cfg.FastMultiplier,
		ScalpPeriod:    cfg.ScalpPeriod,
	}

	instances := make([]*driver.Instance, 0, len(symbols))
	for _, sym := range symbols {
		inst := driver.New(driver.Config{
			Symbol:   sym,
			Interval: cfg.Interval,
			Engine:   engineCfg,
			Position: position.Config{
				Symbol:         sym,
				InitialCapital: cfg.InitialCapital,
				RiskPerTrade:   cfg.RiskPerTrade,
				RewardMultiple: cfg.RewardMultiple,
				UseScalpMode:   cfg.UseScalpMode,
				UseLeverage:    cfg.UseLeverage,
				Leverage:       cfg.Leverage,
			},
			SlippageBps: cfg.SlippageBps,
		}, log, events, prom)
		instances = append(instances, inst)

		warmup := true
		if sqlReader != nil {
			if data, err := sqlReader.ReadLatestEngineState(sym, cfg.Interval); err == nil && data != nil {
				if st, err := indicator.UnmarshalState(data); err == nil {
					inst.RestoreEngine(indicator.RestoreEngine(engineCfg, st))
					warmup = false
					log.Info("engine restored from checkpoint", "symbol", sym)
				}
			}
		}
		if warmup {
			if err := warmupInstance(ctx, feedClient, inst, sym, cfg.Interval, cfg.HistoryLimit); err != nil {
				log.Warn("history warmup failed, starting cold", "symbol", sym, "err", err)
			}
		}

		startPipeline(ctx, cancel, log, health, prom, inst, feedClient, sym, cfg.Interval, persistCh)
		startSnapshotLoop(ctx, log, prom, sqlWriter, inst, sym, cfg.Interval, cfg.SnapshotIntervalS)
	}

	if pub != nil {
		go publishEquityLoop(ctx, pub, instances)
	}

	log.Info("all pipelines running", "instances", len(instances))

	select {
	case <-sigCh:
		log.Info("shutdown signal received")
	case <-ctx.Done():
	}
	cancel()

	// Final engine checkpoints before the writers close.
	for i, inst := range instances {
		if data, err := inst.Engine().MarshalState(); err == nil {
			sqlWriter.SaveEngineState(symbols[i], cfg.Interval, data)
		}
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutCancel()
	metricsSrv.Stop(shutCtx)
	log.Info("shutdown complete")
}

// warmupInstance replays recent closed candles from the REST API so the
// indicator engine is ready before live streaming starts.
func warmupInstance(ctx context.Context, fc *feed.Client, inst *driver.Instance, symbol, interval string, limit int) error {
	candles, err := fc.GetHistoricalCandles(ctx, symbol, interval, limit)
	if err != nil {
		return err
	}
	fed, err := driver.ReplaySlice(ctx, inst, candles)
	if err != nil {
		return err
	}
	slog.Info("warmed up from history", "symbol", symbol, "candles", fed)
	return nil
}

// startPipeline wires feed to ring to driver for one symbol.
func startPipeline(ctx context.Context, cancel context.CancelFunc, log *slog.Logger,
	health *metrics.HealthStatus, prom *metrics.Metrics, inst *driver.Instance, fc *feed.Client,
	symbol, interval string, persistCh chan<- model.Candle) {

	ring := ringbuf.New(ringSize)
	candleCh := make(chan model.Candle, candleBufSize)

	go func() {
		if err := fc.SubscribeCandles(ctx, symbol, interval, candleCh); err != nil && ctx.Err() == nil {
			log.Error("candle stream lost permanently", "symbol", symbol, "err", err)
			cancel()
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case c := <-candleCh:
				health.SetWSConnected(true)
				health.SetLastCandleTime(c.TS)
				ring.Push(c)
				if c.Final {
					prom.CandleLag.Set(time.Since(c.TS).Seconds())
					select {
					case persistCh <- c:
					default:
					}
				}
			}
		}
	}()

	go inst.RunRing(ctx, ring)
}

// startSnapshotLoop checkpoints the indicator engine periodically.
func startSnapshotLoop(ctx context.Context, log *slog.Logger, prom *metrics.Metrics,
	w *sqlitestore.Writer, inst *driver.Instance, symbol, interval string, intervalS int) {

	if intervalS <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(time.Duration(intervalS) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				data, err := inst.Engine().MarshalState()
				if err != nil {
					log.Warn("engine state marshal failed", "symbol", symbol, "err", err)
					continue
				}
				if err := w.SaveEngineState(symbol, interval, data); err != nil {
					log.Warn("engine checkpoint failed", "symbol", symbol, "err", err)
					continue
				}
				prom.SnapshotSaves.Inc()
			}
		}
	}()
}

// fanOut dispatches events to the journal and sink channels without ever
// blocking the pipeline.
func fanOut(ctx context.Context, events <-chan model.Event, journal model.TradeJournal,
	prom *metrics.Metrics, log *slog.Logger, sinks ...chan model.Event) {

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}

			if ev.Trade != nil &&
				(ev.Kind == model.EventPositionClosed || ev.Kind == model.EventTakeProfitHit) {
				start := time.Now()
				if err := journal.RecordTrade(*ev.Trade); err != nil {
					log.Error("trade journal write failed", "err", err)
				} else {
					prom.JournalWriteDur.Observe(time.Since(start).Seconds())
				}
			}

			for _, sink := range sinks {
				select {
				case sink <- ev:
				default:
					prom.EventsDropped.Inc()
				}
			}
		}
	}
}

// publishEquityLoop pushes capital and drawdown snapshots to Redis.
func publishEquityLoop(ctx context.Context, pub *redisstore.Publisher, instances []*driver.Instance) {
	ticker := time.NewTicker(equityPublishInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, inst := range instances {
				rep := inst.Report(0)
				pub.PublishEquity(ctx, inst.Symbol(), rep.CurrentCapital, rep.MaxDrawdown)
			}
		}
	}
}

func drainEvents(ctx context.Context, ch <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
		}
	}
}

func buildNotifiers() []notification.Notifier {
	var ns []notification.Notifier
	if token, chat := os.Getenv("TELEGRAM_BOT_TOKEN"), os.Getenv("TELEGRAM_CHAT_ID"); token != "" && chat != "" {
		ns = append(ns, notification.NewTelegramNotifier(token, chat))
	}
	if url := os.Getenv("WEBHOOK_URL"); url != "" {
		ns = append(ns, notification.NewWebhookNotifier(url))
	}
	return ns
}

// Package metrics exposes Prometheus instrumentation and a health endpoint
// for the trading core pipeline.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trading core.
type Metrics struct {
	CandlesTotal        prometheus.Counter
	DuplicateCandles    prometheus.Counter
	InvalidCandles      prometheus.Counter
	TicksTotal          prometheus.Counter
	WSReconnects        prometheus.Counter
	RingBufOverflow     prometheus.Gauge
	EventsDropped       prometheus.Counter
	SignalsTotal        *prometheus.CounterVec // labels: symbol, direction
	TradesTotal         *prometheus.CounterVec // labels: symbol, exit_reason
	PipelineDur         prometheus.Histogram
	Equity              *prometheus.GaugeVec // labels: symbol
	Drawdown            *prometheus.GaugeVec // labels: symbol
	PositionState       *prometheus.GaugeVec // labels: symbol; 0=flat 1=long -1=short
	CandleLag           prometheus.Gauge
	JournalWriteDur     prometheus.Histogram
	RedisPublishDur     prometheus.Histogram
	SQLiteCommitDur     prometheus.Histogram
	SnapshotSaves       prometheus.Counter
	NotificationsFailed prometheus.Counter
}

// New registers and returns all metrics on the default registry.
func New() *Metrics {
	m := &Metrics{
		CandlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trendcore_candles_total",
			Help: "Total final candles processed by the pipeline",
		}),
		DuplicateCandles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trendcore_duplicate_candles_total",
			Help: "Candles ignored because their timestamp did not advance",
		}),
		InvalidCandles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trendcore_invalid_candles_total",
			Help: "Candles rejected by validation",
		}),
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trendcore_ticks_total",
			Help: "In-progress (non-final) candle updates checked for target hits",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trendcore_ws_reconnects_total",
			Help: "WebSocket feed reconnection attempts",
		}),
		RingBufOverflow: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trendcore_ringbuf_overflow_total",
			Help: "Cumulative candles dropped by the feed ring buffer",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trendcore_events_dropped_total",
			Help: "Events dropped because the event channel was full",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendcore_signals_total",
			Help: "Entry signals detected",
		}, []string{"symbol", "direction"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendcore_trades_total",
			Help: "Closed trades by exit reason",
		}, []string{"symbol", "exit_reason"}),
		PipelineDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trendcore_pipeline_duration_seconds",
			Help:    "Full per-candle pipeline latency (indicators, signal, position)",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),
		Equity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trendcore_equity",
			Help: "Current capital per instance",
		}, []string{"symbol"}),
		Drawdown: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trendcore_drawdown_pct",
			Help: "Current drawdown from the running equity peak, percent",
		}, []string{"symbol"}),
		PositionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trendcore_position_state",
			Help: "Open position state (0=flat, 1=long, -1=short)",
		}, []string{"symbol"}),
		CandleLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trendcore_candle_lag_seconds",
			Help: "Lag between candle close timestamp and processing time",
		}),
		JournalWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trendcore_journal_write_duration_seconds",
			Help:    "Trade journal write latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisPublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trendcore_redis_publish_duration_seconds",
			Help:    "Redis stream publish latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trendcore_sqlite_commit_duration_seconds",
			Help:    "SQLite candle batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		SnapshotSaves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trendcore_snapshot_saves_total",
			Help: "Engine state snapshots persisted",
		}),
		NotificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trendcore_notifications_failed_total",
			Help: "Notification deliveries that returned an error",
		}),
	}

	prometheus.MustRegister(
		m.CandlesTotal,
		m.DuplicateCandles,
		m.InvalidCandles,
		m.TicksTotal,
		m.WSReconnects,
		m.RingBufOverflow,
		m.EventsDropped,
		m.SignalsTotal,
		m.TradesTotal,
		m.PipelineDur,
		m.Equity,
		m.Drawdown,
		m.PositionState,
		m.CandleLag,
		m.JournalWriteDur,
		m.RedisPublishDur,
		m.SQLiteCommitDur,
		m.SnapshotSaves,
		m.NotificationsFailed,
	)

	return m
}

// HealthStatus tracks dependency health for the /healthz endpoint.
type HealthStatus struct {
	mu sync.RWMutex

	WSConnected    bool      `json:"ws_connected"`
	LastCandleTime time.Time `json:"last_candle_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	Symbols        []string  `json:"symbols"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a health status anchored at the current time.
func NewHealthStatus(symbols []string) *HealthStatus {
	return &HealthStatus{
		Symbols:   symbols,
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetWSConnected(v bool) {
	h.mu.Lock()
	h.WSConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCandleTime(t time.Time) {
	h.mu.Lock()
	h.LastCandleTime = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency plus connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency plus health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency probes until ctx is done.
// Nil clients are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	code := http.StatusOK
	if !h.WSConnected || !h.RedisConnected || !h.SQLiteOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	candleAge := ""
	if !h.LastCandleTime.IsZero() {
		candleAge = time.Since(h.LastCandleTime).Round(time.Millisecond).String()
	}

	resp := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		WSConnected     bool     `json:"ws_connected"`
		LastCandleTime  string   `json:"last_candle_time"`
		CandleAge       string   `json:"candle_age"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		Symbols         []string `json:"symbols"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          status,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		WSConnected:     h.WSConnected,
		LastCandleTime:  h.LastCandleTime.Format(time.RFC3339),
		CandleAge:       candleAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		Symbols:         h.Symbols,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(resp)
}

// Server exposes /metrics and /healthz over HTTP.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("metrics server failed", "err", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}

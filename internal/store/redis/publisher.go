// Package redis publishes pipeline events and equity snapshots to Redis
// Streams for dashboards and downstream consumers. Writes go through a
// circuit breaker so a Redis outage degrades to dropped events instead of
// stalling the trading pipeline.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"trendcore/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Stream trimming: roughly a week of hourly-candle events plus buffer.
	eventStreamMaxLen  = 10000
	equityStreamMaxLen = 10000
	defaultLatestTTL   = 30 * time.Minute

	breakerMaxFailures  = 5
	breakerResetTimeout = 10 * time.Second
)

// Config configures the Redis publisher.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher writes events and equity updates to Redis. It implements
// model.EventSink.
type Publisher struct {
	client *goredis.Client
	log    *slog.Logger
	cb     *CircuitBreaker

	// OnPublish, when set, receives the duration of each successful event
	// publish. Set before Run starts.
	OnPublish func(time.Duration)
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// New creates a Publisher and pings the server.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log := slog.Default().With("component", "redis")
	p := &Publisher{
		client: client,
		log:    log,
		cb:     NewCircuitBreaker(breakerMaxFailures, breakerResetTimeout),
	}
	p.cb.OnStateChange = func(from, to State) {
		log.Warn("circuit breaker state change", "from", from.String(), "to", to.String())
	}

	log.Info("connected", "addr", cfg.Addr)
	return p, nil
}

// Run consumes events until ctx is cancelled or eventCh is closed.
func (p *Publisher) Run(ctx context.Context, eventCh <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			p.publish(ctx, ev)
		}
	}
}

// publish writes one event: XADD to the per-symbol event stream, SET of the
// per-kind latest key, and PUBLISH for live subscribers, in one pipeline.
func (p *Publisher) publish(ctx context.Context, ev model.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("event marshal failed", "kind", ev.Kind, "err", err)
		return
	}
	payload := string(data)

	start := time.Now()
	err = p.cb.Execute(func() error {
		pipe := p.client.Pipeline()

		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: "events:" + ev.Symbol,
			MaxLen: eventStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": payload},
		})

		switch ev.Kind {
		case model.EventSignal:
			pipe.Set(ctx, "latest:signal:"+ev.Symbol, payload, defaultLatestTTL)
		case model.EventPositionOpened:
			pipe.Set(ctx, "latest:position:"+ev.Symbol, payload, defaultLatestTTL)
		case model.EventPositionClosed, model.EventTakeProfitHit:
			pipe.Set(ctx, "latest:trade:"+ev.Symbol, payload, defaultLatestTTL)
			pipe.Del(ctx, "latest:position:"+ev.Symbol)
		}

		pipe.Publish(ctx, "pub:events:"+ev.Symbol, payload)

		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil && err != ErrCircuitOpen {
		p.log.Error("event publish failed", "kind", ev.Kind, "symbol", ev.Symbol, "err", err)
		return
	}
	if err == nil && p.OnPublish != nil {
		p.OnPublish(time.Since(start))
	}
}

// PublishEquity records a capital snapshot on the per-symbol equity stream
// and refreshes the latest-equity key.
func (p *Publisher) PublishEquity(ctx context.Context, symbol string, capital, drawdownPct float64) {
	err := p.cb.Execute(func() error {
		pipe := p.client.Pipeline()
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: "equity:" + symbol,
			MaxLen: equityStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{
				"capital":  capital,
				"drawdown": drawdownPct,
				"ts":       time.Now().Unix(),
			},
		})
		pipe.Set(ctx, "latest:equity:"+symbol, capital, defaultLatestTTL)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil && err != ErrCircuitOpen {
		p.log.Error("equity publish failed", "symbol", symbol, "err", err)
	}
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}

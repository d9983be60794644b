package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"trendcore/internal/model"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
	backoffFactor  = 2

	// maxConsecutiveFailures ends the subscription with an error once the
	// stream cannot be re-established.
	maxConsecutiveFailures = 10

	readTimeout = 90 * time.Second
)

// streamHooks are optional stream callbacks. OnReconnect is called before
// every reconnection attempt and feeds the reconnect counter metric.
type streamHooks struct {
	OnReconnect func()
}

// Hooks exposes the optional stream callbacks for wiring.
func (c *Client) Hooks() *streamHooks { return &c.hooks }

// SubscribeCandles connects to the candle stream and forwards updates into
// out until ctx is cancelled. Both in-progress and final candles are
// delivered. Dropped connections are retried with capped exponential
// backoff; a non-nil return means retries were exhausted.
func (c *Client) SubscribeCandles(ctx context.Context, symbol, interval string, out chan<- model.Candle) error {
	backoff := initialBackoff
	failures := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		started := time.Now()
		err := c.streamOnce(ctx, symbol, interval, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// A session that held for a while counts as healthy: reset the
		// failure budget so a later blip starts backoff from scratch.
		if time.Since(started) > time.Minute {
			failures = 0
			backoff = initialBackoff
		}

		failures++
		if failures >= maxConsecutiveFailures {
			return fmt.Errorf("feed stream: giving up after %d attempts: %w", failures, err)
		}

		c.log.Warn("stream disconnected, reconnecting",
			"symbol", symbol, "attempt", failures, "backoff", backoff, "err", err)
		if c.hooks.OnReconnect != nil {
			c.hooks.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= backoffFactor
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// streamOnce runs one websocket session: dial, then read and forward
// candle messages until the connection drops or ctx ends.
func (c *Client) streamOnce(ctx context.Context, symbol, interval string, out chan<- model.Candle) error {
	url := c.cfg.WSURL + "/ws/candles?symbol=" + symbol + "&interval=" + interval

	header := make(map[string][]string)
	header["X-API-Key"] = []string{c.cfg.APIKey}
	if tok := c.FeedToken(); tok != "" {
		header["Authorization"] = []string{"Bearer " + tok}
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	c.log.Info("stream connected", "symbol", symbol, "interval", interval)

	// Drop the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var w wireCandle
		if err := json.Unmarshal(data, &w); err != nil {
			c.log.Warn("bad stream message", "err", err)
			continue
		}

		select {
		case out <- w.toModel(symbol, interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

package model

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Candle represents one OHLC bar for a single symbol and interval.
// Final distinguishes a closed bar from an in-progress update; only
// final candles advance indicator state.
type Candle struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"`
	TS       time.Time `json:"ts"` // bar open time (UTC)
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
	Final    bool      `json:"final"`
}

// Key returns a unique key for this candle's instrument: "symbol:interval".
func (c *Candle) Key() string {
	return c.Symbol + ":" + c.Interval
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// ValidationError reports a malformed candle rejected at ingestion.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid candle: %s %s", e.Field, e.Reason)
}

// Validate checks the candle for non-finite prices and impossible ranges.
// A rejected candle must not touch any downstream state.
func (c *Candle) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"open", c.Open},
		{"high", c.High},
		{"low", c.Low},
		{"close", c.Close},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return &ValidationError{Field: f.name, Reason: "is not finite"}
		}
		if f.v <= 0 {
			return &ValidationError{Field: f.name, Reason: "is not positive"}
		}
	}
	if c.High < c.Low {
		return &ValidationError{Field: "high", Reason: "below low"}
	}
	if c.Volume < 0 || math.IsNaN(c.Volume) {
		return &ValidationError{Field: "volume", Reason: "is negative or NaN"}
	}
	if c.TS.IsZero() {
		return &ValidationError{Field: "ts", Reason: "is zero"}
	}
	return nil
}

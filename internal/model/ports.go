package model

import "context"

// Collaborator port interfaces. These decouple the core pipeline from
// concrete market-data and storage implementations. Each implementation
// satisfies one or more.

// MarketDataSource supplies candles from an exchange or broker.
type MarketDataSource interface {
	// GetHistoricalCandles fetches up to limit closed candles for a symbol
	// and interval, oldest first.
	GetHistoricalCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)

	// SubscribeCandles streams candle updates into out until ctx is
	// cancelled. Both in-progress and final candles are delivered.
	// Reconnection with capped backoff happens inside the implementation;
	// a non-nil return means retries were exhausted.
	SubscribeCandles(ctx context.Context, symbol, interval string, out chan<- Candle) error
}

// CandleReader reads stored candle history for backtests.
type CandleReader interface {
	// ReadCandles returns candles for a symbol and interval after the given
	// Unix timestamp (0 = all), ordered by timestamp ascending.
	ReadCandles(symbol, interval string, afterTS int64) ([]Candle, error)

	// Close releases underlying resources.
	Close() error
}

// CandleWriter persists a stream of candles.
type CandleWriter interface {
	// Run reads candles from candleCh and writes them.
	// Blocks until ctx is cancelled or candleCh is closed.
	Run(ctx context.Context, candleCh <-chan Candle)

	// Close releases underlying resources.
	Close() error
}

// TradeJournal persists closed trades.
type TradeJournal interface {
	// RecordTrade appends one closed trade.
	RecordTrade(trade TradeRecord) error

	// Close releases underlying resources.
	Close() error
}

// EventSink consumes pipeline events.
type EventSink interface {
	// Run reads events until ctx is cancelled or eventCh is closed.
	Run(ctx context.Context, eventCh <-chan Event)
}

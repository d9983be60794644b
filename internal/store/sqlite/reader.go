package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"trendcore/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access for backtest replay and engine state
// restore. It implements model.CandleReader.
type Reader struct {
	db  *sql.DB
	log *slog.Logger
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log := slog.Default().With("component", "sqlite-reader")
	log.Info("opened database", "path", dbPath)
	return &Reader{db: db, log: log}, nil
}

// ReadCandles returns stored candles for one symbol/interval after the
// given Unix timestamp (0 = all), ordered by timestamp ascending.
func (r *Reader) ReadCandles(symbol, interval string, afterTS int64) ([]model.Candle, error) {
	rows, err := r.db.Query(`
		SELECT symbol, interval, ts, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND interval = ? AND ts > ?
		ORDER BY ts ASC
	`, symbol, interval, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		var tsUnix int64
		var volume sql.NullFloat64
		if err := rows.Scan(&c.Symbol, &c.Interval, &tsUnix, &c.Open, &c.High, &c.Low, &c.Close, &volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candle: %w", err)
		}
		c.TS = time.Unix(tsUnix, 0).UTC()
		c.Volume = volume.Float64
		c.Final = true
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// ReadTrades returns all journaled trades for one symbol, oldest first.
func (r *Reader) ReadTrades(symbol string) ([]model.TradeRecord, error) {
	rows, err := r.db.Query(`
		SELECT symbol, side, entry_price, exit_price, pnl, win, target_hit, exit_reason, opened_at, closed_at
		FROM trades
		WHERE symbol = ?
		ORDER BY closed_at ASC, id ASC
	`, symbol)
	if err != nil {
		return nil, fmt.Errorf("sqlite query trades: %w", err)
	}
	defer rows.Close()

	var trades []model.TradeRecord
	for rows.Next() {
		var t model.TradeRecord
		var side, reason string
		var win, targetHit int
		var openedAt, closedAt int64
		if err := rows.Scan(&t.Symbol, &side, &t.EntryPrice, &t.ExitPrice, &t.PnL,
			&win, &targetHit, &reason, &openedAt, &closedAt); err != nil {
			return nil, fmt.Errorf("sqlite scan trade: %w", err)
		}
		t.Side = model.Side(side)
		t.Win = win != 0
		t.TargetHit = targetHit != 0
		t.ExitReason = model.ExitReason(reason)
		t.OpenedAt = time.Unix(openedAt, 0).UTC()
		t.ClosedAt = time.Unix(closedAt, 0).UTC()
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ReadLatestEngineState loads the most recent engine checkpoint for one
// symbol/interval. Returns nil with no error when none exists.
func (r *Reader) ReadLatestEngineState(symbol, interval string) ([]byte, error) {
	var data string
	err := r.db.QueryRow(`
		SELECT data FROM engine_states
		WHERE symbol = ? AND interval = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, symbol, interval).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite read engine state: %w", err)
	}
	return []byte(data), nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}

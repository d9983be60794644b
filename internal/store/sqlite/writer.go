// Package sqlite persists candle history, closed trades, and engine state
// checkpoints in a single SQLite database (WAL mode, single writer).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"trendcore/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond

	// keptEngineStates bounds the checkpoint history per instance.
	keptEngineStates = 10
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // e.g. "data/trendcore.db"
}

// Writer is a single-goroutine SQLite writer with transaction batching for
// candles and direct writes for trades and engine states. It implements
// model.CandleWriter and model.TradeJournal.
type Writer struct {
	db  *sql.DB
	log *slog.Logger

	// OnCommit, when set, receives the duration of each committed candle
	// batch. Set before Run starts.
	OnCommit func(time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New opens the database, enables WAL mode, and creates the schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log := slog.Default().With("component", "sqlite")
	log.Info("opened database", "path", cfg.DBPath)
	return &Writer{db: db, log: log}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol   TEXT    NOT NULL,
			interval TEXT    NOT NULL,
			ts       INTEGER NOT NULL,
			open     REAL    NOT NULL,
			high     REAL    NOT NULL,
			low      REAL    NOT NULL,
			close    REAL    NOT NULL,
			volume   REAL,
			PRIMARY KEY (symbol, interval, ts)
		);

		CREATE TABLE IF NOT EXISTS trades (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol      TEXT    NOT NULL,
			side        TEXT    NOT NULL,
			entry_price REAL    NOT NULL,
			exit_price  REAL    NOT NULL,
			pnl         REAL    NOT NULL,
			win         INTEGER NOT NULL,
			target_hit  INTEGER NOT NULL,
			exit_reason TEXT    NOT NULL,
			opened_at   INTEGER NOT NULL,
			closed_at   INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS engine_states (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol     TEXT    NOT NULL,
			interval   TEXT    NOT NULL,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`)
	return err
}

// Run reads candles from candleCh and inserts them in batched transactions.
// Flushes every batchSize candles OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or candleCh is closed.
func (w *Writer) Run(ctx context.Context, candleCh <-chan model.Candle) {
	batch := make([]model.Candle, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertBatch(batch); err != nil {
			w.log.Error("batch insert failed", "err", err)
		} else {
			if w.OnCommit != nil {
				w.OnCommit(time.Since(start))
			}
			w.log.Debug("committed candle batch", "count", len(batch), "dur", time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case candle, ok := <-candleCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, candle)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertBatch inserts a batch of candles in a single transaction.
func (w *Writer) insertBatch(candles []model.Candle) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (symbol, interval, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.Exec(c.Symbol, c.Interval, c.TS.Unix(), c.Open, c.High, c.Low, c.Close, c.Volume)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// RecordTrade appends one closed trade to the journal.
func (w *Writer) RecordTrade(t model.TradeRecord) error {
	_, err := w.db.Exec(`
		INSERT INTO trades (symbol, side, entry_price, exit_price, pnl, win, target_hit, exit_reason, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.Symbol, string(t.Side), t.EntryPrice, t.ExitPrice, t.PnL,
		boolInt(t.Win), boolInt(t.TargetHit), string(t.ExitReason),
		t.OpenedAt.Unix(), t.ClosedAt.Unix())
	if err != nil {
		return fmt.Errorf("sqlite insert trade: %w", err)
	}
	return nil
}

// SaveEngineState stores a serialized engine checkpoint and prunes old ones.
func (w *Writer) SaveEngineState(symbol, interval string, data []byte) error {
	_, err := w.db.Exec(`INSERT INTO engine_states (symbol, interval, data) VALUES (?, ?, ?)`,
		symbol, interval, string(data))
	if err != nil {
		return fmt.Errorf("sqlite insert engine state: %w", err)
	}

	_, err = w.db.Exec(`
		DELETE FROM engine_states
		WHERE symbol = ? AND interval = ? AND id NOT IN (
			SELECT id FROM engine_states
			WHERE symbol = ? AND interval = ?
			ORDER BY created_at DESC, id DESC LIMIT ?
		)
	`, symbol, interval, symbol, interval, keptEngineStates)
	if err != nil {
		w.log.Warn("engine state prune failed", "err", err)
	}
	return nil
}

// GetLastTimestamp returns the newest stored candle timestamp for one
// symbol/interval, or 0 when empty.
func (w *Writer) GetLastTimestamp(symbol, interval string) (int64, error) {
	var ts sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(ts) FROM candles WHERE symbol = ? AND interval = ?`,
		symbol, interval,
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

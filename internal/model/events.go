package model

import "time"

// EventKind identifies what a pipeline event describes.
type EventKind string

const (
	EventSignal         EventKind = "SIGNAL"
	EventPositionOpened EventKind = "POSITION_OPENED"
	EventPositionClosed EventKind = "POSITION_CLOSED"
	EventTakeProfitHit  EventKind = "TAKE_PROFIT_HIT"
	EventError          EventKind = "ERROR"
)

// Event is a typed notification emitted by a driver instance. Sinks
// (stores, notifiers, metrics) consume events; the computational core
// never logs or calls out directly.
type Event struct {
	Kind   EventKind `json:"kind"`
	Symbol string    `json:"symbol"`
	Time   time.Time `json:"time"`

	// EventSignal
	Direction Side    `json:"direction,omitempty"`
	Price     float64 `json:"price,omitempty"`

	// EventPositionOpened
	Position *Position `json:"position,omitempty"`

	// EventPositionClosed / EventTakeProfitHit
	Trade *TradeRecord `json:"trade,omitempty"`

	// EventError
	Err string `json:"error,omitempty"`
}

package model

import "time"

// Side is the direction of a position or signal.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Long {
		return Short
	}
	return Long
}

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitTargetHit      ExitReason = "TARGET_HIT"
	ExitOpposingSignal ExitReason = "OPPOSING_SIGNAL"
	ExitManual         ExitReason = "MANUAL"
)

// Position is the single open position. At most one exists at a time.
// LiquidationPrice is informational only; nothing enforces it.
type Position struct {
	Symbol           string    `json:"symbol"`
	Side             Side      `json:"side"`
	EntryPrice       float64   `json:"entry_price"`
	ReferenceStop    float64   `json:"reference_stop"` // risk distance anchor, never an executable stop
	TargetPrice      float64   `json:"target_price"`
	RiskAmount       float64   `json:"risk_amount"`
	RewardAmount     float64   `json:"reward_amount"`
	LiquidationPrice float64   `json:"liquidation_price,omitempty"` // 0 when leverage is off
	OpenedAt         time.Time `json:"opened_at"`
}

// TradeRecord is an immutable record of one closed trade.
type TradeRecord struct {
	Symbol     string     `json:"symbol"`
	Side       Side       `json:"side"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	PnL        float64    `json:"pnl"`
	Win        bool       `json:"win"`
	TargetHit  bool       `json:"target_hit"`
	ExitReason ExitReason `json:"exit_reason"`
	OpenedAt   time.Time  `json:"opened_at"`
	ClosedAt   time.Time  `json:"closed_at"`
}

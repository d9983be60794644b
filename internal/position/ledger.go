package position

// Ledger is the capital and per-side outcome accounting for one instance.
// It is mutated only by the Manager, atomically with each trade-record
// append. TotalLoss is stored as a positive magnitude.
type Ledger struct {
	InitialCapital float64 `json:"initial_capital"`
	CurrentCapital float64 `json:"current_capital"`
	TotalPnL       float64 `json:"total_pnl"`
	TotalProfit    float64 `json:"total_profit"`
	TotalLoss      float64 `json:"total_loss"`
	TotalRisked    float64 `json:"total_risked"`

	LongWins    int `json:"long_wins"`
	LongLosses  int `json:"long_losses"`
	ShortWins   int `json:"short_wins"`
	ShortLosses int `json:"short_losses"`

	LongTargetHits  int `json:"long_target_hits"`
	ShortTargetHits int `json:"short_target_hits"`
}

// TradeCount returns the number of closed trades reflected in the ledger.
func (l *Ledger) TradeCount() int {
	return l.LongWins + l.LongLosses + l.ShortWins + l.ShortLosses
}

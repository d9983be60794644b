package indicator

import "math"

// TrailLine is a ratcheting ATR trailing-stop line. While price stays on one
// side of the line across consecutive bars the line only moves in the
// favorable direction (up under price in an uptrend, down above price in a
// downtrend). When price flips sides the line resets to close ∓ multiplier*atr.
//
// Two independent instances with different multipliers form the slow and
// fast lines of the engine.
type TrailLine struct {
	multiplier float64
	line       float64
	prevClose  float64
	count      int
}

// NewTrailLine creates a trailing line with the given ATR multiplier.
func NewTrailLine(multiplier float64) *TrailLine {
	return &TrailLine{multiplier: multiplier}
}

// Push feeds the next close and the current ATR, advancing the line.
func (t *TrailLine) Push(close, atr float64) {
	nl := t.multiplier * atr
	prev := t.line

	switch {
	case t.count > 0 && close > prev && t.prevClose > prev:
		// Uptrend held: ratchet up only
		t.line = math.Max(prev, close-nl)
	case t.count > 0 && close < prev && t.prevClose < prev:
		// Downtrend held: ratchet down only
		t.line = math.Min(prev, close+nl)
	case close > prev:
		// Flip to uptrend
		t.line = close - nl
	default:
		// Flip to downtrend
		t.line = close + nl
	}

	t.prevClose = close
	t.count++
}

// Value returns the current line level.
func (t *TrailLine) Value() float64 { return t.line }

// state serializes the line for checkpoint persistence.
func (t *TrailLine) state() TrailState {
	return TrailState{
		Multiplier: t.multiplier,
		Line:       t.line,
		PrevClose:  t.prevClose,
		Count:      t.count,
	}
}

// restore rebuilds the line from a checkpoint.
func (t *TrailLine) restore(st TrailState) {
	t.multiplier = st.Multiplier
	t.line = st.Line
	t.prevClose = st.PrevClose
	t.count = st.Count
}

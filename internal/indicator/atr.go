package indicator

import "math"

// ATR calculates Average True Range using Wilder's smoothing method.
// Update is O(1) per candle with no history scans.
//
// The first `period` true ranges are averaged as the bootstrap value,
// then atr = (atr*(period-1) + tr) / period.
type ATR struct {
	period    int
	count     int
	prevClose float64
	trSum     float64 // accumulates TRs during bootstrap
	current   float64
}

// NewATR creates a new ATR with the given period (typically 14).
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

// Push feeds the next bar's high/low/close and recalculates.
func (a *ATR) Push(high, low, close float64) {
	a.count++

	// On the very first candle there is no previous close: TR = high-low.
	tr := high - low
	if a.count > 1 {
		tr = math.Max(tr, math.Max(
			math.Abs(high-a.prevClose),
			math.Abs(low-a.prevClose),
		))
	}
	a.prevClose = close

	if a.count <= a.period {
		// Accumulation phase: build the initial simple average
		a.trSum += tr
		if a.count == a.period {
			a.current = a.trSum / float64(a.period)
		}
		return
	}

	// Wilder's smoothing
	p := float64(a.period)
	a.current = (a.current*(p-1) + tr) / p
}

// Value returns the current ATR. Returns 0 until Ready.
func (a *ATR) Value() float64 { return a.current }

// Ready returns true once `period` true ranges have been seen.
func (a *ATR) Ready() bool { return a.count >= a.period }

// state serializes the ATR for checkpoint persistence.
func (a *ATR) state() ATRState {
	return ATRState{
		Period:    a.period,
		Count:     a.count,
		PrevClose: a.prevClose,
		TRSum:     a.trSum,
		Current:   a.current,
	}
}

// restore rebuilds the ATR from a checkpoint.
func (a *ATR) restore(st ATRState) {
	a.period = st.Period
	a.count = st.Count
	a.prevClose = st.PrevClose
	a.trSum = st.TRSum
	a.current = st.Current
}

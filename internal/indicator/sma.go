package indicator

// SMA calculates a Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer for zero-allocation hot path.
type SMA struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	sum     float64
	current float64
}

// NewSMA creates a new SMA with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

// Push feeds the next value and recalculates in O(1).
func (s *SMA) Push(v float64) {
	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = v
	s.sum += v
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

// Value returns the current average. Returns 0 until Ready.
func (s *SMA) Value() float64 { return s.current }

// Ready returns true once a full window has been accumulated.
func (s *SMA) Ready() bool { return s.count >= s.period }

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = 0
	s.current = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}

// state serializes the SMA for checkpoint persistence.
func (s *SMA) state() SMAState {
	bufCopy := make([]float64, len(s.buf))
	copy(bufCopy, s.buf)
	return SMAState{
		Period:  s.period,
		Buf:     bufCopy,
		Idx:     s.idx,
		Count:   s.count,
		Sum:     s.sum,
		Current: s.current,
	}
}

// restore rebuilds the SMA from a checkpoint.
func (s *SMA) restore(st SMAState) {
	s.period = st.Period
	s.idx = st.Idx
	s.count = st.Count
	s.sum = st.Sum
	s.current = st.Current
	if len(st.Buf) > 0 {
		s.buf = make([]float64, len(st.Buf))
		copy(s.buf, st.Buf)
	} else {
		s.buf = make([]float64, st.Period)
	}
}

// Package signal detects directional entry signals from indicator snapshots.
//
// A long signal fires when the baseline crosses above the slow trailing
// stop, a short signal when it crosses below. The two conditions cannot
// hold on the same bar, so each update yields at most one signal.
package signal

import (
	"trendcore/internal/indicator"
	"trendcore/internal/model"
)

// Direction is the detected signal direction. Empty means no signal.
type Direction = model.Side

// Detect evaluates one indicator snapshot for a baseline/trailing-stop
// crossover. It is stateless: the snapshot carries the previous ready
// bar's values. Returns "", false while the engine is not ready or when
// no crossing occurred.
func Detect(s indicator.Snapshot) (Direction, bool) {
	if !s.Ready {
		return "", false
	}

	if s.PrevBaseline <= s.PrevTrailSlow && s.Baseline > s.TrailSlow {
		return model.Long, true
	}
	if s.PrevBaseline >= s.PrevTrailSlow && s.Baseline < s.TrailSlow {
		return model.Short, true
	}
	return "", false
}

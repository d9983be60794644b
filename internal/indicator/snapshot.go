package indicator

import "encoding/json"

// Serialized engine state for warm restarts. The schema version allows
// old checkpoints to be rejected rather than half-restored.

// SMAState holds the serialized state of one SMA instance.
type SMAState struct {
	Period  int       `json:"period"`
	Buf     []float64 `json:"buf,omitempty"`
	Idx     int       `json:"idx,omitempty"`
	Count   int       `json:"count"`
	Sum     float64   `json:"sum,omitempty"`
	Current float64   `json:"current"`
}

// ATRState holds the serialized state of the ATR.
type ATRState struct {
	Period    int     `json:"period"`
	Count     int     `json:"count"`
	PrevClose float64 `json:"prev_close"`
	TRSum     float64 `json:"tr_sum,omitempty"`
	Current   float64 `json:"current"`
}

// TrailState holds the serialized state of one trailing line.
type TrailState struct {
	Multiplier float64 `json:"multiplier"`
	Line       float64 `json:"line"`
	PrevClose  float64 `json:"prev_close"`
	Count      int     `json:"count"`
}

// EngineState is the full serialized state of an Engine.
type EngineState struct {
	Version int    `json:"version"`
	Config  Config `json:"config"`

	SMAClose SMAState `json:"sma_close"`
	SMAOpen  SMAState `json:"sma_open"`
	SMAHigh  SMAState `json:"sma_high"`
	SMALow   SMAState `json:"sma_low"`

	ATR       ATRState   `json:"atr"`
	TrailSlow TrailState `json:"trail_slow"`
	TrailFast TrailState `json:"trail_fast"`
	Scalp     SMAState   `json:"scalp"`

	Baseline      float64 `json:"baseline"`
	HasBaseline   bool    `json:"has_baseline"`
	PrevBaseline  float64 `json:"prev_baseline"`
	PrevTrailSlow float64 `json:"prev_trail_slow"`
}

const stateVersion = 1

// State captures the engine's full state for checkpoint persistence.
func (e *Engine) State() EngineState {
	return EngineState{
		Version:       stateVersion,
		Config:        e.cfg,
		SMAClose:      e.smaClose.state(),
		SMAOpen:       e.smaOpen.state(),
		SMAHigh:       e.smaHigh.state(),
		SMALow:        e.smaLow.state(),
		ATR:           e.atr.state(),
		TrailSlow:     e.trailSlow.state(),
		TrailFast:     e.trailFast.state(),
		Scalp:         e.scalp.state(),
		Baseline:      e.baseline,
		HasBaseline:   e.hasBaseline,
		PrevBaseline:  e.prevBaseline,
		PrevTrailSlow: e.prevTrailSlow,
	}
}

// MarshalState serializes the engine state to JSON.
func (e *Engine) MarshalState() ([]byte, error) {
	st := e.State()
	return json.Marshal(&st)
}

// RestoreEngine rebuilds an Engine from a checkpoint. A checkpoint whose
// config differs from cfg is ignored and a cold engine is returned, since
// restoring warmup state computed with other parameters would be wrong.
func RestoreEngine(cfg Config, st *EngineState) *Engine {
	e := NewEngine(cfg)
	if st == nil || st.Version != stateVersion || st.Config != cfg {
		return e
	}

	e.smaClose.restore(st.SMAClose)
	e.smaOpen.restore(st.SMAOpen)
	e.smaHigh.restore(st.SMAHigh)
	e.smaLow.restore(st.SMALow)
	e.atr.restore(st.ATR)
	e.trailSlow.restore(st.TrailSlow)
	e.trailFast.restore(st.TrailFast)
	e.scalp.restore(st.Scalp)
	e.baseline = st.Baseline
	e.hasBaseline = st.HasBaseline
	e.prevBaseline = st.PrevBaseline
	e.prevTrailSlow = st.PrevTrailSlow
	return e
}

// UnmarshalState deserializes a checkpoint produced by MarshalState.
func UnmarshalState(data []byte) (*EngineState, error) {
	var st EngineState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

package world

// WorldMetrics is a thread-safe read-only view of key world runtime
// signals. It is updated from the world loop goroutine and read from
// HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Players  int `json:"players"`
	Sessions int `json:"sessions"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	InputsApplied uint64 `json:"inputs_applied"`
	InputDrops    uint64 `json:"input_drops"`
	FramesSent    uint64 `json:"frames_sent"`

	// Scoped entries written across all frames this tick.
	ScopedEntries int `json:"scoped_entries"`
}

type QueueDepths struct {
	Join   int `json:"join"`
	Attach int `json:"attach"`
	Leave  int `json:"leave"`
	Admin  int `json:"admin"`

	// Sum of unconsumed commands across session input queues.
	Inputs int `json:"inputs"`
}

func (w *World) publishMetrics(tick uint64, scoped int, stepMS float64) {
	backlog := 0
	for _, s := range w.sessions {
		backlog += len(s.inputs)
	}
	w.metrics.Store(WorldMetrics{
		Tick:     tick,
		Players:  len(w.players),
		Sessions: len(w.sessions),
		QueueDepths: QueueDepths{
			Join:   len(w.join),
			Attach: len(w.attach),
			Leave:  len(w.leave),
			Admin:  len(w.admin),
			Inputs: backlog,
		},
		StepMS:        stepMS,
		InputsApplied: w.inputsApplied,
		InputDrops:    w.inputDrops.Load(),
		FramesSent:    w.framesSent,
		ScopedEntries: scoped,
	})
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

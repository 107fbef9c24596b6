package client

import (
	"github.com/nickandbro/slither-world-sub002/internal/protocol"
	"github.com/nickandbro/slither-world-sub002/internal/sphere"
)

type Outcome int

const (
	// OutcomeStale marks a snapshot whose ack regressed; nothing was
	// mutated.
	OutcomeStale Outcome = iota
	OutcomeNone
	OutcomeSoft
	OutcomeHard
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStale:
		return "stale"
	case OutcomeNone:
		return "none"
	case OutcomeSoft:
		return "soft"
	case OutcomeHard:
		return "hard"
	}
	return "unknown"
}

// While a lag spike is active corrections are expected to be larger, so
// the hard budget widens by this factor instead of spamming snaps.
const spikeHardBudgetMult = 2.0

type ReconcilerConfig struct {
	SoftDeg     float64
	HardDeg     float64
	BlendFrames int
}

type ReconcileResult struct {
	Outcome  Outcome
	ErrorDeg float64
	Pruned   int
	Replayed int

	// Predicted is the authoritative base with all still-pending inputs
	// replayed on top. Valid for every outcome except OutcomeStale.
	Predicted sphere.PlayerState
}

// Reconciler folds authoritative snapshots back into the locally
// predicted timeline: it advances the ack, prunes confirmed inputs,
// replays the rest, and classifies how far presentation has drifted.
type Reconciler struct {
	cfg    ReconcilerConfig
	moveP  sphere.Params
	tickDt float64

	ack      uint16
	ackValid bool

	diag *Registry
}

func NewReconciler(cfg ReconcilerConfig, moveP sphere.Params, tickDt float64, diag *Registry) *Reconciler {
	if cfg.BlendFrames < 1 {
		cfg.BlendFrames = 1
	}
	return &Reconciler{cfg: cfg, moveP: moveP, tickDt: tickDt, diag: diag}
}

// Ack returns the newest acknowledged input seq; ok is false until the
// first snapshot is accepted.
func (r *Reconciler) Ack() (uint16, bool) { return r.ack, r.ackValid }

// OnSnapshot processes the local player's entry of one STATE frame.
// displayedHead is the head currently presented to the renderer, which
// is what divergence is measured against.
func (r *Reconciler) OnSnapshot(auth sphere.PlayerState, ack uint16, seq *Sequencer, displayedHead sphere.Vec3, spikeActive bool, nowMs int64) ReconcileResult {
	if r.ackValid && !protocol.SeqNewerOrEqual(ack, r.ack) {
		if r.diag != nil {
			r.diag.EventF(nowMs, EventStaleSnapshot, "ack=%d have=%d", ack, r.ack)
		}
		return ReconcileResult{Outcome: OutcomeStale}
	}
	r.ack = ack
	r.ackValid = true

	pruned := seq.PruneAcked(ack)
	pending := seq.Pending()
	predicted := Predict(r.moveP, auth, pending, r.tickDt)

	res := ReconcileResult{
		ErrorDeg:  sphere.AngleDeg(predicted.Head, displayedHead),
		Pruned:    pruned,
		Replayed:  len(pending),
		Predicted: predicted,
	}
	if r.diag != nil {
		r.diag.RecordError(res.ErrorDeg)
	}

	hardDeg := r.cfg.HardDeg
	if spikeActive {
		hardDeg *= spikeHardBudgetMult
	}
	switch {
	case res.ErrorDeg < r.cfg.SoftDeg:
		res.Outcome = OutcomeNone
	case res.ErrorDeg < hardDeg:
		res.Outcome = OutcomeSoft
		if r.diag != nil {
			r.diag.RecordSoft(res.ErrorDeg)
		}
	default:
		res.Outcome = OutcomeHard
		if r.diag != nil {
			r.diag.RecordHard(res.ErrorDeg, nowMs)
		}
	}
	return res
}

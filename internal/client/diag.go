package client

import (
	"fmt"
	"sort"
)

// Diagnostic event codes. Everything the client records must use a code
// from this registry so dashboards and tests can match on it.
const (
	EventQueueOverflow    = "QUEUE_OVERFLOW"
	EventHardCorrection   = "HARD_CORRECTION"
	EventSpikeEnter       = "SPIKE_ENTER"
	EventSpikeExit        = "SPIKE_EXIT"
	EventStaleSnapshot    = "STALE_SNAPSHOT"
	EventNetTuningApplied = "NET_TUNING_APPLIED"
)

var knownEvents = map[string]struct{}{
	EventQueueOverflow:    {},
	EventHardCorrection:   {},
	EventSpikeEnter:       {},
	EventSpikeExit:        {},
	EventStaleSnapshot:    {},
	EventNetTuningApplied: {},
}

func IsKnownEvent(code string) bool {
	_, ok := knownEvents[code]
	return ok
}

// Plain counters (no event tail entry).
const (
	CounterInputsSent       = "inputs_sent"
	CounterInputsCoalesced  = "inputs_coalesced"
	CounterInputSendFailed  = "input_send_failed"
	CounterSnapshotsApplied = "snapshots_applied"
	CounterDecodeFailed     = "frames_decode_failed"
	CounterStaleSeq         = "snapshots_stale_seq"
	CounterInboxDropped     = "inbox_frames_dropped"
)

// DisabledReason explains why prediction fell back to rendering the
// authoritative position directly.
type DisabledReason string

const (
	DisabledNone     DisabledReason = "none"
	DisabledSpike    DisabledReason = "spike"
	DisabledDead     DisabledReason = "dead"
	DisabledNotReady DisabledReason = "not-ready"
)

// PredictionState is the reconciliation health record: reconcile-time
// divergence between the replayed and displayed head, correction counts,
// and whether prediction is currently running.
type PredictionState struct {
	ErrLastDeg float64 `json:"err_last_deg"`
	ErrP95Deg  float64 `json:"err_p95_deg"`
	ErrMaxDeg  float64 `json:"err_max_deg"`

	SoftCount uint64 `json:"soft_count"`
	HardCount uint64 `json:"hard_count"`

	LastCorrectionDeg float64        `json:"last_correction_deg"`
	DisabledReason    DisabledReason `json:"disabled_reason"`
}

// NetSummary mirrors the smoothing state machine for the query surface.
type NetSummary struct {
	State             string  `json:"state"`
	Cause             string  `json:"cause"`
	JitterMs          float64 `json:"jitter_ms"`
	PlayoutDelayTicks float64 `json:"playout_delay_ticks"`
	TuningRevision    uint64  `json:"tuning_revision"`
}

type Event struct {
	TimeMs int64  `json:"time_ms"`
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

// Report is the outward diagnostics document. It is a value copy; the
// registry's internal buffers are never exposed.
type Report struct {
	PlayerID     uint16            `json:"player_id"`
	Prediction   PredictionState   `json:"prediction"`
	PendingDepth int               `json:"pending_depth"`
	LatestAckSeq uint16            `json:"latest_ack_seq"`
	AckValid     bool              `json:"ack_valid"`
	Net          NetSummary        `json:"net"`
	Counters     map[string]uint64 `json:"counters"`
	Events       []Event           `json:"events"`
}

const (
	errWindowCap = 256
	eventTailCap = 64
)

// Registry collects per-session prediction diagnostics. It is owned by
// the session's step loop and is not safe for concurrent use; callers
// on other goroutines must go through Session.DiagSnapshot.
type Registry struct {
	errWindow []float64
	errMax    float64
	errLast   float64

	softCount uint64
	hardCount uint64
	lastCorr  float64
	reason    DisabledReason

	counters map[string]uint64
	events   []Event
}

func NewRegistry() *Registry {
	return &Registry{
		errWindow: make([]float64, 0, errWindowCap),
		counters:  map[string]uint64{},
		reason:    DisabledNotReady,
	}
}

// RecordError feeds one reconcile-time divergence sample in degrees.
func (r *Registry) RecordError(deg float64) {
	r.errLast = deg
	if deg > r.errMax {
		r.errMax = deg
	}
	if len(r.errWindow) == errWindowCap {
		copy(r.errWindow, r.errWindow[1:])
		r.errWindow = r.errWindow[:errWindowCap-1]
	}
	r.errWindow = append(r.errWindow, deg)
}

func (r *Registry) RecordSoft(deg float64) {
	r.softCount++
	r.lastCorr = deg
}

func (r *Registry) RecordHard(deg float64, nowMs int64) {
	r.hardCount++
	r.lastCorr = deg
	r.EventF(nowMs, EventHardCorrection, "magnitude_deg=%.2f", deg)
}

func (r *Registry) SetDisabledReason(reason DisabledReason) { r.reason = reason }

func (r *Registry) DisabledReason() DisabledReason { return r.reason }

func (r *Registry) Count(code string) { r.counters[code]++ }

func (r *Registry) CountN(code string, n uint64) { r.counters[code] += n }

func (r *Registry) CounterValue(code string) uint64 { return r.counters[code] }

func (r *Registry) EventF(nowMs int64, code, format string, args ...any) {
	r.Event(nowMs, code, fmt.Sprintf(format, args...))
}

// Event appends to the bounded tail, evicting the oldest entry.
func (r *Registry) Event(nowMs int64, code, detail string) {
	r.counters[code]++
	if len(r.events) == eventTailCap {
		copy(r.events, r.events[1:])
		r.events = r.events[:eventTailCap-1]
	}
	r.events = append(r.events, Event{TimeMs: nowMs, Code: code, Detail: detail})
}

// Prediction assembles the current PredictionState.
func (r *Registry) Prediction() PredictionState {
	return PredictionState{
		ErrLastDeg:        r.errLast,
		ErrP95Deg:         r.p95(),
		ErrMaxDeg:         r.errMax,
		SoftCount:         r.softCount,
		HardCount:         r.hardCount,
		LastCorrectionDeg: r.lastCorr,
		DisabledReason:    r.reason,
	}
}

// EventTail returns a copy of the newest events, oldest first.
func (r *Registry) EventTail() []Event {
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Registry) CountersCopy() map[string]uint64 {
	out := make(map[string]uint64, len(r.counters))
	for k, v := range r.counters {
		out[k] = v
	}
	return out
}

func (r *Registry) p95() float64 {
	if len(r.errWindow) == 0 {
		return 0
	}
	sorted := make([]float64, len(r.errWindow))
	copy(sorted, r.errWindow)
	sort.Float64s(sorted)
	idx := (len(sorted) * 95) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

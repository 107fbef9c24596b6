package client

import (
	"math"

	"github.com/nickandbro/slither-world-sub002/internal/protocol"
	"github.com/nickandbro/slither-world-sub002/internal/sphere"
)

type SmoothState int

const (
	SmoothNormal SmoothState = iota
	SmoothSpikeActive
	SmoothRecovering
)

func (s SmoothState) String() string {
	switch s {
	case SmoothNormal:
		return "normal"
	case SmoothSpikeActive:
		return "spike-active"
	case SmoothRecovering:
		return "recovering"
	}
	return "unknown"
}

// SpikeCause records what pushed the machine out of Normal.
type SpikeCause int

const (
	SpikeCauseNone SpikeCause = iota
	SpikeCauseArrivalGap
	SpikeCauseManual
)

func (c SpikeCause) String() string {
	switch c {
	case SpikeCauseNone:
		return "none"
	case SpikeCauseArrivalGap:
		return "arrival-gap"
	case SpikeCauseManual:
		return "manual"
	}
	return "unknown"
}

// EWMA weight for the arrival jitter estimate.
const jitterAlpha = 0.1

// Smoother watches snapshot arrival timing. It owns two outputs: the
// playout delay the interpolator renders behind, and the camera-facing
// lag-spike state machine. A spike holds the camera at its last stable
// orientation instead of chasing jittery corrections; recovery eases
// back to the live head over a configured duration.
type Smoother struct {
	net        protocol.NetParams
	rev        uint64
	tickMs     float64
	spikeGapMs float64

	jitterMs      float64
	lastArrivalMs int64
	haveArrival   bool

	state          SmoothState
	cause          SpikeCause
	recoverStartMs int64
	heldHead       sphere.Vec3
	haveHeld       bool

	diag *Registry
}

func NewSmoother(net protocol.NetParams, tickRateHz, spikeGapMs int, diag *Registry) *Smoother {
	if tickRateHz <= 0 {
		tickRateHz = 20
	}
	if spikeGapMs <= 0 {
		spikeGapMs = 250
	}
	return &Smoother{
		net:        net,
		tickMs:     1000 / float64(tickRateHz),
		spikeGapMs: float64(spikeGapMs),
		diag:       diag,
	}
}

// ApplyTuning installs a revised Net section mid-session. Revisions are
// recorded so tests and dashboards can confirm an override took effect.
func (s *Smoother) ApplyTuning(net protocol.NetParams, rev uint64, nowMs int64) {
	s.net = net
	s.rev = rev
	if s.diag != nil {
		s.diag.EventF(nowMs, EventNetTuningApplied, "revision=%d", rev)
	}
}

// OnArrival feeds one snapshot arrival into the jitter estimate and
// flips an active spike into recovery.
func (s *Smoother) OnArrival(nowMs int64) {
	if s.haveArrival {
		gap := float64(nowMs - s.lastArrivalMs)
		dev := math.Abs(gap - s.tickMs)
		s.jitterMs += jitterAlpha * (dev - s.jitterMs)
	}
	s.lastArrivalMs = nowMs
	s.haveArrival = true

	// Manual holds are released by the caller, not by traffic resuming.
	if s.state == SmoothSpikeActive && s.cause != SpikeCauseManual {
		s.beginRecovery(nowMs)
	}
}

// ForceHold enters the hold state without an arrival gap (admin/test
// forced). It stays active until ReleaseHold.
func (s *Smoother) ForceHold(nowMs int64, liveHead sphere.Vec3) {
	if s.state == SmoothSpikeActive {
		return
	}
	if s.state == SmoothRecovering {
		s.heldHead = s.CameraHead(nowMs, liveHead)
		s.haveHeld = true
	}
	s.enterSpikeWithCause(nowMs, 0, liveHead, SpikeCauseManual)
}

// ReleaseHold ends a manual hold and starts the eased recovery.
func (s *Smoother) ReleaseHold(nowMs int64) {
	if s.state != SmoothSpikeActive || s.cause != SpikeCauseManual {
		return
	}
	s.beginRecovery(nowMs)
}

func (s *Smoother) beginRecovery(nowMs int64) {
	s.state = SmoothRecovering
	s.recoverStartMs = nowMs
	if s.diag != nil {
		s.diag.Event(nowMs, EventSpikeExit, "")
	}
}

// Step runs the per-frame state transitions. liveHead is the head the
// renderer would show if no hold were in effect.
func (s *Smoother) Step(nowMs int64, liveHead sphere.Vec3) {
	gapMs := float64(nowMs - s.lastArrivalMs)
	switch s.state {
	case SmoothNormal:
		if s.haveArrival && gapMs > s.spikeGapMs {
			s.enterSpike(nowMs, gapMs, liveHead)
			return
		}
		// Track the last stable orientation so a spike can hold it.
		s.heldHead = liveHead
		s.haveHeld = true
	case SmoothSpikeActive:
		// The hold drifts toward truth at a crawl so a long spike does
		// not freeze the camera on an arbitrarily old orientation.
		if s.net.CameraSpikeFollowRate > 0 {
			s.heldHead = sphere.Slerp(s.heldHead, liveHead, s.net.CameraSpikeFollowRate)
		}
	case SmoothRecovering:
		if s.haveArrival && gapMs > s.spikeGapMs {
			// Re-spiking mid-blend holds the camera where it currently
			// is, not back at the pre-spike orientation.
			s.heldHead = s.CameraHead(nowMs, liveHead)
			s.enterSpike(nowMs, gapMs, liveHead)
			return
		}
		if nowMs-s.recoverStartMs >= int64(s.net.CameraRecoveryMs) {
			s.state = SmoothNormal
			s.cause = SpikeCauseNone
			s.heldHead = liveHead
		}
	}
}

func (s *Smoother) enterSpike(nowMs int64, gapMs float64, hold sphere.Vec3) {
	s.enterSpikeWithCause(nowMs, gapMs, hold, SpikeCauseArrivalGap)
}

func (s *Smoother) enterSpikeWithCause(nowMs int64, gapMs float64, hold sphere.Vec3, cause SpikeCause) {
	s.state = SmoothSpikeActive
	s.cause = cause
	if s.haveHeld {
		// Keep the pre-spike stable orientation when we have one.
		hold = s.heldHead
	}
	s.heldHead = hold
	s.haveHeld = true
	if s.diag != nil {
		s.diag.EventF(nowMs, EventSpikeEnter, "cause=%s gap_ms=%.0f", cause, gapMs)
	}
}

// CameraHead maps the live head through the hold/recovery behavior.
func (s *Smoother) CameraHead(nowMs int64, liveHead sphere.Vec3) sphere.Vec3 {
	switch s.state {
	case SmoothSpikeActive:
		return s.heldHead
	case SmoothRecovering:
		d := float64(s.net.CameraRecoveryMs)
		if d <= 0 {
			return liveHead
		}
		t := float64(nowMs-s.recoverStartMs) / d
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
		return sphere.Slerp(s.heldHead, liveHead, smoothstep(t))
	default:
		return liveHead
	}
}

// PlayoutDelayTicks derives the interpolation holdback from measured
// jitter: clamp(base + mult*jitterTicks, min, max).
func (s *Smoother) PlayoutDelayTicks() float64 {
	d := s.net.BaseDelayTicks + s.net.JitterDelayMultiplier*(s.jitterMs/s.tickMs)
	if d < s.net.MinDelayTicks {
		d = s.net.MinDelayTicks
	}
	if d > s.net.MaxDelayTicks {
		d = s.net.MaxDelayTicks
	}
	return d
}

func (s *Smoother) PlayoutDelayMs() float64 { return s.PlayoutDelayTicks() * s.tickMs }

func (s *Smoother) State() SmoothState { return s.state }

// Cause reports why the machine left Normal; SpikeCauseNone once it has
// fully recovered.
func (s *Smoother) Cause() SpikeCause { return s.cause }

func (s *Smoother) JitterMs() float64 { return s.jitterMs }

func (s *Smoother) TuningRevision() uint64 { return s.rev }

// StaleFor reports how long snapshots have been absent; false before
// the first arrival.
func (s *Smoother) StaleFor(nowMs int64) (float64, bool) {
	if !s.haveArrival {
		return 0, false
	}
	return float64(nowMs - s.lastArrivalMs), true
}

func (s *Smoother) Summary() NetSummary {
	return NetSummary{
		State:             s.state.String(),
		Cause:             s.cause.String(),
		JitterMs:          s.jitterMs,
		PlayoutDelayTicks: s.PlayoutDelayTicks(),
		TuningRevision:    s.rev,
	}
}

func smoothstep(t float64) float64 { return t * t * (3 - 2*t) }

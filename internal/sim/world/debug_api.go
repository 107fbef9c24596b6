package world

import "github.com/nickandbro/slither-world-sub002/internal/sphere"

// Debug accessors used by tests and offline tooling that drive the
// world through StepOnce. They are NOT safe to call concurrently with
// Run(); callers must own the world on a single goroutine.

func (w *World) DebugPlayer(id uint16) (Player, bool) {
	p := w.players[id]
	if p == nil {
		return Player{}, false
	}
	return *p, true
}

func (w *World) DebugPlayerIDs() []uint16 {
	out := make([]uint16, len(w.order))
	copy(out, w.order)
	return out
}

func (w *World) DebugSessionCount() int { return len(w.sessions) }

func (w *World) DebugStateDigest() string { return w.stateDigest(w.tick.Load()) }

// DebugAttach runs the attach path the live loop serves between ticks.
func (w *World) DebugAttach(req AttachRequest, nowMs int64) {
	w.handleAttach(req, nowMs)
}

// DebugSetPose teleports a player, renormalizing so the pose stays on
// the sphere with a tangent heading.
func (w *World) DebugSetPose(id uint16, head, heading sphere.Vec3) bool {
	p := w.players[id]
	if p == nil {
		return false
	}
	head = head.Normalize()
	if t, ok := sphere.Tangent(head, heading); ok {
		p.State.Head = head
		p.State.Heading = t
		return true
	}
	return false
}

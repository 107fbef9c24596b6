package sphere

import (
	"github.com/nickandbro/slither-world-sub002/internal/protocol"
)

// Params are the movement constants shared by the authoritative stepper
// and the client-side predictor. Both sides must hold identical values
// or replayed prediction diverges from the server.
type Params struct {
	TurnRateRad   float64
	BaseSpeedRad  float64
	BoostSpeedMul float64
}

// PlayerState is the minimal per-player kinematic state. Head is a unit
// position on the sphere, Heading a unit tangent at Head.
type PlayerState struct {
	Head     Vec3
	Heading  Vec3
	Alive    bool
	Boosting bool
}

// Advance integrates exactly one input command over a fixed dt and
// returns the new state. It is a pure function of its arguments: the
// server applies it per consumed command and the predictor replays it
// per pending command, so every operation in here must stay
// deterministic across both call sites.
func Advance(p Params, st PlayerState, cmd protocol.InputCommand, dt float64) PlayerState {
	if !st.Alive {
		return st
	}
	st.Boosting = cmd.Boost
	if cmd.HasAxis {
		if want, ok := Tangent(st.Head, FromF32(cmd.Axis)); ok {
			st.Heading = turnToward(st.Head, st.Heading, want, p.TurnRateRad*dt)
		}
	}
	arc := p.BaseSpeedRad * dt
	if st.Boosting {
		arc *= p.BoostSpeedMul
	}
	if axis := st.Head.Cross(st.Heading); axis.Len() > 1e-12 {
		axis = axis.Normalize()
		st.Head = RotateAbout(st.Head, axis, arc)
		st.Heading = RotateAbout(st.Heading, axis, arc)
	}
	// Renormalize so long input chains cannot drift off the sphere.
	st.Head = st.Head.Normalize()
	if h, ok := Tangent(st.Head, st.Heading); ok {
		st.Heading = h
	}
	return st
}

// turnToward rotates heading toward want within the tangent plane at
// head, moving at most maxRad.
func turnToward(head, heading, want Vec3, maxRad float64) Vec3 {
	ang := Angle(heading, want)
	if ang < 1e-12 {
		return heading
	}
	if ang > maxRad {
		axis := heading.Cross(want)
		if axis.Len() < 1e-12 {
			// Directly opposed; pivot around the head axis.
			axis = head
		}
		return RotateAbout(heading, axis.Normalize(), maxRad).Normalize()
	}
	return want
}

package client

import (
	"github.com/nickandbro/slither-world-sub002/internal/protocol"
	"github.com/nickandbro/slither-world-sub002/internal/sphere"
)

// Predict applies ordered inputs to a base state with the same
// integrator the server runs, one fixed tick per command. It is pure:
// identical arguments always produce an identical state, which is what
// makes post-snapshot replay equivalent to the original prediction.
func Predict(p sphere.Params, base sphere.PlayerState, inputs []protocol.InputCommand, dt float64) sphere.PlayerState {
	st := base
	for _, cmd := range inputs {
		st = sphere.Advance(p, st, cmd, dt)
	}
	return st
}

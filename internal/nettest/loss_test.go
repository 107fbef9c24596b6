package nettest

import (
	"testing"

	"github.com/nickandbro/slither-world-sub002/internal/sim/tuning"
)

// Dropping a burst of inputs makes the authoritative snake fall behind
// the prediction; the divergence must surface as a bounded correction
// and then wash out completely once the link is clean again.
func TestInputLoss_BoundedCorrectionAndReconverge(t *testing.T) {
	lostBurst := func(sendMs int64, idx int) bool {
		return idx >= 40 && idx < 48
	}
	l := NewLink(Opts{Tuning: tuning.Defaults(), Name: "loss", LossUp: lostBurst})

	for tick := 0; tick < 140; tick++ {
		l.Steer(steerAt(tick), false)
		l.Tick()
	}

	rep := l.Session().DiagSnapshot()
	if rep.Prediction.SoftCount+rep.Prediction.HardCount == 0 {
		t.Fatalf("dropping a burst of inputs caused no corrections")
	}
	if rep.Prediction.ErrLastDeg > 1 {
		t.Fatalf("did not reconverge: last error %.3f deg", rep.Prediction.ErrLastDeg)
	}
	if rep.PendingDepth > 4 {
		t.Fatalf("pending did not drain: %d", rep.PendingDepth)
	}
	assertNoOverflow(t, rep)
}

package nettest

import (
	"testing"

	"github.com/nickandbro/slither-world-sub002/internal/client"
	"github.com/nickandbro/slither-world-sub002/internal/sim/tuning"
	"github.com/nickandbro/slither-world-sub002/internal/sphere"
)

// A 400 ms hole in the downstream snapshot flow must trip the lag-spike
// machine: prediction pauses, the camera holds, and when traffic resumes
// the camera eases back instead of snapping.
func TestArrivalGapSpike_EnterHoldRecover(t *testing.T) {
	gapStart := linkEpochMs + 60*50
	const gapLenMs = 400
	holdBack := func(sendMs int64, idx int) int64 {
		if sendMs >= gapStart && sendMs < gapStart+gapLenMs {
			return gapStart + gapLenMs - sendMs
		}
		return 0
	}
	l := NewLink(Opts{Tuning: tuning.Defaults(), Name: "spike", Down: holdBack})

	sawSpike := false
	resumeGapDeg := -1.0
	prevState := ""
	for tick := 0; tick < 120; tick++ {
		l.Steer(steerAt(tick), false)
		pose := l.Tick()
		rep := l.Session().DiagSnapshot()

		if rep.Net.State == "spike-active" {
			sawSpike = true
			if rep.Net.Cause != "arrival-gap" {
				t.Fatalf("spike cause = %q, want arrival-gap", rep.Net.Cause)
			}
			if rep.Prediction.DisabledReason != client.DisabledSpike {
				t.Fatalf("prediction enabled during spike: %s", rep.Prediction.DisabledReason)
			}
		}
		if prevState == "spike-active" && rep.Net.State == "recovering" && resumeGapDeg < 0 {
			cam := l.Session().CameraHead(l.Now())
			resumeGapDeg = sphere.AngleDeg(cam, pose.Head)
		}
		prevState = rep.Net.State
	}

	if !sawSpike {
		t.Fatalf("gap never tripped the spike state")
	}
	if resumeGapDeg < 1 {
		t.Fatalf("camera did not hold through the spike: resume gap %.3f deg", resumeGapDeg)
	}

	rep := l.Session().DiagSnapshot()
	if rep.Net.State != "normal" {
		t.Fatalf("state after recovery = %q, want normal", rep.Net.State)
	}
	if rep.Net.Cause != "none" {
		t.Fatalf("cause after recovery = %q, want none", rep.Net.Cause)
	}
	assertEvent(t, rep, client.EventSpikeEnter)
	assertEvent(t, rep, client.EventSpikeExit)

	l.Steer(steerAt(120), false)
	pose := l.Tick()
	cam := l.Session().CameraHead(l.Now())
	if deg := sphere.AngleDeg(cam, pose.Head); deg > 0.5 {
		t.Fatalf("camera still %.3f deg off the live head after recovery", deg)
	}
}

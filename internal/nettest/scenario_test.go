package nettest

import (
	"math"
	"testing"

	"github.com/nickandbro/slither-world-sub002/internal/client"
	"github.com/nickandbro/slither-world-sub002/internal/sim/tuning"
)

// steerAt is the deterministic pointer path the scenarios share: a target
// direction swinging smoothly around the sphere, well inside the turn
// rate so the snake tracks it closely.
func steerAt(tick int) [3]float32 {
	t := float64(tick)
	theta := 0.35 + 0.03*t
	phi := 0.25 * math.Sin(t/17)
	x := math.Cos(theta) * math.Cos(phi)
	y := math.Sin(theta) * math.Cos(phi)
	z := math.Sin(phi)
	return [3]float32{float32(x), float32(y), float32(z)}
}

// Two boost windows of ~800 ms each at the 20 Hz default rate.
func boostAt(tick int) bool {
	return (tick >= 20 && tick < 36) || (tick >= 60 && tick < 76)
}

func assertNoOverflow(t *testing.T, rep client.Report) {
	t.Helper()
	for _, ev := range rep.Events {
		if ev.Code == client.EventQueueOverflow {
			t.Fatalf("queue overflow at %dms: %s", ev.TimeMs, ev.Detail)
		}
	}
}

func assertEvent(t *testing.T, rep client.Report, code string) {
	t.Helper()
	for _, ev := range rep.Events {
		if ev.Code == code {
			return
		}
	}
	t.Fatalf("no %s event recorded", code)
}

func TestScenarioA_CleanLink(t *testing.T) {
	l := NewLink(Opts{Tuning: tuning.Defaults(), Name: "scenario-a"})

	// 5 s at 20 Hz.
	for tick := 0; tick < 100; tick++ {
		l.Steer(steerAt(tick), boostAt(tick))
		l.Tick()
	}

	rep := l.Session().DiagSnapshot()
	if rep.Prediction.ErrP95Deg > 6 {
		t.Fatalf("p95 head error = %.3f deg, budget 6", rep.Prediction.ErrP95Deg)
	}
	if rep.Prediction.HardCount > 8 {
		t.Fatalf("hard corrections = %d, budget 8", rep.Prediction.HardCount)
	}
	if l.MaxPendingDepth() > 40 {
		t.Fatalf("max pending depth = %d, budget 40", l.MaxPendingDepth())
	}
	assertNoOverflow(t, rep)
	if rep.Counters[client.CounterInputsSent] == 0 {
		t.Fatalf("no inputs sent")
	}
	if rep.Counters[client.CounterSnapshotsApplied] == 0 {
		t.Fatalf("no snapshots applied")
	}
}

func TestScenarioB_MidRunRetune(t *testing.T) {
	l := NewLink(Opts{Tuning: tuning.Defaults(), Name: "scenario-b"})

	override := tuning.Defaults().NetParams()
	override.BaseDelayTicks = 1.2
	override.MinDelayTicks = 1.1
	override.JitterDelayMultiplier = 0.6

	// ~6.75 s; the override lands mid-run.
	const total = 135
	for tick := 0; tick < total; tick++ {
		if tick == total/2 {
			l.Session().ApplyNetParams(override, 2, l.Now())
		}
		l.Steer(steerAt(tick), boostAt(tick))
		l.Tick()
	}

	rep := l.Session().DiagSnapshot()
	if rep.Net.TuningRevision != 2 {
		t.Fatalf("tuning revision = %d, want 2", rep.Net.TuningRevision)
	}
	assertEvent(t, rep, client.EventNetTuningApplied)
	if rep.Prediction.HardCount > 14 {
		t.Fatalf("hard corrections = %d, budget 14", rep.Prediction.HardCount)
	}
	if l.MaxPendingDepth() > 70 {
		t.Fatalf("max pending depth = %d, budget 70", l.MaxPendingDepth())
	}
	assertNoOverflow(t, rep)

	// The raised floor is visible in the playout delay immediately.
	if rep.Net.PlayoutDelayTicks < override.MinDelayTicks {
		t.Fatalf("playout delay = %.2f ticks, floor %.2f", rep.Net.PlayoutDelayTicks, override.MinDelayTicks)
	}
}

package client

import (
	"math"
	"testing"

	"github.com/nickandbro/slither-world-sub002/internal/protocol"
	"github.com/nickandbro/slither-world-sub002/internal/sphere"
)

func testMoveParams() sphere.Params {
	const degToRad = math.Pi / 180
	return sphere.Params{
		TurnRateRad:   220 * degToRad,
		BaseSpeedRad:  50 * degToRad,
		BoostSpeedMul: 1.6,
	}
}

func testBaseState() sphere.PlayerState {
	return sphere.PlayerState{
		Head:    sphere.Vec3{X: 1},
		Heading: sphere.Vec3{Y: 1},
		Alive:   true,
	}
}

func rotDeg(v, axis sphere.Vec3, deg float64) sphere.Vec3 {
	return sphere.RotateAbout(v, axis, deg*math.Pi/180)
}

func TestPredict_MatchesTickByTickAdvance(t *testing.T) {
	p := testMoveParams()
	const dt = 0.05
	base := testBaseState()

	inputs := []protocol.InputCommand{
		{Seq: 1, HasAxis: true, Axis: [3]float32{0, 1, 0}},
		{Seq: 2, HasAxis: true, Axis: [3]float32{0, 0.5, 0.5}, Boost: true},
		{Seq: 3},
		{Seq: 4, HasAxis: true, Axis: [3]float32{0, 0, 1}},
	}

	want := base
	for _, cmd := range inputs {
		want = sphere.Advance(p, want, cmd, dt)
	}
	got := Predict(p, base, inputs, dt)

	if got != want {
		t.Fatalf("Predict diverged from sequential Advance:\n got %+v\nwant %+v", got, want)
	}
}

func TestPredict_EmptyInputsReturnsBase(t *testing.T) {
	p := testMoveParams()
	base := testBaseState()

	if got := Predict(p, base, nil, 0.05); got != base {
		t.Fatalf("Predict with no inputs moved the state: %+v", got)
	}
}

func TestPredict_SameInputsSameResult(t *testing.T) {
	p := testMoveParams()
	base := testBaseState()
	inputs := []protocol.InputCommand{
		{Seq: 1, HasAxis: true, Axis: [3]float32{0.2, 0.9, 0}},
		{Seq: 2, HasAxis: true, Axis: [3]float32{0.2, 0.9, 0}, Boost: true},
		{Seq: 3, HasAxis: true, Axis: [3]float32{-0.4, 0.8, 0.1}},
	}

	a := Predict(p, base, inputs, 0.05)
	b := Predict(p, base, inputs, 0.05)
	if a != b {
		t.Fatalf("two replays of identical inputs differ:\n a %+v\n b %+v", a, b)
	}
}

func TestPredict_DoesNotMutateBaseOrInputs(t *testing.T) {
	p := testMoveParams()
	base := testBaseState()
	inputs := []protocol.InputCommand{
		{Seq: 1, HasAxis: true, Axis: [3]float32{0, 1, 0}, Boost: true},
	}
	inputCopy := inputs[0]

	_ = Predict(p, base, inputs, 0.05)

	if base != testBaseState() {
		t.Fatalf("base state mutated: %+v", base)
	}
	if inputs[0] != inputCopy {
		t.Fatalf("input command mutated: %+v", inputs[0])
	}
}

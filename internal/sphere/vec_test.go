package sphere

import (
	"math"
	"testing"
)

func TestRotateAboutQuarterTurn(t *testing.T) {
	got := RotateAbout(Vec3{1, 0, 0}, Vec3{0, 0, 1}, math.Pi/2)
	want := Vec3{0, 1, 0}
	if got.Sub(want).Len() > 1e-12 {
		t.Fatalf("quarter turn: got %+v", got)
	}
}

func TestAngleClampsNoise(t *testing.T) {
	v := Vec3{0.30000000000000004, 0.7, -0.2}.Normalize()
	if a := Angle(v, v); a != 0 {
		t.Fatalf("self angle: got %v", a)
	}
	if a := AngleDeg(Vec3{1, 0, 0}, Vec3{0, 1, 0}); math.Abs(a-90) > 1e-9 {
		t.Fatalf("orthogonal angle: got %v", a)
	}
}

func TestSlerpMidpoint(t *testing.T) {
	a := Vec3{1, 0, 0}
	b := Vec3{0, 1, 0}
	mid := Slerp(a, b, 0.5)
	if math.Abs(mid.Len()-1) > 1e-12 {
		t.Fatalf("midpoint not unit: %v", mid.Len())
	}
	if math.Abs(Angle(a, mid)-Angle(mid, b)) > 1e-9 {
		t.Fatalf("midpoint not equidistant")
	}
	if Slerp(a, b, 0) != a || Slerp(a, b, 1) != b {
		t.Fatalf("endpoints not preserved")
	}
}

func TestTangentRejectsParallel(t *testing.T) {
	p := Vec3{0, 0, 1}
	if _, ok := Tangent(p, Vec3{0, 0, -3}); ok {
		t.Fatalf("parallel direction should have no tangent")
	}
	tan, ok := Tangent(p, Vec3{1, 0, 0.5})
	if !ok {
		t.Fatalf("expected tangent")
	}
	if math.Abs(tan.Dot(p)) > 1e-12 || math.Abs(tan.Len()-1) > 1e-12 {
		t.Fatalf("tangent not unit or not orthogonal: %+v", tan)
	}
}

package worldtest

import (
	"math"
	"testing"

	world "github.com/nickandbro/slither-world-sub002/internal/sim/world"
	"github.com/nickandbro/slither-world-sub002/internal/sphere"
)

func poseAt(deg float64) (head, heading sphere.Vec3) {
	rad := deg * math.Pi / 180
	head = sphere.Vec3{X: math.Sin(rad), Y: 0, Z: math.Cos(rad)}
	return head, sphere.Vec3{Y: 1}
}

func TestScope_RadiusAndNearestFirst(t *testing.T) {
	cfg := testConfig()
	cfg.ScopeRadiusDeg = 90
	h := NewHarness(t, cfg, "self")
	a := h.DefaultID
	b := h.Join("near")
	c := h.Join("mid")
	d := h.Join("far")

	set := func(id uint16, deg float64) {
		head, heading := poseAt(deg)
		if !h.W.DebugSetPose(id, head, heading) {
			t.Fatalf("set pose %d", id)
		}
	}
	set(a, 0)
	set(b, 30)
	set(c, 60)
	set(d, 150)

	h.Step()
	f := h.LastState(a)

	if f.TotalPlayers != 4 {
		t.Fatalf("total players: got %d want 4", f.TotalPlayers)
	}
	if len(f.Players) != 3 {
		t.Fatalf("scoped entries: got %d want 3 (far player excluded)", len(f.Players))
	}
	if f.Players[0].ID != a {
		t.Fatalf("first entry must be self, got id %d", f.Players[0].ID)
	}
	if f.Players[1].ID != b || f.Players[2].ID != c {
		t.Fatalf("remotes not nearest-first: %d,%d", f.Players[1].ID, f.Players[2].ID)
	}
	for _, e := range f.Players {
		if e.ID == d {
			t.Fatalf("out-of-radius player leaked into scope")
		}
	}
}

func TestScope_SelfExactRemotesQuantized(t *testing.T) {
	cfg := testConfig()
	cfg.QuantizeVectors = true
	h := NewHarness(t, cfg, "self")
	a := h.DefaultID
	b := h.Join("other")

	headA, hdgA := poseAt(0)
	headB, hdgB := poseAt(30)
	h.W.DebugSetPose(a, headA, hdgA)
	h.W.DebugSetPose(b, headB, hdgB)

	h.Step()
	f := h.LastState(a)
	if len(f.Players) != 2 {
		t.Fatalf("scoped entries: got %d", len(f.Players))
	}

	self := f.Players[0]
	if self.Quantized {
		t.Fatalf("self entry must not be quantized")
	}
	if self.Pos != headA.F32() || self.Heading != hdgA.F32() {
		t.Fatalf("self entry not exact: pos=%v heading=%v", self.Pos, self.Heading)
	}

	remote := f.Players[1]
	if !remote.Quantized {
		t.Fatalf("remote entry should be quantized")
	}
	if ang := sphere.AngleDeg(sphere.FromF32(remote.Pos), headB); ang > 0.01 {
		t.Fatalf("remote pos error %.5f deg", ang)
	}
	if ang := sphere.AngleDeg(sphere.FromF32(remote.Heading), hdgB); ang > 0.01 {
		t.Fatalf("remote heading error %.5f deg", ang)
	}
}

func TestScope_MaxPlayersCap(t *testing.T) {
	cfg := testConfig()
	cfg.ScopeMaxPlayers = 3
	h := NewHarness(t, cfg, "self")
	a := h.DefaultID

	ids := []uint16{a}
	for _, name := range []string{"p1", "p2", "p3", "p4"} {
		ids = append(ids, h.Join(name))
	}
	for i, id := range ids {
		head, heading := poseAt(float64(i) * 10)
		h.W.DebugSetPose(id, head, heading)
	}

	h.Step()
	f := h.LastState(a)
	if len(f.Players) != 3 {
		t.Fatalf("cap not applied: got %d entries want 3", len(f.Players))
	}
	if f.Players[0].ID != a || f.Players[1].ID != ids[1] || f.Players[2].ID != ids[2] {
		t.Fatalf("kept entries wrong: %d,%d,%d", f.Players[0].ID, f.Players[1].ID, f.Players[2].ID)
	}
	if f.TotalPlayers != 5 {
		t.Fatalf("total players: got %d want 5", f.TotalPlayers)
	}
}

func TestScope_DeadPlayerStillVisible(t *testing.T) {
	h := NewHarness(t, testConfig(), "self")
	a := h.DefaultID
	b := h.Join("victim")

	headA, hdgA := poseAt(0)
	headB, hdgB := poseAt(20)
	h.W.DebugSetPose(a, headA, hdgA)
	h.W.DebugSetPose(b, headB, hdgB)

	resp := make(chan world.AdminResult, 1)
	h.StepAdmin(world.AdminRequest{Op: world.AdminKill, PlayerID: b, Resp: resp})
	if res := <-resp; !res.OK {
		t.Fatalf("kill failed: %+v", res)
	}

	h.Step()
	f := h.LastState(a)
	found := false
	for _, e := range f.Players {
		if e.ID == b {
			found = true
			if e.Alive {
				t.Fatalf("dead player flagged alive in frame")
			}
		}
	}
	if !found {
		t.Fatalf("dead player dropped from scope")
	}
}

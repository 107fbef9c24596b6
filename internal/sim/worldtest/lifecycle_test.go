package worldtest

import (
	"testing"

	"github.com/nickandbro/slither-world-sub002/internal/auth"
)

func TestLeaveAttach_ResumeWithinGrace(t *testing.T) {
	cfg := testConfig()
	cfg.DisconnectGraceTicks = 10
	h := NewHarness(t, cfg, "dropper")
	id := h.DefaultID

	h.SendAxis(id, [3]float32{1, 0, 0}, false)
	h.Step()
	before, _ := h.W.DebugPlayer(id)
	token := h.ResumeToken(id)

	h.Leave(id)
	if n := h.W.DebugSessionCount(); n != 0 {
		t.Fatalf("session survived leave: %d", n)
	}
	p, ok := h.W.DebugPlayer(id)
	if !ok {
		t.Fatalf("player removed on leave")
	}
	if p.RemoveAtTick == 0 {
		t.Fatalf("removal clock not armed")
	}

	// The player sits still while detached.
	h.StepTicks(3)
	p, _ = h.W.DebugPlayer(id)
	if p.State.Head != before.State.Head {
		t.Fatalf("detached player moved")
	}

	jr, ok := h.Attach(token)
	if !ok {
		t.Fatalf("attach rejected: %+v", jr)
	}
	if jr.PlayerID != id {
		t.Fatalf("attach bound wrong player: %d", jr.PlayerID)
	}
	if jr.ResumeToken == "" || jr.ResumeToken == token {
		t.Fatalf("resume token not rotated")
	}
	if len(jr.Init) == 0 {
		t.Fatalf("attach returned no roster frame")
	}
	p, _ = h.W.DebugPlayer(id)
	if p.RemoveAtTick != 0 {
		t.Fatalf("removal clock still armed after attach")
	}
	if p.LatestAckSeq != before.LatestAckSeq || !p.AckValid {
		t.Fatalf("ack state lost across reattach")
	}

	// The rebound session moves the same player again.
	h.SendAxis(id, [3]float32{1, 0, 0}, false)
	h.Step()
	after, _ := h.W.DebugPlayer(id)
	if after.State.Head == before.State.Head {
		t.Fatalf("rebound session inputs ignored")
	}
	if f := h.LastState(id); f.Players[0].ID != id {
		t.Fatalf("state frames not flowing after attach")
	}
}

func TestAttach_RotationInvalidatesOldToken(t *testing.T) {
	cfg := testConfig()
	cfg.DisconnectGraceTicks = 100
	h := NewHarness(t, cfg, "rotator")
	id := h.DefaultID

	old := h.ResumeToken(id)
	h.Leave(id)
	if _, ok := h.Attach(old); !ok {
		t.Fatalf("first attach should succeed")
	}
	h.Leave(id)
	if _, ok := h.Attach(old); ok {
		t.Fatalf("stale token accepted after rotation")
	}
}

func TestAttach_RejectsForeignAndGarbageTokens(t *testing.T) {
	cfg := testConfig()
	cfg.DisconnectGraceTicks = 100
	h := NewHarness(t, cfg, "victim")
	h.Leave(h.DefaultID)

	if _, ok := h.Attach("not-a-token"); ok {
		t.Fatalf("garbage token accepted")
	}

	// Valid signature, wrong world.
	foreign, err := auth.NewResumeToken("P000001", "some-other-world")
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	if _, ok := h.Attach(foreign); ok {
		t.Fatalf("token for another world accepted")
	}
}

func TestLeave_ExpiresAfterGrace(t *testing.T) {
	cfg := testConfig()
	cfg.DisconnectGraceTicks = 5
	h := NewHarness(t, cfg, "ghost")
	stay := h.Join("stay")
	id := h.DefaultID

	token := h.ResumeToken(id)
	h.Leave(id)

	h.StepTicks(4)
	if _, ok := h.W.DebugPlayer(id); !ok {
		t.Fatalf("player removed before grace expired")
	}

	h.Step()
	if _, ok := h.W.DebugPlayer(id); ok {
		t.Fatalf("player survived past grace window")
	}
	if _, ok := h.Attach(token); ok {
		t.Fatalf("attach succeeded after removal")
	}

	h.Step()
	f := h.LastState(stay)
	if f.TotalPlayers != 1 {
		t.Fatalf("total players after expiry: got %d want 1", f.TotalPlayers)
	}
}

package world

import (
	"math"
	"testing"

	"github.com/nickandbro/slither-world-sub002/internal/protocol"
)

func TestSendLatest_DropsOldestWhenFull(t *testing.T) {
	ch := make(chan []byte, 2)
	sendLatest(ch, []byte{1})
	sendLatest(ch, []byte{2})
	sendLatest(ch, []byte{3})

	if len(ch) != 2 {
		t.Fatalf("queue depth: got %d want 2", len(ch))
	}
	if b := <-ch; b[0] != 2 {
		t.Fatalf("expected frame 2 first, got %d", b[0])
	}
	if b := <-ch; b[0] != 3 {
		t.Fatalf("expected frame 3 last, got %d", b[0])
	}
}

func TestSpawnPose_OnSphereAndClamped(t *testing.T) {
	w := New(WorldConfig{ID: "w"})
	seen := map[[3]float64]bool{}
	for i := 0; i < 200; i++ {
		head, heading := w.spawnPose()
		if d := math.Abs(head.Len() - 1); d > 1e-9 {
			t.Fatalf("spawn %d head off sphere by %g", i, d)
		}
		if d := math.Abs(heading.Len() - 1); d > 1e-9 {
			t.Fatalf("spawn %d heading not unit by %g", i, d)
		}
		if dot := math.Abs(head.Dot(heading)); dot > 1e-9 {
			t.Fatalf("spawn %d heading not tangent: dot=%g", i, dot)
		}
		if math.Abs(head.Z) > 0.98+1e-12 {
			t.Fatalf("spawn %d breached polar clamp: z=%g", i, head.Z)
		}
		seen[[3]float64{head.X, head.Y, head.Z}] = true
	}
	if len(seen) < 190 {
		t.Fatalf("spawn spiral collapsed: only %d distinct poses", len(seen))
	}
}

func TestSpawnPose_DeterministicFromCounter(t *testing.T) {
	w1 := New(WorldConfig{ID: "w"})
	w2 := New(WorldConfig{ID: "w"})
	w2.spawnSeq = 3
	for i := 0; i < 3; i++ {
		w1.spawnPose()
	}
	h1, d1 := w1.spawnPose()
	h2, d2 := w2.spawnPose()
	if h1 != h2 || d1 != d2 {
		t.Fatalf("same counter produced different poses")
	}
}

func TestJoinPlayer_SkipsTakenAndZeroIDs(t *testing.T) {
	w := New(WorldConfig{ID: "w"})
	r1 := w.joinPlayer("a", 0, nil, 0, 0)
	if r1.PlayerID != 1 {
		t.Fatalf("first id: got %d want 1", r1.PlayerID)
	}

	// Force the counter to the wrap boundary: uint16(65536) == 0 must
	// be skipped, and so must ids already in use.
	w.nextPlayerNum.Store(65535)
	r2 := w.joinPlayer("b", 0, nil, 0, 0)
	if r2.PlayerID == 0 {
		t.Fatalf("allocated reserved id 0")
	}
	if r2.PlayerID == r1.PlayerID {
		t.Fatalf("allocated duplicate id %d", r2.PlayerID)
	}
}

func TestStateDigest_CoversLifecycleFields(t *testing.T) {
	w := New(WorldConfig{ID: "w"})
	w.joinPlayer("a", 0, nil, 0, 0)
	base := w.stateDigest(7)

	if w.stateDigest(8) == base {
		t.Fatalf("digest ignores tick")
	}

	p := w.players[w.order[0]]
	p.RemoveAtTick = 99
	d := w.stateDigest(7)
	if d == base {
		t.Fatalf("digest ignores removal clock")
	}
	p.RemoveAtTick = 0
	if w.stateDigest(7) != base {
		t.Fatalf("digest not stable after revert")
	}

	p.LatestAckSeq = 5
	p.AckValid = true
	if w.stateDigest(7) == base {
		t.Fatalf("digest ignores ack bookkeeping")
	}
}

func TestDrainInputs_AppendsInArrivalOrder(t *testing.T) {
	ch := make(chan protocol.InputCommand, 4)
	for seq := uint16(1); seq <= 3; seq++ {
		ch <- protocol.InputCommand{Seq: seq}
	}
	got := drainInputs(ch, nil)
	if len(got) != 3 {
		t.Fatalf("drained %d commands", len(got))
	}
	for i, cmd := range got {
		if cmd.Seq != uint16(i+1) {
			t.Fatalf("order lost at %d: seq=%d", i, cmd.Seq)
		}
	}
	if len(ch) != 0 {
		t.Fatalf("channel not drained")
	}
}

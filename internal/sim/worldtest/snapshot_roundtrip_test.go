package worldtest

import (
	"path/filepath"
	"testing"

	"github.com/nickandbro/slither-world-sub002/internal/persistence/snapshot"
	world "github.com/nickandbro/slither-world-sub002/internal/sim/world"
)

func TestSnapshotRoundTrip_DiskAndDigest(t *testing.T) {
	h := NewHarness(t, testConfig(), "ada")
	a := h.DefaultID
	b := h.Join("bo")
	for i := 0; i < 6; i++ {
		h.SendAxis(a, [3]float32{1, 0, 0}, i < 3)
		h.SendAxis(b, [3]float32{0, 1, 0}, false)
		h.Step()
	}

	snapTick := h.W.CurrentTick() - 1
	snap := h.W.ExportSnapshot(snapTick)
	if snap.Header.Tick != snapTick || snap.Header.WorldID != "w-test" {
		t.Fatalf("snapshot header: %+v", snap.Header)
	}
	if snap.Counters.NextPlayer != 2 || snap.Counters.NextSpawn != 2 {
		t.Fatalf("snapshot counters: %+v", snap.Counters)
	}

	path := filepath.Join(t.TempDir(), "world.snap.zst")
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := snapshot.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	w2 := world.New(testConfig())
	if err := w2.ImportSnapshot(loaded); err != nil {
		t.Fatalf("import: %v", err)
	}
	if got, want := w2.CurrentTick(), h.W.CurrentTick(); got != want {
		t.Fatalf("resumed tick: got %d want %d", got, want)
	}
	if d1, d2 := h.W.DebugStateDigest(), w2.DebugStateDigest(); d1 != d2 {
		t.Fatalf("digest changed across snapshot round trip:\n %s\n %s", d1, d2)
	}

	// With no further inputs the two worlds stay in lockstep.
	for i := 0; i < 5; i++ {
		_, d1 := h.Step()
		_, d2 := w2.StepOnce(0, nil, nil, nil, nil)
		if d1 != d2 {
			t.Fatalf("post-resume digest drift at step %d", i)
		}
	}
}

func TestImportSnapshot_RejectsMismatchedConfig(t *testing.T) {
	h := NewHarness(t, testConfig(), "ada")
	snap := h.W.ExportSnapshot(h.W.CurrentTick() - 1)

	other := testConfig()
	other.BaseSpeedDegPerSec = 60
	if err := world.New(other).ImportSnapshot(snap); err == nil {
		t.Fatalf("import accepted mismatched movement params")
	}

	wrongID := testConfig()
	wrongID.ID = "w-other"
	if err := world.New(wrongID).ImportSnapshot(snap); err == nil {
		t.Fatalf("import accepted snapshot from another world")
	}
}

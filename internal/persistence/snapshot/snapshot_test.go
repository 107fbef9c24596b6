package snapshot

import (
	"path/filepath"
	"reflect"
	"testing"
)

func sample() SnapshotV1 {
	return SnapshotV1{
		Header: Header{Version: 1, WorldID: "w-test", Tick: 4242},
		TickRateHz: 20, TurnRateDegPerSec: 220, BaseSpeedDegPerSec: 50, BoostSpeedMult: 1.6,
		Players: []PlayerV1{
			{
				ID: 1, Identity: "P000001", Name: "ada", Hue: 17,
				Head: [3]float64{0, 0, 1}, Heading: [3]float64{1, 0, 0},
				Alive: true, LatestAckSeq: 65530, AckValid: true,
			},
			{
				ID: 2, Identity: "P000002", Name: "bo", Hue: 91,
				Head: [3]float64{0, 1, 0}, Heading: [3]float64{0, 0, -1},
				Alive: false, RemoveAtTick: 4300,
			},
		},
		Counters: CountersV1{NextPlayer: 3, NextSpawn: 5},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot-4242.bin.zst")
	want := sample()
	if err := WriteSnapshot(path, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestReadHeaderWithoutBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot-7.bin.zst")
	if err := WriteSnapshot(path, sample()); err != nil {
		t.Fatal(err)
	}
	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if h.WorldID != "w-test" || h.Tick != 4242 || h.Version != 1 {
		t.Fatalf("header mismatch: %+v", h)
	}
}

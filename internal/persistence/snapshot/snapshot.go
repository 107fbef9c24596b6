package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Snapshot files carry a one-line JSON header so tools can identify a
// file without decoding the gob body.
type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

// SnapshotV1 captures everything needed to resume a world at a tick
// boundary and to seed deterministic replay of the journal that follows.
type SnapshotV1 struct {
	Header Header `json:"header"`

	TickRateHz         int     `json:"tick_rate_hz"`
	TurnRateDegPerSec  float64 `json:"turn_rate_deg_per_sec"`
	BaseSpeedDegPerSec float64 `json:"base_speed_deg_per_sec"`
	BoostSpeedMult     float64 `json:"boost_speed_mult"`

	Players  []PlayerV1 `json:"players"`
	Counters CountersV1 `json:"counters"`
}

type PlayerV1 struct {
	ID       uint16     `json:"id"`
	Identity string     `json:"identity"`
	Name     string     `json:"name"`
	Hue      uint8      `json:"hue"`
	Head     [3]float64 `json:"head"`
	Heading  [3]float64 `json:"heading"`
	Alive    bool       `json:"alive"`
	Boosting bool       `json:"boosting"`

	LatestAckSeq uint16 `json:"latest_ack_seq"`
	AckValid     bool   `json:"ack_valid"`

	// Zero when connected; otherwise the tick at which the player is
	// dropped unless a session re-attaches first.
	RemoveAtTick uint64 `json:"remove_at_tick,omitempty"`
}

type CountersV1 struct {
	NextPlayer uint64 `json:"next_player"`
	NextSpawn  uint64 `json:"next_spawn"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Skip the header line; the gob body repeats it.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReaderSize(dec, 64*1024).ReadBytes('\n')
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("snapshot header: %w", err)
	}
	return h, nil
}

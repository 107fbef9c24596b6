package client_test

import (
	"encoding/json"
	"math"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nickandbro/slither-world-sub002/internal/client"
	"github.com/nickandbro/slither-world-sub002/internal/protocol"
	"github.com/nickandbro/slither-world-sub002/internal/sphere"
)

// TestDiagDocument_MatchesSchema runs a session through init, a clean
// snapshot, a hard correction and a mid-run retune, then validates the
// published diagnostics document against schemas/diag.schema.json.
func TestDiagDocument_MatchesSchema(t *testing.T) {
	schema, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", "diag.schema.json"))
	if err != nil {
		t.Fatalf("compile schema: %v", err)
	}

	cfg := client.Config{
		TickRateHz: 20,
		Movement:   protocol.MovementParams{TurnRateDegPerSec: 220, BaseSpeedDegPerSec: 50, BoostSpeedMult: 1.6},
		Prediction: protocol.PredictionParams{
			SoftCorrectionDeg: 0.35,
			HardCorrectionDeg: 5,
			SoftBlendFrames:   6,
			StaleSpikeMs:      250,
			PendingInputCap:   64,
		},
		Net: protocol.NetParams{
			BaseDelayTicks:        1,
			MinDelayTicks:         0.5,
			MaxDelayTicks:         6,
			JitterDelayMultiplier: 1.5,
			CameraSpikeFollowRate: 0.02,
			CameraRecoveryMs:      400,
		},
		NetRevision: 1,
	}
	s := client.NewSession(cfg, func([]byte) error { return nil })

	a := sphere.Vec3{X: 1}
	east := sphere.Vec3{Y: 1}
	z := sphere.Vec3{Z: 1}

	init := protocol.InitFrame{
		LocalID:      5,
		ServerTimeMs: 10_000,
		Players:      []protocol.InitPlayer{{ID: 5, Identity: "P000005", Name: "ada", Hue: 40}},
	}
	s.HandleFrame(protocol.EncodeInit(&init))
	s.HandleFrame(protocol.EncodeState(&protocol.StateFrame{
		ServerTimeMs: 10_100,
		Seq:          1,
		TotalPlayers: 1,
		Players:      []protocol.StatePlayer{{ID: 5, Alive: true, Pos: a.F32(), Heading: east.F32()}},
	}))
	s.SetIntent([3]float32{0, 1, 0}, false)
	s.Step(100)

	// Push the authoritative head far off the displayed one so the tail
	// carries a HARD_CORRECTION event.
	far := sphere.RotateAbout(a, z, 12*math.Pi/180)
	farHeading := sphere.RotateAbout(east, z, 12*math.Pi/180)
	s.HandleFrame(protocol.EncodeState(&protocol.StateFrame{
		ServerTimeMs: 10_150,
		Seq:          2,
		TotalPlayers: 1,
		LatestAckSeq: 1,
		Players:      []protocol.StatePlayer{{ID: 5, Alive: true, Pos: far.F32(), Heading: farHeading.F32()}},
	}))
	s.Step(150)

	over := cfg.Net
	over.BaseDelayTicks = 1.2
	s.ApplyNetParams(over, 2, 200)
	s.Step(200)

	rep := s.DiagSnapshot()
	if rep.Prediction.HardCount != 1 {
		t.Fatalf("hard count = %d, want 1 before validating", rep.Prediction.HardCount)
	}
	if rep.Net.TuningRevision != 2 {
		t.Fatalf("tuning revision = %d, want 2", rep.Net.TuningRevision)
	}
	for _, ev := range rep.Events {
		if !client.IsKnownEvent(ev.Code) {
			t.Fatalf("unregistered event code %q in tail", ev.Code)
		}
	}

	raw, err := json.Marshal(rep)
	if err != nil {
		t.Fatalf("marshal report: %v", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if err := schema.Validate(doc); err != nil {
		t.Fatalf("diagnostics document does not match schema: %v", err)
	}
}

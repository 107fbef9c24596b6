package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning is the full set of simulation and netcode knobs. The same
// struct serves the yaml config file, the admin override endpoint and
// the values handed to clients at session start, so field tags cover
// both formats.
type Tuning struct {
	TickRateHz           int    `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	SnapshotEveryTicks   int    `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`
	DisconnectGraceTicks uint64 `yaml:"disconnect_grace_ticks" json:"disconnect_grace_ticks"`
	QuantizeVectors      bool   `yaml:"quantize_vectors" json:"quantize_vectors"`

	Movement   Movement   `yaml:"movement" json:"movement"`
	Scope      Scope      `yaml:"scope" json:"scope"`
	Queues     Queues     `yaml:"queues" json:"queues"`
	Prediction Prediction `yaml:"prediction" json:"prediction"`
	Net        Net        `yaml:"net" json:"net"`
}

// Movement constants are shared verbatim between the server stepper and
// the client predictor. Angles and speeds are degrees to keep the yaml
// readable; convert once at the edge.
type Movement struct {
	TurnRateDegPerSec  float64 `yaml:"turn_rate_deg_per_sec" json:"turn_rate_deg_per_sec"`
	BaseSpeedDegPerSec float64 `yaml:"base_speed_deg_per_sec" json:"base_speed_deg_per_sec"`
	BoostSpeedMult     float64 `yaml:"boost_speed_mult" json:"boost_speed_mult"`
}

type Scope struct {
	MaxPlayers int     `yaml:"max_players" json:"max_players"`
	RadiusDeg  float64 `yaml:"radius_deg" json:"radius_deg"`
}

type Queues struct {
	InputQueueCap int `yaml:"input_queue_cap" json:"input_queue_cap"`
	PendingCap    int `yaml:"pending_cap" json:"pending_cap"`
	OutQueueCap   int `yaml:"out_queue_cap" json:"out_queue_cap"`
}

type Prediction struct {
	SoftCorrectionDeg float64 `yaml:"soft_correction_deg" json:"soft_correction_deg"`
	HardCorrectionDeg float64 `yaml:"hard_correction_deg" json:"hard_correction_deg"`
	SoftBlendFrames   int     `yaml:"soft_blend_frames" json:"soft_blend_frames"`
	StaleSpikeMs      int     `yaml:"stale_spike_ms" json:"stale_spike_ms"`
}

// Net drives the client's playout buffer and camera smoothing. Delay
// values are fractional ticks.
type Net struct {
	BaseDelayTicks        float64 `yaml:"base_delay_ticks" json:"base_delay_ticks"`
	MinDelayTicks         float64 `yaml:"min_delay_ticks" json:"min_delay_ticks"`
	MaxDelayTicks         float64 `yaml:"max_delay_ticks" json:"max_delay_ticks"`
	JitterDelayMultiplier float64 `yaml:"jitter_delay_multiplier" json:"jitter_delay_multiplier"`
	CameraSpikeFollowRate float64 `yaml:"camera_spike_follow_rate" json:"camera_spike_follow_rate"`
	CameraRecoveryMs      int     `yaml:"camera_recovery_ms" json:"camera_recovery_ms"`
}

// Defaults are the values shipped in configs/tuning.yaml. Servers fall
// back to them when the file is absent.
func Defaults() Tuning {
	return Tuning{
		TickRateHz:           20,
		SnapshotEveryTicks:   600,
		DisconnectGraceTicks: 1200,
		QuantizeVectors:      true,
		Movement: Movement{
			TurnRateDegPerSec:  220,
			BaseSpeedDegPerSec: 50,
			BoostSpeedMult:     1.6,
		},
		Scope: Scope{
			MaxPlayers: 32,
			RadiusDeg:  120,
		},
		Queues: Queues{
			InputQueueCap: 64,
			PendingCap:    64,
			OutQueueCap:   16,
		},
		Prediction: Prediction{
			SoftCorrectionDeg: 0.35,
			HardCorrectionDeg: 5,
			SoftBlendFrames:   6,
			StaleSpikeMs:      250,
		},
		Net: Net{
			BaseDelayTicks:        1.0,
			MinDelayTicks:         0.5,
			MaxDelayTicks:         6,
			JitterDelayMultiplier: 1.5,
			CameraSpikeFollowRate: 0.02,
			CameraRecoveryMs:      400,
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Validate rejects values the simulation cannot run with.
func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 || t.TickRateHz > 240 {
		return fmt.Errorf("tick_rate_hz out of range: %d", t.TickRateHz)
	}
	if t.Movement.BoostSpeedMult < 1 {
		return fmt.Errorf("boost_speed_mult below 1: %v", t.Movement.BoostSpeedMult)
	}
	if t.Scope.MaxPlayers < 1 {
		return fmt.Errorf("scope max_players below 1: %d", t.Scope.MaxPlayers)
	}
	if t.Queues.InputQueueCap < 1 || t.Queues.PendingCap < 1 {
		return fmt.Errorf("queue caps must be positive")
	}
	if t.Prediction.HardCorrectionDeg < t.Prediction.SoftCorrectionDeg {
		return fmt.Errorf("hard_correction_deg below soft_correction_deg")
	}
	if t.Net.MinDelayTicks > t.Net.MaxDelayTicks {
		return fmt.Errorf("min_delay_ticks above max_delay_ticks")
	}
	return nil
}

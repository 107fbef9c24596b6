package protocol

import "encoding/json"

// Version is the wire protocol version carried in the first byte of every
// binary frame. Decoders reject frames whose version does not match.
const Version byte = 1

// Binary frame kinds. The kind byte follows the version byte.
const (
	FrameInit  byte = 1
	FrameState byte = 2
	FrameInput byte = 3
)

// Hard caps enforced by the decoders so a bad frame cannot make us
// allocate unbounded memory.
const (
	MaxPlayersPerFrame = 4096
	MaxNameLen         = 32

	// MaxFrameSize bounds a single framed message on any transport.
	MaxFrameSize = 16 * 1024
)

// State entry flag bits.
const (
	FlagAlive     byte = 1 << 0
	FlagBoosting  byte = 1 << 1
	FlagQuantized byte = 1 << 2
)

// Input flag bits.
const (
	InputFlagAxis  byte = 1 << 0
	InputFlagBoost byte = 1 << 1
)

// HelloMsg is the JSON handshake a client sends before any binary frame.
type HelloMsg struct {
	Name        string `json:"name"`
	ResumeToken string `json:"resume_token,omitempty"`
}

// WelcomeMsg is the JSON handshake reply. Everything after it is binary.
type WelcomeMsg struct {
	PlayerID    uint16           `json:"player_id"`
	Identity    string           `json:"identity"`
	ResumeToken string           `json:"resume_token"`
	TickRateHz  int              `json:"tick_rate_hz"`
	Movement    MovementParams   `json:"movement"`
	Prediction  PredictionParams `json:"prediction"`
	Net         NetParams        `json:"net"`
	NetRevision uint64           `json:"net_revision"`
}

// MovementParams pins the shared integrator constants for a session so
// the client predictor and the server stepper run identical math.
type MovementParams struct {
	TurnRateDegPerSec  float64 `json:"turn_rate_deg_per_sec"`
	BaseSpeedDegPerSec float64 `json:"base_speed_deg_per_sec"`
	BoostSpeedMult     float64 `json:"boost_speed_mult"`
}

// PredictionParams are the client-side reconciliation knobs the server
// hands out with the welcome.
type PredictionParams struct {
	SoftCorrectionDeg float64 `json:"soft_correction_deg"`
	HardCorrectionDeg float64 `json:"hard_correction_deg"`
	SoftBlendFrames   int     `json:"soft_blend_frames"`
	StaleSpikeMs      int     `json:"stale_spike_ms"`
	PendingInputCap   int     `json:"pending_input_cap"`
}

// NetParams is the smoothing profile the server hands to clients at
// session start. Values are in ticks unless the name says otherwise.
type NetParams struct {
	BaseDelayTicks        float64 `json:"base_delay_ticks"`
	MinDelayTicks         float64 `json:"min_delay_ticks"`
	MaxDelayTicks         float64 `json:"max_delay_ticks"`
	JitterDelayMultiplier float64 `json:"jitter_delay_multiplier"`
	CameraSpikeFollowRate float64 `json:"camera_spike_follow_rate"`
	CameraRecoveryMs      int     `json:"camera_recovery_ms"`
}

func DecodeHello(b []byte) (HelloMsg, error) {
	var m HelloMsg
	err := json.Unmarshal(b, &m)
	return m, err
}

// FrameKind peeks at a binary frame header without decoding the body.
func FrameKind(b []byte) (byte, error) {
	if len(b) < 2 {
		return 0, ErrShortFrame
	}
	if b[0] != Version {
		return 0, ErrBadVersion
	}
	switch b[1] {
	case FrameInit, FrameState, FrameInput:
		return b[1], nil
	}
	return 0, ErrBadFrameKind
}

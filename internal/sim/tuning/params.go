package tuning

import "github.com/nickandbro/slither-world-sub002/internal/protocol"

// MovementParams converts the movement block into the wire form sent
// with the welcome message.
func (t Tuning) MovementParams() protocol.MovementParams {
	return protocol.MovementParams{
		TurnRateDegPerSec:  t.Movement.TurnRateDegPerSec,
		BaseSpeedDegPerSec: t.Movement.BaseSpeedDegPerSec,
		BoostSpeedMult:     t.Movement.BoostSpeedMult,
	}
}

func (t Tuning) PredictionParams() protocol.PredictionParams {
	return protocol.PredictionParams{
		SoftCorrectionDeg: t.Prediction.SoftCorrectionDeg,
		HardCorrectionDeg: t.Prediction.HardCorrectionDeg,
		SoftBlendFrames:   t.Prediction.SoftBlendFrames,
		StaleSpikeMs:      t.Prediction.StaleSpikeMs,
		PendingInputCap:   t.Queues.PendingCap,
	}
}

func (t Tuning) NetParams() protocol.NetParams {
	return protocol.NetParams{
		BaseDelayTicks:        t.Net.BaseDelayTicks,
		MinDelayTicks:         t.Net.MinDelayTicks,
		MaxDelayTicks:         t.Net.MaxDelayTicks,
		JitterDelayMultiplier: t.Net.JitterDelayMultiplier,
		CameraSpikeFollowRate: t.Net.CameraSpikeFollowRate,
		CameraRecoveryMs:      t.Net.CameraRecoveryMs,
	}
}

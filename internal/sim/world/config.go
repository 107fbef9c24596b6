package world

import (
	"math"

	"github.com/nickandbro/slither-world-sub002/internal/sim/tuning"
	"github.com/nickandbro/slither-world-sub002/internal/sphere"
)

type WorldConfig struct {
	ID         string
	TickRateHz int

	TurnRateDegPerSec  float64
	BaseSpeedDegPerSec float64
	BoostSpeedMult     float64

	ScopeMaxPlayers int
	ScopeRadiusDeg  float64

	// Per-session queue sizes. InputQueueCap bounds the unconsumed
	// commands a transport may park between ticks; OutQueueCap bounds
	// undelivered state frames before sendLatest starts dropping.
	InputQueueCap int
	OutQueueCap   int

	// How long a disconnected player lingers before removal. Resume
	// tokens only work inside this window.
	DisconnectGraceTicks uint64

	SnapshotEveryTicks int
	QuantizeVectors    bool
}

// FromTuning maps the yaml knobs onto a world config.
func FromTuning(id string, t tuning.Tuning) WorldConfig {
	return WorldConfig{
		ID:                   id,
		TickRateHz:           t.TickRateHz,
		TurnRateDegPerSec:    t.Movement.TurnRateDegPerSec,
		BaseSpeedDegPerSec:   t.Movement.BaseSpeedDegPerSec,
		BoostSpeedMult:       t.Movement.BoostSpeedMult,
		ScopeMaxPlayers:      t.Scope.MaxPlayers,
		ScopeRadiusDeg:       t.Scope.RadiusDeg,
		InputQueueCap:        t.Queues.InputQueueCap,
		OutQueueCap:          t.Queues.OutQueueCap,
		DisconnectGraceTicks: t.DisconnectGraceTicks,
		SnapshotEveryTicks:   t.SnapshotEveryTicks,
		QuantizeVectors:      t.QuantizeVectors,
	}
}

func (c *WorldConfig) applyDefaults() {
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	if c.TurnRateDegPerSec <= 0 {
		c.TurnRateDegPerSec = 220
	}
	if c.BaseSpeedDegPerSec <= 0 {
		c.BaseSpeedDegPerSec = 50
	}
	if c.BoostSpeedMult <= 0 {
		c.BoostSpeedMult = 1.6
	}
	if c.ScopeMaxPlayers <= 0 {
		c.ScopeMaxPlayers = 32
	}
	if c.ScopeRadiusDeg <= 0 {
		c.ScopeRadiusDeg = 120
	}
	if c.InputQueueCap <= 0 {
		c.InputQueueCap = 64
	}
	if c.OutQueueCap <= 0 {
		c.OutQueueCap = 16
	}
	if c.DisconnectGraceTicks == 0 {
		c.DisconnectGraceTicks = 1200
	}
	if c.SnapshotEveryTicks <= 0 {
		c.SnapshotEveryTicks = 600
	}
}

func (c WorldConfig) params() sphere.Params {
	const degToRad = math.Pi / 180
	return sphere.Params{
		TurnRateRad:   c.TurnRateDegPerSec * degToRad,
		BaseSpeedRad:  c.BaseSpeedDegPerSec * degToRad,
		BoostSpeedMul: c.BoostSpeedMult,
	}
}

package world

import (
	"fmt"

	"github.com/nickandbro/slither-world-sub002/internal/persistence/snapshot"
	"github.com/nickandbro/slither-world-sub002/internal/sphere"
)

// ExportSnapshot captures the replay-relevant world state at nowTick.
// Resume tokens are deliberately not persisted; after a restart clients
// go through a fresh join.
func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: 1,
			WorldID: w.cfg.ID,
			Tick:    nowTick,
		},
		TickRateHz:         w.cfg.TickRateHz,
		TurnRateDegPerSec:  w.cfg.TurnRateDegPerSec,
		BaseSpeedDegPerSec: w.cfg.BaseSpeedDegPerSec,
		BoostSpeedMult:     w.cfg.BoostSpeedMult,
		Players:            make([]snapshot.PlayerV1, 0, len(w.order)),
		Counters: snapshot.CountersV1{
			NextPlayer: w.nextPlayerNum.Load(),
			NextSpawn:  w.spawnSeq,
		},
	}
	for _, id := range w.order {
		p := w.players[id]
		snap.Players = append(snap.Players, snapshot.PlayerV1{
			ID:           p.ID,
			Identity:     p.Identity,
			Name:         p.Name,
			Hue:          p.Hue,
			Head:         [3]float64{p.State.Head.X, p.State.Head.Y, p.State.Head.Z},
			Heading:      [3]float64{p.State.Heading.X, p.State.Heading.Y, p.State.Heading.Z},
			Alive:        p.State.Alive,
			Boosting:     p.State.Boosting,
			LatestAckSeq: p.LatestAckSeq,
			AckValid:     p.AckValid,
			RemoveAtTick: p.RemoveAtTick,
		})
	}
	return snap
}

// ImportSnapshot restores a world to exactly the snapshot's state so the
// next executed tick is Header.Tick+1. It must be called before Run().
// Sessions are not restored; callers that resume a live server should
// push a Leave for every player the snapshot recorded as connected so
// the grace clock starts through the journaled path.
func (w *World) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.WorldID != w.cfg.ID {
		return fmt.Errorf("snapshot world %q does not match configured world %q", snap.Header.WorldID, w.cfg.ID)
	}
	if snap.TickRateHz != w.cfg.TickRateHz ||
		snap.TurnRateDegPerSec != w.cfg.TurnRateDegPerSec ||
		snap.BaseSpeedDegPerSec != w.cfg.BaseSpeedDegPerSec ||
		snap.BoostSpeedMult != w.cfg.BoostSpeedMult {
		return fmt.Errorf("snapshot movement params (rate=%d turn=%g base=%g boost=%g) differ from config",
			snap.TickRateHz, snap.TurnRateDegPerSec, snap.BaseSpeedDegPerSec, snap.BoostSpeedMult)
	}

	w.players = make(map[uint16]*Player, len(snap.Players))
	w.sessions = map[uint16]*session{}
	w.order = w.order[:0]
	for _, pv := range snap.Players {
		p := &Player{
			ID:       pv.ID,
			Identity: pv.Identity,
			Name:     pv.Name,
			Hue:      pv.Hue,
			State: sphere.PlayerState{
				Head:     sphere.Vec3{X: pv.Head[0], Y: pv.Head[1], Z: pv.Head[2]},
				Heading:  sphere.Vec3{X: pv.Heading[0], Y: pv.Heading[1], Z: pv.Heading[2]},
				Alive:    pv.Alive,
				Boosting: pv.Boosting,
			},
			LatestAckSeq: pv.LatestAckSeq,
			AckValid:     pv.AckValid,
			RemoveAtTick: pv.RemoveAtTick,
		}
		w.players[p.ID] = p
		w.order = append(w.order, p.ID)
	}
	sortIDs(w.order)

	w.nextPlayerNum.Store(snap.Counters.NextPlayer)
	w.spawnSeq = snap.Counters.NextSpawn
	w.tick.Store(snap.Header.Tick + 1)
	return nil
}

// ConnectedIDs lists players the snapshot flow should consider attached
// (no pending removal). Not safe to call concurrently with Run().
func (w *World) ConnectedIDs() []uint16 {
	ids := make([]uint16, 0, len(w.order))
	for _, id := range w.order {
		if w.players[id].RemoveAtTick == 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

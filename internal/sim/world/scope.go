package world

import (
	"math"
	"sort"

	"github.com/nickandbro/slither-world-sub002/internal/protocol"
	"github.com/nickandbro/slither-world-sub002/internal/sphere"
)

// buildState assembles the scoped per-session snapshot. The receiving
// player rides first and always in full precision so the client's
// reconciler gets an exact base; remotes follow nearest-first and may be
// quantized.
func (w *World) buildState(selfID uint16, nowMs int64, nowTick uint64) *protocol.StateFrame {
	self := w.players[selfID]
	f := &protocol.StateFrame{
		ServerTimeMs: nowMs,
		Seq:          uint32(nowTick),
		TotalPlayers: uint16(len(w.players)),
		LatestAckSeq: self.LatestAckSeq,
	}

	f.Players = append(f.Players, w.stateEntry(self, false))
	for _, id := range w.scopeAround(selfID) {
		f.Players = append(f.Players, w.stateEntry(w.players[id], w.cfg.QuantizeVectors))
	}
	return f
}

// scopeAround returns up to ScopeMaxPlayers-1 other players within
// ScopeRadiusDeg of self, nearest first. Ties break on id so two servers
// stepping the same state emit identical frames.
func (w *World) scopeAround(selfID uint16) []uint16 {
	self := w.players[selfID]
	radiusRad := w.cfg.ScopeRadiusDeg * math.Pi / 180

	type cand struct {
		id  uint16
		ang float64
	}
	cands := make([]cand, 0, len(w.order))
	for _, id := range w.order {
		if id == selfID {
			continue
		}
		ang := sphere.Angle(self.State.Head, w.players[id].State.Head)
		if ang > radiusRad {
			continue
		}
		cands = append(cands, cand{id: id, ang: ang})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].ang != cands[j].ang {
			return cands[i].ang < cands[j].ang
		}
		return cands[i].id < cands[j].id
	})
	if max := w.cfg.ScopeMaxPlayers - 1; len(cands) > max {
		cands = cands[:max]
	}
	out := make([]uint16, len(cands))
	for i, c := range cands {
		out[i] = c.id
	}
	return out
}

func (w *World) stateEntry(p *Player, quantized bool) protocol.StatePlayer {
	return protocol.StatePlayer{
		ID:        p.ID,
		Alive:     p.State.Alive,
		Boosting:  p.State.Boosting,
		Quantized: quantized,
		Pos:       p.State.Head.F32(),
		Heading:   p.State.Heading.F32(),
	}
}

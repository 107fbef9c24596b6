package world

import (
	"time"

	"github.com/nickandbro/slither-world-sub002/internal/protocol"
	"github.com/nickandbro/slither-world-sub002/internal/sphere"
)

// stepInternal runs one tick. Phase order is load-bearing: expiries,
// leaves, joins, admin ops, then inputs in player-id order, then frame
// fan-out. Replay reproduces digests only if this order never changes.
func (w *World) stepInternal(nowMs int64, joins []JoinRequest, leaves []uint16, admin []AdminRequest, replayInputs []RecordedInput) {
	stepStart := time.Now()
	nowTick := w.tick.Load()

	w.expireDisconnected(nowTick)

	recordedLeaves := make([]uint16, 0, len(leaves))
	for _, id := range leaves {
		if w.handleLeave(id, nowTick) {
			recordedLeaves = append(recordedLeaves, id)
		}
	}

	recordedJoins := make([]RecordedJoin, 0, len(joins))
	for _, req := range joins {
		resp := w.joinPlayer(req.Name, 0, req.Out, nowTick, nowMs)
		if req.Resp != nil {
			req.Resp <- resp
		}
		recordedJoins = append(recordedJoins, RecordedJoin{PlayerID: resp.PlayerID, Name: resp.Name, Hue: resp.Hue})
	}

	recordedAdmin := w.handleAdminRequests(admin, nowTick)

	// Consume parked inputs per player in id order; within one player the
	// transport already preserves arrival order.
	recordedInputs := make([]RecordedInput, 0, 16)
	for _, id := range w.order {
		s := w.sessions[id]
		if s == nil {
			continue
		}
		p := w.players[id]
		cmds := drainInputs(s.inputs, nil)
		for _, cmd := range cmds {
			if w.applyInput(p, cmd) {
				recordedInputs = append(recordedInputs, recordInput(id, cmd))
			}
		}
	}
	for _, ri := range replayInputs {
		p := w.players[ri.PlayerID]
		if p == nil {
			continue
		}
		if w.applyInput(p, replayCommand(ri)) {
			recordedInputs = append(recordedInputs, ri)
		}
	}

	// Build one scoped state frame per connected session.
	scoped := 0
	for _, id := range w.order {
		s := w.sessions[id]
		if s == nil {
			continue
		}
		frame := w.buildState(id, nowMs, nowTick)
		scoped += len(frame.Players)
		sendLatest(s.out, protocol.EncodeState(frame))
		w.framesSent++
	}

	digest := w.stateDigest(nowTick)
	if w.journal != nil {
		_ = w.journal.WriteTick(TickEntry{
			Tick:   nowTick,
			Joins:  recordedJoins,
			Leaves: recordedLeaves,
			Inputs: recordedInputs,
			Admin:  recordedAdmin,
			Digest: digest,
		})
	}

	if w.snapshotSink != nil && nowTick != 0 && nowTick%uint64(w.cfg.SnapshotEveryTicks) == 0 {
		snap := w.ExportSnapshot(nowTick)
		select {
		case w.snapshotSink <- snap:
		default:
			// Drop snapshot if sink is backed up.
		}
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	w.publishMetrics(nowTick, scoped, stepMS)
	w.tick.Add(1)
}

// applyInput consumes one command. Stale or duplicate seqs are dropped
// so a retransmitting transport cannot double-apply movement. Dead
// players consume and ack without moving, which keeps the client's
// pending queue pruned while it waits for a respawn.
func (w *World) applyInput(p *Player, cmd protocol.InputCommand) bool {
	if p.AckValid && !protocol.SeqNewer(cmd.Seq, p.LatestAckSeq) {
		return false
	}
	if p.State.Alive {
		p.State = sphere.Advance(w.moveP, p.State, cmd, w.tickDt)
	}
	p.LatestAckSeq = cmd.Seq
	p.AckValid = true
	w.inputsApplied++
	return true
}

func (w *World) expireDisconnected(nowTick uint64) {
	var expired []uint16
	for _, id := range w.order {
		p := w.players[id]
		if p.RemoveAtTick != 0 && nowTick >= p.RemoveAtTick {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		w.removePlayer(id)
	}
}

func recordInput(id uint16, cmd protocol.InputCommand) RecordedInput {
	return RecordedInput{
		PlayerID:     id,
		Seq:          cmd.Seq,
		HasAxis:      cmd.HasAxis,
		Axis:         cmd.Axis,
		Boost:        cmd.Boost,
		ClientTimeMs: cmd.ClientTimeMs,
	}
}

func replayCommand(ri RecordedInput) protocol.InputCommand {
	return protocol.InputCommand{
		Seq:          ri.Seq,
		HasAxis:      ri.HasAxis,
		Axis:         ri.Axis,
		Boost:        ri.Boost,
		ClientTimeMs: ri.ClientTimeMs,
	}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

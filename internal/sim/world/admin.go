package world

import (
	"context"
	"errors"
)

type AdminOp int

const (
	AdminKill AdminOp = iota + 1
	AdminRespawn
	AdminSnapshot
)

func (op AdminOp) String() string {
	switch op {
	case AdminKill:
		return "kill"
	case AdminRespawn:
		return "respawn"
	case AdminSnapshot:
		return "snapshot"
	}
	return "unknown"
}

type AdminRequest struct {
	Op       AdminOp
	PlayerID uint16
	Resp     chan AdminResult
}

type AdminResult struct {
	OK   bool
	Tick uint64
	Err  string
}

// RequestAdmin asks the world loop goroutine to run an admin op at the
// next tick boundary. Safe to call from other goroutines (HTTP handlers).
func (w *World) RequestAdmin(ctx context.Context, op AdminOp, playerID uint16) (AdminResult, error) {
	if w == nil || w.admin == nil {
		return AdminResult{}, errors.New("admin ops not available")
	}
	resp := make(chan AdminResult, 1)
	req := AdminRequest{Op: op, PlayerID: playerID, Resp: resp}

	select {
	case w.admin <- req:
	case <-ctx.Done():
		return AdminResult{}, ctx.Err()
	}

	select {
	case r := <-resp:
		if !r.OK && r.Err != "" {
			return r, errors.New(r.Err)
		}
		return r, nil
	case <-ctx.Done():
		return AdminResult{}, ctx.Err()
	}
}

// Kill marks a player dead at the next tick boundary.
func (w *World) Kill(ctx context.Context, playerID uint16) (AdminResult, error) {
	return w.RequestAdmin(ctx, AdminKill, playerID)
}

// Respawn revives a dead player at a fresh spawn pose.
func (w *World) Respawn(ctx context.Context, playerID uint16) (AdminResult, error) {
	return w.RequestAdmin(ctx, AdminRespawn, playerID)
}

// RequestSnapshot pushes a state snapshot to the configured sink at the
// next tick boundary.
func (w *World) RequestSnapshot(ctx context.Context) (AdminResult, error) {
	return w.RequestAdmin(ctx, AdminSnapshot, 0)
}

// handleAdminRequests applies admin ops inside the tick. Kill and
// respawn mutate simulation state, so they are recorded for replay;
// snapshot requests only push to the sink.
func (w *World) handleAdminRequests(reqs []AdminRequest, nowTick uint64) []RecordedAdmin {
	if len(reqs) == 0 {
		return nil
	}
	recorded := make([]RecordedAdmin, 0, len(reqs))
	for _, req := range reqs {
		res := AdminResult{Tick: nowTick}
		switch req.Op {
		case AdminKill, AdminRespawn:
			if w.applyAdmin(req.Op, req.PlayerID) {
				res.OK = true
				recorded = append(recorded, RecordedAdmin{Op: req.Op.String(), PlayerID: req.PlayerID})
			} else {
				res.Err = "player not found or state unchanged"
			}
		case AdminSnapshot:
			if w.snapshotSink == nil {
				res.Err = "snapshot sink not configured"
			} else {
				snap := w.ExportSnapshot(nowTick)
				select {
				case w.snapshotSink <- snap:
					res.OK = true
				default:
					res.Err = "snapshot sink backpressure"
				}
			}
		default:
			res.Err = "unknown admin op"
		}
		if req.Resp != nil {
			select {
			case req.Resp <- res:
			default:
				// Client timed out; don't block the sim loop.
			}
		}
	}
	return recorded
}

// applyAdmin mutates player state for the replayable admin ops.
func (w *World) applyAdmin(op AdminOp, id uint16) bool {
	p := w.players[id]
	if p == nil {
		return false
	}
	switch op {
	case AdminKill:
		if !p.State.Alive {
			return false
		}
		p.State.Alive = false
		p.State.Boosting = false
		return true
	case AdminRespawn:
		if p.State.Alive {
			return false
		}
		head, heading := w.spawnPose()
		p.State.Head = head
		p.State.Heading = heading
		p.State.Alive = true
		p.State.Boosting = false
		return true
	}
	return false
}

// AdminRequestFromRecord converts a journal row back into a request so
// replay pushes it through the normal admin phase.
func AdminRequestFromRecord(rec RecordedAdmin) (AdminRequest, bool) {
	switch rec.Op {
	case "kill":
		return AdminRequest{Op: AdminKill, PlayerID: rec.PlayerID}, true
	case "respawn":
		return AdminRequest{Op: AdminRespawn, PlayerID: rec.PlayerID}, true
	}
	return AdminRequest{}, false
}

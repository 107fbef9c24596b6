package world

import (
	"context"
	"time"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingJoins []JoinRequest
	var pendingLeaves []uint16
	var pendingAdmin []AdminRequest

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case req := <-w.attach:
			w.handleAttach(req, nowUnixMs())
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case req := <-w.admin:
			pendingAdmin = append(pendingAdmin, req)
		case <-ticker.C:
			w.stepInternal(nowUnixMs(), pendingJoins, pendingLeaves, pendingAdmin, nil)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingAdmin = pendingAdmin[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick using the same ordering
// semantics as the live loop. It is primarily intended for deterministic
// replays/tests. Inputs parked in session queues are consumed; replayInputs,
// when non-nil, are applied after them in the given order.
func (w *World) StepOnce(nowMs int64, joins []JoinRequest, leaves []uint16, admin []AdminRequest, replayInputs []RecordedInput) (tick uint64, digest string) {
	tick = w.tick.Load()
	w.stepInternal(nowMs, joins, leaves, admin, replayInputs)
	return tick, w.stateDigest(tick)
}

package client

import "github.com/nickandbro/slither-world-sub002/internal/protocol"

// Sequencer stamps local steering intent with wrapping sequence numbers
// and keeps the bounded queue of commands the server has not confirmed
// yet. The queue is the replay source for reconciliation, so commands
// stay in assignment order.
type Sequencer struct {
	capacity int
	nextSeq  uint16
	issued   bool
	pending  []protocol.InputCommand
	diag     *Registry
}

func NewSequencer(capacity int, diag *Registry) *Sequencer {
	if capacity < 1 {
		capacity = 1
	}
	return &Sequencer{
		capacity: capacity,
		pending:  make([]protocol.InputCommand, 0, capacity),
		diag:     diag,
	}
}

// Next assigns the following sequence number and parks the command as
// pending. When the queue is at capacity the oldest entry is dropped,
// never the newest, and a recoverable diagnostic event is recorded.
func (s *Sequencer) Next(axis [3]float32, hasAxis, boost bool, nowMs int64) protocol.InputCommand {
	s.nextSeq++
	s.issued = true
	cmd := protocol.InputCommand{
		Seq:          s.nextSeq,
		HasAxis:      hasAxis,
		Axis:         axis,
		Boost:        boost,
		ClientTimeMs: nowMs,
	}
	if len(s.pending) >= s.capacity {
		dropped := s.pending[0]
		copy(s.pending, s.pending[1:])
		s.pending = s.pending[:len(s.pending)-1]
		if s.diag != nil {
			s.diag.EventF(nowMs, EventQueueOverflow, "dropped_seq=%d depth=%d", dropped.Seq, s.capacity)
		}
	}
	s.pending = append(s.pending, cmd)
	return cmd
}

// PruneAcked drops every pending command the ack already covers and
// returns how many were removed. Comparison is wraparound-aware.
func (s *Sequencer) PruneAcked(ack uint16) int {
	kept := s.pending[:0]
	for _, cmd := range s.pending {
		if protocol.SeqNewer(cmd.Seq, ack) {
			kept = append(kept, cmd)
		}
	}
	pruned := len(s.pending) - len(kept)
	s.pending = kept
	return pruned
}

// Pending exposes the unacknowledged commands in order. The slice is
// only valid until the next Next/PruneAcked call.
func (s *Sequencer) Pending() []protocol.InputCommand { return s.pending }

func (s *Sequencer) Len() int { return len(s.pending) }

// LatestSeq reports the most recently assigned sequence number; ok is
// false before the first command.
func (s *Sequencer) LatestSeq() (uint16, bool) {
	return s.nextSeq, s.issued
}

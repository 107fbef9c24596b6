package worldtest

import (
	"testing"

	"github.com/nickandbro/slither-world-sub002/internal/protocol"
	world "github.com/nickandbro/slither-world-sub002/internal/sim/world"
)

// Harness is a small black-box helper for driving a world via exported
// APIs:
//   - Join() issues JoinRequest via StepOnce()
//   - SendInput() feeds the session input channel the transport would own
//   - Step()/StepTicks() advances ticks with a deterministic clock
//   - per-player Out channels carry encoded STATE frames
//
// It intentionally avoids touching world internals so tests can live
// outside the world package.
type Harness struct {
	T *testing.T
	W *world.World

	DefaultID uint16

	nowMs    int64
	stepMs   int64
	sessions map[uint16]*session

	// Input sequence counters outlive sessions so a re-attached player
	// keeps counting where it left off, like a real client would.
	seqs map[uint16]uint16
}

type session struct {
	PlayerID    uint16
	Identity    string
	ResumeToken string
	Inputs      chan<- protocol.InputCommand
	Out         chan []byte

	lastState *protocol.StateFrame
}

const harnessEpochMs = 1_700_000_000_000

func NewHarness(t *testing.T, cfg world.WorldConfig, name string) *Harness {
	t.Helper()
	return NewHarnessWithWorld(t, world.New(cfg), name)
}

// NewHarnessWithWorld is like NewHarness but uses an already-constructed
// world, e.g. one restored from a snapshot before the first join.
func NewHarnessWithWorld(t *testing.T, w *world.World, name string) *Harness {
	t.Helper()
	if w == nil {
		t.Fatalf("NewHarnessWithWorld: nil world")
	}
	h := &Harness{
		T:        t,
		W:        w,
		nowMs:    harnessEpochMs,
		stepMs:   int64(1000 / w.TickRateHz()),
		sessions: map[uint16]*session{},
		seqs:     map[uint16]uint16{},
	}
	if name != "" {
		h.DefaultID = h.Join(name)
	}
	return h
}

func (h *Harness) Join(name string) uint16 {
	h.T.Helper()
	out := make(chan []byte, 16)
	resp := make(chan world.JoinResponse, 1)
	h.stepWith([]world.JoinRequest{{Name: name, Out: out, Resp: resp}}, nil, nil, nil)
	jr := <-resp
	if !jr.OK || jr.PlayerID == 0 {
		h.T.Fatalf("join %q failed: %+v", name, jr)
	}
	if len(jr.Init) == 0 || jr.Inputs == nil {
		h.T.Fatalf("join %q returned no init/inputs", name)
	}
	s := &session{
		PlayerID:    jr.PlayerID,
		Identity:    jr.Identity,
		ResumeToken: jr.ResumeToken,
		Inputs:      jr.Inputs,
		Out:         out,
	}
	h.sessions[s.PlayerID] = s
	h.drainAll()
	return s.PlayerID
}

// Leave detaches the player's session the way a dropped transport would.
func (h *Harness) Leave(id uint16) {
	h.T.Helper()
	h.stepWith(nil, []uint16{id}, nil, nil)
	delete(h.sessions, id)
}

// Attach re-binds a detached player with its resume token and rewires
// the harness session with the rotated one.
func (h *Harness) Attach(token string) (world.JoinResponse, bool) {
	h.T.Helper()
	out := make(chan []byte, 16)
	resp := make(chan world.JoinResponse, 1)
	h.W.DebugAttach(world.AttachRequest{ResumeToken: token, Out: out, Resp: resp}, h.nowMs)
	jr := <-resp
	if !jr.OK {
		return jr, false
	}
	h.sessions[jr.PlayerID] = &session{
		PlayerID:    jr.PlayerID,
		Identity:    jr.Identity,
		ResumeToken: jr.ResumeToken,
		Inputs:      jr.Inputs,
		Out:         out,
	}
	return jr, true
}

func (h *Harness) ResumeToken(id uint16) string {
	h.T.Helper()
	s := h.sessions[id]
	if s == nil {
		h.T.Fatalf("unknown player id %d", id)
	}
	return s.ResumeToken
}

// NextSeq hands out the next input sequence number for the player.
func (h *Harness) NextSeq(id uint16) uint16 {
	h.seqs[id]++
	return h.seqs[id]
}

// SendInput parks one command on the session queue; it fails the test if
// the queue is full. TrySendInput is the non-fatal variant.
func (h *Harness) SendInput(id uint16, cmd protocol.InputCommand) {
	h.T.Helper()
	if !h.TrySendInput(id, cmd) {
		h.T.Fatalf("input queue full for player %d", id)
	}
}

func (h *Harness) TrySendInput(id uint16, cmd protocol.InputCommand) bool {
	h.T.Helper()
	s := h.sessions[id]
	if s == nil {
		h.T.Fatalf("unknown player id %d", id)
	}
	select {
	case s.Inputs <- cmd:
		return true
	default:
		return false
	}
}

// SendAxis is the common case: one steering command with a fresh seq.
func (h *Harness) SendAxis(id uint16, axis [3]float32, boost bool) uint16 {
	h.T.Helper()
	seq := h.NextSeq(id)
	h.SendInput(id, protocol.InputCommand{
		Seq:          seq,
		HasAxis:      true,
		Axis:         axis,
		Boost:        boost,
		ClientTimeMs: h.nowMs,
	})
	return seq
}

// Step advances one tick and returns (tick, digest) for it.
func (h *Harness) Step() (uint64, string) {
	h.T.Helper()
	return h.stepWith(nil, nil, nil, nil)
}

func (h *Harness) StepTicks(n int) {
	h.T.Helper()
	for i := 0; i < n; i++ {
		h.Step()
	}
}

// StepAdmin runs one tick with admin requests applied in-phase.
func (h *Harness) StepAdmin(reqs ...world.AdminRequest) (uint64, string) {
	h.T.Helper()
	return h.stepWith(nil, nil, reqs, nil)
}

// StepReplay runs one tick the way the replay tool does.
func (h *Harness) StepReplay(joins []world.JoinRequest, leaves []uint16, admin []world.AdminRequest, inputs []world.RecordedInput) (uint64, string) {
	h.T.Helper()
	return h.stepWith(joins, leaves, admin, inputs)
}

func (h *Harness) stepWith(joins []world.JoinRequest, leaves []uint16, admin []world.AdminRequest, inputs []world.RecordedInput) (uint64, string) {
	h.T.Helper()
	h.nowMs += h.stepMs
	tick, digest := h.W.StepOnce(h.nowMs, joins, leaves, admin, inputs)
	h.drainAll()
	return tick, digest
}

func (h *Harness) NowMs() int64 { return h.nowMs }

// LastState returns the newest decoded STATE frame delivered to id.
func (h *Harness) LastState(id uint16) *protocol.StateFrame {
	h.T.Helper()
	s := h.sessions[id]
	if s == nil {
		h.T.Fatalf("unknown player id %d", id)
	}
	if s.lastState == nil {
		h.T.Fatalf("no state frame received for player %d", id)
	}
	return s.lastState
}

func (h *Harness) drainAll() {
	h.T.Helper()
	for _, s := range h.sessions {
		h.drainOne(s)
	}
}

func (h *Harness) drainOne(s *session) {
	h.T.Helper()
	var last []byte
	for {
		select {
		case b := <-s.Out:
			last = b
			continue
		default:
		}
		break
	}
	if len(last) == 0 {
		return
	}
	f, err := protocol.DecodeState(last)
	if err != nil {
		h.T.Fatalf("decode state frame: %v", err)
	}
	s.lastState = &f
}

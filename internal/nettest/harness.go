// Package nettest couples a real client session to a real world through
// simulated one-way delays. Everything runs on a virtual millisecond
// clock inside the test goroutine: no listeners, no sleeps, repeatable
// to the bit.
package nettest

import (
	"github.com/nickandbro/slither-world-sub002/internal/client"
	"github.com/nickandbro/slither-world-sub002/internal/protocol"
	"github.com/nickandbro/slither-world-sub002/internal/sim/tuning"
	"github.com/nickandbro/slither-world-sub002/internal/sim/world"
)

const linkEpochMs = int64(1_700_000_000_000)

// DelayFunc returns the one-way delay in ms for the idx-th frame sent at
// sendMs. Nil means zero delay.
type DelayFunc func(sendMs int64, idx int) int64

// LossFunc reports whether to drop the idx-th frame sent at sendMs.
type LossFunc func(sendMs int64, idx int) bool

// Opts configures one simulated link.
type Opts struct {
	Tuning tuning.Tuning
	Name   string

	Up       DelayFunc // client -> server
	Down     DelayFunc // server -> client
	LossUp   LossFunc
	LossDown LossFunc
}

// Link owns one world, one session, and the two delay queues between
// them. Both ends step once per Tick call, server first, so a zero-delay
// link behaves like a LAN where the freshest snapshot always arrives
// before the client's next frame.
type Link struct {
	w    *world.World
	sess *client.Session

	playerID uint16
	tickMs   int64
	nowMs    int64

	inputs chan<- protocol.InputCommand
	out    chan []byte

	c2s delayQueue
	s2c delayQueue

	up, down DelayFunc
	lossUp   LossFunc
	lossDown LossFunc

	maxPending int
}

func NewLink(o Opts) *Link {
	name := o.Name
	if name == "" {
		name = "probe"
	}

	tickRate := o.Tuning.TickRateHz
	if tickRate <= 0 {
		tickRate = 20
	}
	w := world.New(world.FromTuning("w-nettest", o.Tuning))
	outCap := o.Tuning.Queues.OutQueueCap
	if outCap <= 0 {
		outCap = 16
	}

	l := &Link{
		w:        w,
		tickMs:   int64(1000 / tickRate),
		nowMs:    linkEpochMs,
		out:      make(chan []byte, outCap),
		up:       o.Up,
		down:     o.Down,
		lossUp:   o.LossUp,
		lossDown: o.LossDown,
	}

	respCh := make(chan world.JoinResponse, 1)
	join := world.JoinRequest{Name: name, Out: l.out, Resp: respCh}
	w.StepOnce(l.nowMs, []world.JoinRequest{join}, nil, nil, nil)
	resp := <-respCh
	l.playerID = resp.PlayerID
	l.inputs = resp.Inputs

	cfg := client.Config{
		TickRateHz:  o.Tuning.TickRateHz,
		Movement:    o.Tuning.MovementParams(),
		Prediction:  o.Tuning.PredictionParams(),
		Net:         o.Tuning.NetParams(),
		NetRevision: 1,
	}
	l.sess = client.NewSession(cfg, l.sendInput)

	// The init frame and the join tick's state frame ride the down link
	// like everything else.
	l.s2c.push(l.nowMs, l.down, l.lossDown, resp.Init)
	l.drainOut()
	return l
}

func (l *Link) Session() *client.Session { return l.sess }
func (l *Link) World() *world.World      { return l.w }
func (l *Link) PlayerID() uint16         { return l.playerID }
func (l *Link) Now() int64               { return l.nowMs }
func (l *Link) MaxPendingDepth() int     { return l.maxPending }

// Steer records the intent the next Tick will send.
func (l *Link) Steer(axis [3]float32, boost bool) {
	l.sess.SetIntent(axis, boost)
}

// Tick advances the virtual clock by one tick interval: due inputs reach
// the world, the world steps, due frames reach the session, the session
// steps. Returns the pose the client would render this frame.
func (l *Link) Tick() client.Pose {
	l.nowMs += l.tickMs

	for _, b := range l.c2s.pop(l.nowMs) {
		l.deliverInput(b)
	}
	l.w.StepOnce(l.nowMs, nil, nil, nil, nil)
	l.drainOut()

	for _, b := range l.s2c.pop(l.nowMs) {
		l.sess.HandleFrame(b)
	}
	pose := l.sess.Step(l.nowMs)
	if d := l.sess.PendingDepth(); d > l.maxPending {
		l.maxPending = d
	}
	return pose
}

// RunTicks advances n ticks with the current intent and returns the last pose.
func (l *Link) RunTicks(n int) client.Pose {
	var pose client.Pose
	for i := 0; i < n; i++ {
		pose = l.Tick()
	}
	return pose
}

func (l *Link) sendInput(b []byte) error {
	l.c2s.push(l.nowMs, l.up, l.lossUp, b)
	return nil
}

func (l *Link) deliverInput(b []byte) {
	kind, err := protocol.FrameKind(b)
	if err != nil || kind != protocol.FrameInput {
		return
	}
	cmd, err := protocol.DecodeInput(b)
	if err != nil {
		return
	}
	select {
	case l.inputs <- cmd:
	default:
		l.w.NoteInputDrop()
	}
}

func (l *Link) drainOut() {
	for {
		select {
		case b := <-l.out:
			l.s2c.push(l.nowMs, l.down, l.lossDown, b)
		default:
			return
		}
	}
}

type scheduledFrame struct {
	deliverMs int64
	payload   []byte
}

// delayQueue models an ordered transport: frames never overtake each
// other, so a delivery time earlier than the previous frame's is clamped
// forward.
type delayQueue struct {
	frames []scheduledFrame
	lastMs int64
	idx    int
}

func (q *delayQueue) push(sendMs int64, d DelayFunc, loss LossFunc, payload []byte) {
	i := q.idx
	q.idx++
	if loss != nil && loss(sendMs, i) {
		return
	}
	var delay int64
	if d != nil {
		delay = d(sendMs, i)
	}
	at := sendMs + delay
	if at < q.lastMs {
		at = q.lastMs
	}
	q.lastMs = at
	q.frames = append(q.frames, scheduledFrame{deliverMs: at, payload: payload})
}

func (q *delayQueue) pop(nowMs int64) [][]byte {
	n := 0
	for n < len(q.frames) && q.frames[n].deliverMs <= nowMs {
		n++
	}
	if n == 0 {
		return nil
	}
	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		out[i] = q.frames[i].payload
	}
	q.frames = append(q.frames[:0], q.frames[n:]...)
	return out
}

package world

import (
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/nickandbro/slither-world-sub002/internal/auth"
	"github.com/nickandbro/slither-world-sub002/internal/persistence/snapshot"
	"github.com/nickandbro/slither-world-sub002/internal/protocol"
	"github.com/nickandbro/slither-world-sub002/internal/sphere"
)

type JoinRequest struct {
	Name string
	Out  chan []byte
	Resp chan JoinResponse
}

type AttachRequest struct {
	ResumeToken string
	Out         chan []byte
	Resp        chan JoinResponse
}

// JoinResponse hands the transport everything it needs to run a session:
// the encoded roster frame to deliver first and the input channel the
// connection's reader feeds. Inputs is single-producer; only the owning
// connection may push into it.
type JoinResponse struct {
	OK          bool
	PlayerID    uint16
	Identity    string
	Name        string
	Hue         uint8
	ResumeToken string
	Init        []byte
	Inputs      chan<- protocol.InputCommand
}

// RecordedJoin and RecordedInput are journal rows. Together with leaves
// and admin ops they are sufficient to replay a tick bit-for-bit.
type RecordedJoin struct {
	PlayerID uint16 `json:"player_id"`
	Name     string `json:"name"`
	Hue      uint8  `json:"hue"`
}

type RecordedInput struct {
	PlayerID     uint16     `json:"player_id"`
	Seq          uint16     `json:"seq"`
	HasAxis      bool       `json:"has_axis,omitempty"`
	Axis         [3]float32 `json:"axis,omitempty"`
	Boost        bool       `json:"boost,omitempty"`
	ClientTimeMs int64      `json:"client_time_ms,omitempty"`
}

type RecordedAdmin struct {
	Op       string `json:"op"`
	PlayerID uint16 `json:"player_id"`
}

type TickEntry struct {
	Tick   uint64          `json:"tick"`
	Joins  []RecordedJoin  `json:"joins,omitempty"`
	Leaves []uint16        `json:"leaves,omitempty"`
	Inputs []RecordedInput `json:"inputs,omitempty"`
	Admin  []RecordedAdmin `json:"admin,omitempty"`
	Digest string          `json:"digest"`
}

type TickJournal interface {
	WriteTick(entry TickEntry) error
}

// Player is the authoritative per-player record. Only the world loop
// goroutine touches it.
type Player struct {
	ID       uint16
	Identity string
	Name     string
	Hue      uint8

	State sphere.PlayerState

	// Highest input seq applied for this player. AckValid is false
	// until the first command lands.
	LatestAckSeq uint16
	AckValid     bool

	// Nonzero while disconnected: the tick at which the player is
	// dropped unless a session re-attaches first.
	RemoveAtTick uint64

	resumeToken string
}

type session struct {
	out    chan []byte
	inputs chan protocol.InputCommand
}

// World is a single-threaded authoritative simulation.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg    WorldConfig
	moveP  sphere.Params
	tickDt float64

	tick atomic.Uint64

	players map[uint16]*Player
	order   []uint16 // sorted ids, the deterministic iteration order

	sessions map[uint16]*session

	join   chan JoinRequest
	attach chan AttachRequest
	leave  chan uint16
	admin  chan AdminRequest
	stop   chan struct{}

	nextPlayerNum atomic.Uint64
	spawnSeq      uint64

	// Cumulative counters published through Metrics.
	inputsApplied uint64
	framesSent    uint64
	inputDrops    atomic.Uint64

	// Optional journal (may be nil). Implemented in internal/persistence/*.
	journal TickJournal

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- snapshot.SnapshotV1

	metrics atomic.Value
}

func New(cfg WorldConfig) *World {
	cfg.applyDefaults()
	w := &World{
		cfg:      cfg,
		moveP:    cfg.params(),
		tickDt:   1.0 / float64(cfg.TickRateHz),
		players:  map[uint16]*Player{},
		sessions: map[uint16]*session{},
		join:     make(chan JoinRequest, 64),
		attach:   make(chan AttachRequest, 64),
		leave:    make(chan uint16, 64),
		admin:    make(chan AdminRequest, 64),
		stop:     make(chan struct{}),
	}
	return w
}

func (w *World) SetJournal(j TickJournal)                      { w.journal = j }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) Join() chan<- JoinRequest     { return w.join }
func (w *World) Attach() chan<- AttachRequest { return w.attach }
func (w *World) Leave() chan<- uint16         { return w.leave }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) TickRateHz() int {
	if w == nil {
		return 0
	}
	return w.cfg.TickRateHz
}

// NoteInputDrop is called by transports when a session's input queue is
// full and a command had to be discarded.
func (w *World) NoteInputDrop() { w.inputDrops.Add(1) }

func (w *World) joinPlayer(name string, hue uint8, out chan []byte, nowTick uint64, nowMs int64) JoinResponse {
	if name == "" {
		name = "snake"
	}
	if len(name) > protocol.MaxNameLen {
		name = name[:protocol.MaxNameLen]
	}

	idNum := w.nextPlayerNum.Add(1)
	id := uint16(idNum)
	for w.players[id] != nil || id == 0 {
		idNum = w.nextPlayerNum.Add(1)
		id = uint16(idNum)
	}
	identity := fmt.Sprintf("P%06d", idNum)
	if hue == 0 {
		hue = uint8(idNum*47%255) + 1
	}

	head, heading := w.spawnPose()
	p := &Player{
		ID:       id,
		Identity: identity,
		Name:     name,
		Hue:      hue,
		State:    sphere.PlayerState{Head: head, Heading: heading, Alive: true},
	}
	w.players[id] = p
	w.order = append(w.order, id)
	sortIDs(w.order)

	resp := JoinResponse{
		OK:       true,
		PlayerID: id,
		Identity: identity,
		Name:     name,
		Hue:      hue,
	}
	if out != nil {
		s := &session{out: out, inputs: make(chan protocol.InputCommand, w.cfg.InputQueueCap)}
		w.sessions[id] = s
		resp.Inputs = s.inputs
		token, err := auth.NewResumeToken(identity, w.cfg.ID)
		if err == nil {
			p.resumeToken = token
			resp.ResumeToken = token
		}
		resp.Init = w.buildInit(id, nowMs)
	}
	return resp
}

// spawnPose walks a golden-angle spiral so spawns spread over the sphere
// and stay reproducible across snapshot resume and journal replay.
func (w *World) spawnPose() (head, heading sphere.Vec3) {
	n := w.spawnSeq
	w.spawnSeq++

	i := float64(n)
	z := math.Mod(i*0.6180339887498949, 1)*2 - 1
	if z > 0.98 {
		z = 0.98
	} else if z < -0.98 {
		z = -0.98
	}
	lon := i * 2.399963229728653
	r := math.Sqrt(1 - z*z)
	head = sphere.Vec3{X: r * math.Cos(lon), Y: r * math.Sin(lon), Z: z}

	heading, ok := sphere.Tangent(head, sphere.Vec3{Z: 1})
	if !ok {
		heading, _ = sphere.Tangent(head, sphere.Vec3{X: 1})
	}
	return head, heading
}

func (w *World) buildInit(localID uint16, nowMs int64) []byte {
	f := protocol.InitFrame{
		LocalID:      localID,
		ServerTimeMs: nowMs,
		Players:      make([]protocol.InitPlayer, 0, len(w.order)),
	}
	for _, id := range w.order {
		p := w.players[id]
		f.Players = append(f.Players, protocol.InitPlayer{
			ID:       p.ID,
			Identity: p.Identity,
			Name:     p.Name,
			Hue:      p.Hue,
		})
	}
	return protocol.EncodeInit(&f)
}

// handleAttach rebinds a dropped session to its player. It runs outside
// the tick phases because it never mutates simulation state that the
// digest covers; token rotation and session wiring are transport-side.
func (w *World) handleAttach(req AttachRequest, nowMs int64) {
	respond := func(r JoinResponse) {
		if req.Resp != nil {
			req.Resp <- r
		}
	}
	if req.ResumeToken == "" || req.Out == nil {
		respond(JoinResponse{})
		return
	}
	claims, err := auth.VerifyResumeToken(req.ResumeToken)
	if err != nil || claims.WorldID != w.cfg.ID {
		respond(JoinResponse{})
		return
	}

	var p *Player
	for _, id := range w.order {
		if cand := w.players[id]; cand != nil && cand.Identity == claims.Identity {
			p = cand
			break
		}
	}
	if p == nil || p.resumeToken != req.ResumeToken {
		respond(JoinResponse{})
		return
	}

	// Fresh input channel so the dead connection's producer cannot race
	// the new one.
	s := &session{out: req.Out, inputs: make(chan protocol.InputCommand, w.cfg.InputQueueCap)}
	w.sessions[p.ID] = s
	p.RemoveAtTick = 0

	token, err := auth.NewResumeToken(p.Identity, w.cfg.ID)
	if err == nil {
		p.resumeToken = token
	}
	respond(JoinResponse{
		OK:          true,
		PlayerID:    p.ID,
		Identity:    p.Identity,
		Name:        p.Name,
		Hue:         p.Hue,
		ResumeToken: token,
		Init:        w.buildInit(p.ID, nowMs),
		Inputs:      s.inputs,
	})
}

// handleLeave detaches the session and starts the removal clock. The
// player stays in the world, stationary, until the grace window ends.
func (w *World) handleLeave(id uint16, nowTick uint64) bool {
	p := w.players[id]
	if p == nil {
		return false
	}
	if s := w.sessions[id]; s != nil {
		drainInputs(s.inputs, nil)
		delete(w.sessions, id)
	}
	if p.RemoveAtTick == 0 {
		p.RemoveAtTick = nowTick + w.cfg.DisconnectGraceTicks
	}
	return true
}

func (w *World) removePlayer(id uint16) {
	delete(w.players, id)
	delete(w.sessions, id)
	for i, v := range w.order {
		if v == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
}

func sortIDs(ids []uint16) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// drainInputs empties ch without blocking, appending each command to dst.
func drainInputs(ch chan protocol.InputCommand, dst []protocol.InputCommand) []protocol.InputCommand {
	for {
		select {
		case cmd := <-ch:
			dst = append(dst, cmd)
		default:
			return dst
		}
	}
}

func nowUnixMs() int64 { return time.Now().UnixMilli() }

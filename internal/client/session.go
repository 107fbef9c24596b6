package client

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/nickandbro/slither-world-sub002/internal/protocol"
	"github.com/nickandbro/slither-world-sub002/internal/sphere"
)

// Config carries the server-issued parameters a session needs to run
// prediction with the exact same math as the authoritative simulator.
// Build one from the welcome message with ConfigFromWelcome.
type Config struct {
	TickRateHz  int
	Movement    protocol.MovementParams
	Prediction  protocol.PredictionParams
	Net         protocol.NetParams
	NetRevision uint64
}

// ConfigFromWelcome extracts the session parameters from a decoded welcome.
func ConfigFromWelcome(w protocol.WelcomeMsg) Config {
	return Config{
		TickRateHz:  w.TickRateHz,
		Movement:    w.Movement,
		Prediction:  w.Prediction,
		Net:         w.Net,
		NetRevision: w.NetRevision,
	}
}

func (c *Config) applyDefaults() {
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	if c.Movement.TurnRateDegPerSec <= 0 {
		c.Movement.TurnRateDegPerSec = 220
	}
	if c.Movement.BaseSpeedDegPerSec <= 0 {
		c.Movement.BaseSpeedDegPerSec = 50
	}
	if c.Movement.BoostSpeedMult <= 0 {
		c.Movement.BoostSpeedMult = 1.6
	}
	if c.Prediction.SoftCorrectionDeg <= 0 {
		c.Prediction.SoftCorrectionDeg = 0.35
	}
	if c.Prediction.HardCorrectionDeg <= 0 {
		c.Prediction.HardCorrectionDeg = 5
	}
	if c.Prediction.SoftBlendFrames <= 0 {
		c.Prediction.SoftBlendFrames = 6
	}
	if c.Prediction.StaleSpikeMs <= 0 {
		c.Prediction.StaleSpikeMs = 250
	}
	if c.Prediction.PendingInputCap <= 0 {
		c.Prediction.PendingInputCap = 64
	}
}

// RosterEntry is what the init frame told us about a player.
type RosterEntry struct {
	Identity string
	Name     string
	Hue      uint8
}

// Pose is the local player's renderable state for one frame.
type Pose struct {
	Head     sphere.Vec3
	Heading  sphere.Vec3
	Alive    bool
	Boosting bool
}

// RemoteView pairs an interpolated remote pose with its roster identity.
type RemoteView struct {
	ID   uint16
	Name string
	Hue  uint8
	Pose RemotePose
}

const (
	inboxCap         = 64
	remoteSweepAgeMs = 2000
)

// Session is the client-side prediction driver. It owns the sequencer,
// predictor, reconciler, smoother and interpolator and advances them all
// from a single Step call per render frame.
//
// Threading: Step and every accessor except HandleFrame, SetIntent and
// DiagSnapshot must be called from the same goroutine. HandleFrame and
// SetIntent may be called from transport or UI goroutines; DiagSnapshot
// is safe from anywhere.
type Session struct {
	cfg    Config
	moveP  sphere.Params
	tickDt float64

	diag     *Registry
	seqr     *Sequencer
	rec      *Reconciler
	smoother *Smoother
	interp   *RemoteInterpolator

	send func([]byte) error

	inbox      chan []byte
	inboxDrops atomic.Uint64

	intentMu     sync.Mutex
	intentAxis   [3]float32
	intentHas    bool
	intentBoost  bool
	intentWrites uint64

	ready   bool
	localID uint16
	roster  map[uint16]RosterEntry

	haveAuth  bool
	auth      sphere.PlayerState
	predicted sphere.PlayerState

	// Presentation offset: the rotation from the predicted head to the
	// head we are still displaying, bled off over a few frames after a
	// soft correction. Prediction itself always runs on the corrected
	// state; only rendering lags behind.
	offAxis sphere.Vec3
	offDeg  float64
	offStep float64

	clockOffsetMs int64
	haveClock     bool

	lastStateSeq uint32
	haveStateSeq bool
	totalPlayers uint16

	lastPose Pose

	diagSnap atomic.Value // Report
}

// NewSession builds a session from server-issued parameters. send is called
// once per enabled Step with an encoded input frame; pass nil for offline use.
func NewSession(cfg Config, send func([]byte) error) *Session {
	cfg.applyDefaults()
	const degToRad = math.Pi / 180
	diag := NewRegistry()
	s := &Session{
		cfg: cfg,
		moveP: sphere.Params{
			TurnRateRad:   cfg.Movement.TurnRateDegPerSec * degToRad,
			BaseSpeedRad:  cfg.Movement.BaseSpeedDegPerSec * degToRad,
			BoostSpeedMul: cfg.Movement.BoostSpeedMult,
		},
		tickDt: 1 / float64(cfg.TickRateHz),
		diag:   diag,
		send:   send,
		inbox:  make(chan []byte, inboxCap),
		roster: make(map[uint16]RosterEntry),
	}
	s.seqr = NewSequencer(cfg.Prediction.PendingInputCap, diag)
	s.rec = NewReconciler(ReconcilerConfig{
		SoftDeg:     cfg.Prediction.SoftCorrectionDeg,
		HardDeg:     cfg.Prediction.HardCorrectionDeg,
		BlendFrames: cfg.Prediction.SoftBlendFrames,
	}, s.moveP, s.tickDt, diag)
	s.smoother = NewSmoother(cfg.Net, cfg.TickRateHz, cfg.Prediction.StaleSpikeMs, diag)
	s.smoother.rev = cfg.NetRevision
	s.interp = NewRemoteInterpolator()
	return s
}

// HandleFrame hands a server frame to the session. Safe to call from the
// transport reader goroutine. The inbox is bounded; when it is full the
// oldest undrained frame is discarded so a stalled Step loop never blocks
// the reader.
func (s *Session) HandleFrame(frame []byte) {
	select {
	case s.inbox <- frame:
		return
	default:
	}
	select {
	case <-s.inbox:
		s.inboxDrops.Add(1)
	default:
	}
	select {
	case s.inbox <- frame:
	default:
		s.inboxDrops.Add(1)
	}
}

// SetIntent records the latest steering intent. Calling it more than once
// between Steps overwrites the previous value; only the newest intent is
// ever sent, and the overwrites are counted as coalesced.
func (s *Session) SetIntent(axis [3]float32, boost bool) {
	s.intentMu.Lock()
	s.intentAxis = axis
	s.intentHas = axis != [3]float32{}
	s.intentBoost = boost
	s.intentWrites++
	s.intentMu.Unlock()
}

func (s *Session) takeIntent() (axis [3]float32, has, boost bool, writes uint64) {
	s.intentMu.Lock()
	axis, has, boost = s.intentAxis, s.intentHas, s.intentBoost
	writes = s.intentWrites
	s.intentWrites = 0
	s.intentMu.Unlock()
	return axis, has, boost, writes
}

// ApplyNetParams installs a new smoothing parameter set mid-session.
func (s *Session) ApplyNetParams(net protocol.NetParams, revision uint64, nowMs int64) {
	s.smoother.ApplyTuning(net, revision, nowMs)
}

// Step drains inbound frames, runs reconciliation, emits at most one input
// command and advances prediction by one tick. It returns the pose to render
// this frame. Call it exactly once per tick interval.
func (s *Session) Step(nowMs int64) Pose {
drain:
	for {
		select {
		case frame := <-s.inbox:
			s.handleFrame(frame, nowMs)
		default:
			break drain
		}
	}

	reason := s.disabledReason(nowMs)
	s.diag.SetDisabledReason(reason)

	axis, has, boost, writes := s.takeIntent()
	if writes > 1 {
		s.diag.CountN(CounterInputsCoalesced, writes-1)
	}

	if reason == DisabledNone {
		cmd := s.seqr.Next(axis, has, boost, nowMs)
		if s.send != nil {
			if err := s.send(protocol.EncodeInput(&cmd)); err != nil {
				s.diag.Count(CounterInputSendFailed)
			}
		}
		s.diag.Count(CounterInputsSent)
		s.predicted = sphere.Advance(s.moveP, s.predicted, cmd, s.tickDt)
	}

	s.decayOffset()
	pose := s.presentedPose(reason)
	s.lastPose = pose
	s.smoother.Step(nowMs, pose.Head)
	s.publishDiag()
	return pose
}

func (s *Session) handleFrame(frame []byte, nowMs int64) {
	kind, err := protocol.FrameKind(frame)
	if err != nil {
		s.diag.Count(CounterDecodeFailed)
		return
	}
	switch kind {
	case protocol.FrameInit:
		s.handleInit(frame, nowMs)
	case protocol.FrameState:
		s.handleState(frame, nowMs)
	default:
		s.diag.Count(CounterDecodeFailed)
	}
}

func (s *Session) handleInit(frame []byte, nowMs int64) {
	f, err := protocol.DecodeInit(frame)
	if err != nil {
		s.diag.Count(CounterDecodeFailed)
		return
	}
	s.localID = f.LocalID
	for _, p := range f.Players {
		s.roster[p.ID] = RosterEntry{Identity: p.Identity, Name: p.Name, Hue: p.Hue}
	}
	s.clockOffsetMs = f.ServerTimeMs - nowMs
	s.haveClock = true
	s.ready = true
}

func (s *Session) handleState(frame []byte, nowMs int64) {
	f, err := protocol.DecodeState(frame)
	if err != nil {
		s.diag.Count(CounterDecodeFailed)
		return
	}
	if s.haveStateSeq && !protocol.SnapNewer(f.Seq, s.lastStateSeq) {
		s.diag.Count(CounterStaleSeq)
		return
	}
	s.lastStateSeq = f.Seq
	s.haveStateSeq = true
	s.totalPlayers = f.TotalPlayers

	// Capture the spike state before the arrival flips it to recovering:
	// the correction this snapshot triggers belongs to the spike.
	spike := s.smoother.State() == SmoothSpikeActive
	s.smoother.OnArrival(nowMs)
	s.clockOffsetMs = f.ServerTimeMs - nowMs
	s.haveClock = true
	for i := range f.Players {
		e := &f.Players[i]
		if e.ID == s.localID {
			s.reconcileSelf(e, f.LatestAckSeq, spike, nowMs)
			continue
		}
		head, heading := poseFromEntry(e)
		s.interp.Push(e.ID, head, heading, e.Alive, e.Boosting, f.ServerTimeMs)
	}
	s.interp.Sweep(f.ServerTimeMs, remoteSweepAgeMs)
	s.diag.Count(CounterSnapshotsApplied)
}

func poseFromEntry(e *protocol.StatePlayer) (head, heading sphere.Vec3) {
	head = sphere.FromF32(e.Pos).Normalize()
	heading = sphere.FromF32(e.Heading)
	if t, ok := sphere.Tangent(head, heading); ok {
		heading = t
	}
	return head, heading
}

func (s *Session) reconcileSelf(e *protocol.StatePlayer, ack uint16, spike bool, nowMs int64) {
	head, heading := poseFromEntry(e)
	auth := sphere.PlayerState{Head: head, Heading: heading, Alive: e.Alive, Boosting: e.Boosting}

	displayed := auth.Head
	if s.haveAuth {
		displayed = s.presentedHead()
	}
	res := s.rec.OnSnapshot(auth, ack, s.seqr, displayed, spike, nowMs)
	if res.Outcome == OutcomeStale {
		return
	}

	prevRender := displayed
	s.auth = auth
	s.haveAuth = true
	s.predicted = res.Predicted

	if res.Outcome == OutcomeHard {
		s.clearOffset()
		return
	}
	s.setOffsetToward(prevRender)
}

// setOffsetToward re-anchors the presentation offset so the rendered head
// stays where it was while the corrected prediction takes over underneath.
func (s *Session) setOffsetToward(oldHead sphere.Vec3) {
	ang := sphere.Angle(s.predicted.Head, oldHead)
	if ang < 1e-9 {
		s.clearOffset()
		return
	}
	axis := s.predicted.Head.Cross(oldHead)
	if axis.Len() < 1e-12 {
		s.clearOffset()
		return
	}
	s.offAxis = axis.Normalize()
	s.offDeg = ang * 180 / math.Pi
	s.offStep = s.offDeg / float64(s.cfg.Prediction.SoftBlendFrames)
}

func (s *Session) clearOffset() {
	s.offAxis = sphere.Vec3{}
	s.offDeg = 0
	s.offStep = 0
}

func (s *Session) decayOffset() {
	if s.offDeg <= 0 {
		return
	}
	s.offDeg -= s.offStep
	if s.offDeg <= 1e-9 {
		s.clearOffset()
	}
}

func (s *Session) presentedHead() sphere.Vec3 {
	if s.offDeg <= 0 {
		return s.predicted.Head
	}
	return sphere.RotateAbout(s.predicted.Head, s.offAxis, s.offDeg*math.Pi/180)
}

func (s *Session) presentedPose(reason DisabledReason) Pose {
	if reason != DisabledNone {
		// Prediction is off: show the authoritative state directly.
		return Pose{Head: s.auth.Head, Heading: s.auth.Heading, Alive: s.auth.Alive, Boosting: s.auth.Boosting}
	}
	if s.offDeg <= 0 {
		return Pose{Head: s.predicted.Head, Heading: s.predicted.Heading, Alive: s.predicted.Alive, Boosting: s.predicted.Boosting}
	}
	rad := s.offDeg * math.Pi / 180
	return Pose{
		Head:     sphere.RotateAbout(s.predicted.Head, s.offAxis, rad),
		Heading:  sphere.RotateAbout(s.predicted.Heading, s.offAxis, rad),
		Alive:    s.predicted.Alive,
		Boosting: s.predicted.Boosting,
	}
}

func (s *Session) disabledReason(nowMs int64) DisabledReason {
	if !s.ready || !s.haveAuth {
		return DisabledNotReady
	}
	if stale, ok := s.smoother.StaleFor(nowMs); ok && stale > float64(s.cfg.Prediction.StaleSpikeMs) {
		return DisabledSpike
	}
	if !s.auth.Alive {
		return DisabledDead
	}
	return DisabledNone
}

// Ready reports whether the init frame has arrived.
func (s *Session) Ready() bool { return s.ready }

// LocalID returns the server-assigned player id. Zero until Ready.
func (s *Session) LocalID() uint16 { return s.localID }

// TotalPlayers returns the world population from the latest snapshot.
func (s *Session) TotalPlayers() uint16 { return s.totalPlayers }

// PendingDepth returns the number of unacknowledged predicted inputs.
func (s *Session) PendingDepth() int { return s.seqr.Len() }

// Roster looks up the identity the init frame recorded for a player.
func (s *Session) Roster(id uint16) (RosterEntry, bool) {
	r, ok := s.roster[id]
	return r, ok
}

// CameraHead returns the smoothed camera anchor for this frame. During a
// lag spike it holds near the pre-spike pose instead of following the
// frozen player.
func (s *Session) CameraHead(nowMs int64) sphere.Vec3 {
	return s.smoother.CameraHead(nowMs, s.lastPose.Head)
}

// Remotes samples every tracked remote player at the delayed render time.
func (s *Session) Remotes(nowMs int64) []RemoteView {
	if !s.haveClock {
		return nil
	}
	renderMs := nowMs + s.clockOffsetMs - int64(s.smoother.PlayoutDelayMs())
	ids := s.interp.IDs()
	out := make([]RemoteView, 0, len(ids))
	for _, id := range ids {
		pose, ok := s.interp.Sample(id, renderMs)
		if !ok {
			continue
		}
		v := RemoteView{ID: id, Pose: pose}
		if r, ok := s.roster[id]; ok {
			v.Name = r.Name
			v.Hue = r.Hue
		}
		out = append(out, v)
	}
	return out
}

func (s *Session) publishDiag() {
	ack, ackValid := s.rec.Ack()
	counters := s.diag.CountersCopy()
	if d := s.inboxDrops.Load(); d > 0 {
		counters[CounterInboxDropped] = d
	}
	s.diagSnap.Store(Report{
		PlayerID:     s.localID,
		Prediction:   s.diag.Prediction(),
		PendingDepth: s.seqr.Len(),
		LatestAckSeq: ack,
		AckValid:     ackValid,
		Net:          s.smoother.Summary(),
		Counters:     counters,
		Events:       s.diag.EventTail(),
	})
}

// DiagSnapshot returns the report published by the most recent Step.
// Safe to call from any goroutine.
func (s *Session) DiagSnapshot() Report {
	v := s.diagSnap.Load()
	if v == nil {
		return Report{}
	}
	r, ok := v.(Report)
	if !ok {
		return Report{}
	}
	return r
}

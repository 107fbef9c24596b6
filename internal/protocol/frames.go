package protocol

import (
	"encoding/binary"
	"math"
)

// All multi-byte fields are little-endian. Strings are a length byte
// followed by raw bytes.

// InputCommand is one steering sample from a client. Seq wraps at 16
// bits; compare with the seq helpers, never with < directly.
type InputCommand struct {
	Seq          uint16
	HasAxis      bool
	Axis         [3]float32
	Boost        bool
	ClientTimeMs int64
}

// InitPlayer is one row of the join-time roster.
type InitPlayer struct {
	ID       uint16
	Identity string
	Name     string
	Hue      uint8
}

// InitFrame seeds a fresh session: the local player's wire id, the
// server clock, and display metadata for everyone currently in the world.
type InitFrame struct {
	LocalID      uint16
	ServerTimeMs int64
	Players      []InitPlayer
}

// StatePlayer is one scoped entry of a state frame. When Quantized is
// set, Pos and Heading traveled as octahedral int16 pairs and carry the
// dequantized values after decode.
type StatePlayer struct {
	ID        uint16
	Alive     bool
	Boosting  bool
	Quantized bool
	Pos       [3]float32
	Heading   [3]float32
}

// StateFrame is the per-tick snapshot a session receives. Players holds
// only the entries inside the receiver's view scope; TotalPlayers is the
// whole-world count.
type StateFrame struct {
	ServerTimeMs int64
	Seq          uint32
	TotalPlayers uint16
	LatestAckSeq uint16
	Players      []StatePlayer
}

func EncodeInit(f *InitFrame) []byte {
	b := make([]byte, 0, 16+len(f.Players)*24)
	b = append(b, Version, FrameInit)
	b = appendU16(b, f.LocalID)
	b = appendI64(b, f.ServerTimeMs)
	b = appendU16(b, uint16(len(f.Players)))
	for i := range f.Players {
		p := &f.Players[i]
		b = appendU16(b, p.ID)
		b = appendStr8(b, p.Identity)
		b = appendStr8(b, p.Name)
		b = append(b, p.Hue)
	}
	return b
}

func DecodeInit(b []byte) (InitFrame, error) {
	var f InitFrame
	r, err := newReader(b, FrameInit)
	if err != nil {
		return f, err
	}
	f.LocalID = r.u16()
	f.ServerTimeMs = r.i64()
	n := int(r.u16())
	if r.err == nil && n > MaxPlayersPerFrame {
		return f, ErrBadCount
	}
	if r.err == nil && n > 0 {
		f.Players = make([]InitPlayer, 0, n)
	}
	for i := 0; i < n && r.err == nil; i++ {
		var p InitPlayer
		p.ID = r.u16()
		p.Identity = r.str8()
		p.Name = r.str8()
		p.Hue = r.u8()
		f.Players = append(f.Players, p)
	}
	return f, r.finish()
}

func EncodeState(f *StateFrame) []byte {
	b := make([]byte, 0, 20+len(f.Players)*27)
	b = append(b, Version, FrameState)
	b = appendI64(b, f.ServerTimeMs)
	b = appendU32(b, f.Seq)
	b = appendU16(b, f.TotalPlayers)
	b = appendU16(b, f.LatestAckSeq)
	b = appendU16(b, uint16(len(f.Players)))
	for i := range f.Players {
		p := &f.Players[i]
		b = appendU16(b, p.ID)
		var flags byte
		if p.Alive {
			flags |= FlagAlive
		}
		if p.Boosting {
			flags |= FlagBoosting
		}
		if p.Quantized {
			flags |= FlagQuantized
		}
		b = append(b, flags)
		if p.Quantized {
			b = appendOct(b, p.Pos)
			b = appendOct(b, p.Heading)
		} else {
			b = appendVec(b, p.Pos)
			b = appendVec(b, p.Heading)
		}
	}
	return b
}

func DecodeState(b []byte) (StateFrame, error) {
	var f StateFrame
	r, err := newReader(b, FrameState)
	if err != nil {
		return f, err
	}
	f.ServerTimeMs = r.i64()
	f.Seq = r.u32()
	f.TotalPlayers = r.u16()
	f.LatestAckSeq = r.u16()
	n := int(r.u16())
	if r.err == nil && n > MaxPlayersPerFrame {
		return f, ErrBadCount
	}
	if r.err == nil && n > 0 {
		f.Players = make([]StatePlayer, 0, n)
	}
	for i := 0; i < n && r.err == nil; i++ {
		var p StatePlayer
		p.ID = r.u16()
		flags := r.u8()
		p.Alive = flags&FlagAlive != 0
		p.Boosting = flags&FlagBoosting != 0
		p.Quantized = flags&FlagQuantized != 0
		if p.Quantized {
			p.Pos = OctDecode(r.i16(), r.i16())
			p.Heading = OctDecode(r.i16(), r.i16())
		} else {
			p.Pos = r.vec()
			p.Heading = r.vec()
		}
		f.Players = append(f.Players, p)
	}
	return f, r.finish()
}

func EncodeInput(c *InputCommand) []byte {
	b := make([]byte, 0, 24)
	b = append(b, Version, FrameInput)
	b = appendU16(b, c.Seq)
	var flags byte
	if c.HasAxis {
		flags |= InputFlagAxis
	}
	if c.Boost {
		flags |= InputFlagBoost
	}
	b = append(b, flags)
	if c.HasAxis {
		b = appendVec(b, c.Axis)
	}
	b = appendI64(b, c.ClientTimeMs)
	return b
}

func DecodeInput(b []byte) (InputCommand, error) {
	var c InputCommand
	r, err := newReader(b, FrameInput)
	if err != nil {
		return c, err
	}
	c.Seq = r.u16()
	flags := r.u8()
	c.HasAxis = flags&InputFlagAxis != 0
	c.Boost = flags&InputFlagBoost != 0
	if c.HasAxis {
		c.Axis = r.vec()
	}
	c.ClientTimeMs = r.i64()
	return c, r.finish()
}

func appendU16(b []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(b, v)
}

func appendU32(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}

func appendI64(b []byte, v int64) []byte {
	return binary.LittleEndian.AppendUint64(b, uint64(v))
}

func appendF32(b []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
}

func appendVec(b []byte, v [3]float32) []byte {
	b = appendF32(b, v[0])
	b = appendF32(b, v[1])
	return appendF32(b, v[2])
}

func appendOct(b []byte, v [3]float32) []byte {
	qx, qy := OctEncode(v)
	b = appendU16(b, uint16(qx))
	return appendU16(b, uint16(qy))
}

func appendStr8(b []byte, s string) []byte {
	if len(s) > 255 {
		s = s[:255]
	}
	b = append(b, byte(len(s)))
	return append(b, s...)
}

// frameReader walks a frame with a sticky error so decode bodies read
// straight through without per-field checks.
type frameReader struct {
	b   []byte
	off int
	err error
}

func newReader(b []byte, kind byte) (*frameReader, error) {
	if len(b) < 2 {
		return nil, ErrShortFrame
	}
	if b[0] != Version {
		return nil, ErrBadVersion
	}
	if b[1] != kind {
		return nil, ErrBadFrameKind
	}
	return &frameReader{b: b, off: 2}, nil
}

func (r *frameReader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if len(r.b)-r.off < n {
		r.err = ErrShortFrame
		return false
	}
	return true
}

func (r *frameReader) u8() byte {
	if !r.need(1) {
		return 0
	}
	v := r.b[r.off]
	r.off++
	return v
}

func (r *frameReader) u16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.b[r.off:])
	r.off += 2
	return v
}

func (r *frameReader) i16() int16 {
	return int16(r.u16())
}

func (r *frameReader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.b[r.off:])
	r.off += 4
	return v
}

func (r *frameReader) i64() int64 {
	if !r.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.b[r.off:])
	r.off += 8
	return int64(v)
}

func (r *frameReader) f32() float32 {
	return math.Float32frombits(r.u32())
}

func (r *frameReader) vec() [3]float32 {
	return [3]float32{r.f32(), r.f32(), r.f32()}
}

func (r *frameReader) str8() string {
	n := int(r.u8())
	if !r.need(n) {
		return ""
	}
	s := string(r.b[r.off : r.off+n])
	r.off += n
	return s
}

func (r *frameReader) finish() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.b) {
		return ErrTrailing
	}
	return nil
}

package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
)

// stateDigest hashes everything replay must reproduce: kinematics, ack
// bookkeeping, lifecycle clocks and the spawn counters. Resume tokens
// are wall-clock dependent and deliberately excluded.
func (w *World) stateDigest(tick uint64) string {
	h := sha256.New()
	writeU64(h, tick)
	writeU64(h, w.nextPlayerNum.Load())
	writeU64(h, w.spawnSeq)
	writeU64(h, uint64(len(w.order)))
	for _, id := range w.order {
		p := w.players[id]
		writeU16(h, p.ID)
		h.Write([]byte(p.Identity))
		h.Write([]byte{p.Hue})
		writeF64(h, p.State.Head.X)
		writeF64(h, p.State.Head.Y)
		writeF64(h, p.State.Head.Z)
		writeF64(h, p.State.Heading.X)
		writeF64(h, p.State.Heading.Y)
		writeF64(h, p.State.Heading.Z)
		h.Write([]byte{boolByte(p.State.Alive), boolByte(p.State.Boosting), boolByte(p.AckValid)})
		writeU16(h, p.LatestAckSeq)
		writeU64(h, p.RemoveAtTick)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeU16(h hash.Hash, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	h.Write(b[:])
}

func writeU64(h hash.Hash, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	h.Write(b[:])
}

func writeF64(h hash.Hash, v float64) {
	writeU64(h, math.Float64bits(v))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

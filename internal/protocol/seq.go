package protocol

// Input sequence numbers live in 16 bits and wrap. All comparisons go
// through the signed-difference helpers below so behavior stays correct
// across the 65535 -> 0 boundary.

// SeqNewer reports whether a was issued after b.
func SeqNewer(a, b uint16) bool {
	return int16(a-b) > 0
}

// SeqNewerOrEqual reports whether a was issued at or after b.
func SeqNewerOrEqual(a, b uint16) bool {
	return int16(a-b) >= 0
}

// SeqDelta returns the signed distance from b to a. Positive means a is
// newer. The result is meaningful as long as the true distance is under
// half the sequence space.
func SeqDelta(a, b uint16) int {
	return int(int16(a - b))
}

// SnapNewer is the 32-bit analog for snapshot sequence numbers.
func SnapNewer(a, b uint32) bool {
	return int32(a-b) > 0
}

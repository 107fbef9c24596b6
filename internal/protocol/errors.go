package protocol

import "errors"

// Decode failures. Transports drop the frame and count it; they never
// tear the session down over a single bad frame.
var (
	ErrShortFrame   = errors.New("protocol: frame truncated")
	ErrBadVersion   = errors.New("protocol: version mismatch")
	ErrBadFrameKind = errors.New("protocol: unknown frame kind")
	ErrBadCount     = errors.New("protocol: count field out of range")
	ErrTrailing     = errors.New("protocol: trailing bytes after frame")
)

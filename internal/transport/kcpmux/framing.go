package kcpmux

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"time"

	"github.com/nickandbro/slither-world-sub002/internal/protocol"
)

// KCP hands us a byte stream, so frames travel with a 4-byte big-endian
// length prefix. The prefix counts only the payload.
const (
	readTimeout  = 15 * time.Second
	writeTimeout = 1 * time.Second
)

var ErrFrameTooLarge = errors.New("frame exceeds size limit")

func WriteFrame(conn net.Conn, b []byte, timeout time.Duration) error {
	if len(b) > protocol.MaxFrameSize {
		return ErrFrameTooLarge
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(b)))
	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	if _, err := conn.Write(hdr[:]); err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	_, err := conn.Write(b)
	return err
}

func ReadFrame(conn net.Conn, timeout time.Duration) ([]byte, error) {
	var hdr [4]byte
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > protocol.MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, n)
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

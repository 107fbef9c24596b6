package kcpmux

import (
	"net"
	"time"

	kcp "github.com/xtaci/kcp-go/v5"
)

// Conn is the client end of a KCP session, used by the bot and by
// loopback tooling. Reads and writes use the shared frame codec.
type Conn struct {
	c net.Conn
}

func Dial(addr string) (*Conn, error) {
	c, err := kcp.DialWithOptions(addr, nil, 0, 0)
	if err != nil {
		return nil, err
	}
	return &Conn{c: c}, nil
}

func (c *Conn) WriteFrame(b []byte) error { return WriteFrame(c.c, b, writeTimeout) }

func (c *Conn) ReadFrame() ([]byte, error) { return ReadFrame(c.c, readTimeout) }

// ReadFrameTimeout reads one frame with an explicit deadline, for
// handshake steps that should fail fast.
func (c *Conn) ReadFrameTimeout(d time.Duration) ([]byte, error) { return ReadFrame(c.c, d) }

func (c *Conn) Close() error { return c.c.Close() }

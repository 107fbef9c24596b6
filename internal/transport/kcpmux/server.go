package kcpmux

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"strings"
	"time"

	kcp "github.com/xtaci/kcp-go/v5"
	"golang.org/x/time/rate"

	"github.com/nickandbro/slither-world-sub002/internal/protocol"
	"github.com/nickandbro/slither-world-sub002/internal/sim/tuning"
	"github.com/nickandbro/slither-world-sub002/internal/sim/world"
)

// Server speaks the same session protocol as the websocket transport,
// carried over KCP for clients that want UDP latency behavior. The hello
// and welcome travel as JSON frames; everything after is binary.
type Server struct {
	world  *world.World
	tstore *tuning.Store
	log    *log.Logger

	lis *kcp.Listener
}

func NewServer(w *world.World, ts *tuning.Store, logger *log.Logger) *Server {
	return &Server{world: w, tstore: ts, log: logger}
}

// Listen binds the UDP address. Plain KCP, no FEC or crypto.
func (s *Server) Listen(addr string) error {
	lis, err := kcp.ListenWithOptions(addr, nil, 0, 0)
	if err != nil {
		return err
	}
	s.lis = lis
	return nil
}

func (s *Server) Addr() net.Addr {
	if s.lis == nil {
		return nil
	}
	return s.lis.Addr()
}

// Serve accepts sessions until ctx is done or the listener closes.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.lis.Close()
	}()
	for {
		conn, err := s.lis.AcceptKCP()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	resp, out := s.handshake(conn)
	if !resp.OK {
		return
	}
	s.log.Printf("kcp session open player=%d remote=%s", resp.PlayerID, conn.RemoteAddr())

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Writer goroutine. Frames arrive pre-encoded from the world loop.
	go func() {
		for {
			select {
			case <-cctx.Done():
				return
			case b, ok := <-out:
				if !ok {
					return
				}
				if err := WriteFrame(conn, b, writeTimeout); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	tickRate := s.world.TickRateHz()
	if tickRate <= 0 {
		tickRate = 20
	}
	lim := rate.NewLimiter(rate.Limit(4*tickRate), 2*tickRate)
	for {
		msg, err := ReadFrame(conn, readTimeout)
		if err != nil {
			cancel()
			break
		}
		kind, err := protocol.FrameKind(msg)
		if err != nil || kind != protocol.FrameInput {
			continue
		}
		cmd, err := protocol.DecodeInput(msg)
		if err != nil {
			continue
		}
		if !lim.Allow() {
			continue
		}
		select {
		case resp.Inputs <- cmd:
		default:
			s.world.NoteInputDrop()
		}
	}

	s.world.Leave() <- resp.PlayerID
	s.log.Printf("kcp session closed player=%d", resp.PlayerID)
}

func (s *Server) handshake(conn net.Conn) (world.JoinResponse, chan []byte) {
	msg, err := ReadFrame(conn, 5*time.Second)
	if err != nil {
		return world.JoinResponse{}, nil
	}
	hello, err := protocol.DecodeHello(msg)
	if err != nil {
		return world.JoinResponse{}, nil
	}

	tune, rev := s.tstore.Get()
	outCap := tune.Queues.OutQueueCap
	if outCap <= 0 {
		outCap = 16
	}
	out := make(chan []byte, outCap)

	var resp world.JoinResponse
	if token := strings.TrimSpace(hello.ResumeToken); token != "" {
		respCh := make(chan world.JoinResponse, 1)
		s.world.Attach() <- world.AttachRequest{
			ResumeToken: token,
			Out:         out,
			Resp:        respCh,
		}
		resp = <-respCh
	}
	if !resp.OK {
		respCh := make(chan world.JoinResponse, 1)
		s.world.Join() <- world.JoinRequest{
			Name: hello.Name,
			Out:  out,
			Resp: respCh,
		}
		resp = <-respCh
	}
	if !resp.OK {
		return world.JoinResponse{}, nil
	}

	welcome := protocol.WelcomeMsg{
		PlayerID:    resp.PlayerID,
		Identity:    resp.Identity,
		ResumeToken: resp.ResumeToken,
		TickRateHz:  tune.TickRateHz,
		Movement:    tune.MovementParams(),
		Prediction:  tune.PredictionParams(),
		Net:         tune.NetParams(),
		NetRevision: rev,
	}
	wb, err := json.Marshal(welcome)
	if err != nil {
		s.world.Leave() <- resp.PlayerID
		return world.JoinResponse{}, nil
	}
	if err := WriteFrame(conn, wb, writeTimeout); err != nil {
		s.world.Leave() <- resp.PlayerID
		return world.JoinResponse{}, nil
	}
	if err := WriteFrame(conn, resp.Init, writeTimeout); err != nil {
		s.world.Leave() <- resp.PlayerID
		return world.JoinResponse{}, nil
	}
	return resp, out
}

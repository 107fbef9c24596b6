package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/nickandbro/slither-world-sub002/internal/protocol"
	"github.com/nickandbro/slither-world-sub002/internal/sim/tuning"
	"github.com/nickandbro/slither-world-sub002/internal/sim/world"
)

// Server speaks the session protocol over websocket: one JSON hello from
// the client, one JSON welcome back, then binary frames both ways.
type Server struct {
	world  *world.World
	tstore *tuning.Store
	log    *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, ts *tuning.Store, logger *log.Logger) *Server {
	s := &Server{
		world:  w,
		tstore: ts,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadLimit(protocol.MaxFrameSize)

		resp, out := s.handshake(conn)
		if !resp.OK {
			return
		}
		s.log.Printf("session open player=%d remote=%s", resp.PlayerID, r.RemoteAddr)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine. Frames arrive pre-encoded from the world loop.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop. Only INPUT frames are expected after the handshake;
		// the limiter caps how far ahead of the tick clock a client can push.
		tickRate := s.world.TickRateHz()
		if tickRate <= 0 {
			tickRate = 20
		}
		lim := rate.NewLimiter(rate.Limit(4*tickRate), 2*tickRate)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			if mt != websocket.BinaryMessage {
				continue
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

		// Cleanup. The world keeps the player alive for the grace window
		// so a resume token can re-attach.
		s.world.Leave() <- resp.PlayerID
		s.log.Printf("session closed player=%d", resp.PlayerID)
	}
}

func (s *Server) handshake(conn *websocket.Conn) (world.JoinResponse, chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	mt, msg, err := conn.ReadMessage()
	if err != nil || mt != websocket.TextMessage {
		return world.JoinResponse{}, nil
	}

	hello, err := protocol.DecodeHello(msg)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected hello"), time.Now().Add(time.Second))
		return world.JoinResponse{}, nil
	}

	tune, rev := s.tstore.Get()
	outCap := tune.Queues.OutQueueCap
	if outCap <= 0 {
		outCap = 16
	}
	out := make(chan []byte, outCap)

	// Optional: resume an existing player (reconnect).
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
		// Fresh join.
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
	if err := writeJSON(conn, welcome); err != nil {
		s.world.Leave() <- resp.PlayerID
		return world.JoinResponse{}, nil
	}

	// The roster frame is the first binary message the client sees.
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.BinaryMessage, resp.Init); err != nil {
		s.world.Leave() <- resp.PlayerID
		return world.JoinResponse{}, nil
	}

	return resp, out
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

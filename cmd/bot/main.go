package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nickandbro/slither-world-sub002/internal/client"
	"github.com/nickandbro/slither-world-sub002/internal/protocol"
	"github.com/nickandbro/slither-world-sub002/internal/transport/kcpmux"
)

// frameConn narrows a transport to what the session driver needs: whole
// frames in, whole frames out.
type frameConn interface {
	WriteFrame(b []byte) error
	ReadFrame() ([]byte, error)
	Close() error
}

func main() {
	var (
		wsURL    = flag.String("url", "ws://localhost:8080/v1/ws", "websocket url")
		kcpAddr  = flag.String("kcp", "", "kcp server address (overrides -url when set)")
		name     = flag.String("name", "bot", "player name")
		resume   = flag.String("resume_token", "", "resume a previous session")
		diagAddr = flag.String("diag_addr", "127.0.0.1:8091", "loopback diagnostics http address (empty to disable)")
		duration = flag.Duration("duration", 0, "exit after this long (0 = run until interrupted)")
		seed     = flag.Int64("seed", 0, "steering rng seed (0 = time-based)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	conn, welcome, err := connect(*wsURL, *kcpAddr, *name, *resume)
	if err != nil {
		logger.Fatalf("connect: %v", err)
	}
	defer conn.Close()
	logger.Printf("joined player=%d identity=%s tick_rate=%d net_revision=%d",
		welcome.PlayerID, welcome.Identity, welcome.TickRateHz, welcome.NetRevision)

	sess := client.NewSession(client.ConfigFromWelcome(welcome), conn.WriteFrame)

	ctx, cancel := signalContext()
	defer cancel()
	if *duration > 0 {
		var cancelT context.CancelFunc
		ctx, cancelT = context.WithTimeout(ctx, *duration)
		defer cancelT()
	}

	// Reader goroutine: every server frame goes through the session inbox,
	// which is bounded, so a stalled step loop never blocks this read.
	go func() {
		defer cancel()
		for {
			b, err := conn.ReadFrame()
			if err != nil {
				return
			}
			sess.HandleFrame(b)
		}
	}()

	if strings.TrimSpace(*diagAddr) != "" {
		startDiagServer(ctx, strings.TrimSpace(*diagAddr), sess, logger)
	}

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}
	steer := newWanderer(rngSeed)

	tickRate := welcome.TickRateHz
	if tickRate <= 0 {
		tickRate = 20
	}
	ticker := time.NewTicker(time.Second / time.Duration(tickRate))
	defer ticker.Stop()
	stats := time.NewTicker(5 * time.Second)
	defer stats.Stop()

	for {
		select {
		case <-ctx.Done():
			rep := sess.DiagSnapshot()
			logger.Printf("final: sent=%d applied=%d pending=%d err_p95=%.2fdeg soft=%d hard=%d",
				rep.Counters[client.CounterInputsSent], rep.Counters[client.CounterSnapshotsApplied],
				rep.PendingDepth, rep.Prediction.ErrP95Deg, rep.Prediction.SoftCount, rep.Prediction.HardCount)
			return
		case <-stats.C:
			rep := sess.DiagSnapshot()
			logger.Printf("pending=%d ack=%d err_last=%.2fdeg err_p95=%.2fdeg soft=%d hard=%d net=%s delay=%.2ft remotes=%d",
				rep.PendingDepth, rep.LatestAckSeq, rep.Prediction.ErrLastDeg, rep.Prediction.ErrP95Deg,
				rep.Prediction.SoftCount, rep.Prediction.HardCount, rep.Net.State, rep.Net.PlayoutDelayTicks,
				len(sess.Remotes(time.Now().UnixMilli())))
		case <-ticker.C:
			axis, boost := steer.next()
			sess.SetIntent(axis, boost)
			sess.Step(time.Now().UnixMilli())
		}
	}
}

func connect(wsURL, kcpAddr, name, resume string) (frameConn, protocol.WelcomeMsg, error) {
	hello, err := json.Marshal(protocol.HelloMsg{Name: name, ResumeToken: resume})
	if err != nil {
		return nil, protocol.WelcomeMsg{}, err
	}
	if strings.TrimSpace(kcpAddr) != "" {
		return connectKCP(strings.TrimSpace(kcpAddr), hello)
	}
	return connectWS(wsURL, hello)
}

func connectWS(url string, hello []byte) (frameConn, protocol.WelcomeMsg, error) {
	var welcome protocol.WelcomeMsg
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, welcome, err
	}
	c.SetReadLimit(protocol.MaxFrameSize)

	_ = c.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.WriteMessage(websocket.TextMessage, hello); err != nil {
		_ = c.Close()
		return nil, welcome, err
	}
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	mt, msg, err := c.ReadMessage()
	if err != nil {
		_ = c.Close()
		return nil, welcome, err
	}
	if mt != websocket.TextMessage {
		_ = c.Close()
		return nil, welcome, fmt.Errorf("expected welcome text, got message type %d", mt)
	}
	if err := json.Unmarshal(msg, &welcome); err != nil {
		_ = c.Close()
		return nil, welcome, fmt.Errorf("welcome: %w", err)
	}
	return &wsConn{c: c}, welcome, nil
}

func connectKCP(addr string, hello []byte) (frameConn, protocol.WelcomeMsg, error) {
	var welcome protocol.WelcomeMsg
	c, err := kcpmux.Dial(addr)
	if err != nil {
		return nil, welcome, err
	}
	if err := c.WriteFrame(hello); err != nil {
		_ = c.Close()
		return nil, welcome, err
	}
	msg, err := c.ReadFrameTimeout(5 * time.Second)
	if err != nil {
		_ = c.Close()
		return nil, welcome, err
	}
	if err := json.Unmarshal(msg, &welcome); err != nil {
		_ = c.Close()
		return nil, welcome, fmt.Errorf("welcome: %w", err)
	}
	return c, welcome, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) WriteFrame(b []byte) error {
	_ = w.c.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return w.c.WriteMessage(websocket.BinaryMessage, b)
}

func (w *wsConn) ReadFrame() ([]byte, error) {
	for {
		_ = w.c.SetReadDeadline(time.Now().Add(60 * time.Second))
		mt, msg, err := w.c.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		return msg, nil
	}
}

func (w *wsConn) Close() error { return w.c.Close() }

// wanderer produces a smoothly drifting steering intent. The turn rate
// random-walks so the path curves both ways; boost arrives in short
// bursts like a human tapping the key.
type wanderer struct {
	rng        *rand.Rand
	theta      float64
	dTheta     float64
	tick       int
	boostUntil int
}

func newWanderer(seed int64) *wanderer {
	return &wanderer{rng: rand.New(rand.NewSource(seed)), dTheta: 0.02}
}

func (w *wanderer) next() ([3]float32, bool) {
	w.tick++
	w.dTheta += (w.rng.Float64() - 0.5) * 0.004
	if w.dTheta > 0.06 {
		w.dTheta = 0.06
	} else if w.dTheta < -0.06 {
		w.dTheta = -0.06
	}
	w.theta += w.dTheta

	if w.tick >= w.boostUntil && w.rng.Float64() < 0.005 {
		w.boostUntil = w.tick + 10 + w.rng.Intn(20)
	}

	axis := [3]float32{
		float32(math.Cos(w.theta)),
		float32(math.Sin(w.theta)),
		float32(0.3 * math.Sin(w.theta/7)),
	}
	return axis, w.tick < w.boostUntil
}

// startDiagServer exposes the session diagnostics document so an operator
// can watch a live bot. Loopback only; the document includes the resume
// ack state and the event tail.
func startDiagServer(ctx context.Context, addr string, sess *client.Session, logger *log.Logger) {
	if !isLoopbackListenAddr(addr) {
		logger.Printf("diag server disabled: %s is not a loopback address", addr)
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/diag", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(sess.DiagSnapshot())
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()
	go func() {
		logger.Printf("diag listening on http://%s/diag", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("diag server: %v", err)
		}
	}()
}

func isLoopbackListenAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

package kcpmux

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net"
	"os"
	"testing"
	"time"

	"github.com/nickandbro/slither-world-sub002/internal/protocol"
	"github.com/nickandbro/slither-world-sub002/internal/sim/tuning"
	"github.com/nickandbro/slither-world-sub002/internal/sim/world"
)

func TestFrameRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	payload := []byte{protocol.Version, protocol.FrameInput, 1, 2, 3}
	errCh := make(chan error, 1)
	go func() { errCh <- WriteFrame(a, payload, time.Second) }()

	got, err := ReadFrame(b, time.Second)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if werr := <-errCh; werr != nil {
		t.Fatalf("write frame: %v", werr)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("frame mismatch: got %v want %v", got, payload)
	}
}

func TestWriteFrameRejectsOversize(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	big := make([]byte, protocol.MaxFrameSize+1)
	if err := WriteFrame(a, big, time.Second); err != ErrFrameTooLarge {
		t.Fatalf("err = %v, want ErrFrameTooLarge", err)
	}
}

func TestReadFrameRejectsOversizeHeader(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go func() {
		hdr := []byte{0xff, 0xff, 0xff, 0xff}
		_, _ = a.Write(hdr)
	}()
	if _, err := ReadFrame(b, time.Second); err != ErrFrameTooLarge {
		t.Fatalf("err = %v, want ErrFrameTooLarge", err)
	}
}

func TestServer_SessionOverLoopback(t *testing.T) {
	w := world.New(world.WorldConfig{ID: "w-kcp-test", TickRateHz: 50})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	srv := NewServer(w, tuning.NewStore(tuning.Defaults()), log.New(os.Stdout, "[kcp-test] ", log.LstdFlags))
	if err := srv.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = srv.Serve(ctx) }()

	conn, err := Dial(srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello, _ := json.Marshal(protocol.HelloMsg{Name: "kcp-nova"})
	if err := conn.WriteFrame(hello); err != nil {
		t.Fatalf("write hello: %v", err)
	}

	wb, err := conn.ReadFrameTimeout(5 * time.Second)
	if err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(wb, &welcome); err != nil {
		t.Fatalf("unmarshal welcome: %v", err)
	}
	if welcome.PlayerID == 0 {
		t.Fatalf("welcome has zero player id")
	}

	ib, err := conn.ReadFrameTimeout(5 * time.Second)
	if err != nil {
		t.Fatalf("read init: %v", err)
	}
	init, err := protocol.DecodeInit(ib)
	if err != nil {
		t.Fatalf("decode init: %v", err)
	}
	if init.LocalID != welcome.PlayerID {
		t.Fatalf("init local id = %d, welcome = %d", init.LocalID, welcome.PlayerID)
	}

	cmd := protocol.InputCommand{Seq: 1, HasAxis: true, Axis: [3]float32{0, 0, 1}}
	if err := conn.WriteFrame(protocol.EncodeInput(&cmd)); err != nil {
		t.Fatalf("write input: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatalf("no state frame acked seq 1")
		}
		msg, err := conn.ReadFrameTimeout(time.Second)
		if err != nil {
			t.Fatalf("read state: %v", err)
		}
		kind, err := protocol.FrameKind(msg)
		if err != nil || kind != protocol.FrameState {
			continue
		}
		st, err := protocol.DecodeState(msg)
		if err != nil {
			t.Fatalf("decode state: %v", err)
		}
		if st.LatestAckSeq == 1 {
			return
		}
	}
}

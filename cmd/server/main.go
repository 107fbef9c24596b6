package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/nickandbro/slither-world-sub002/internal/persistence/journal"
	"github.com/nickandbro/slither-world-sub002/internal/persistence/snapshot"
	"github.com/nickandbro/slither-world-sub002/internal/sim/tuning"
	"github.com/nickandbro/slither-world-sub002/internal/sim/world"
	"github.com/nickandbro/slither-world-sub002/internal/transport/kcpmux"
	"github.com/nickandbro/slither-world-sub002/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address (websocket, metrics, admin)")
		kcpAddr    = flag.String("kcp_addr", "", "kcp listen address (empty to disable)")
		worldID    = flag.String("world", "world_1", "world id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite tick/snapshot index")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(worldDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}

	// Create world (fresh or resumed from snapshot).
	var w *world.World
	var resumedIDs []uint16
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		// The sim keeps the snapshot's movement constants. Clients predict
		// with whatever the welcome hands out, so tuning must carry the
		// same values or every predictor would diverge from the stepper.
		tune.TickRateHz = snap.TickRateHz
		tune.Movement.TurnRateDegPerSec = snap.TurnRateDegPerSec
		tune.Movement.BaseSpeedDegPerSec = snap.BaseSpeedDegPerSec
		tune.Movement.BoostSpeedMult = snap.BoostSpeedMult

		w = world.New(world.FromTuning(*worldID, tune))
		if err := w.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		resumedIDs = w.ConnectedIDs()
		logger.Printf("resumed from snapshot=%s tick=%d players=%d", filepath.Base(snapshotToLoad), w.CurrentTick(), len(snap.Players))
	} else {
		w = world.New(world.FromTuning(*worldID, tune))
	}

	ts := tuning.NewStore(tune)
	if idx != nil {
		if err := idx.RecordTuning(tune); err != nil {
			logger.Printf("index backend: record tuning: %v", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := journal.NewTickWriter(worldDir)
	defer tickLog.Close()
	w.SetJournal(multiTickJournal{a: tickLog, b: idx})

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, snap)
				}
			}
		}
	}()

	// Sessions do not survive a restart. Step once with a leave for every
	// player the snapshot recorded as connected so their grace clocks start
	// through the journaled path and resume tokens can re-attach them.
	if len(resumedIDs) > 0 {
		w.StepOnce(time.Now().UnixMilli(), nil, resumedIDs, nil, nil)
		logger.Printf("started disconnect grace for %d resumed players", len(resumedIDs))
	}

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		m := w.Metrics()
		tick := w.CurrentTick()
		if m.Tick != 0 {
			tick = m.Tick
		}

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP slither_world_tick Current world tick.\n")
		fmt.Fprintf(rw, "# TYPE slither_world_tick gauge\n")
		fmt.Fprintf(rw, "slither_world_tick{world=%q} %d\n", *worldID, tick)

		fmt.Fprintf(rw, "# HELP slither_world_players Current number of players in the world.\n")
		fmt.Fprintf(rw, "# TYPE slither_world_players gauge\n")
		fmt.Fprintf(rw, "slither_world_players{world=%q} %d\n", *worldID, m.Players)

		fmt.Fprintf(rw, "# HELP slither_world_sessions Current number of connected sessions.\n")
		fmt.Fprintf(rw, "# TYPE slither_world_sessions gauge\n")
		fmt.Fprintf(rw, "slither_world_sessions{world=%q} %d\n", *worldID, m.Sessions)

		fmt.Fprintf(rw, "# HELP slither_world_queue_depth Channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE slither_world_queue_depth gauge\n")
		fmt.Fprintf(rw, "slither_world_queue_depth{world=%q,queue=%q} %d\n", *worldID, "join", m.QueueDepths.Join)
		fmt.Fprintf(rw, "slither_world_queue_depth{world=%q,queue=%q} %d\n", *worldID, "attach", m.QueueDepths.Attach)
		fmt.Fprintf(rw, "slither_world_queue_depth{world=%q,queue=%q} %d\n", *worldID, "leave", m.QueueDepths.Leave)
		fmt.Fprintf(rw, "slither_world_queue_depth{world=%q,queue=%q} %d\n", *worldID, "admin", m.QueueDepths.Admin)
		fmt.Fprintf(rw, "slither_world_queue_depth{world=%q,queue=%q} %d\n", *worldID, "inputs", m.QueueDepths.Inputs)

		fmt.Fprintf(rw, "# HELP slither_world_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE slither_world_step_ms gauge\n")
		fmt.Fprintf(rw, "slither_world_step_ms{world=%q} %.3f\n", *worldID, m.StepMS)

		fmt.Fprintf(rw, "# HELP slither_world_inputs_applied_total Input commands applied to the sim.\n")
		fmt.Fprintf(rw, "# TYPE slither_world_inputs_applied_total counter\n")
		fmt.Fprintf(rw, "slither_world_inputs_applied_total{world=%q} %d\n", *worldID, m.InputsApplied)

		fmt.Fprintf(rw, "# HELP slither_world_input_drops_total Input commands dropped at full session queues.\n")
		fmt.Fprintf(rw, "# TYPE slither_world_input_drops_total counter\n")
		fmt.Fprintf(rw, "slither_world_input_drops_total{world=%q} %d\n", *worldID, m.InputDrops)

		fmt.Fprintf(rw, "# HELP slither_world_frames_sent_total State frames handed to session queues.\n")
		fmt.Fprintf(rw, "# TYPE slither_world_frames_sent_total counter\n")
		fmt.Fprintf(rw, "slither_world_frames_sent_total{world=%q} %d\n", *worldID, m.FramesSent)

		fmt.Fprintf(rw, "# HELP slither_world_scoped_entries Player entries written across all frames last tick.\n")
		fmt.Fprintf(rw, "# TYPE slither_world_scoped_entries gauge\n")
		fmt.Fprintf(rw, "slither_world_scoped_entries{world=%q} %d\n", *worldID, m.ScopedEntries)

		writeIndexMetrics(rw, idx)
	})

	enableAdminHTTP := envBool("NETCODE_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("NETCODE_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints (do not affect simulation determinism,
		// except kill/respawn which go through the journaled admin phase).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			_, rev := ts.Get()
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				WorldID        string             `json:"world_id"`
				Tick           uint64             `json:"tick"`
				TuningRevision uint64             `json:"tuning_revision"`
				Metrics        world.WorldMetrics `json:"metrics"`
			}{
				WorldID:        *worldID,
				Tick:           w.CurrentTick(),
				TuningRevision: rev,
				Metrics:        w.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/tuning", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			switch r.Method {
			case http.MethodGet:
				cur, rev := ts.Get()
				rw.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(rw).Encode(struct {
					Revision uint64        `json:"revision"`
					Tuning   tuning.Tuning `json:"tuning"`
				}{Revision: rev, Tuning: cur})
			case http.MethodPost:
				cur, _ := ts.Get()
				next := cur
				if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
					http.Error(rw, "bad tuning json: "+err.Error(), http.StatusBadRequest)
					return
				}
				// The running world integrates with the constants it was
				// created with; the welcome must keep handing out the same.
				if next.TickRateHz != cur.TickRateHz || next.Movement != cur.Movement {
					http.Error(rw, "tick_rate_hz and movement are fixed for the lifetime of the world", http.StatusUnprocessableEntity)
					return
				}
				rev, err := ts.Update(func(t *tuning.Tuning) { *t = next })
				if err != nil {
					http.Error(rw, err.Error(), http.StatusUnprocessableEntity)
					return
				}
				if idx != nil {
					if err := idx.RecordTuning(next); err != nil {
						logger.Printf("index backend: record tuning: %v", err)
					}
				}
				logger.Printf("tuning override applied revision=%d", rev)
				rw.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "revision": rev})
			default:
				rw.WriteHeader(http.StatusMethodNotAllowed)
			}
		})

		playerOp := func(op func(context.Context, uint16) (world.AdminResult, error)) http.HandlerFunc {
			return func(rw http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					rw.WriteHeader(http.StatusMethodNotAllowed)
					return
				}
				if !isLoopbackRemote(r.RemoteAddr) {
					http.Error(rw, "forbidden", http.StatusForbidden)
					return
				}
				id, err := parsePlayerID(r.URL.Query().Get("player_id"))
				if err != nil {
					http.Error(rw, err.Error(), http.StatusBadRequest)
					return
				}
				ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
				defer cancel2()
				res, err := op(ctx2, id)
				rw.Header().Set("Content-Type", "application/json")
				if err != nil {
					rw.WriteHeader(http.StatusUnprocessableEntity)
					_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": res.Tick, "error": err.Error()})
					return
				}
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": res.Tick})
			}
		}
		mux.HandleFunc("/admin/v1/kill", playerOp(w.Kill))
		mux.HandleFunc("/admin/v1/respawn", playerOp(w.Respawn))

		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			res, err := w.RequestSnapshot(ctx2)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": res.Tick, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": res.Tick})
		})
	} else {
		logger.Printf("admin endpoints disabled (NETCODE_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (NETCODE_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, ts, logger).Handler())

	if strings.TrimSpace(*kcpAddr) != "" {
		ks := kcpmux.NewServer(w, ts, logger)
		if err := ks.Listen(strings.TrimSpace(*kcpAddr)); err != nil {
			logger.Fatalf("kcp listen: %v", err)
		}
		go func() {
			if err := ks.Serve(ctx); err != nil {
				logger.Printf("kcp server stopped: %v", err)
			}
		}()
		logger.Printf("kcp listening on %s", ks.Addr())
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
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

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		tick, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func parsePlayerID(s string) (uint16, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("player_id must be a positive 16-bit integer")
	}
	return uint16(n), nil
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func writeIndexMetrics(rw http.ResponseWriter, idx runtimeIndex) {
	if idx == nil {
		return
	}
	s := idx.Stats()

	fmt.Fprintf(rw, "# HELP slither_index_queue_depth Current index write queue depth.\n")
	fmt.Fprintf(rw, "# TYPE slither_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "slither_index_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(rw, "# HELP slither_index_queue_capacity Index write queue capacity.\n")
	fmt.Fprintf(rw, "# TYPE slither_index_queue_capacity gauge\n")
	fmt.Fprintf(rw, "slither_index_queue_capacity %d\n", s.QueueCapacity)

	fmt.Fprintf(rw, "# HELP slither_index_dropped_total Index rows dropped because the queue stayed full.\n")
	fmt.Fprintf(rw, "# TYPE slither_index_dropped_total counter\n")
	fmt.Fprintf(rw, "slither_index_dropped_total{kind=%q} %d\n", "tick", s.DropTickTotal)
	fmt.Fprintf(rw, "slither_index_dropped_total{kind=%q} %d\n", "snapshot", s.DropSnapshotTotal)
}

// multiTickJournal fans tick entries out to the jsonl journal and the
// index backend. Neither sink may fail the sim loop, so errors are
// swallowed here; the index reports drops through its own stats.
type multiTickJournal struct {
	a world.TickJournal
	b world.TickJournal
}

func (m multiTickJournal) WriteTick(entry world.TickEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}
